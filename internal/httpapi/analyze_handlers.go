package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/veskrna/moodstream/internal/orchestrator"
)

// maxTextLen bounds /process_text input. Longer bodies are rejected outright
// rather than truncated.
const maxTextLen = 10000

type processTextRequest struct {
	// Text is decoded loosely so a non-string value can be named in the
	// validation error instead of surfacing as a decode failure.
	Text any `json:"text"`
}

type apiError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	StatusCode int    `json:"statusCode"`
}

func writeAPIError(w http.ResponseWriter, status int, errType, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   apiError{Message: msg, Type: errType, StatusCode: status},
	})
}

// handleProcessText runs one piece of text through the full analysis
// pipeline. Classifier failures degrade to a local fallback result and still
// return 200; only input validation produces an error envelope.
func (r *Router) handleProcessText(w http.ResponseWriter, req *http.Request) {
	started := time.Now()

	var body processTextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20)).Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "validation_error", "request body must be JSON with a \"text\" field")
		return
	}

	text, ok := body.Text.(string)
	switch {
	case body.Text == nil:
		writeAPIError(w, http.StatusBadRequest, "validation_error", "field \"text\" is required")
		return
	case !ok:
		writeAPIError(w, http.StatusBadRequest, "validation_error", "field \"text\" must be a string")
		return
	case strings.TrimSpace(text) == "":
		writeAPIError(w, http.StatusBadRequest, "validation_error", "field \"text\" must not be empty")
		return
	case len(text) > maxTextLen:
		writeAPIError(w, http.StatusBadRequest, "validation_error", "field \"text\" exceeds maximum length of 10000 characters")
		return
	}

	// A throwaway single-submission orchestrator gives the request the same
	// resilience policy the live sessions get.
	orch := orchestrator.New(orchestrator.Config{
		Classifier: r.classifier,
		Logger:     r.logger,
		OnError: func(err error) {
			r.logger.Printf("process_text: classifier failed: %v", err)
			captureError(req, err, "classifier failure, fallback served")
		},
	})
	defer orch.Stop()

	result, ok := orch.Submit(req.Context(), text)
	if !ok {
		// Unreachable after validation, but never answer with an empty body.
		writeAPIError(w, http.StatusBadRequest, "validation_error", "field \"text\" must not be empty")
		return
	}

	if r.cfg.Debug {
		r.logger.Printf("process_text: %d chars analyzed in %dms (fallback=%v)",
			len(text), time.Since(started).Milliseconds(), result.IsFallback)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    result,
		"metadata": map[string]any{
			"timestamp":        time.Now().UTC().Format(time.RFC3339),
			"processingTimeMs": time.Since(started).Milliseconds(),
		},
	})
}
