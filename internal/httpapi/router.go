package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/veskrna/moodstream/internal/classifier"
	"github.com/veskrna/moodstream/internal/eventlog"
	"github.com/veskrna/moodstream/internal/session"
)

type RouterConfig struct {
	// GeminiAPIKeySet drives the readiness probe; the key itself stays inside
	// the classifier client.
	GeminiAPIKeySet bool

	// Streaming transcription
	DeepgramAPIKey string
	STTLanguage    string
	STTModel       string
	STTSampleRate  int
	STTEndpointing int

	// AllowedOrigins for CORS; empty means allow any origin.
	AllowedOrigins []string

	Debug bool
}

type Router struct {
	cfg        RouterConfig
	logger     *log.Logger
	classifier classifier.Client
	eventLog   *eventlog.Logger
	sessions   *session.Registry
	mux        *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, cl classifier.Client, eventLog *eventlog.Logger, sessions *session.Registry) http.Handler {
	r := &Router{
		cfg:        cfg,
		logger:     logger,
		classifier: cl,
		eventLog:   eventLog,
		sessions:   sessions,
		mux:        http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(cfg.AllowedOrigins, r.mux))
}

func (r *Router) routes() {
	// Liveness
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	// Readiness: classifier credentials present
	r.mux.HandleFunc("GET /api/health", r.handleHealth)

	// One-shot analysis
	r.mux.HandleFunc("POST /process_text", r.handleProcessText)

	// Live streaming session (websocket)
	r.mux.HandleFunc("GET /api/stream", r.handleStreamWS)
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !r.cfg.GeminiAPIKeySet {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"reason": "classifier credentials not configured",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"model":  r.classifier.Model(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		if origin != "" && originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(allowed) == 0 {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == origin || a == "*" {
			return true
		}
	}
	return false
}

// captureError sends an error to sentry with request context.
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
