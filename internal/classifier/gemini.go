package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient implements the Client interface using Google's Gemini API.
type GeminiClient struct {
	apiKey         string
	model          string
	baseURL        string
	maxRetries     int
	attemptTimeout time.Duration
	httpClient     *http.Client

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey         string
	Model          string        // e.g. "gemini-2.0-flash"
	BaseURL        string        // overridden in tests
	MaxRetries     int           // retries after the first attempt; 0 disables, -1 selects the default of 2
	AttemptTimeout time.Duration // per-attempt network timeout (default 25s)
	HTTPClient     *http.Client  // shared client with connection pooling
}

const defaultMaxRetries = 2

// NewGeminiClient creates a new Gemini classifier client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	// Zero is a real setting (no retries), so -1 is the sentinel for "use
	// the default".
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = 25 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GeminiClient{
		apiKey:         cfg.APIKey,
		model:          model,
		baseURL:        baseURL,
		maxRetries:     maxRetries,
		attemptTimeout: attemptTimeout,
		httpClient:     httpClient,
		sleep:          sleepCtx,
	}
}

// Model returns the identifier of the upstream model in use.
func (c *GeminiClient) Model() string { return c.model }

// generateRequest is the Gemini generateContent request body.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse covers the envelope shapes we accept. The candidates list
// is the documented Gemini shape; Response covers proxy wrappers.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Response string `json:"response"`
}

// Classify sends the transcript to Gemini and returns the raw model text.
// Transient failures (network errors, timeouts, 5xx) are retried with bounded
// exponential backoff; a 4xx is terminal and fails immediately. The returned
// error, when non-nil, is always a *Error.
func (c *GeminiClient) Classify(ctx context.Context, text string) (string, error) {
	prompt := AnalysisPrompt(text)

	var lastStatus int
	var lastMsg string

	for attempt := 0; ; attempt++ {
		raw, status, err := c.attempt(ctx, prompt)
		if err == nil {
			return raw, nil
		}

		lastStatus = status
		lastMsg = err.Error()

		// 4xx means our request was rejected; retrying cannot help.
		if status >= 400 && status < 500 {
			return "", &Error{Status: status, Message: lastMsg, Attempts: attempt + 1}
		}
		if attempt >= c.maxRetries {
			return "", &Error{Status: lastStatus, Message: lastMsg, Attempts: attempt + 1}
		}
		if err := c.sleep(ctx, backoff(attempt)); err != nil {
			return "", &Error{Status: lastStatus, Message: lastMsg, Attempts: attempt + 1}
		}
	}
}

// attempt performs a single bounded network call. status is 0 when no HTTP
// response was received.
func (c *GeminiClient) attempt(ctx context.Context, prompt string) (string, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, fmt.Errorf("gemini API error: %s - %s", resp.Status, string(respBody))
	}

	return extractText(respBody), resp.StatusCode, nil
}

// extractText pulls the model's output text out of the provider envelope,
// trying each known shape in priority order and degrading to the raw body
// when none match. The analysis builder can make something of any of them.
func extractText(body []byte) string {
	var envelope generateResponse
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Candidates) > 0 && len(envelope.Candidates[0].Content.Parts) > 0 {
			return envelope.Candidates[0].Content.Parts[0].Text
		}
		if envelope.Response != "" {
			return envelope.Response
		}
	}
	var bare string
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare
	}
	return string(body)
}

// backoff returns the delay before retry attemptIndex+1: 1s, 2s, 4s, capped
// at 5s.
func backoff(attemptIndex int) time.Duration {
	d := time.Duration(1000<<attemptIndex) * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
