package classifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSleep records requested backoff delays without actually waiting.
func fakeSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func geminiSuccessBody() string {
	return `{"candidates": [{"content": {"parts": [{"text": "{\"sentiment\": 0.9}"}]}}]}`
}

func TestClassifySuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		if req.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", req.Method)
		}
		if got := req.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(geminiSuccessBody()))
	}))
	defer srv.Close()

	c := NewGeminiClient(GeminiConfig{APIKey: "test-key", BaseURL: srv.URL})

	raw, err := c.Classify(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if raw != `{"sentiment": 0.9}` {
		t.Errorf("raw = %q", raw)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestClassifyRetriesTransientFailures(t *testing.T) {
	// Fails twice with 503, succeeds on the third attempt. With MaxRetries=2
	// that succeeds, with backoff 1s then 2s between attempts.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(geminiSuccessBody()))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewGeminiClient(GeminiConfig{APIKey: "k", BaseURL: srv.URL, MaxRetries: 2})
	c.sleep = fakeSleep(&delays)

	raw, err := c.Classify(context.Background(), "text")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if raw == "" {
		t.Error("raw should not be empty")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delays[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestClassifyTerminalFailureNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewGeminiClient(GeminiConfig{APIKey: "k", BaseURL: srv.URL, MaxRetries: 2})
	c.sleep = fakeSleep(&delays)

	_, err := c.Classify(context.Background(), "text")
	if err == nil {
		t.Fatal("Classify() should fail on 400")
	}
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("error is %T, want *Error", err)
	}
	if cerr.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", cerr.Status)
	}
	if cerr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", cerr.Attempts)
	}
	if !cerr.Terminal() {
		t.Error("Terminal() should be true for 400")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want exactly 1 (no retry)", calls.Load())
	}
	if len(delays) != 0 {
		t.Errorf("delays = %v, want none", delays)
	}
}

func TestClassifyExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewGeminiClient(GeminiConfig{APIKey: "k", BaseURL: srv.URL, MaxRetries: 2})
	c.sleep = fakeSleep(&delays)

	_, err := c.Classify(context.Background(), "text")
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if cerr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", cerr.Attempts)
	}
	if cerr.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", cerr.Status)
	}
	if cerr.Terminal() {
		t.Error("Terminal() should be false for 500")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClassifyAttemptTimeoutIsRetryable(t *testing.T) {
	// First attempt hangs past the per-attempt timeout; second succeeds.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		_, _ = w.Write([]byte(geminiSuccessBody()))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewGeminiClient(GeminiConfig{
		APIKey:         "k",
		BaseURL:        srv.URL,
		MaxRetries:     2,
		AttemptTimeout: 50 * time.Millisecond,
	})
	c.sleep = fakeSleep(&delays)

	raw, err := c.Classify(context.Background(), "text")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if raw == "" {
		t.Error("raw should not be empty")
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if len(delays) != 1 {
		t.Errorf("delays = %v, want one backoff", delays)
	}
}

func TestBackoffSchedule(t *testing.T) {
	tests := []struct {
		attemptIndex int
		want         time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second}, // capped
		{4, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := backoff(tt.attemptIndex); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attemptIndex, got, tt.want)
		}
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "candidates shape",
			body: `{"candidates": [{"content": {"parts": [{"text": "hello"}]}}]}`,
			want: "hello",
		},
		{
			name: "response shape",
			body: `{"response": "wrapped output"}`,
			want: "wrapped output",
		},
		{
			name: "bare string",
			body: `"just a string"`,
			want: "just a string",
		},
		{
			name: "unknown shape dumps raw",
			body: `{"something": "else"}`,
			want: `{"something": "else"}`,
		},
		{
			name: "not json at all",
			body: `plain text`,
			want: `plain text`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractText([]byte(tt.body)); got != tt.want {
				t.Errorf("extractText(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestClientInterface(t *testing.T) {
	// Verify GeminiClient implements the Client interface.
	var _ Client = (*GeminiClient)(nil)
}

func TestNewGeminiClientDefaults(t *testing.T) {
	// -1 is the sentinel for "use the default retry count"; zero is a real
	// setting and must survive as-is.
	c := NewGeminiClient(GeminiConfig{APIKey: "k", MaxRetries: -1})
	if c.model != "gemini-2.0-flash" {
		t.Errorf("model = %q", c.model)
	}
	if c.maxRetries != 2 {
		t.Errorf("maxRetries = %d, want 2", c.maxRetries)
	}
	if c.attemptTimeout != 25*time.Second {
		t.Errorf("attemptTimeout = %v", c.attemptTimeout)
	}
	if c.Model() != "gemini-2.0-flash" {
		t.Errorf("Model() = %q", c.Model())
	}

	if c := NewGeminiClient(GeminiConfig{APIKey: "k", MaxRetries: 0}); c.maxRetries != 0 {
		t.Errorf("maxRetries = %d, want 0 preserved", c.maxRetries)
	}
}

func TestClassifyRetriesDisabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewGeminiClient(GeminiConfig{APIKey: "k", BaseURL: srv.URL, MaxRetries: 0})
	c.sleep = fakeSleep(&delays)

	_, err := c.Classify(context.Background(), "text")
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if cerr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", cerr.Attempts)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want exactly 1", calls.Load())
	}
	if len(delays) != 0 {
		t.Errorf("delays = %v, want none", delays)
	}
}
