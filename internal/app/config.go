package app

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is loaded once from the environment at startup and injected into
// every constructor. Business logic never reads the environment directly.
type Config struct {
	HTTPAddr string
	LogLevel string
	Debug    bool

	SentryDSN   string
	DatabaseURL string // optional; event logging only

	// Upstream classifier
	GeminiAPIKey      string // required
	GeminiModel       string
	ClassifierTimeout time.Duration // per-attempt network timeout
	ClassifierRetries int           // retries after the first attempt

	// Streaming transcription
	DeepgramAPIKey  string // optional; /api/stream refuses audio without it
	STTLanguage     string
	STTModel        string
	STTSampleRate   int
	STTEndpointing  int // ms of silence before a segment finalizes

	// CORS
	AllowedOrigins []string
}

// LoadConfigFromEnv reads configuration from process environment.
func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),
		Debug:    getenvBool("DEBUG", false),

		SentryDSN:   os.Getenv("SENTRY_DSN"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"), // required, validated in Validate
		GeminiModel:       getenv("GEMINI_MODEL", "gemini-2.0-flash"),
		ClassifierTimeout: getenvDuration("CLASSIFIER_TIMEOUT", 25*time.Second),
		ClassifierRetries: getenvIntClamped("CLASSIFIER_RETRIES", 2, 0, 5),

		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		STTLanguage:    getenv("STT_LANGUAGE", "en"),
		STTModel:       getenv("STT_MODEL", "nova-3"),
		STTSampleRate:  getenvIntClamped("STT_SAMPLE_RATE", 16000, 8000, 48000),
		STTEndpointing: getenvIntClamped("STT_ENDPOINTING_MS", 800, 0, 5000),

		AllowedOrigins: parseOrigins(os.Getenv("ALLOWED_ORIGINS")),
	}
}

// Validate rejects configurations the process must not start with.
func (c Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	return nil
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getenvIntClamped(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
