package app

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veskrna/moodstream/internal/classifier"
	"github.com/veskrna/moodstream/internal/eventlog"
	"github.com/veskrna/moodstream/internal/httpapi"
	"github.com/veskrna/moodstream/internal/session"
)

// App owns the process-wide collaborators: the database pool (optional), the
// shared HTTP client, and the classifier client.
type App struct {
	cfg        Config
	logger     *log.Logger
	db         *pgxpool.Pool
	eventLog   *eventlog.Logger
	classifier classifier.Client
	httpClient *http.Client
}

// New wires the application together. The database is optional: without
// DATABASE_URL event logging is disabled and everything else runs normally.
func New(cfg Config, logger *log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		db = pool
	}

	// Shared HTTP client with connection pooling. Classifier calls hit one
	// host repeatedly; keeping connections warm cuts per-utterance latency.
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	cl := classifier.NewGeminiClient(classifier.GeminiConfig{
		APIKey:         cfg.GeminiAPIKey,
		Model:          cfg.GeminiModel,
		MaxRetries:     cfg.ClassifierRetries,
		AttemptTimeout: cfg.ClassifierTimeout,
		HTTPClient:     httpClient,
	})

	return &App{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		eventLog:   eventlog.New(db),
		classifier: cl,
		httpClient: httpClient,
	}, nil
}

// Router builds the HTTP handler tree.
func (a *App) Router(sessions *session.Registry) http.Handler {
	routerCfg := httpapi.RouterConfig{
		GeminiAPIKeySet: a.cfg.GeminiAPIKey != "",
		DeepgramAPIKey:  a.cfg.DeepgramAPIKey,
		STTLanguage:     a.cfg.STTLanguage,
		STTModel:        a.cfg.STTModel,
		STTSampleRate:   a.cfg.STTSampleRate,
		STTEndpointing:  a.cfg.STTEndpointing,
		AllowedOrigins:  a.cfg.AllowedOrigins,
		Debug:           a.cfg.Debug,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.classifier, a.eventLog, sessions)
}

// Close releases process-wide resources.
func (a *App) Close() error {
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
