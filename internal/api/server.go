package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/url-indexer/internal/indexing"
	"github.com/JakeFAU/url-indexer/internal/metrics"
)

// Indexer accepts submissions and exposes the run slot.
type Indexer interface {
	SubmitSingle(ctx context.Context, rawURL string) (string, error)
	SubmitBatch(ctx context.Context, urls []string) (string, int, error)
	SubmitBatchDeferred(ctx context.Context, urls []string) (string, int, error)
	StartIndexing(ctx context.Context) ([]string, error)
	Snapshot() indexing.RunnerSnapshot
}

// Accounts manages uploaded service-account keys.
type Accounts interface {
	Register(ctx context.Context, name string, payload []byte) (indexing.Credential, error)
	List(ctx context.Context) ([]indexing.Credential, error)
	Delete(ctx context.Context, id string) error
}

// Pinger checks a backing database. A nil Pinger means in-memory storage.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the HTTP surface.
type Options struct {
	AllowedOrigins []string
	// UploadMaxBytes caps multipart request bodies.
	UploadMaxBytes int64
	RequestTimeout time.Duration
}

const (
	defaultUploadMaxBytes = 5 << 20
	defaultRequestTimeout = 60 * time.Second
	defaultPageLimit      = 20
	maxPageLimit          = 100
	healthPingTimeout     = 2 * time.Second
)

// Server wires HTTP handlers to the orchestrator and stores.
type Server struct {
	router   chi.Router
	indexer  Indexer
	accounts Accounts
	jobs     indexing.JobStore
	db       Pinger
	clock    indexing.Clock
	opts     Options
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	indexer Indexer,
	accounts Accounts,
	jobs indexing.JobStore,
	db Pinger,
	clock indexing.Clock,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.UploadMaxBytes <= 0 {
		opts.UploadMaxBytes = defaultUploadMaxBytes
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		indexer:  indexer,
		accounts: accounts,
		jobs:     jobs,
		db:       db,
		clock:    clock,
		opts:     opts,
		logger:   logger,
	}

	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))

		r.Get("/health", s.health)

		r.Post("/submit-url", s.submitURL)
		r.Post("/upload-csv", s.uploadCSV)
		r.Post("/start-indexing", s.startIndexing)

		r.Post("/upload-account", s.uploadAccount)
		r.Get("/accounts", s.listAccounts)
		r.Delete("/accounts/{id}", s.deleteAccount)

		r.Get("/status/{id}", s.getStatus)
		r.Get("/python-status", s.runnerStatus)
		r.Get("/requests", s.listRequests)
		r.Get("/urls", s.listRequests)
		r.Get("/stats", s.stats)

		r.Delete("/request/{id}", s.deleteRequest)
		r.Delete("/urls", s.deleteAllRequests)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}
