// Package server builds the application's dependencies and runs the HTTP
// server alongside the job dispatcher.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/url-indexer/internal/accounts"
	"github.com/JakeFAU/url-indexer/internal/api"
	"github.com/JakeFAU/url-indexer/internal/clock/system"
	"github.com/JakeFAU/url-indexer/internal/config"
	"github.com/JakeFAU/url-indexer/internal/dispatcher"
	"github.com/JakeFAU/url-indexer/internal/hash/sha256"
	"github.com/JakeFAU/url-indexer/internal/id/uuid"
	"github.com/JakeFAU/url-indexer/internal/indexing"
	"github.com/JakeFAU/url-indexer/internal/orchestrator"
	"github.com/JakeFAU/url-indexer/internal/progress"
	queueMemory "github.com/JakeFAU/url-indexer/internal/queue/memory"
	"github.com/JakeFAU/url-indexer/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	registerer prometheus.Registerer

	apiServer   *api.Server
	dispatch    *dispatcher.Dispatcher
	queue       *queueMemory.Queue
	progressHub *progress.Hub

	jobs   indexing.JobStore
	creds  indexing.CredentialStore
	blobs  indexing.BlobStore
	pool   *pgxpool.Pool
	orch   *orchestrator.Orchestrator
	topic  *pubsub.Topic
	pubsub *pubsub.Client
	gcs    *storage.Client
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	return build(ctx, cfg, logger, prometheus.DefaultRegisterer)
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger, registerer: reg}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.WithoutCancel(ctx))
		}
	}()

	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("database", cfg.Database.DSN != ""),
		zap.Bool("demo_mode", cfg.Indexer.DemoMode),
	)

	if err = app.setupStores(ctx); err != nil {
		return nil, err
	}
	if err = app.setupBlobStore(ctx); err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	emitter, err := app.setupProgress(ctx, publisher)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	ids := uuid.New()

	app.queue = queueMemory.NewQueue(cfg.Indexer.QueueDepth)
	app.dispatch = dispatcher.New(app.queue)

	app.orch, err = orchestrator.New(orchestrator.Config{
		Command:           cfg.Indexer.Command,
		Args:              cfg.Indexer.Args,
		Dir:               cfg.Indexer.Dir,
		WorkDir:           cfg.Indexer.WorkDir,
		Timeout:           cfg.Indexer.Timeout,
		DemoMode:          cfg.Indexer.DemoMode,
		DemoDelay:         cfg.Indexer.DemoDelay,
		InlineCredentials: []byte(cfg.Indexer.InlineCredentialsJSON),
		LogLines:          cfg.Indexer.LogLines,
	}, orchestrator.Deps{
		Jobs:        app.jobs,
		Credentials: app.creds,
		Blobs:       app.blobs,
		Enqueuer:    app.dispatch,
		IDs:         ids,
		Clock:       clock,
		Emitter:     emitter,
		Logger:      logger.Named("orchestrator"),
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}
	if _, err = app.orch.RecoverInterrupted(ctx); err != nil {
		return nil, err
	}
	// A single worker keeps runs strictly one at a time.
	app.dispatch.Register(worker.New(app.queue, app.orch, clock, logger.Named("worker")))
	app.logger.Info("indexer configured",
		zap.String("command", cfg.Indexer.Command),
		zap.Strings("args", cfg.Indexer.Args),
		zap.Duration("timeout", cfg.Indexer.Timeout),
		zap.Bool("inline_credentials", cfg.Indexer.InlineCredentialsJSON != ""),
	)

	accountSvc := accounts.New(app.creds, app.blobs, ids, sha256.New(), clock, logger.Named("accounts"))

	var db api.Pinger
	if app.pool != nil {
		db = app.pool
	}
	app.apiServer = api.NewServer(app.orch, accountSvc, app.jobs, db, clock, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		UploadMaxBytes: cfg.Upload.MaxBytes,
	}, logger.Named("api"))

	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and executes queued jobs until ctx is canceled or the
// server fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Addr(), err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(gctx)
		a.logger.Info("dispatcher stopped")
		return nil
	})
	g.Go(func() error {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})

	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
	defer cancel()
	a.Close(closeCtx)
	return runErr
}

// Close releases queue, progress, and infrastructure resources.
func (a *App) Close(ctx context.Context) {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.progressHub = nil
	}
	if a.topic != nil {
		a.topic.Stop()
		a.topic = nil
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsub = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcs = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 15 * time.Second
}
