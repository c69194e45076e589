package server

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/url-indexer/internal/indexing"
	"github.com/JakeFAU/url-indexer/internal/progress"
	progresssinks "github.com/JakeFAU/url-indexer/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/url-indexer/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/url-indexer/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/url-indexer/internal/storage/gcs"
	localstorage "github.com/JakeFAU/url-indexer/internal/storage/local"
	memoryStorage "github.com/JakeFAU/url-indexer/internal/storage/memory"
	pgstore "github.com/JakeFAU/url-indexer/internal/storage/postgres"
)

// setupStores picks Postgres when a DSN is configured and memory otherwise.
func (a *App) setupStores(ctx context.Context) error {
	db := a.cfg.Database
	if db.DSN == "" {
		a.logger.Warn("no database DSN configured, jobs and credentials are kept in memory")
		a.jobs = memoryStorage.NewJobStore()
		a.creds = memoryStorage.NewCredentialStore()
		return nil
	}
	if db.MigrateOnStart {
		if err := pgstore.MigrateUp(db.DSN); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		a.logger.Info("database migrations applied")
	}
	pool, err := pgstore.NewPool(ctx, pgstore.Config{
		DSN:             db.DSN,
		MaxConns:        db.MaxConns,
		MinConns:        db.MinConns,
		MaxConnLifetime: db.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	a.pool = pool
	if a.jobs, err = pgstore.NewJobStore(pool); err != nil {
		return fmt.Errorf("job store init failed: %w", err)
	}
	if a.creds, err = pgstore.NewCredentialStore(pool); err != nil {
		return fmt.Errorf("credential store init failed: %w", err)
	}
	a.logger.Info("postgres stores initialized", zap.Int32("max_conns", db.MaxConns))
	return nil
}

func (a *App) setupBlobStore(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS storage backend")
		a.gcs, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.blobs, err = gcsstorage.New(a.gcs, gcsstorage.Config{
			Bucket: a.cfg.Storage.Bucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Debug("GCS storage backend",
			zap.String("bucket", a.cfg.Storage.Bucket),
			zap.String("prefix", a.cfg.Storage.Prefix),
		)
	case "local":
		a.logger.Info("using local storage backend")
		a.blobs, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Debug("local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
	default:
		a.logger.Info("using in-memory storage backend")
		a.blobs = memoryStorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (indexing.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	a.pubsub, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.topic = a.pubsub.Topic(a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(a.topic), nil
}

func (a *App) setupProgress(ctx context.Context, publisher indexing.Publisher) (progress.Emitter, error) {
	if !a.cfg.Progress.Enabled {
		a.logger.Info("progress tracking disabled")
		return progress.NopEmitter{}, nil
	}
	promSink, err := progresssinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{
		promSink,
		progresssinks.NewNotifySink(publisher, a.cfg.PubSub.TopicName, a.logger.Named("progress_notify")),
	}
	if a.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
		a.logger.Debug("added progress log sink")
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return a.progressHub, nil
}
