package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/url-indexer/internal/progress"
)

// LogSink writes each event as a structured log entry.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event. Terminal stages log at info, the rest at debug.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		switch evt.Stage {
		case progress.StageAccount:
			fields = append(fields, zap.String("account", evt.Label))
		case progress.StageProgress:
			fields = append(fields, zap.Int("percent", evt.Percent))
		case progress.StageURL:
			fields = append(fields, zap.Bool("ok", evt.OK))
		default:
			fields = append(fields,
				zap.Int("total_urls", evt.TotalURLs),
				zap.Int("successful", evt.Successful),
				zap.Int("rate_limited", evt.RateLimited),
				zap.Int("failed", evt.Failed),
				zap.Duration("dur", evt.Dur),
			)
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage.Terminal() || evt.Stage == progress.StageJobStart {
			s.logger.Info("job progress", fields...)
			continue
		}
		s.logger.Debug("job progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
