package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/url-indexer/internal/indexing"
	"github.com/JakeFAU/url-indexer/internal/progress"
)

// JobNotification is the message published when a job finishes.
type JobNotification struct {
	JobID       string    `json:"jobId"`
	Status      string    `json:"status"`
	TotalURLs   int       `json:"totalUrls"`
	Successful  int       `json:"successful"`
	RateLimited int       `json:"rateLimited"`
	Failed      int       `json:"failed"`
	Note        string    `json:"note,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
	DurationMs  int64     `json:"durationMs"`
}

// NotifySink publishes a JobNotification for every terminal event.
type NotifySink struct {
	publisher indexing.Publisher
	topic     string
	logger    *zap.Logger
}

// NewNotifySink builds a sink publishing to topic.
func NewNotifySink(publisher indexing.Publisher, topic string, logger *zap.Logger) *NotifySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes terminal events and ignores the rest. Every terminal event
// is attempted; the returned error joins the failures.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s.publisher == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if !evt.Stage.Terminal() {
			continue
		}
		msg := JobNotification{
			JobID:       evt.JobID,
			Status:      string(indexing.JobStatusCompleted),
			TotalURLs:   evt.TotalURLs,
			Successful:  evt.Successful,
			RateLimited: evt.RateLimited,
			Failed:      evt.Failed,
			Note:        evt.Note,
			CompletedAt: evt.TS,
			DurationMs:  evt.Dur.Milliseconds(),
		}
		if evt.Stage == progress.StageJobError {
			msg.Status = string(indexing.JobStatusFailed)
		}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish job %s: %w", evt.JobID, err))
			continue
		}
		s.logger.Debug("job notification published", zap.String("job_id", evt.JobID), zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *NotifySink) Close(context.Context) error {
	return nil
}
