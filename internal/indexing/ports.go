package indexing

import (
	"context"
	"io"
	"time"
)

// JobStore persists URL jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	// ListJobs returns a newest-first page and the total number of jobs.
	ListJobs(ctx context.Context, page Page) ([]Job, int, error)
	// ListPending returns pending jobs oldest first.
	ListPending(ctx context.Context) ([]Job, error)
	// MarkProcessing moves a pending job to processing. Processing jobs are left as is.
	MarkProcessing(ctx context.Context, id string) error
	// MarkStarted records the run start and the credential chosen for it.
	MarkStarted(ctx context.Context, id, credentialID string, at time.Time) error
	// CompleteJob applies a terminal status. It returns ErrTerminal if the job already finished.
	CompleteJob(ctx context.Context, id string, status JobStatus, results Results, at time.Time) error
	// FailProcessing fails every processing job with results and reports how many changed.
	FailProcessing(ctx context.Context, results Results, at time.Time) (int, error)
	DeleteJob(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
}

// CredentialStore persists uploaded service-account credentials.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred Credential) error
	GetCredential(ctx context.Context, id string) (Credential, error)
	// ListCredentials returns credentials newest first.
	ListCredentials(ctx context.Context) ([]Credential, error)
	// FirstCredential returns the oldest credential or ErrNotFound.
	FirstCredential(ctx context.Context) (Credential, error)
	RecordUsage(ctx context.Context, id string, processed, quota int, at time.Time) error
	DeleteCredential(ctx context.Context, id string) error
}

// BlobStore holds credential payloads.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, path string) error
}

// Publisher emits notifications to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue transports job IDs to the execution worker.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator creates unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher produces content fingerprints.
type Hasher interface {
	Hash(data []byte) (string, error)
}
