package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/url-indexer/internal/indexing"
)

const credentialColumns = `id, name, file_ref, client_email, project_id, fingerprint, total_processed, quota_used, last_used_at, created_at`

const uniqueViolation = "23505"

// CredentialStore persists service-account records in the credentials table.
type CredentialStore struct {
	pool Pool
}

// NewCredentialStore wraps an open pool.
func NewCredentialStore(pool Pool) (*CredentialStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CredentialStore{pool: pool}, nil
}

// CreateCredential inserts a credential row.
func (s *CredentialStore) CreateCredential(ctx context.Context, cred indexing.Credential) error {
	const query = `
INSERT INTO credentials (` + credentialColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := s.pool.Exec(ctx, query,
		cred.ID,
		cred.Name,
		cred.FileRef,
		cred.ClientEmail,
		cred.ProjectID,
		cred.Fingerprint,
		cred.TotalProcessed,
		cred.QuotaUsed,
		cred.LastUsedAt,
		cred.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: credential already uploaded", indexing.ErrValidation)
		}
		return storageErr("insert credential", err)
	}
	return nil
}

// GetCredential fetches a credential by ID.
func (s *CredentialStore) GetCredential(ctx context.Context, id string) (indexing.Credential, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id)
	return s.scanOne(row, "credential "+id)
}

// ListCredentials returns credentials newest first.
func (s *CredentialStore) ListCredentials(ctx context.Context) ([]indexing.Credential, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+credentialColumns+` FROM credentials
ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, storageErr("list credentials", err)
	}
	defer rows.Close()
	var out []indexing.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, storageErr("scan credential", err)
		}
		out = append(out, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate credentials", err)
	}
	return out, nil
}

// FirstCredential returns the oldest credential.
func (s *CredentialStore) FirstCredential(ctx context.Context) (indexing.Credential, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials
ORDER BY created_at ASC, id ASC
LIMIT 1`)
	return s.scanOne(row, "credential")
}

// RecordUsage adds to the usage counters and stamps the last use.
func (s *CredentialStore) RecordUsage(ctx context.Context, id string, processed, quota int, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE credentials
SET total_processed = total_processed + $2, quota_used = quota_used + $3, last_used_at = $4
WHERE id = $1`, id, processed, quota, at)
	if err != nil {
		return storageErr("record credential usage", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credential %s: %w", id, indexing.ErrNotFound)
	}
	return nil
}

// DeleteCredential removes a credential row.
func (s *CredentialStore) DeleteCredential(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return storageErr("delete credential", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credential %s: %w", id, indexing.ErrNotFound)
	}
	return nil
}

func (s *CredentialStore) scanOne(row pgx.Row, what string) (indexing.Credential, error) {
	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return indexing.Credential{}, fmt.Errorf("%s: %w", what, indexing.ErrNotFound)
	}
	if err != nil {
		return indexing.Credential{}, storageErr("get credential", err)
	}
	return cred, nil
}

func scanCredential(row pgx.Row) (indexing.Credential, error) {
	var (
		cred     indexing.Credential
		lastUsed *time.Time
	)
	err := row.Scan(
		&cred.ID,
		&cred.Name,
		&cred.FileRef,
		&cred.ClientEmail,
		&cred.ProjectID,
		&cred.Fingerprint,
		&cred.TotalProcessed,
		&cred.QuotaUsed,
		&lastUsed,
		&cred.CreatedAt,
	)
	if err != nil {
		return indexing.Credential{}, err
	}
	cred.LastUsedAt = lastUsed
	return cred, nil
}
