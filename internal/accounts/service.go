// Package accounts manages uploaded Google service-account keys: the
// credential records and the JSON payloads behind them.
package accounts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/url-indexer/internal/indexing"
)

const (
	blobPrefix  = "credentials"
	contentType = "application/json"
)

// Service registers, lists, and removes credentials.
type Service struct {
	creds  indexing.CredentialStore
	blobs  indexing.BlobStore
	ids    indexing.IDGenerator
	hasher indexing.Hasher
	clock  indexing.Clock
	logger *zap.Logger
}

// New constructs a Service.
func New(
	creds indexing.CredentialStore,
	blobs indexing.BlobStore,
	ids indexing.IDGenerator,
	hasher indexing.Hasher,
	clock indexing.Clock,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		creds:  creds,
		blobs:  blobs,
		ids:    ids,
		hasher: hasher,
		clock:  clock,
		logger: logger,
	}
}

// Register validates payload as a service-account key, stores it, and
// records a credential. A blank name becomes account-<unix-ms>.
func (s *Service) Register(ctx context.Context, name string, payload []byte) (indexing.Credential, error) {
	sa, err := indexing.ParseServiceAccount(payload)
	if err != nil {
		return indexing.Credential{}, err
	}
	fingerprint, err := s.hasher.Hash(payload)
	if err != nil {
		return indexing.Credential{}, fmt.Errorf("fingerprint credential: %w", err)
	}
	existing, err := s.creds.ListCredentials(ctx)
	if err != nil {
		return indexing.Credential{}, fmt.Errorf("list credentials: %w", err)
	}
	for _, c := range existing {
		if c.Fingerprint == fingerprint {
			return indexing.Credential{}, fmt.Errorf("%w: credential already uploaded as %q", indexing.ErrValidation, c.Name)
		}
	}

	id, err := s.ids.NewID()
	if err != nil {
		return indexing.Credential{}, fmt.Errorf("generate credential id: %w", err)
	}
	now := s.clock.Now().UTC()
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("account-%d", now.UnixMilli())
	}
	key := blobKey(id)
	if _, err := s.blobs.PutObject(ctx, key, contentType, bytes.NewReader(payload)); err != nil {
		return indexing.Credential{}, fmt.Errorf("store credential payload: %w: %w", indexing.ErrStorage, err)
	}
	cred := indexing.Credential{
		ID:          id,
		Name:        name,
		FileRef:     key,
		ClientEmail: sa.ClientEmail,
		ProjectID:   sa.ProjectID,
		Fingerprint: fingerprint,
		CreatedAt:   now,
	}
	if err := s.creds.CreateCredential(ctx, cred); err != nil {
		if derr := s.blobs.DeleteObject(context.WithoutCancel(ctx), key); derr != nil {
			s.logger.Warn("remove orphaned credential payload", zap.String("key", key), zap.Error(derr))
		}
		return indexing.Credential{}, fmt.Errorf("create credential: %w", err)
	}
	s.logger.Info("credential registered",
		zap.String("credential_id", id),
		zap.String("name", name),
		zap.String("client_email", sa.ClientEmail),
	)
	return cred, nil
}

// List returns credentials newest first.
func (s *Service) List(ctx context.Context) ([]indexing.Credential, error) {
	creds, err := s.creds.ListCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	if creds == nil {
		creds = []indexing.Credential{}
	}
	return creds, nil
}

// Delete removes the credential record and its payload.
func (s *Service) Delete(ctx context.Context, id string) error {
	cred, err := s.creds.GetCredential(ctx, id)
	if err != nil {
		return err
	}
	if err := s.creds.DeleteCredential(ctx, id); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if err := s.blobs.DeleteObject(ctx, cred.FileRef); err != nil && !errors.Is(err, indexing.ErrNotFound) {
		s.logger.Warn("delete credential payload", zap.String("credential_id", id), zap.Error(err))
	}
	s.logger.Info("credential deleted", zap.String("credential_id", id))
	return nil
}

func blobKey(id string) string {
	return blobPrefix + "/" + id + ".json"
}
