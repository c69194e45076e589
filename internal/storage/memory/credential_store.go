package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/url-indexer/internal/indexing"
)

type credentialEntry struct {
	seq  int64
	cred indexing.Credential
}

// CredentialStore keeps service-account records in memory.
type CredentialStore struct {
	mu    sync.RWMutex
	seq   int64
	creds map[string]credentialEntry
}

// NewCredentialStore constructs an empty CredentialStore.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]credentialEntry)}
}

// CreateCredential stores a new credential.
func (s *CredentialStore) CreateCredential(_ context.Context, cred indexing.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.creds[cred.ID]; exists {
		return fmt.Errorf("%w: credential %s already exists", indexing.ErrStorage, cred.ID)
	}
	if cred.Fingerprint != "" {
		for _, entry := range s.creds {
			if entry.cred.Fingerprint == cred.Fingerprint {
				return fmt.Errorf("%w: credential already uploaded as %q", indexing.ErrValidation, entry.cred.Name)
			}
		}
	}
	s.seq++
	s.creds[cred.ID] = credentialEntry{seq: s.seq, cred: copyCredential(cred)}
	return nil
}

// GetCredential fetches a credential by ID.
func (s *CredentialStore) GetCredential(_ context.Context, id string) (indexing.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.creds[id]
	if !ok {
		return indexing.Credential{}, fmt.Errorf("credential %s: %w", id, indexing.ErrNotFound)
	}
	return copyCredential(entry.cred), nil
}

// ListCredentials returns credentials newest first.
func (s *CredentialStore) ListCredentials(_ context.Context) ([]indexing.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.ordered()
	out := make([]indexing.Credential, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, copyCredential(entries[i].cred))
	}
	return out, nil
}

// FirstCredential returns the oldest credential.
func (s *CredentialStore) FirstCredential(_ context.Context) (indexing.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.ordered()
	if len(entries) == 0 {
		return indexing.Credential{}, fmt.Errorf("credential: %w", indexing.ErrNotFound)
	}
	return copyCredential(entries[0].cred), nil
}

// RecordUsage adds to the usage counters and stamps the last use.
func (s *CredentialStore) RecordUsage(_ context.Context, id string, processed, quota int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.creds[id]
	if !ok {
		return fmt.Errorf("credential %s: %w", id, indexing.ErrNotFound)
	}
	entry.cred.TotalProcessed += processed
	entry.cred.QuotaUsed += quota
	entry.cred.LastUsedAt = &at
	s.creds[id] = entry
	return nil
}

// DeleteCredential removes a credential record.
func (s *CredentialStore) DeleteCredential(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[id]; !ok {
		return fmt.Errorf("credential %s: %w", id, indexing.ErrNotFound)
	}
	delete(s.creds, id)
	return nil
}

// ordered returns entries oldest first.
func (s *CredentialStore) ordered() []credentialEntry {
	entries := make([]credentialEntry, 0, len(s.creds))
	for _, e := range s.creds {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.cred.CreatedAt.Equal(b.cred.CreatedAt) {
			return a.cred.CreatedAt.Before(b.cred.CreatedAt)
		}
		return a.seq < b.seq
	})
	return entries
}

func copyCredential(c indexing.Credential) indexing.Credential {
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		c.LastUsedAt = &t
	}
	return c
}
