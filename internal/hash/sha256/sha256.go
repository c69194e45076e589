// Package sha256 fingerprints uploaded service-account keys so the same key
// cannot be registered twice.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher satisfies indexing.Hasher with a hex-encoded SHA-256 digest.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of a credential payload. It never fails.
func (h *Hasher) Hash(payload []byte) (string, error) {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
