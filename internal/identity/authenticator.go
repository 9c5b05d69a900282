// Package identity issues player identifiers and signs/verifies the
// reconnection tokens that let a browser session resume a PlayerId across a
// dropped connection, without the runtime storing anything server-side.
package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"gameforge/pkg/protocol"
)

// keySize is the size, in bytes, of the process-scoped HMAC key.
const keySize = 32

// Authenticator is a process-scoped signer for reconnection tokens. It is
// read-only shared state: safe to call concurrently, never mutated after
// construction.
type Authenticator struct {
	key [keySize]byte
}

// New generates a fresh, random authenticator. Tokens it signs become
// unverifiable the moment the process exits — reconnection across a
// restart is intentionally impossible.
func New() (*Authenticator, error) {
	a := &Authenticator{}
	if _, err := rand.Read(a.key[:]); err != nil {
		return nil, fmt.Errorf("identity: generate secret key: %w", err)
	}
	return a, nil
}

// NewPlayerId allocates a fresh, uniformly random player identifier.
func (a *Authenticator) NewPlayerId() protocol.PlayerId {
	return protocol.NewPlayerId()
}

// Sign computes the reconnection token for a player id: an HMAC-SHA-256 tag
// over the id's raw bytes, keyed by this process's secret.
func (a *Authenticator) Sign(id protocol.PlayerId) []byte {
	mac := hmac.New(sha256.New, a.key[:])
	mac.Write(id[:])
	return mac.Sum(nil)
}

// Verify reports whether token is exactly the token this process would have
// produced for id, using a constant-time comparison so token validity can't
// be inferred from timing.
func (a *Authenticator) Verify(id protocol.PlayerId, token []byte) bool {
	expected := a.Sign(id)
	return subtle.ConstantTimeCompare(expected, token) == 1
}
