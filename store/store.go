// Package store provides the durable key/value slots that let a session
// survive a process restart: the access credential, the renewal credential,
// and the serialized session principal.
package store

import (
	"context"
	"errors"
)

// Slot keys. These match the keys the web client kept in browser storage so
// the two clients can share a provider-side debugging vocabulary.
const (
	KeyAccessCredential  = "access_token"
	KeyRenewalCredential = "refresh_token"
	KeyPrincipal         = "user"
)

// ErrAbsent is returned by Get when the key holds no value.
var ErrAbsent = errors.New("store: key absent")

// Store is the persisted session store. Implementations must make Clear a
// single logical operation: after Clear returns, no reader observes a subset
// of the cleared keys still populated.
type Store interface {
	// Get returns the value for key, or ErrAbsent.
	Get(ctx context.Context, key string) (string, error)

	// Set writes the value for key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Clear removes the given keys in one logical operation. Clearing an
	// absent key is not an error.
	Clear(ctx context.Context, keys ...string) error
}

// SessionKeys returns the three session slots in the order they are cleared
// on logout.
func SessionKeys() []string {
	return []string{KeyAccessCredential, KeyRenewalCredential, KeyPrincipal}
}
