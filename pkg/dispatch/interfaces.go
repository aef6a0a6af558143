// Package dispatch contains the public contracts between the push pipeline
// and its collaborators.
package dispatch

import (
	"context"
	"errors"
)

// ErrNotFound is returned by TokenStore.Get when no token is registered for
// the given device key.
var ErrNotFound = errors.New("device token not found")

// TokenStore defines the contract for the device-token bridge. Keys are the
// caller-facing device keys; implementations apply their own storage
// namespacing. A token is an opaque string owned by the registration flow.
type TokenStore interface {
	// Get resolves a device key to its token. Returns ErrNotFound when the
	// key was never registered or the stored value is empty.
	Get(ctx context.Context, deviceKey string) (string, error)

	// Put registers or overwrites the token for a device key. Writing an
	// empty token marks the key as dead without forgetting the registration.
	Put(ctx context.Context, deviceKey string, token string) error

	// Delete removes the registration entirely.
	Delete(ctx context.Context, deviceKey string) error

	// Count reports the number of registered device keys. Used for
	// diagnostics only.
	Count(ctx context.Context) (int, error)
}
