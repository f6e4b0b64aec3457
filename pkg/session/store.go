package session

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	// ErrEmptyIdentity is returned when a caller supplies an empty or
	// unparseable phone number.
	ErrEmptyIdentity = errors.New("session: empty identity")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("session: store is closed")
	// ErrStatsUnsupported is returned by backends that do not retain
	// history across clears.
	ErrStatsUnsupported = errors.New("session: stats not supported by this backend")
)

// Store abstracts conversation persistence. All three backends satisfy
// the same contract so the Manager never inspects which one it holds.
// Phone numbers passed to a Store are already in canonical form.
// Implementations must be safe for concurrent use.
type Store interface {
	// History returns at most limit most-recent turns for the identity,
	// oldest dropped first, insertion order preserved. An identity that
	// has never been seen yields an empty history, not an error. Backends
	// with time-based expiry treat the read as activity.
	History(ctx context.Context, phone string, limit int) ([]Turn, error)

	// Append adds one turn to the active session for the identity,
	// creating a session if none is active.
	Append(ctx context.Context, phone string, role Role, content string) error

	// UpdateProfile records the user's display name. An empty name is a
	// no-op: a previously stored name is never cleared.
	UpdateProfile(ctx context.Context, phone, fullName string) error

	// Clear ends the identity's current session. Ephemeral backends drop
	// the history outright; the persistent backend deactivates the chat
	// and retains it for stats. Clearing an absent session is a no-op.
	Clear(ctx context.Context, phone string) error

	// ActiveCount returns the number of identities with a live session.
	ActiveCount(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
