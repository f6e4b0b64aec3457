package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/warelay-dev/warelay/internal/phone"
)

// DefaultMaxHistory bounds the conversation window when no explicit
// limit is configured.
const DefaultMaxHistory = 10

// Manager exposes the uniform conversation contract over any Store.
// It normalizes raw identities, keeps the history window bounded, and
// treats absent or expired sessions as ordinary state transitions, never
// as errors. Storage failures propagate to the caller.
// Manager is safe for concurrent use if its Store is.
type Manager struct {
	store      Store
	maxHistory int
	log        zerolog.Logger
}

// NewManager creates a manager over the given store. maxHistory values
// below 1 fall back to DefaultMaxHistory.
func NewManager(store Store, maxHistory int, log zerolog.Logger) *Manager {
	if maxHistory < 1 {
		maxHistory = DefaultMaxHistory
	}
	return &Manager{
		store:      store,
		maxHistory: maxHistory,
		log:        log.With().Str("component", "session").Logger(),
	}
}

// MaxHistory returns the configured history bound.
func (m *Manager) MaxHistory() int {
	return m.maxHistory
}

// GetHistory returns the bounded conversation window for a raw sender
// identity, lazily creating session state for identities never seen
// before. A non-empty displayName updates the stored profile first; an
// empty one never overwrites an existing name.
func (m *Manager) GetHistory(ctx context.Context, rawPhone, displayName string) ([]Turn, error) {
	p, err := m.identity(rawPhone)
	if err != nil {
		return nil, err
	}
	if displayName != "" {
		if err := m.store.UpdateProfile(ctx, p, displayName); err != nil {
			return nil, fmt.Errorf("session: update profile: %w", err)
		}
	}
	turns, err := m.store.History(ctx, p, m.maxHistory)
	if err != nil {
		return nil, fmt.Errorf("session: load history: %w", err)
	}
	return truncate(turns, m.maxHistory), nil
}

// AddMessage appends one turn to the identity's active session, creating
// it if absent. Every call appends a distinct turn.
func (m *Manager) AddMessage(ctx context.Context, rawPhone string, role Role, content, displayName string) error {
	p, err := m.identity(rawPhone)
	if err != nil {
		return err
	}
	if displayName != "" {
		if err := m.store.UpdateProfile(ctx, p, displayName); err != nil {
			return fmt.Errorf("session: update profile: %w", err)
		}
	}
	if err := m.store.Append(ctx, p, role, content); err != nil {
		return fmt.Errorf("session: append message: %w", err)
	}
	m.log.Debug().Str("phone", p).Str("role", string(role)).Msg("message appended")
	return nil
}

// ClearSession ends the identity's current session. Clearing an unknown
// identity is a no-op.
func (m *Manager) ClearSession(ctx context.Context, rawPhone string) error {
	p, err := m.identity(rawPhone)
	if err != nil {
		return err
	}
	if err := m.store.Clear(ctx, p); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	m.log.Info().Str("phone", p).Msg("session cleared")
	return nil
}

// StatsProvider is satisfied by backends that retain history across
// clears and can report per-user totals.
type StatsProvider interface {
	Stats(ctx context.Context, phone string) (*UserStats, error)
}

// UserStats returns retained history totals for an identity. Backends
// that drop history on clear return ErrStatsUnsupported.
func (m *Manager) UserStats(ctx context.Context, rawPhone string) (*UserStats, error) {
	p, err := m.identity(rawPhone)
	if err != nil {
		return nil, err
	}
	sp, ok := m.store.(StatsProvider)
	if !ok {
		return nil, ErrStatsUnsupported
	}
	stats, err := sp.Stats(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("session: user stats: %w", err)
	}
	return stats, nil
}

// ActiveSessions returns the number of identities with a live session.
func (m *Manager) ActiveSessions(ctx context.Context) (int, error) {
	n, err := m.store.ActiveCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("session: active count: %w", err)
	}
	return n, nil
}

func (m *Manager) identity(raw string) (string, error) {
	p, err := phone.Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrEmptyIdentity, raw)
	}
	return p, nil
}

// truncate keeps the most recent n turns, preserving relative order.
func truncate(turns []Turn, n int) []Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
