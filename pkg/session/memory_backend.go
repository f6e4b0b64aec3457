package session

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend holds sessions in process memory. Sessions expire after
// a period of inactivity; the check runs lazily on every access rather
// than in a background sweeper, so staleness is only ever observed at
// read or write time. A process restart loses all sessions.
type MemoryBackend struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	maxTurns int
	timeout  time.Duration
	now      func() time.Time
	closed   bool
}

type memorySession struct {
	turns        []Turn
	fullName     string
	lastActivity time.Time
}

// expiredAt reports whether the session's inactivity window has elapsed
// at the given instant. This is the expiry transition of the session
// state machine; reading or writing an expired session replaces it with
// a fresh one before the operation proceeds.
func (s *memorySession) expiredAt(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.lastActivity) > timeout
}

// NewMemoryBackend creates an in-memory store keeping at most maxTurns
// turns per session, expiring sessions idle longer than timeout.
func NewMemoryBackend(maxTurns int, timeout time.Duration) *MemoryBackend {
	if maxTurns < 1 {
		maxTurns = DefaultMaxHistory
	}
	return &MemoryBackend{
		sessions: make(map[string]*memorySession),
		maxTurns: maxTurns,
		timeout:  timeout,
		now:      time.Now,
	}
}

// fresh returns a new empty session stamped with the current time.
func (b *MemoryBackend) fresh() *memorySession {
	return &memorySession{lastActivity: b.now()}
}

// active returns the live session for phone, replacing an expired one
// with a fresh session. Caller must hold b.mu.
func (b *MemoryBackend) active(phone string) *memorySession {
	sess, ok := b.sessions[phone]
	if !ok || sess.expiredAt(b.now(), b.timeout) {
		sess = b.fresh()
		b.sessions[phone] = sess
	}
	return sess
}

// History returns the most recent turns for phone and refreshes its
// activity timestamp. Unknown or expired identities start fresh and
// yield an empty history.
func (b *MemoryBackend) History(ctx context.Context, phone string, limit int) ([]Turn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrStoreClosed
	}

	b.evictExpired()
	sess := b.active(phone)
	sess.lastActivity = b.now()

	turns := sess.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Append adds a turn to the active session, starting a fresh session
// first if the previous one expired.
func (b *MemoryBackend) Append(ctx context.Context, phone string, role Role, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}

	sess := b.active(phone)
	sess.turns = append(sess.turns, Turn{Role: role, Content: content, CreatedAt: b.now()})
	if len(sess.turns) > b.maxTurns {
		sess.turns = sess.turns[len(sess.turns)-b.maxTurns:]
	}
	sess.lastActivity = b.now()
	return nil
}

// UpdateProfile stores the display name on the session. Empty names
// never overwrite a stored one.
func (b *MemoryBackend) UpdateProfile(ctx context.Context, phone, fullName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}
	if fullName == "" {
		return nil
	}
	b.active(phone).fullName = fullName
	return nil
}

// Clear deletes the session outright. Prior turns are gone for good.
func (b *MemoryBackend) Clear(ctx context.Context, phone string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}
	delete(b.sessions, phone)
	return nil
}

// ActiveCount returns the number of non-expired sessions after evicting
// expired ones.
func (b *MemoryBackend) ActiveCount(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrStoreClosed
	}
	b.evictExpired()
	return len(b.sessions), nil
}

// Close drops all sessions and rejects further use.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.sessions = nil
	return nil
}

// evictExpired removes every expired session. Caller must hold b.mu.
func (b *MemoryBackend) evictExpired() {
	now := b.now()
	for phone, sess := range b.sessions {
		if sess.expiredAt(now, b.timeout) {
			delete(b.sessions, phone)
		}
	}
}

var _ Store = (*MemoryBackend)(nil)
