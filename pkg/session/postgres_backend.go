package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend implements Store on two relational tables: users
// (identity, profile) and userchats (append-only jsonb message array
// plus an active flag). Sessions never expire by elapsed time; a clear
// deactivates the current chat and the next access starts a new one, so
// history survives for stats and audit.
//
// Each logical operation runs in its own transaction. The store does not
// hold one transaction across a get-or-create-then-append sequence; two
// concurrent appends for the same identity may interleave, but each
// individual append is a single atomic jsonb concatenation at the row
// level, so no turn is ever lost.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

type pgUser struct {
	ID       string
	FullName string
}

// NewPostgresBackend connects to the database and verifies the
// connection. The schema is managed separately via Migrate.
func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("session: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("session: postgres ping failed: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

// NewPostgresBackendFromPool wraps an existing pool. Useful for tests
// that manage their own connection lifecycle.
func NewPostgresBackendFromPool(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (b *PostgresBackend) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("session: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("session: commit tx: %w", err)
	}
	return nil
}

// getOrCreateUser looks up the user row by canonical phone number,
// creating it on first contact. A non-empty fullName that differs from
// the stored one updates it in place; an empty name never clears one.
func (b *PostgresBackend) getOrCreateUser(ctx context.Context, tx pgx.Tx, phoneNumber, fullName string) (pgUser, error) {
	var u pgUser
	var stored *string

	err := tx.QueryRow(ctx,
		`SELECT user_id, full_name FROM users WHERE phone_number = $1`,
		phoneNumber,
	).Scan(&u.ID, &stored)

	switch {
	case err == nil:
		if stored != nil {
			u.FullName = *stored
		}
		if fullName != "" && u.FullName != fullName {
			if _, err := tx.Exec(ctx,
				`UPDATE users SET full_name = $1 WHERE user_id = $2`,
				fullName, u.ID,
			); err != nil {
				return pgUser{}, fmt.Errorf("session: update full name: %w", err)
			}
			u.FullName = fullName
		}
		return u, nil

	case errors.Is(err, pgx.ErrNoRows):
		u.ID = uuid.New().String()
		u.FullName = fullName
		var name any
		if fullName != "" {
			name = fullName
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (user_id, phone_number, full_name) VALUES ($1, $2, $3)`,
			u.ID, phoneNumber, name,
		); err != nil {
			return pgUser{}, fmt.Errorf("session: create user: %w", err)
		}
		return u, nil

	default:
		return pgUser{}, fmt.Errorf("session: lookup user: %w", err)
	}
}

// getOrCreateChat returns the newest active chat for the user, creating
// one if none is active. At most one chat per user is treated as active;
// the newest wins if a race ever produces more than one.
func (b *PostgresBackend) getOrCreateChat(ctx context.Context, tx pgx.Tx, userID string) (string, error) {
	var chatID string
	err := tx.QueryRow(ctx,
		`SELECT chat_id FROM userchats
		 WHERE customer_id = $1 AND is_active
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
	).Scan(&chatID)

	switch {
	case err == nil:
		return chatID, nil

	case errors.Is(err, pgx.ErrNoRows):
		chatID = newChatID()
		if _, err := tx.Exec(ctx,
			`INSERT INTO userchats (chat_id, customer_id) VALUES ($1, $2)`,
			chatID, userID,
		); err != nil {
			return "", fmt.Errorf("session: create chat: %w", err)
		}
		return chatID, nil

	default:
		return "", fmt.Errorf("session: lookup chat: %w", err)
	}
}

// History returns the most recent turns from the identity's active chat,
// lazily creating the user and chat rows on first contact.
func (b *PostgresBackend) History(ctx context.Context, phone string, limit int) ([]Turn, error) {
	var raw []byte
	err := b.withTx(ctx, func(tx pgx.Tx) error {
		u, err := b.getOrCreateUser(ctx, tx, phone, "")
		if err != nil {
			return err
		}
		chatID, err := b.getOrCreateChat(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(messages, '[]'::jsonb) FROM userchats WHERE chat_id = $1`,
			chatID,
		).Scan(&raw); err != nil {
			return fmt.Errorf("session: load messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var turns []Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("session: decode messages: %w", err)
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// Append adds one turn to the active chat. The message concatenation is
// a single atomic update at the storage layer, not read-modify-write in
// application code, so concurrent writers to the same chat cannot lose
// turns.
func (b *PostgresBackend) Append(ctx context.Context, phone string, role Role, content string) error {
	data, err := json.Marshal([]Turn{{Role: role, Content: content, CreatedAt: time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("session: encode turn: %w", err)
	}

	return b.withTx(ctx, func(tx pgx.Tx) error {
		u, err := b.getOrCreateUser(ctx, tx, phone, "")
		if err != nil {
			return err
		}
		chatID, err := b.getOrCreateChat(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE userchats SET messages = messages || $1::jsonb WHERE chat_id = $2`,
			string(data), chatID,
		); err != nil {
			return fmt.Errorf("session: append message: %w", err)
		}
		return nil
	})
}

// UpdateProfile creates the user on first contact and records the
// display name. Empty names never overwrite a stored one.
func (b *PostgresBackend) UpdateProfile(ctx context.Context, phone, fullName string) error {
	return b.withTx(ctx, func(tx pgx.Tx) error {
		_, err := b.getOrCreateUser(ctx, tx, phone, fullName)
		return err
	})
}

// Clear deactivates the identity's active chat. History is retained and
// remains reachable through Stats; the next read or write starts a new
// active chat with an empty window.
func (b *PostgresBackend) Clear(ctx context.Context, phone string) error {
	return b.withTx(ctx, func(tx pgx.Tx) error {
		u, err := b.getOrCreateUser(ctx, tx, phone, "")
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE userchats SET is_active = FALSE WHERE customer_id = $1 AND is_active`,
			u.ID,
		); err != nil {
			return fmt.Errorf("session: deactivate chats: %w", err)
		}
		return nil
	})
}

// ActiveCount counts distinct users with an active chat.
func (b *PostgresBackend) ActiveCount(ctx context.Context) (int, error) {
	var n int
	err := b.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT customer_id) FROM userchats WHERE is_active`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("session: count active chats: %w", err)
	}
	return n, nil
}

// Stats returns the identity's retained history totals across all chats,
// active and cleared.
func (b *PostgresBackend) Stats(ctx context.Context, phone string) (*UserStats, error) {
	stats := &UserStats{PhoneNumber: phone}
	err := b.withTx(ctx, func(tx pgx.Tx) error {
		u, err := b.getOrCreateUser(ctx, tx, phone, "")
		if err != nil {
			return err
		}
		stats.UserID = u.ID
		stats.FullName = u.FullName

		var chats, messages *int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*), SUM(jsonb_array_length(messages))
			 FROM userchats WHERE customer_id = $1`,
			u.ID,
		).Scan(&chats, &messages); err != nil {
			return fmt.Errorf("session: load stats: %w", err)
		}
		if chats != nil {
			stats.TotalChats = *chats
		}
		if messages != nil {
			stats.TotalMessages = *messages
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

// Ping checks database connectivity.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// newChatID generates a 16-character hex chat identifier.
func newChatID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:16]
}

var _ Store = (*PostgresBackend)(nil)
