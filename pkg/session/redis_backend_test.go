package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedisBackend(t *testing.T, maxTurns int, timeout time.Duration) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBackendFromClient(client, "test:", maxTurns, timeout)
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func TestRedisBackendAppendAndHistory(t *testing.T) {
	b, _ := setupRedisBackend(t, 10, 30*time.Minute)
	ctx := context.Background()

	if err := b.Append(ctx, "+15550101", RoleUser, "hello"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := b.Append(ctx, "+15550101", RoleAssistant, "hi there"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	turns, err := b.History(ctx, "+15550101", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("History() = %d turns, want 2", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Content != "hello" {
		t.Errorf("turns[0] = (%s, %q), want (user, hello)", turns[0].Role, turns[0].Content)
	}
	if turns[1].Role != RoleAssistant || turns[1].Content != "hi there" {
		t.Errorf("turns[1] = (%s, %q), want (assistant, hi there)", turns[1].Role, turns[1].Content)
	}
}

func TestRedisBackendUnknownIdentityIsEmpty(t *testing.T) {
	b, _ := setupRedisBackend(t, 10, 30*time.Minute)

	turns, err := b.History(context.Background(), "+15550199", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("History() = %d turns, want 0", len(turns))
	}
}

func TestRedisBackendTurnBound(t *testing.T) {
	b, _ := setupRedisBackend(t, 3, 30*time.Minute)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := b.Append(ctx, "+15550102", RoleUser, fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	turns, err := b.History(ctx, "+15550102", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("History() = %d turns, want 3", len(turns))
	}
	for i, want := range []string{"msg-4", "msg-5", "msg-6"} {
		if turns[i].Content != want {
			t.Errorf("turns[%d] = %q, want %q", i, turns[i].Content, want)
		}
	}
}

func TestRedisBackendTTLExpiry(t *testing.T) {
	b, mr := setupRedisBackend(t, 10, 30*time.Minute)
	ctx := context.Background()

	if err := b.Append(ctx, "+15550103", RoleUser, "hello"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	mr.FastForward(31 * time.Minute)

	turns, err := b.History(ctx, "+15550103", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("History() after TTL expiry = %d turns, want 0", len(turns))
	}
}

func TestRedisBackendAppendRefreshesTTL(t *testing.T) {
	b, mr := setupRedisBackend(t, 10, 30*time.Minute)
	ctx := context.Background()

	if err := b.Append(ctx, "+15550104", RoleUser, "first"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	mr.FastForward(20 * time.Minute)
	if err := b.Append(ctx, "+15550104", RoleUser, "second"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	mr.FastForward(20 * time.Minute)

	// 40 minutes since the first append but only 20 since the last; the
	// refreshed TTL keeps the whole window alive.
	turns, err := b.History(ctx, "+15550104", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(turns) != 2 {
		t.Errorf("History() = %d turns, want 2", len(turns))
	}
}

func TestRedisBackendClear(t *testing.T) {
	b, _ := setupRedisBackend(t, 10, 30*time.Minute)
	ctx := context.Background()

	if err := b.Append(ctx, "+15550105", RoleUser, "hello"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := b.UpdateProfile(ctx, "+15550105", "Alice"); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if err := b.Clear(ctx, "+15550105"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	turns, err := b.History(ctx, "+15550105", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("History() after Clear() = %d turns, want 0", len(turns))
	}
}

func TestRedisBackendActiveCount(t *testing.T) {
	b, mr := setupRedisBackend(t, 10, 30*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("+1555010%d", 6+i)
		if err := b.Append(ctx, id, RoleUser, "hi"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	n, err := b.ActiveCount(ctx)
	if err != nil {
		t.Fatalf("ActiveCount() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("ActiveCount() = %d, want 3", n)
	}

	mr.FastForward(31 * time.Minute)
	n, err = b.ActiveCount(ctx)
	if err != nil {
		t.Fatalf("ActiveCount() error = %v", err)
	}
	if n != 0 {
		t.Errorf("ActiveCount() after expiry = %d, want 0", n)
	}
}

func TestRedisBackendUpdateProfile(t *testing.T) {
	b, mr := setupRedisBackend(t, 10, 30*time.Minute)
	ctx := context.Background()

	if err := b.UpdateProfile(ctx, "+15550110", "Alice"); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	// Empty names never overwrite.
	if err := b.UpdateProfile(ctx, "+15550110", ""); err != nil {
		t.Fatalf("UpdateProfile(empty) error = %v", err)
	}

	got, err := mr.Get("test:profile:+15550110")
	if err != nil {
		t.Fatalf("reading profile key: %v", err)
	}
	if got != "Alice" {
		t.Errorf("profile = %q, want %q", got, "Alice")
	}
}

func TestRedisBackendClosed(t *testing.T) {
	b, _ := setupRedisBackend(t, 10, 30*time.Minute)
	ctx := context.Background()

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := b.History(ctx, "+15550111", 10); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("History() error = %v, want ErrStoreClosed", err)
	}
	if err := b.Append(ctx, "+15550111", RoleUser, "hi"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Append() error = %v, want ErrStoreClosed", err)
	}
}
