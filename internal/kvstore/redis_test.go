package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisWithClient(client)
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(val) != "v" {
		t.Errorf("Get = %q, want %q", val, "v")
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete err = %v, want ErrNotFound", err)
	}

	// Deleting a missing key is fine.
	if err := store.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete(missing): %v", err)
	}
}

func TestIndexOperations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := store.PushIndex(ctx, "idx", id); err != nil {
			t.Fatalf("PushIndex(%q): %v", id, err)
		}
	}

	n, err := store.IndexLen(ctx, "idx")
	if err != nil {
		t.Fatalf("IndexLen: %v", err)
	}
	if n != 3 {
		t.Errorf("IndexLen = %d, want 3", n)
	}

	if err := store.RemoveFromIndex(ctx, "idx", "b"); err != nil {
		t.Fatalf("RemoveFromIndex: %v", err)
	}

	// FIFO: pushes land at the tail, the head stays the oldest entry.
	ids, err := store.ListIndex(ctx, "idx")
	if err != nil {
		t.Fatalf("ListIndex: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "c" {
		t.Errorf("ListIndex = %v, want [a c]", ids)
	}
}

func TestMoveIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.MoveIndex(ctx, "pending", "claimed"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MoveIndex(empty) err = %v, want ErrNotFound", err)
	}

	for _, id := range []string{"a", "b"} {
		if err := store.PushIndex(ctx, "pending", id); err != nil {
			t.Fatalf("PushIndex(%q): %v", id, err)
		}
	}

	id, err := store.MoveIndex(ctx, "pending", "claimed")
	if err != nil {
		t.Fatalf("MoveIndex: %v", err)
	}
	if id != "a" {
		t.Errorf("MoveIndex = %q, want head %q", id, "a")
	}

	pending, _ := store.ListIndex(ctx, "pending")
	claimed, _ := store.ListIndex(ctx, "claimed")
	if len(pending) != 1 || pending[0] != "b" {
		t.Errorf("pending = %v, want [b]", pending)
	}
	if len(claimed) != 1 || claimed[0] != "a" {
		t.Errorf("claimed = %v, want [a]", claimed)
	}
}

func TestClassifyProviderLimits(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"plain error passes through", errors.New("connection refused"), nil},
		{"quota", errors.New("ERR max requests limit exceeded"), ErrQuotaExceeded},
		{"quota wording", errors.New("quota exceeded for this period"), ErrQuotaExceeded},
		{"hard limit", errors.New("ERR max daily request limit exceeded"), ErrHardLimit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			if tc.want == nil {
				if tc.err == nil {
					if got != nil {
						t.Errorf("classify(nil) = %v", got)
					}
					return
				}
				if errors.Is(got, ErrQuotaExceeded) || errors.Is(got, ErrHardLimit) {
					t.Errorf("classify(%v) unexpectedly typed: %v", tc.err, got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Errorf("classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestKeysPattern(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, key := range []string{"queue:sync:dead:1", "queue:sync:dead:2", "queue:sync:job:3"} {
		if err := store.Set(ctx, key, []byte("x"), 0); err != nil {
			t.Fatalf("Set(%q): %v", key, err)
		}
	}

	keys, err := store.Keys(ctx, "queue:sync:dead:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Keys = %v, want 2 dead-letter keys", keys)
	}
}
