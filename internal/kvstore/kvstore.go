// Package kvstore defines the key-value store contract the job queue and
// its observability surface run against, plus the redis implementation.
package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key or index entry does not exist.
	ErrNotFound = errors.New("kvstore: not found")

	// ErrQuotaExceeded is returned when the provider rejects an operation
	// because a usage quota ran out. Callers treat this as a transient
	// unavailability (circuit breaker territory).
	ErrQuotaExceeded = errors.New("kvstore: quota exceeded")

	// ErrHardLimit is returned when the provider signals an exhausted hard
	// limit that will not recover without operator intervention.
	ErrHardLimit = errors.New("kvstore: hard request limit reached")
)

// Store is the minimal contract the queue needs from a backing store:
// plain keyed values with TTLs plus one id index (a list) per queue.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// PushIndex appends id to the tail of the named index.
	PushIndex(ctx context.Context, index, id string) error
	// MoveIndex atomically moves the head of one index to the tail of
	// another and returns the moved id, or ErrNotFound when from is empty.
	MoveIndex(ctx context.Context, from, to string) (string, error)
	// RemoveFromIndex removes all occurrences of id from the named index.
	RemoveFromIndex(ctx context.Context, index, id string) error
	// IndexLen returns the number of ids in the named index.
	IndexLen(ctx context.Context, index string) (int64, error)
	// ListIndex returns all ids in the named index, head first.
	ListIndex(ctx context.Context, index string) ([]string, error)

	// Keys returns all keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
}
