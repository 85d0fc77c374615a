// Package kv is the key-value engine underneath the memory store.
//
// All backends share the same semantics: values are opaque bytes, an
// optional TTL expires a key, and List returns the live entries under a
// prefix in ascending key order. Callers rely on that ordering, so keys are
// built from lexically sortable parts (ULIDs).
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Entry is one key-value pair returned by List.
type Entry struct {
	Key   string
	Value []byte
}

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes value under key. A ttl of zero means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// List returns the live entries whose key starts with prefix, ordered by
	// key.
	List(ctx context.Context, prefix string) ([]Entry, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
