package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/bdobrica/Kotoba/common/crypto"
)

// sealed encrypts values on the way into the wrapped store and decrypts them
// on the way out. Keys stay in clear text so prefix listing keeps working.
type sealed struct {
	Store
	sealer *crypto.Sealer
}

// Seal wraps store so that every value is encrypted with sealer. The key is
// bound as additional data, so a value moved to another key fails to open.
func Seal(store Store, sealer *crypto.Sealer) Store {
	return &sealed{Store: store, sealer: sealer}
}

func (s *sealed) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	v, err := s.sealer.Open(raw, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", key, err)
	}
	return v, nil
}

func (s *sealed) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ct, err := s.sealer.Seal(value, []byte(key))
	if err != nil {
		return fmt.Errorf("seal %q: %w", key, err)
	}
	return s.Store.Put(ctx, key, ct, ttl)
}

func (s *sealed) List(ctx context.Context, prefix string) ([]Entry, error) {
	entries, err := s.Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		v, err := s.sealer.Open(entries[i].Value, []byte(entries[i].Key))
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", entries[i].Key, err)
		}
		entries[i].Value = v
	}
	return entries, nil
}
