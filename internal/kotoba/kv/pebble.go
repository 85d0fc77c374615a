package kv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// expiryHeader is the width of the big-endian unix-nanosecond expiry stored
// in front of every pebble value. Zero means no expiry.
const expiryHeader = 8

// Pebble is an embedded LSM-backed Store for single-node deployments that
// want durable memory without a separate server.
type Pebble struct {
	db  *pebble.DB
	now func() time.Time
}

// NewPebble opens (or creates) a pebble database in dir.
func NewPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Pebble{db: db, now: time.Now}, nil
}

func (p *Pebble) encode(value []byte, ttl time.Duration) []byte {
	buf := make([]byte, expiryHeader+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(p.now().Add(ttl).UnixNano()))
	}
	copy(buf[expiryHeader:], value)
	return buf
}

// decode returns the value and whether it is still live.
func (p *Pebble) decode(raw []byte) ([]byte, bool) {
	if len(raw) < expiryHeader {
		return nil, false
	}
	exp := int64(binary.BigEndian.Uint64(raw[:expiryHeader]))
	if exp != 0 && p.now().UnixNano() >= exp {
		return nil, false
	}
	return append([]byte(nil), raw[expiryHeader:]...), true
}

func (p *Pebble) Get(_ context.Context, key string) ([]byte, error) {
	raw, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()
	v, ok := p.decode(raw)
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (p *Pebble) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := p.db.Set([]byte(key), p.encode(value, ttl), pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

func (p *Pebble) List(_ context.Context, prefix string) ([]Entry, error) {
	lower := []byte(prefix)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixEnd(lower),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()

	var out []Entry
	var expired [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), lower) {
			break
		}
		v, ok := p.decode(iter.Value())
		if !ok {
			expired = append(expired, append([]byte(nil), iter.Key()...))
			continue
		}
		out = append(out, Entry{Key: string(iter.Key()), Value: v})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("pebble iterate: %w", err)
	}
	for _, k := range expired {
		_ = p.db.Delete(k, pebble.NoSync)
	}
	return out, nil
}

func (p *Pebble) Delete(_ context.Context, key string) error {
	if err := p.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

func (p *Pebble) Close() error { return p.db.Close() }
