package kv

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/bdobrica/Kotoba/common/crypto"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
)

// backend is a store under test plus a way to move its clock forward.
type backend struct {
	store   Store
	advance func(time.Duration)
}

// fakeNow returns a settable clock.
func fakeNow() (func() time.Time, func(time.Duration)) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func backends(t *testing.T) map[string]func(t *testing.T) backend {
	t.Helper()
	return map[string]func(t *testing.T) backend{
		"memory": func(t *testing.T) backend {
			m := NewMemory()
			now, adv := fakeNow()
			m.now = now
			return backend{store: m, advance: adv}
		},
		"sqlite": func(t *testing.T) backend {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "kv.db"))
			if err != nil {
				t.Fatalf("NewSQLite: %v", err)
			}
			now, adv := fakeNow()
			s.now = now
			return backend{store: s, advance: adv}
		},
		"pebble": func(t *testing.T) backend {
			p, err := NewPebble(filepath.Join(t.TempDir(), "pebble"))
			if err != nil {
				t.Fatalf("NewPebble: %v", err)
			}
			now, adv := fakeNow()
			p.now = now
			return backend{store: p, advance: adv}
		},
		"redis": func(t *testing.T) backend {
			mr := miniredis.RunT(t)
			r, err := NewRedis(context.Background(), "redis://"+mr.Addr())
			if err != nil {
				t.Fatalf("NewRedis: %v", err)
			}
			return backend{store: r, advance: mr.FastForward}
		},
	}
}

// ─── Shared behaviour ────────────────────────────────────────────────────────

func TestStore_GetPutDelete(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := mk(t)
			defer b.store.Close()
			ctx := context.Background()

			if _, err := b.store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get missing = %v, want ErrNotFound", err)
			}
			if err := b.store.Put(ctx, "k", []byte("v1"), 0); err != nil {
				t.Fatal(err)
			}
			if err := b.store.Put(ctx, "k", []byte("v2"), 0); err != nil {
				t.Fatal(err)
			}
			got, err := b.store.Get(ctx, "k")
			if err != nil || string(got) != "v2" {
				t.Fatalf("Get = %q, %v", got, err)
			}
			if err := b.store.Delete(ctx, "k"); err != nil {
				t.Fatal(err)
			}
			if _, err := b.store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get after delete = %v", err)
			}
		})
	}
}

func TestStore_ListIsPrefixScopedAndOrdered(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := mk(t)
			defer b.store.Close()
			ctx := context.Background()

			for _, k := range []string{"conv:bob:03", "conv:alice:02", "conv:alice:01", "conv:alicex:01", "memory:alice:01"} {
				if err := b.store.Put(ctx, k, []byte(k), 0); err != nil {
					t.Fatal(err)
				}
			}
			got, err := b.store.List(ctx, "conv:alice:")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].Key != "conv:alice:01" || got[1].Key != "conv:alice:02" {
				t.Fatalf("List = %+v", got)
			}
			if !bytes.Equal(got[1].Value, []byte("conv:alice:02")) {
				t.Errorf("value = %q", got[1].Value)
			}

			empty, err := b.store.List(ctx, "nobody:")
			if err != nil || len(empty) != 0 {
				t.Fatalf("List empty = %+v, %v", empty, err)
			}
		})
	}
}

func TestStore_TTLExpires(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := mk(t)
			defer b.store.Close()
			ctx := context.Background()

			if err := b.store.Put(ctx, "p:short", []byte("x"), time.Minute); err != nil {
				t.Fatal(err)
			}
			if err := b.store.Put(ctx, "p:forever", []byte("y"), 0); err != nil {
				t.Fatal(err)
			}
			if _, err := b.store.Get(ctx, "p:short"); err != nil {
				t.Fatalf("live key: %v", err)
			}

			b.advance(2 * time.Minute)

			if _, err := b.store.Get(ctx, "p:short"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expired Get = %v", err)
			}
			got, err := b.store.List(ctx, "p:")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].Key != "p:forever" {
				t.Fatalf("List after expiry = %+v", got)
			}
		})
	}
}

// ─── Backend specifics ───────────────────────────────────────────────────────

func TestPrefixEnd(t *testing.T) {
	cases := []struct {
		in, want []byte
	}{
		{[]byte("abc"), []byte("abd")},
		{[]byte{'a', 0xff}, []byte("b")},
		{[]byte{0xff, 0xff}, nil},
		{nil, nil},
	}
	for _, tc := range cases {
		if got := prefixEnd(tc.in); !bytes.Equal(got, tc.want) {
			t.Errorf("prefixEnd(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob(`a*b?[c]\`); got != `a\*b\?\[c\]\\` {
		t.Errorf("escapeGlob = %q", got)
	}
}

func TestSQLite_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := NewSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", n)
	}
	if v, err := s.Get(context.Background(), "k"); err != nil || string(v) != "v" {
		t.Errorf("Get after reopen = %q, %v", v, err)
	}
}

func TestSQLite_UnreadableSchemaVersionFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, stmt := range []string{
		`CREATE TABLE schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMP, description TEXT NOT NULL)`,
		`INSERT INTO schema_migrations (version, description) VALUES ('garbled', 'kv')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	s, err := NewSQLite(path)
	if err == nil {
		s.Close()
		t.Fatal("expected an error reading the schema version")
	}
	if !strings.Contains(err.Error(), "schema version") {
		t.Errorf("err = %v", err)
	}
}

func TestParseMigrationName(t *testing.T) {
	v, d, ok := parseMigrationName("0001_kv.sql")
	if !ok || v != 1 || d != "kv" {
		t.Errorf("got %d %q %v", v, d, ok)
	}
	if _, _, ok := parseMigrationName("README.md"); ok {
		t.Error("non-sql file accepted")
	}
}

// ─── Sealing ─────────────────────────────────────────────────────────────────

func testSealer(t *testing.T) *crypto.Sealer {
	t.Helper()
	s, err := crypto.NewSealer(bytes.Repeat([]byte{7}, crypto.KeySize))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSeal_EncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	store := Seal(inner, testSealer(t))

	if err := store.Put(ctx, "memory:alice:01", []byte("likes tea"), 0); err != nil {
		t.Fatal(err)
	}
	raw, _ := inner.Get(ctx, "memory:alice:01")
	if bytes.Contains(raw, []byte("likes tea")) {
		t.Fatal("plaintext visible in backing store")
	}

	got, err := store.Get(ctx, "memory:alice:01")
	if err != nil || string(got) != "likes tea" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	list, err := store.List(ctx, "memory:alice:")
	if err != nil || len(list) != 1 || string(list[0].Value) != "likes tea" {
		t.Fatalf("List = %+v, %v", list, err)
	}
}

func TestSeal_KeyIsBound(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()
	store := Seal(inner, testSealer(t))

	if err := store.Put(ctx, "a", []byte("secret"), 0); err != nil {
		t.Fatal(err)
	}
	raw, _ := inner.Get(ctx, "a")
	inner.Put(ctx, "b", raw, 0)

	if _, err := store.Get(ctx, "b"); err == nil {
		t.Fatal("value moved to another key must not open")
	}
}

func TestOpen_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.Memory{Backend: config.BackendMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("got %T, want *Memory", s)
	}

	s, err = Open(ctx, config.Memory{
		Backend:       config.BackendSQLite,
		SQLitePath:    filepath.Join(t.TempDir(), "kv.db"),
		EncryptionKey: "0707070707070707070707070707070707070707070707070707070707070707",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*sealed); !ok {
		t.Errorf("got %T, want sealed store", s)
	}

	if _, err := Open(ctx, config.Memory{Backend: config.BackendMemory, EncryptionKey: "nothex"}); err == nil {
		t.Error("bad key accepted")
	}
}
