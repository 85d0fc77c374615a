package kv

import (
	"context"
	"log/slog"

	"github.com/bdobrica/Kotoba/common/crypto"
	"github.com/bdobrica/Kotoba/common/errkind"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
)

// Open builds the backend selected by cfg, sealing it when an encryption key
// is configured.
func Open(ctx context.Context, cfg config.Memory) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case config.BackendMemory, "":
		store = NewMemory()
	case config.BackendRedis:
		store, err = NewRedis(ctx, cfg.RedisURL)
	case config.BackendSQLite:
		store, err = NewSQLite(cfg.SQLitePath)
	case config.BackendPebble:
		store, err = NewPebble(cfg.PebblePath)
	default:
		return nil, errkind.Errorf(errkind.Config, "kv.open", "unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, errkind.E(errkind.Config, "kv.open", err)
	}

	if cfg.EncryptionKey == "" {
		slog.Info("kv: store opened", "backend", cfg.Backend, "sealed", false)
		return store, nil
	}
	key, err := crypto.ParseKey(cfg.EncryptionKey)
	if err != nil {
		store.Close()
		return nil, errkind.E(errkind.Config, "kv.open", err)
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		store.Close()
		return nil, errkind.E(errkind.Config, "kv.open", err)
	}
	slog.Info("kv: store opened", "backend", cfg.Backend, "sealed", true)
	return Seal(store, sealer), nil
}
