package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mizuos/shell/internal/infrastructure/config"
)

// ErrNotFound is returned by Get for a missing key
var ErrNotFound = errors.New("key not found")

// Store is a flat key/value store with last-write-wins semantics
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys returns every key starting with prefix, sorted
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Open builds the store selected by cfg.Driver
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Driver {
	case DriverMemory, "":
		logger.Info("Using in-memory state store")
		return NewMemory(), nil
	case DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		logger.Info("Using SQLite state store", zap.String("dsn", cfg.DSN))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
