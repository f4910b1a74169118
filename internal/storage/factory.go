package storage

import (
	"context"

	"trajneat/internal/config"
)

func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath), nil
	default:
		return nil, config.Errorf("unsupported store backend: %s", kind)
	}
}

// Open builds and initializes the store named by the config.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	store, err := NewStore(cfg.Kind, cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = CloseIfSupported(store)
		return nil, err
	}
	return store, nil
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
