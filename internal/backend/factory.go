package backend

import (
	"fmt"
	"log/slog"

	"tesoro/internal/config"
	"tesoro/internal/storage"
)

var _ Store = (*storage.SQLiteRepository)(nil)

// New builds the Store named by the config. The returned cleanup closes
// whatever the backend holds open and is safe to defer even on error.
func New(cfg *config.Config) (Store, CleanupFunc, error) {
	t := Type(cfg.DataBackend)
	if !t.IsValid() {
		return nil, noop, fmt.Errorf("invalid data backend: %q", cfg.DataBackend)
	}

	switch t {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, noop, fmt.Errorf("initialize sqlite backend: %w", err)
		}
		slog.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return repo, repo.Close, nil

	case MemoryBackend:
		store := NewMemoryStore()
		slog.Info("Initialized memory backend")
		return store, noop, nil
	}

	return nil, noop, fmt.Errorf("unsupported data backend: %q", cfg.DataBackend)
}

func noop() error { return nil }
