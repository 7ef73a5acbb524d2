package store

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/Bikash9609/ca-ai/internal/config"
	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
)

// Backend names for config store.backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Open creates the store selected by cfg.
//
// backend options:
//   - "sqlite" (default): one database file; lexical index is FTS5 unless
//     lexical_backend is "bleve"
//   - "postgres": pgvector + generated tsvector, DSN from postgres_dsn
//
// Relative SQLite and Bleve paths resolve against dataDir.
func Open(ctx context.Context, cfg config.StoreConfig, dataDir string, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		sc := DefaultSQLiteConfig()
		if cfg.SQLiteCacheMB > 0 {
			sc.CacheSizeMB = cfg.SQLiteCacheMB
		}
		if cfg.LexicalBackend != "" {
			sc.LexicalBackend = cfg.LexicalBackend
		}
		sc.BlevePath = resolvePath(dataDir, cfg.BlevePath)
		sc.Logger = logger
		return NewSQLiteStoreWithConfig(resolvePath(dataDir, cfg.Path), sc)

	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, logger)

	default:
		return nil, taxerrors.ConfigError("unknown store backend: "+cfg.Backend, nil).
			WithSuggestion("valid options: sqlite, postgres")
	}
}

func resolvePath(dataDir, p string) string {
	if p == "" || filepath.IsAbs(p) || dataDir == "" {
		return p
	}
	return filepath.Join(dataDir, p)
}
