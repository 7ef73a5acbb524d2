package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bikash9609/ca-ai/internal/config"
	taxerrors "github.com/Bikash9609/ca-ai/internal/errors"
	"github.com/Bikash9609/ca-ai/internal/logging"
)

func TestOpen_SelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name        string
		cfg         config.StoreConfig
		wantBackend string
	}{
		{"default is sqlite with fts5", config.StoreConfig{Path: "a.db"}, "sqlite/fts5"},
		{"sqlite with bleve", config.StoreConfig{Backend: "sqlite", Path: "b.db", LexicalBackend: "bleve", BlevePath: "b.bleve"}, "sqlite/bleve"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(ctx, tt.cfg, dir, logging.Discard())
			require.NoError(t, err)
			defer func() { _ = s.Close() }()

			st, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBackend, st.Backend)
		})
	}
	assert.FileExists(t, filepath.Join(dir, "a.db"))
	assert.DirExists(t, filepath.Join(dir, "b.bleve"))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Backend: "mysql"}, "", nil)
	assert.Equal(t, taxerrors.ErrCodeConfigInvalid, taxerrors.GetCode(err))
}

func TestOpen_PostgresRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Backend: "postgres"}, "", nil)
	assert.Equal(t, taxerrors.ErrCodeConfigInvalid, taxerrors.GetCode(err))
}
