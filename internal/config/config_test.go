package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return t.TempDir()
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 500, cfg.Chunking.ChunkSize)
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
	assert.Equal(t, 0.3, cfg.Search.KeywordWeight)
	assert.Equal(t, 0.3, cfg.Search.SemanticThreshold)
	assert.Equal(t, 30, cfg.Retrieval.MaxInitialResults)
	assert.Equal(t, 15, cfg.Retrieval.Limit)
	assert.Equal(t, 0.4, cfg.Retrieval.FilterFloor)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "fts5", cfg.Store.LexicalBackend)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles_UsesDefaultsAndResolvesPaths(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, ".taxctx"), cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, ".taxctx", "taxctx.db"), cfg.Store.Path)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL())
	assert.Equal(t, 500*time.Millisecond, cfg.WatchDebounce())
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	// Given: a user config and a project config touching the same key
	dir := isolate(t)
	userPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte("chunking:\n  chunk_size: 800\nretrieval:\n  limit: 20\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("chunking:\n  chunk_size: 600\n"), 0o644))

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: project wins where set, user fills the rest, defaults remain
	assert.Equal(t, 600, cfg.Chunking.ChunkSize)
	assert.Equal(t, 20, cfg.Retrieval.Limit)
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlap)
}

func TestLoad_ExplicitZeroWeightInYAML(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("search:\n  keyword_weight: 0\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.Search.KeywordWeight)
	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("search:\n  semantic_weight: 0.5\n"), 0o644))
	t.Setenv("TAXCTX_SEMANTIC_WEIGHT", "0.9")
	t.Setenv("TAXCTX_CHUNK_SIZE", "300")
	t.Setenv("TAXCTX_CACHE_ENABLED", "false")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.Search.SemanticWeight)
	assert.Equal(t, 300, cfg.Chunking.ChunkSize)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoad_BadEnvValueFails(t *testing.T) {
	dir := isolate(t)
	t.Setenv("TAXCTX_CHUNK_SIZE", "big")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigName), []byte("chunking:\n  chunk_sise: 10\n"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap not smaller than size", func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }},
		{"negative weight", func(c *Config) { c.Search.KeywordWeight = -0.1 }},
		{"zero weights", func(c *Config) { c.Search.SemanticWeight = 0; c.Search.KeywordWeight = 0 }},
		{"threshold above one", func(c *Config) { c.Search.SemanticThreshold = 1.5 }},
		{"unknown fusion", func(c *Config) { c.Search.Fusion = "borda" }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = "postgres" }},
		{"unknown lexical backend", func(c *Config) { c.Store.LexicalBackend = "lucene" }},
		{"bad ttl", func(c *Config) { c.Cache.TTL = "soon" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_UnnormalizedWeightsAccepted(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.SemanticWeight = 7
	cfg.Search.KeywordWeight = 3

	assert.NoError(t, cfg.Validate())
}

func TestWriteYAML_RoundTripsThroughLoadFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := NewConfig()
	cfg.Retrieval.Limit = 9

	require.NoError(t, cfg.WriteYAML(path))
	loaded, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9, loaded.Retrieval.Limit)
}

func TestBackupFile_KeepsMaxBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectConfigName)

	// Missing file: no backup, no error
	b, err := BackupFile(path)
	require.NoError(t, err)
	assert.Empty(t, b)

	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))
	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupFile(path)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
}

func TestSetDataDir_RebasesStorePaths(t *testing.T) {
	// Given: a loaded config with default store paths
	dir := isolate(t)
	cfg, err := Load(dir)
	require.NoError(t, err)
	outside := filepath.Join(t.TempDir(), "shared.db")
	cfg.Store.BlevePath = outside

	// When: moving the data directory
	moved := filepath.Join(t.TempDir(), "data")
	cfg.SetDataDir(moved)

	// Then: paths under the old directory follow, others stay
	assert.Equal(t, moved, cfg.DataDir)
	assert.Equal(t, filepath.Join(moved, "taxctx.db"), cfg.Store.Path)
	assert.Equal(t, outside, cfg.Store.BlevePath)
}
