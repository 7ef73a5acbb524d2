package configs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bikash9609/ca-ai/configs"
	"github.com/Bikash9609/ca-ai/internal/config"
)

func TestConfigTemplate_LoadsAndMatchesDefaults(t *testing.T) {
	// Given: the template written to disk
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644))

	// When: loading it
	cfg, err := config.LoadFile(path)

	// Then: it is valid and carries the default tuning
	require.NoError(t, err)
	def := config.NewConfig()
	assert.Equal(t, def.Chunking, cfg.Chunking)
	assert.Equal(t, def.Search, cfg.Search)
	assert.Equal(t, def.Retrieval, cfg.Retrieval)
}
