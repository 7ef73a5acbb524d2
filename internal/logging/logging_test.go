package logging

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a config pointing to a temp file
	path := filepath.Join(t.TempDir(), "logs", "taxctx.log")
	cfg := DefaultConfig()
	cfg.FilePath = path
	cfg.Level = "debug"

	// When: logging through the returned logger
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Debug("document_indexed", slog.String("document_id", "doc-1"), slog.Int("chunks", 4))
	cleanup()

	// Then: the file holds one JSON line with the attributes
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	var entry map[string]any
	require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
	assert.Equal(t, "document_indexed", entry["msg"])
	assert.Equal(t, "doc-1", entry["document_id"])
	assert.Equal(t, float64(4), entry["chunks"])
}

func TestSetup_LevelFiltersDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxctx.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestSetup_TextFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxctx.log")
	logger, cleanup, err := Setup(Config{Level: "info", Format: "text", FilePath: path})
	require.NoError(t, err)

	logger.Info("chunk_excluded", slog.String("chunk_id", "c1"))
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=chunk_excluded")
	assert.Contains(t, string(data), "chunk_id=c1")
}

func TestRotatingWriter_RotatesBySize(t *testing.T) {
	// Given: a writer capped at 1MB keeping 2 files
	path := filepath.Join(t.TempDir(), "taxctx.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	line := []byte(strings.Repeat("x", 1023) + "\n")

	// When: writing a little over 3MB
	for i := 0; i < 3*1024+10; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	// Then: the live file plus two backups exist, nothing beyond
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(1024*1024))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
	assert.True(t, ValidLevel("warn"))
	assert.False(t, ValidLevel("verbose"))
}
