package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bikash9609/ca-ai/internal/chunk"
	"github.com/Bikash9609/ca-ai/internal/config"
	"github.com/Bikash9609/ca-ai/internal/store"
)

// testConfig returns defaults rooted at a fresh data directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.DataDir = filepath.Join(dir, ".taxctx")
	cfg.Store.Path = filepath.Join(cfg.DataDir, "taxctx.db")
	cfg.Store.BlevePath = filepath.Join(cfg.DataDir, "lexical.bleve")
	return cfg
}

// seedStore writes one document with a dims-sized embedding.
func seedStore(t *testing.T, cfg *config.Config, dims int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))
	s, err := store.NewSQLiteStore(cfg.Store.Path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	require.NoError(t, s.SaveDocument(ctx, &store.Document{ID: "inv-17", ClientID: "acme"}))
	_, err = s.StoreChunk(ctx, "inv-17", 0, "Invoice INV-17 total Rs 59,000", make([]float32, dims), chunk.Metadata{Type: chunk.TypeParagraph})
	require.NoError(t, err)
}

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
		{CheckStatus(9), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_JSONStatusByName(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "store", Status: StatusWarn})

	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"warn"`)
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{"required pass is not critical", CheckResult{Status: StatusPass, Required: true}, false},
		{"required fail is critical", CheckResult{Status: StatusFail, Required: true}, true},
		{"optional fail is not critical", CheckResult{Status: StatusFail}, false},
		{"required warn is not critical", CheckResult{Status: StatusWarn, Required: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestChecker_NewWithOptions(t *testing.T) {
	buf := &bytes.Buffer{}
	checker := New(testConfig(t), WithVerbose(true), WithOutput(buf))

	assert.True(t, checker.verbose)
	assert.Equal(t, buf, checker.output)
	assert.NotNil(t, checker.logger)
}

func TestChecker_CheckWritePermissions_CreatesDataDir(t *testing.T) {
	// Given: a data directory that does not exist yet
	dir := filepath.Join(t.TempDir(), "nested", ".taxctx")
	checker := New(testConfig(t))

	// When: checking write permissions
	result := checker.CheckWritePermissions(dir)

	// Then: the directory is created and the check passes
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "data_dir", result.Name)
	assert.True(t, result.Required)
	assert.DirExists(t, dir)
	assert.NoFileExists(t, filepath.Join(dir, ".taxctx-preflight-test"))
}

func TestChecker_CheckWritePermissions_ReadOnly(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("Skipping read-only test when running as root")
	}

	readOnlyDir := filepath.Join(t.TempDir(), "readonly")
	require.NoError(t, os.Mkdir(readOnlyDir, 0o555))
	defer func() { _ = os.Chmod(readOnlyDir, 0o755) }()

	result := New(testConfig(t)).CheckWritePermissions(readOnlyDir)

	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "permission denied")
}

func TestChecker_CheckEmbedder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embeddings.Dimensions = 64

	result, dims := New(cfg).CheckEmbedder(context.Background())

	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, 64, dims)
	assert.Contains(t, result.Message, "64 dims")
}

func TestChecker_CheckEmbedder_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embeddings.Provider = "nonexistent"

	result, dims := New(cfg).CheckEmbedder(context.Background())

	assert.Equal(t, StatusFail, result.Status)
	assert.Zero(t, dims)
}

func TestChecker_CheckStore_NoIndexYet(t *testing.T) {
	result := New(testConfig(t)).CheckStore(context.Background(), 256)

	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Message, "no index yet")
}

func TestChecker_CheckStore_MatchingDimension(t *testing.T) {
	// Given: a store holding 256-dim embeddings
	cfg := testConfig(t)
	seedStore(t, cfg, 256)

	// When: checking it against a 256-dim embedder
	result := New(cfg).CheckStore(context.Background(), 256)

	// Then: the counts are reported
	assert.Equal(t, StatusPass, result.Status, result.Message)
	assert.Contains(t, result.Message, "1 documents, 1 chunks")
}

func TestChecker_CheckStore_DimensionMismatch(t *testing.T) {
	// Given: a store holding 8-dim embeddings
	cfg := testConfig(t)
	seedStore(t, cfg, 8)

	// When: checking it against a 256-dim embedder
	result := New(cfg).CheckStore(context.Background(), 256)

	// Then: the check fails with the dimension to configure
	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
	assert.Contains(t, result.Details, "embeddings.dimensions to 8")
}

func TestChecker_RunAll_ReturnsAllChecks(t *testing.T) {
	// Given: a fresh configuration
	checker := New(testConfig(t))

	// When: running all checks
	results := checker.RunAll(context.Background())

	// Then: every check is present and none is critical
	names := make(map[string]bool)
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"data_dir", "disk_space", "file_descriptors", "embedder", "store"} {
		assert.True(t, names[want], "%s check missing", want)
	}
	assert.NotEqual(t, "failed", checker.SummaryStatus(results))
}

func TestChecker_HasCriticalFailures(t *testing.T) {
	checker := New(testConfig(t))

	tests := []struct {
		name     string
		results  []CheckResult
		expected bool
	}{
		{"no results", []CheckResult{}, false},
		{"all pass", []CheckResult{{Status: StatusPass, Required: true}}, false},
		{"warning only", []CheckResult{{Status: StatusPass, Required: true}, {Status: StatusWarn}}, false},
		{"optional failure", []CheckResult{{Status: StatusFail}}, false},
		{"required failure", []CheckResult{{Status: StatusPass}, {Status: StatusFail, Required: true}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, checker.HasCriticalFailures(tt.results))
		})
	}
}

func TestChecker_SummaryStatus(t *testing.T) {
	checker := New(testConfig(t))

	tests := []struct {
		name     string
		results  []CheckResult
		expected string
	}{
		{"all pass", []CheckResult{{Status: StatusPass}, {Status: StatusPass}}, "ready"},
		{"with warnings", []CheckResult{{Status: StatusPass}, {Status: StatusWarn}}, "ready_with_warnings"},
		{"with critical failure", []CheckResult{{Status: StatusFail, Required: true}}, "failed"},
		{"with optional failure", []CheckResult{{Status: StatusFail}}, "ready_with_warnings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, checker.SummaryStatus(tt.results))
		})
	}
}

func TestChecker_PrintResults(t *testing.T) {
	// Given: mixed results
	results := []CheckResult{
		{Name: "disk_space", Status: StatusPass, Message: "50 GB free"},
		{Name: "file_descriptors", Status: StatusWarn, Message: "256 (minimum: 1024)", Details: "raise the limit"},
		{Name: "store", Status: StatusFail, Message: "dimension mismatch", Required: true},
	}
	buf := &bytes.Buffer{}
	checker := New(testConfig(t), WithOutput(buf), WithVerbose(true))

	// When: printing them
	checker.PrintResults(results)

	// Then: each status, the details and the summary are shown
	out := buf.String()
	assert.Contains(t, out, "[PASS] disk_space")
	assert.Contains(t, out, "[WARN] file_descriptors")
	assert.Contains(t, out, "[FAIL] store")
	assert.Contains(t, out, "raise the limit")
	assert.Contains(t, out, "Status: FAILED")
	assert.Contains(t, out, "1 error(s):")
	assert.Contains(t, out, "1 warning(s):")
}

func TestCheckDiskSpace(t *testing.T) {
	// Given: a data dir with a small index
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755))
	require.NoError(t, os.WriteFile(cfg.Store.Path, make([]byte, 4096), 0o644))

	// When: checking free space
	res := New(cfg).CheckDiskSpace(filepath.Dir(cfg.Store.Path))

	// Then: the message reports free space and index size
	assert.Equal(t, "disk_space", res.Name)
	assert.True(t, res.Required)
	assert.Contains(t, res.Message, "index uses 4.0 KB")
}

func TestCheckDiskSpace_MissingDir(t *testing.T) {
	res := New(testConfig(t)).CheckDiskSpace(filepath.Join(t.TempDir(), "nope"))

	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Message, "cannot stat")
}

func TestIndexBytes(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "taxctx.db")
	bl := filepath.Join(dir, "lexical.bleve")
	require.NoError(t, os.WriteFile(db, make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(db+"-wal", make([]byte, 20), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(bl, "store"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bl, "store", "root.bolt"), make([]byte, 5), 0o644))

	assert.Equal(t, uint64(125), indexBytes(db, bl))
	assert.Equal(t, uint64(120), indexBytes(db, ""))
	assert.Zero(t, indexBytes("", bl))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "100.0 MB", formatBytes(MinDiskSpaceBytes))
	assert.Equal(t, "2.0 GB", formatBytes(2*1024*1024*1024))
}

func TestExistingParent(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, dir, existingParent(filepath.Join(dir, "a", "b")))
	assert.Equal(t, dir, existingParent(dir))
}
