package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bikash9609/ca-ai/internal/store"
	"github.com/Bikash9609/ca-ai/pkg/version"
)

const ledgerText = `Bank statement for April 2024. Opening balance Rs 1,20,000.

NEFT credit from Acme Traders against Invoice No: INV-0042 for Rs 59,000.

Rent paid to Sunrise Estates Rs 45,000 after TDS deduction under section 194-I.

GST payment challan for GSTR-3B filed on 20-05-2024 amount Rs 18,000.

Closing balance Rs 1,15,000 carried forward to May 2024.`

// isolate runs the test in a fresh project directory with its own home
// and user config, so no real configuration or logs are touched.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("NO_COLOR", "1")
	project := t.TempDir()
	t.Chdir(project)
	return project
}

// run executes the root command with args and returns stdout and stderr.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeText(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"index", "reindex", "delete", "chunks", "search", "retrieve", "watch", "status", "doctor", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	isolate(t)

	stdout, _, err := run(t, "", "--help")

	require.NoError(t, err)
	assert.Contains(t, stdout, "taxctx")
	assert.Contains(t, stdout, "retrieve")
}

func TestVersionCmd(t *testing.T) {
	isolate(t)

	stdout, _, err := run(t, "", "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version+"\n", stdout)

	stdout, _, err = run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "taxctx "+version.Version)
	assert.Contains(t, stdout, fmt.Sprintf("store schema v%d, embeddings static/256", store.CurrentSchemaVersion))

	stdout, _, err = run(t, "", "version", "--json")
	require.NoError(t, err)
	var rep map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	assert.Equal(t, version.Version, rep["version"])
	assert.EqualValues(t, store.CurrentSchemaVersion, rep["schema_version"])
	assert.EqualValues(t, 256, rep["embedding_dimensions"])
}

func TestRootCmd_InvalidProjectConfigFails(t *testing.T) {
	// Given: a project config with an unknown key
	project := isolate(t)
	writeText(t, project, ".taxctx.yaml", "chunking:\n  chunk_sise: 10\n")

	// When: running any command
	_, _, err := run(t, "", "version")

	// Then: loading fails
	assert.Error(t, err)
}

func TestRootCmd_LoadsEnvFile(t *testing.T) {
	// Given: a .env file that overrides the data directory
	project := isolate(t)
	t.Setenv("TAXCTX_DATA_DIR", "")
	require.NoError(t, os.Unsetenv("TAXCTX_DATA_DIR"))
	writeText(t, project, ".env", "TAXCTX_DATA_DIR=envdata\n")
	writeText(t, project, "note.txt", "Audit fee provision for the year.")

	// When: indexing
	_, _, err := run(t, "", "index", "note.txt")
	require.NoError(t, os.Unsetenv("TAXCTX_DATA_DIR"))

	// Then: the store lives in the directory from .env
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(project, "envdata", "taxctx.db"))
}

func TestRootCmd_DataDirFlag(t *testing.T) {
	project := isolate(t)
	writeText(t, project, "note.txt", "Audit fee provision for the year.")
	custom := filepath.Join(t.TempDir(), "store")

	_, _, err := run(t, "", "--data-dir", custom, "index", "note.txt")

	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(custom, "taxctx.db"))
	assert.NoDirExists(t, filepath.Join(project, ".taxctx"))
}

func TestRootCmd_ProfilesWritten(t *testing.T) {
	project := isolate(t)
	cpu := filepath.Join(project, "cpu.prof")
	heap := filepath.Join(project, "heap.prof")

	_, _, err := run(t, "", "--profile-cpu", cpu, "--profile-mem", heap, "version")

	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}
