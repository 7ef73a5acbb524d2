package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "chunk_overlap must be smaller than chunk_size", nil).
		WithSuggestion("Lower chunking.chunk_overlap in .taxctx.yaml")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: chunk_overlap must be smaller than chunk_size")
	assert.Contains(t, out, "Hint: Lower chunking.chunk_overlap")
	assert.Contains(t, out, "Code: ERR_102_CONFIG_INVALID")
}

func TestFormatForCLI_StandardErrorIsInternal(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))

	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatJSON_WithCause(t *testing.T) {
	err := PersistenceError(true, "commit chunks", errors.New("disk I/O error"))

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ErrCodePersistenceWrite, got["code"])
	assert.Equal(t, "disk I/O error", got["cause"])
	assert.Equal(t, true, got["retryable"])
}

func TestLogAttrs_PlainAndStructured(t *testing.T) {
	assert.Nil(t, LogAttrs(nil))
	assert.Len(t, LogAttrs(errors.New("plain")), 1)

	attrs := LogAttrs(DimensionMismatch(4, 3))
	// error_code, error, retryable, detail_expected, detail_got
	assert.Len(t, attrs, 5)
}
