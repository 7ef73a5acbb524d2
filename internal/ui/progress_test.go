package ui

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressTracker_Initial(t *testing.T) {
	// Given/When: a new tracker
	stats := NewProgressTracker().Stats()

	// Then: it starts at chunking with no progress
	assert.Equal(t, StageChunking, stats.Stage)
	assert.Equal(t, UnitChunks, stats.Unit)
	assert.Zero(t, stats.Progress)
	assert.Zero(t, stats.ETA)
}

func TestProgressTracker_ApplyAndStageChange(t *testing.T) {
	// Given: a tracker
	p := NewProgressTracker()

	// When: applying events across a stage change
	p.Apply(ProgressEvent{Stage: StageEmbedding, Current: 3, Total: 4, Document: "d1"})
	p.Apply(ProgressEvent{Stage: StageStoring, Current: 8, Total: 4, Unit: UnitDocuments})

	// Then: the last event wins, progress is capped, the document sticks
	stats := p.Stats()
	assert.Equal(t, StageStoring, stats.Stage)
	assert.Equal(t, 1.0, stats.Progress)
	assert.Equal(t, UnitDocuments, stats.Unit)
	assert.Equal(t, "d1", stats.Document)
	assert.Zero(t, stats.ETA)
}

func TestProgressTracker_SetStageResets(t *testing.T) {
	// Given: a tracker with progress
	p := NewProgressTracker()
	p.Apply(ProgressEvent{Stage: StageChunking, Current: 2, Total: 4})

	// When: moving to the next stage
	p.SetStage(StageEmbedding, 10)

	// Then: the counter resets
	stats := p.Stats()
	assert.Equal(t, StageEmbedding, stats.Stage)
	assert.Equal(t, 0, stats.Current)
	assert.Equal(t, 10, stats.Total)
}

func TestProgressTracker_Errors(t *testing.T) {
	// Given: a tracker
	p := NewProgressTracker()

	// When: errors are added concurrently
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.AddError(ErrorEvent{Err: errors.New("x"), IsWarn: i%2 == 0})
		}(i)
	}
	wg.Wait()

	// Then: errors and warnings are counted apart
	stats := p.Stats()
	assert.Equal(t, 10, stats.ErrorCount)
	assert.Equal(t, 10, stats.WarnCount)
	assert.Len(t, p.Errors(), 10)
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given: status for a store whose lexical index lags
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	require.NoError(t, r.Render(StatusInfo{
		DataDir:          "/data",
		Backend:          "sqlite",
		Documents:        2,
		Chunks:           10,
		LexicalEntries:   9,
		DatabaseSize:     2048,
		EmbedderProvider: "static",
		EmbedderStatus:   "ready",
	}))

	// Then: counts, the sync warning and the size are shown
	out := buf.String()
	assert.Contains(t, out, "Store Status: /data")
	assert.Contains(t, out, "Chunks:    10")
	assert.Contains(t, out, "9 (out of sync)")
	assert.Contains(t, out, "Dimension: unset")
	assert.Contains(t, out, "Size:      2.0 KB")
	assert.Contains(t, out, "Status:   ready")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given: a status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering JSON
	require.NoError(t, r.RenderJSON(StatusInfo{Backend: "postgres", Chunks: 3, LexicalEntries: 3, Dimension: 768}))

	// Then: it decodes with the snake_case keys
	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "postgres", got["backend"])
	assert.EqualValues(t, 768, got["dimension"])
	assert.NotContains(t, got, "embedder_model")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "3.0 MB", FormatBytes(3*1024*1024))
	assert.Equal(t, "1.0 GB", FormatBytes(1024*1024*1024))
}

func TestGetStyles(t *testing.T) {
	// Given/When: no-color styles
	s := GetStyles(true)

	// Then: rendering adds nothing
	assert.Equal(t, "x", s.Error.Render("x"))
	assert.NotNil(t, GetStyles(false).Header)
}
