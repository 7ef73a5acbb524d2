package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for batch")
		return nil
	}
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want []Operation
	}{
		{"single event passes", []Operation{OpModify}, []Operation{OpModify}},
		{"create then modify is create", []Operation{OpCreate, OpModify, OpModify}, []Operation{OpCreate}},
		{"modify then delete is delete", []Operation{OpModify, OpDelete}, []Operation{OpDelete}},
		{"delete then create is modify", []Operation{OpDelete, OpCreate}, []Operation{OpModify}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a debouncer
			d := NewDebouncer(20 * time.Millisecond)
			defer d.Stop()

			// When: events for one path arrive within the window
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "inv.txt", Operation: op})
			}

			// Then: one merged event is emitted
			batch := waitBatch(t, d)
			require.Len(t, batch, len(tt.want))
			assert.Equal(t, tt.want[0], batch[0].Operation)
		})
	}
}

func TestDebouncer_CreateThenDelete_NoEvent(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// When: a file is created and removed within the window
	d.Add(FileEvent{Path: "tmp.txt", Operation: OpCreate})
	d.Add(FileEvent{Path: "tmp.txt", Operation: OpDelete})

	// Then: nothing is emitted
	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected batch: %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_DifferentFiles_SortedBatch(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// When: events for several paths arrive
	d.Add(FileEvent{Path: "b.txt", Operation: OpCreate})
	d.Add(FileEvent{Path: "a.meta.yaml", Operation: OpModify})
	d.Add(FileEvent{Path: "a.txt", Operation: OpCreate})

	// Then: one batch sorted by path
	batch := waitBatch(t, d)
	require.Len(t, batch, 3)
	assert.Equal(t, "a.meta.yaml", batch[0].Path)
	assert.Equal(t, "a.txt", batch[1].Path)
	assert.Equal(t, "b.txt", batch[2].Path)
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(time.Second)

	// When: stopped twice and then fed
	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "x.txt", Operation: OpCreate})

	// Then: the output is closed
	_, ok := <-d.Output()
	assert.False(t, ok)
}
