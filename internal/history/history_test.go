package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todosync/backend"
	"todosync/backend/file"
	"todosync/internal/synchronizer"
)

func newRecorder(t *testing.T, limit int) (*Recorder, *file.Cache) {
	t.Helper()
	cache, err := file.New(file.Config{Dir: filepath.Join(t.TempDir(), "cache")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return New(cache, limit), cache
}

func TestRecordNewestFirstAndBounded(t *testing.T) {
	r, _ := newRecorder(t, 3)
	ctx := context.Background()
	base := time.Date(2026, 3, 30, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Record(ctx, Entry{
			At:   base.Add(time.Duration(i) * time.Minute),
			Kind: KindAdded,
			Text: fmt.Sprintf("task %d", i),
		}))
	}

	entries, err := r.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "task 4", entries[0].Text)
	assert.Equal(t, "task 2", entries[2].Text)
}

func TestDefaultLimit(t *testing.T) {
	r, _ := newRecorder(t, 0)
	assert.Equal(t, DefaultLimit, r.limit)
}

func TestCorruptHistoryReadsEmpty(t *testing.T) {
	r, cache := newRecorder(t, 10)
	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, backend.KeyHistory, []byte("{broken")))

	entries, err := r.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, r.Record(ctx, Entry{Kind: KindAdded, Text: "fresh"}))
	entries, err = r.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].At.IsZero())
}

func TestHandleEventKinds(t *testing.T) {
	r, _ := newRecorder(t, 10)
	ctx := context.Background()
	milk := backend.Task{ID: 1, Text: "Buy milk"}
	done := milk
	done.Completed = true

	events := []synchronizer.Event{
		{Kind: synchronizer.EventTaskUpserted, Action: backend.ActionAdd, Task: milk},
		{Kind: synchronizer.EventTaskUpserted, Action: backend.ActionToggle, Task: done},
		{Kind: synchronizer.EventTaskUpserted, Action: backend.ActionToggle, Task: milk},
		{Kind: synchronizer.EventTaskUpserted, Action: backend.ActionEdit, Task: milk},
		{Kind: synchronizer.EventReordered, Action: backend.ActionReorder},
		{Kind: synchronizer.EventTaskRemoved, Action: backend.ActionDelete, Task: milk},
		{Kind: synchronizer.EventReloaded},
		{Kind: synchronizer.EventModeChanged, Mode: synchronizer.ModeOffline},
	}
	for _, e := range events {
		r.HandleEvent(e)
	}

	entries, err := r.Entries(ctx)
	require.NoError(t, err)
	var kinds []Kind
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []Kind{KindDeleted, KindReordered, KindEdited, KindReopened, KindCompleted, KindAdded}, kinds)
}

func TestClear(t *testing.T) {
	r, _ := newRecorder(t, 10)
	ctx := context.Background()
	require.NoError(t, r.Record(ctx, Entry{Kind: KindAdded, Text: "x"}))
	require.NoError(t, r.Clear(ctx))

	entries, err := r.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntryString(t *testing.T) {
	at := time.Date(2026, 3, 30, 9, 5, 0, 0, time.Local)
	assert.Equal(t, `2026-03-30 09:05  added     "Buy milk"`, Entry{At: at, Kind: KindAdded, Text: "Buy milk"}.String())
	assert.Equal(t, "2026-03-30 09:05  reordered tasks", Entry{At: at, Kind: KindReordered}.String())
}
