// Package history keeps a bounded, display-only record of past task activity.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"todosync/backend"
	"todosync/internal/synchronizer"
	"todosync/internal/utils"
)

// DefaultLimit bounds the number of stored entries.
const DefaultLimit = 50

// Kind names a recorded activity.
type Kind string

const (
	KindAdded     Kind = "added"
	KindCompleted Kind = "completed"
	KindReopened  Kind = "reopened"
	KindEdited    Kind = "edited"
	KindDeleted   Kind = "deleted"
	KindReordered Kind = "reordered"
)

// Entry is one recorded activity.
type Entry struct {
	At     time.Time `json:"at"`
	Kind   Kind      `json:"kind"`
	TaskID int64     `json:"taskId,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// String renders the entry for the CLI.
func (e Entry) String() string {
	stamp := e.At.Local().Format("2006-01-02 15:04")
	if e.Kind == KindReordered {
		return fmt.Sprintf("%s  reordered tasks", stamp)
	}
	return fmt.Sprintf("%s  %-9s %q", stamp, e.Kind, e.Text)
}

// Recorder persists entries in the local cache under backend.KeyHistory,
// newest first.
type Recorder struct {
	cache backend.LocalCache
	limit int
	now   func() time.Time
	mu    sync.Mutex
}

// New creates a recorder. A non-positive limit uses DefaultLimit.
func New(cache backend.LocalCache, limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Recorder{cache: cache, limit: limit, now: time.Now}
}

// Entries returns the stored entries, newest first. Corrupt contents read as empty.
func (r *Recorder) Entries(ctx context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(ctx)
}

// Record stores e, dropping the oldest entries beyond the limit.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.At.IsZero() {
		e.At = r.now()
	}
	entries, err := r.read(ctx)
	if err != nil {
		return err
	}
	entries = append([]Entry{e}, entries...)
	if len(entries) > r.limit {
		entries = entries[:r.limit]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return r.cache.Put(ctx, backend.KeyHistory, data)
}

// Clear removes all entries.
func (r *Recorder) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Delete(ctx, backend.KeyHistory)
}

func (r *Recorder) read(ctx context.Context) ([]Entry, error) {
	data, ok, err := r.cache.Get(ctx, backend.KeyHistory)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		utils.Warnf("%v", fmt.Errorf("%w: %s: %v (treating as empty)", utils.ErrCacheCorrupt, backend.KeyHistory, err))
		return []Entry{}, nil
	}
	return entries, nil
}

// HandleEvent records user actions. Reloads and mode changes are not activity.
func (r *Recorder) HandleEvent(e synchronizer.Event) {
	entry, ok := entryFor(e)
	if !ok {
		return
	}
	if err := r.Record(context.Background(), entry); err != nil {
		utils.Warnf("Could not record history: %v", err)
	}
}

func entryFor(e synchronizer.Event) (Entry, bool) {
	entry := Entry{TaskID: e.Task.ID, Text: e.Task.Text}
	switch e.Kind {
	case synchronizer.EventTaskRemoved:
		entry.Kind = KindDeleted
	case synchronizer.EventReordered:
		return Entry{Kind: KindReordered}, true
	case synchronizer.EventTaskUpserted:
		switch e.Action {
		case backend.ActionAdd:
			entry.Kind = KindAdded
		case backend.ActionEdit:
			entry.Kind = KindEdited
		case backend.ActionToggle, backend.ActionComplete:
			entry.Kind = KindReopened
			if e.Task.Completed {
				entry.Kind = KindCompleted
			}
		default:
			return Entry{}, false
		}
	default:
		return Entry{}, false
	}
	return entry, true
}
