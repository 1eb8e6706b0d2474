package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"todosync/backend"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetMissingKey(t *testing.T) {
	c := newTestCache(t)

	value, ok, err := c.Get(context.Background(), backend.KeyTasks)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || value != nil {
		t.Errorf("expected missing key, got ok=%v value=%q", ok, value)
	}
}

func TestPutGetOverwrite(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, backend.KeyTasks, []byte(`[{"id":1}]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(ctx, backend.KeyTasks, []byte(`[]`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}

	value, ok, err := c.Get(ctx, backend.KeyTasks)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(value) != `[]` {
		t.Errorf("value = %q, want []", value)
	}

	if _, ok, _ := c.Modified(ctx, backend.KeyTasks); !ok {
		t.Error("Modified should report the key")
	}
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Put(ctx, backend.KeyPending, []byte(`[]`))
	if err := c.Delete(ctx, backend.KeyPending); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, backend.KeyPending); ok {
		t.Error("key should be gone")
	}
	if err := c.Delete(ctx, "never-set"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	c, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Put(ctx, backend.KeyTasks, []byte(`[{"id":7,"text":"Buy milk"}]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_ = c.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	value, ok, err := reopened.Get(ctx, backend.KeyTasks)
	if err != nil || !ok || string(value) != `[{"id":7,"text":"Buy milk"}]` {
		t.Errorf("after reopen: value=%q ok=%v err=%v", value, ok, err)
	}
}
