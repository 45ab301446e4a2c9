package docstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *DiskCache {
	t.Helper()
	c, err := NewDiskCache(t.TempDir())
	if err != nil {
		t.Fatalf("new disk cache: %v", err)
	}
	return c
}

func TestDiskCache_WriteReadRoundTrip(t *testing.T) {
	c := newTestCache(t)

	if err := c.Write("doc-1", "Safety Manual.pdf", []byte("bytes")); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, ok := c.Read("doc-1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != "bytes" {
		t.Errorf("unexpected data %q", data)
	}
}

func TestDiskCache_KeySanitization(t *testing.T) {
	c := newTestCache(t)

	key := c.Key("doc/../1", "a b:c.pdf")
	if key != "doc_.._1_a_b_c.pdf" {
		t.Errorf("unexpected key %q", key)
	}
	if filepath.Base(key) != key {
		t.Errorf("key %q escapes the cache dir", key)
	}
}

func TestDiskCache_ReadMiss(t *testing.T) {
	c := newTestCache(t)
	if _, ok := c.Read("missing"); ok {
		t.Error("expected miss for unknown document")
	}
}

func TestDiskCache_ListAndTotalSize(t *testing.T) {
	c := newTestCache(t)
	c.Write("b", "b.pdf", []byte("12345"))
	c.Write("a", "a.pdf", []byte("123"))

	files, err := c.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || files[0].Name != "a_a.pdf" {
		t.Errorf("unexpected listing: %+v", files)
	}

	total, err := c.TotalSize()
	if err != nil {
		t.Fatalf("total size: %v", err)
	}
	if total != 8 {
		t.Errorf("expected total 8, got %d", total)
	}
}

func TestDiskCache_PurgeOlderThan(t *testing.T) {
	c := newTestCache(t)
	c.Write("old", "old.pdf", []byte("x"))
	c.Write("new", "new.pdf", []byte("y"))

	stale := time.Now().Add(-2 * time.Hour)
	oldPath := filepath.Join(c.Dir(), c.Key("old", "old.pdf"))
	if err := os.Chtimes(oldPath, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := c.PurgeOlderThan(time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, ok := c.Read("old"); ok {
		t.Error("expected old entry gone")
	}
	if _, ok := c.Read("new"); !ok {
		t.Error("expected new entry kept")
	}
}

func TestDiskCache_PurgeAll(t *testing.T) {
	c := newTestCache(t)
	c.Write("a", "a.pdf", []byte("x"))
	c.Write("b", "b.pdf", []byte("y"))

	removed, err := c.PurgeOlderThan(0)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
}

func TestDiskCache_DeleteByID(t *testing.T) {
	c := newTestCache(t)
	c.Write("doc-1", "manual.pdf", []byte("x"))

	ok, err := c.DeleteByID("doc-1")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, hit := c.Read("doc-1"); hit {
		t.Error("expected entry gone after delete")
	}

	ok, err = c.DeleteByID("doc-1")
	if err != nil || ok {
		t.Errorf("second delete: ok=%v err=%v", ok, err)
	}
}
