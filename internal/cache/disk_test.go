package cache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDisk_PutGet(t *testing.T) {
	d, err := OpenDisk(t.TempDir(), 1<<20, 3)
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}
	defer d.Close()

	small := []byte("tiny")
	pcm := bytes.Repeat([]byte{0, 1, 2, 3}, 4096) // compresses well

	if err := d.Put("small", small); err != nil {
		t.Fatalf("Put small: %v", err)
	}
	if err := d.Put("pcm", pcm); err != nil {
		t.Fatalf("Put pcm: %v", err)
	}

	got, ok := d.Get("small")
	if !ok || !bytes.Equal(got, small) {
		t.Errorf("small clip mismatch")
	}
	got, ok = d.Get("pcm")
	if !ok || !bytes.Equal(got, pcm) {
		t.Errorf("pcm clip mismatch")
	}

	if stats := d.Stats(); stats.Size >= int64(len(pcm)+len(small)) {
		t.Errorf("expected compression, stored %d bytes", stats.Size)
	}
}

func TestDisk_PersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()

	d, err := OpenDisk(dir, 1<<20, 3)
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}
	d.Put("k", []byte("persisted clip"))
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenDisk(dir, 1<<20, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, ok := reopened.Get("k")
	if !ok || string(got) != "persisted clip" {
		t.Errorf("Get after reopen = %q, %v", got, ok)
	}
}

func TestDisk_MissingFileIsAMiss(t *testing.T) {
	dir := t.TempDir()
	d, _ := OpenDisk(dir, 1<<20, 0)
	defer d.Close()

	d.Put("k", []byte("clip"))
	os.Remove(d.path("k"))

	if _, ok := d.Get("k"); ok {
		t.Error("expected miss for deleted file")
	}
	if stats := d.Stats(); stats.Items != 0 || stats.Size != 0 {
		t.Errorf("stale entry kept: %+v", stats)
	}
}

func TestDisk_EvictsLeastRecentlyUsed(t *testing.T) {
	d, _ := OpenDisk(t.TempDir(), 100, 0)
	defer d.Close()

	d.Put("a", make([]byte, 40))
	time.Sleep(2 * time.Millisecond)
	d.Put("b", make([]byte, 40))
	time.Sleep(2 * time.Millisecond)
	d.Get("a")
	d.Put("c", make([]byte, 40))

	if _, ok := d.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := d.Get("a"); !ok {
		t.Error("a was recently used and should remain")
	}
	if err := d.Put("huge", make([]byte, 101)); !errors.Is(err, ErrItemTooLarge) {
		t.Errorf("expected ErrItemTooLarge, got %v", err)
	}
}

func TestDisk_ClearAndExpire(t *testing.T) {
	dir := t.TempDir()
	d, _ := OpenDisk(dir, 1<<20, 0)
	defer d.Close()

	d.Put("a", []byte("1"))
	d.Put("b", []byte("2"))

	if n := d.RemoveOlderThan(time.Now().Add(time.Second)); n != 2 {
		t.Errorf("RemoveOlderThan removed %d, want 2", n)
	}

	d.Put("c", []byte("3"))
	if err := d.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*"+clipExt))
	if len(matches) != 0 {
		t.Errorf("clip files left behind: %v", matches)
	}
}
