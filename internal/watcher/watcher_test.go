package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestChangeTriggersCallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	if err := os.WriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	var fired int32
	w, err := New(Config{
		Path:     path,
		Debounce: 20 * time.Millisecond,
		OnChange: func() { atomic.AddInt32(&fired, 1) },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := os.WriteFile(path, []byte("changed"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&fired) > 0 }) {
		t.Fatal("callback never fired")
	}
}

func TestRapidWritesDebounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	if err := os.WriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	var fired int32
	w, err := New(Config{
		Path:     path,
		Debounce: 100 * time.Millisecond,
		OnChange: func() { atomic.AddInt32(&fired, 1) },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// A burst of writes inside the debounce window collapses to one callback.
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte(i)}, 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&fired) > 0 }) {
		t.Fatal("callback never fired")
	}
	time.Sleep(150 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Errorf("burst produced %d callbacks, want 1", n)
	}
}

func TestMissingFileWatchesForCreation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")

	var fired int32
	w, err := New(Config{
		Path:     path,
		Debounce: 20 * time.Millisecond,
		OnChange: func() { atomic.AddInt32(&fired, 1) },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("start with missing file: %v", err)
	}

	if err := os.WriteFile(path, []byte("created"), 0644); err != nil {
		t.Fatalf("create: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&fired) > 0 }) {
		t.Fatal("creation of the watched file not reported")
	}
}

func TestSiblingFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")

	var fired int32
	w, err := New(Config{
		Path:     path,
		Debounce: 20 * time.Millisecond,
		OnChange: func() { atomic.AddInt32(&fired, 1) },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 0 {
		t.Errorf("sibling file fired %d callbacks", n)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	w, err := New(Config{Path: path, OnChange: func() {}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	w.Stop()
	w.Stop()

	if err := w.Start(); err == nil {
		t.Error("start after stop succeeded")
	}
}
