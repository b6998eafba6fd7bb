package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	w, err := New(nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer w.Close()

	if w.debounce != time.Second {
		t.Errorf("debounce = %v, want %v", w.debounce, time.Second)
	}
}

func TestWatch(t *testing.T) {
	tempDir := t.TempDir()

	w, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch(tempDir); err != nil {
		t.Errorf("Watch failed: %v", err)
	}

	if len(w.Watched()) != 1 {
		t.Errorf("expected 1 watched dir, got %d", len(w.Watched()))
	}

	// Watch same dir again - should be idempotent
	if err := w.Watch(tempDir); err != nil {
		t.Errorf("second Watch failed: %v", err)
	}
	if len(w.Watched()) != 1 {
		t.Error("watching same dir twice should not duplicate")
	}

	if err := w.Unwatch(tempDir); err != nil {
		t.Errorf("Unwatch failed: %v", err)
	}
	if len(w.Watched()) != 0 {
		t.Error("expected 0 watched dirs after unwatch")
	}
}

func startWatcher(t *testing.T, dir string, debounce time.Duration, filter func(string) bool) <-chan Event {
	t.Helper()
	events := make(chan Event, 10)
	w, err := New(&Config{
		DebounceDelay: debounce,
		Filter:        filter,
		OnEvent:       func(e Event) { events <- e },
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })

	if err := w.Watch(dir); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	go w.Start(ctx)
	return events
}

func TestDocumentChangeDetection(t *testing.T) {
	tempDir := t.TempDir()
	events := startWatcher(t, tempDir, 50*time.Millisecond, nil)

	if err := os.WriteFile(filepath.Join(tempDir, "doc1.json"), []byte(`{"a":1}`), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-events:
		if e.Filename != "doc1.json" || e.Kind != Changed {
			t.Errorf("got %+v, want doc1.json changed", e)
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for change event")
	}
}

func TestRemoveDetection(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "doc1.json")
	if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	events := startWatcher(t, tempDir, 50*time.Millisecond, nil)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-events:
		if e.Filename != "doc1.json" || e.Kind != Removed {
			t.Errorf("got %+v, want doc1.json removed", e)
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for remove event")
	}
}

func TestFilter(t *testing.T) {
	tempDir := t.TempDir()
	onlyJSON := func(path string) bool { return strings.HasSuffix(path, ".json") }
	events := startWatcher(t, tempDir, 50*time.Millisecond, onlyJSON)

	os.WriteFile(filepath.Join(tempDir, "notes.txt"), []byte("skip"), 0600)
	os.WriteFile(filepath.Join(tempDir, "doc2.json"), []byte("{}"), 0600)

	select {
	case e := <-events:
		if e.Filename != "doc2.json" {
			t.Errorf("filtered file leaked through: %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for change event")
	}
}

func TestDebounce(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "doc1.json")
	events := startWatcher(t, tempDir, 100*time.Millisecond, nil)

	// Write multiple times rapidly
	for i := 0; i < 5; i++ {
		os.WriteFile(testFile, []byte(string(rune('a'+i))), 0600)
		time.Sleep(20 * time.Millisecond)
	}

	// Should only get ONE debounced event
	eventCount := 0
	timeout := time.After(300 * time.Millisecond)

loop:
	for {
		select {
		case <-events:
			eventCount++
		case <-timeout:
			break loop
		}
	}

	if eventCount != 1 {
		t.Errorf("expected 1 debounced event, got %d", eventCount)
	}
}

func TestEventKindString(t *testing.T) {
	if Changed.String() != "changed" || Removed.String() != "removed" {
		t.Errorf("unexpected names: %s, %s", Changed, Removed)
	}
}
