package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wouteroostervld/kgrag/pkg/domain"
	"github.com/wouteroostervld/kgrag/pkg/indexer"
	"github.com/wouteroostervld/kgrag/pkg/state"
	"github.com/wouteroostervld/kgrag/pkg/watcher"
)

type fakeSyncer struct {
	mu       sync.Mutex
	synced   []string
	removed  []string
	syncFunc func(filename string) error
	done     chan string
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{done: make(chan string, 10)}
}

func (f *fakeSyncer) SyncFile(ctx context.Context, filename string) (*indexer.DocumentReport, error) {
	f.mu.Lock()
	f.synced = append(f.synced, filename)
	fn := f.syncFunc
	f.mu.Unlock()

	var err error
	if fn != nil {
		err = fn(filename)
	}
	f.done <- filename
	if err != nil {
		return nil, err
	}
	return &indexer.DocumentReport{Filename: filename, Status: indexer.StatusReprocessed}, nil
}

func (f *fakeSyncer) LoadState() (*state.State, error) {
	return state.New(), nil
}

func (f *fakeSyncer) RemoveDocument(ctx context.Context, st *state.State, filename string) error {
	f.mu.Lock()
	f.removed = append(f.removed, filename)
	f.mu.Unlock()
	f.done <- filename
	return nil
}

func (f *fakeSyncer) syncCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.synced)
}

func wait(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case name := <-ch:
		return name
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for worker")
		return ""
	}
}

func TestNewSyncWorker_Defaults(t *testing.T) {
	w := NewSyncWorker(&Config{Syncer: newFakeSyncer()})
	if w.maxRetries != 3 {
		t.Errorf("maxRetries = %d, want 3", w.maxRetries)
	}
	if w.retryDelay != 2*time.Second {
		t.Errorf("retryDelay = %v, want 2s", w.retryDelay)
	}
	if cap(w.queue) != 100 {
		t.Errorf("queue size = %d, want 100", cap(w.queue))
	}
}

func TestSyncWorker_ProcessesChanges(t *testing.T) {
	syncer := newFakeSyncer()
	reports := make(chan *indexer.DocumentReport, 1)
	w := NewSyncWorker(&Config{
		Syncer:   syncer,
		OnReport: func(r *indexer.DocumentReport) { reports <- r },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	w.Enqueue(watcher.Event{Filename: "doc1.json", Kind: watcher.Changed})
	if got := wait(t, syncer.done); got != "doc1.json" {
		t.Errorf("synced %s, want doc1.json", got)
	}
	select {
	case r := <-reports:
		if r.Filename != "doc1.json" {
			t.Errorf("report for %s", r.Filename)
		}
	case <-time.After(time.Second):
		t.Error("no report delivered")
	}
}

func TestSyncWorker_CoalescesQueuedEvents(t *testing.T) {
	syncer := newFakeSyncer()
	w := NewSyncWorker(&Config{Syncer: syncer, QueueSize: 1})

	if !w.Enqueue(watcher.Event{Filename: "doc1.json"}) {
		t.Fatal("first enqueue dropped")
	}
	if !w.Enqueue(watcher.Event{Filename: "doc1.json"}) {
		t.Error("duplicate event should be coalesced, not dropped")
	}
	if w.Enqueue(watcher.Event{Filename: "doc2.json"}) {
		t.Error("expected drop on a full queue")
	}
	if len(w.queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(w.queue))
	}
}

func TestSyncWorker_CoalescedEventUsesLatestKind(t *testing.T) {
	syncer := newFakeSyncer()
	syncer.syncFunc = func(string) error {
		return domain.IOError("read document", "doc1.json", errors.New("no such file"))
	}
	w := NewSyncWorker(&Config{Syncer: syncer, PruneMissing: true, RetryDelay: time.Millisecond})

	// Written, then deleted before the worker got to it
	w.Enqueue(watcher.Event{Filename: "doc1.json", Kind: watcher.Changed})
	w.Enqueue(watcher.Event{Filename: "doc1.json", Kind: watcher.Removed})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	if name := wait(t, syncer.done); name != "doc1.json" {
		t.Fatalf("processed %q, want doc1.json", name)
	}
	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	if len(syncer.removed) != 1 {
		t.Errorf("removed = %v, want [doc1.json]", syncer.removed)
	}
	if len(syncer.synced) != 0 {
		t.Errorf("deleted file was synced %d times", len(syncer.synced))
	}
}

func TestSyncWorker_RetriesIOErrors(t *testing.T) {
	syncer := newFakeSyncer()
	attempts := 0
	syncer.syncFunc = func(string) error {
		attempts++
		if attempts < 3 {
			return domain.IOError("read document", "doc1.json", errors.New("busy"))
		}
		return nil
	}
	w := NewSyncWorker(&Config{Syncer: syncer, RetryDelay: time.Millisecond})

	if err := w.process(context.Background(), watcher.Event{Filename: "doc1.json"}); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if syncer.syncCount() != 3 {
		t.Errorf("got %d attempts, want 3", syncer.syncCount())
	}
}

func TestSyncWorker_GivesUpAfterMaxRetries(t *testing.T) {
	syncer := newFakeSyncer()
	syncer.syncFunc = func(string) error {
		return domain.IOError("read document", "doc1.json", errors.New("gone"))
	}
	w := NewSyncWorker(&Config{Syncer: syncer, MaxRetries: 2, RetryDelay: time.Millisecond})

	if err := w.process(context.Background(), watcher.Event{Filename: "doc1.json"}); err != nil {
		t.Fatalf("per-file failure should not stop the worker: %v", err)
	}
	if syncer.syncCount() != 2 {
		t.Errorf("got %d attempts, want 2", syncer.syncCount())
	}
}

func TestSyncWorker_FatalErrorsStop(t *testing.T) {
	syncer := newFakeSyncer()
	syncer.syncFunc = func(string) error {
		return domain.ModelMismatchError("a", "b")
	}
	w := NewSyncWorker(&Config{Syncer: syncer, RetryDelay: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	w.Enqueue(watcher.Event{Filename: "doc1.json"})
	err := w.Start(ctx)
	if !errors.Is(err, domain.ErrModelMismatch) {
		t.Fatalf("expected model mismatch to stop the worker, got %v", err)
	}
	if syncer.syncCount() != 1 {
		t.Errorf("fatal errors must not be retried, got %d attempts", syncer.syncCount())
	}
}

func TestSyncWorker_RemovedFiles(t *testing.T) {
	syncer := newFakeSyncer()

	w := NewSyncWorker(&Config{Syncer: syncer})
	if err := w.process(context.Background(), watcher.Event{Filename: "doc1.json", Kind: watcher.Removed}); err != nil {
		t.Fatal(err)
	}
	if len(syncer.removed) != 0 {
		t.Error("removal should be ignored without prune")
	}

	w = NewSyncWorker(&Config{Syncer: syncer, PruneMissing: true})
	if err := w.process(context.Background(), watcher.Event{Filename: "doc1.json", Kind: watcher.Removed}); err != nil {
		t.Fatal(err)
	}
	if len(syncer.removed) != 1 || syncer.removed[0] != "doc1.json" {
		t.Errorf("removed = %v, want [doc1.json]", syncer.removed)
	}
}
