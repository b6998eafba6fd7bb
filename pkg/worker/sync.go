// Package worker applies document events to the index one at a time.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wouteroostervld/kgrag/pkg/domain"
	"github.com/wouteroostervld/kgrag/pkg/indexer"
	"github.com/wouteroostervld/kgrag/pkg/state"
	"github.com/wouteroostervld/kgrag/pkg/watcher"
)

// Syncer is the part of the sync controller the worker drives
type Syncer interface {
	SyncFile(ctx context.Context, filename string) (*indexer.DocumentReport, error)
	LoadState() (*state.State, error)
	RemoveDocument(ctx context.Context, st *state.State, filename string) error
}

// Config holds worker configuration
type Config struct {
	Syncer       Syncer
	QueueSize    int
	MaxRetries   int
	RetryDelay   time.Duration
	PruneMissing bool                          // Purge documents on remove events
	OnReport     func(*indexer.DocumentReport) // Optional
}

// SyncWorker processes queued events sequentially
type SyncWorker struct {
	syncer       Syncer
	queue        chan string
	maxRetries   int
	retryDelay   time.Duration
	pruneMissing bool
	onReport     func(*indexer.DocumentReport)

	// pending holds the latest event kind of every queued filename
	mu      sync.Mutex
	pending map[string]watcher.EventKind
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(cfg *Config) *SyncWorker {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 100
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	return &SyncWorker{
		syncer:       cfg.Syncer,
		queue:        make(chan string, cfg.QueueSize),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		pruneMissing: cfg.PruneMissing,
		onReport:     cfg.OnReport,
		pending:      make(map[string]watcher.EventKind),
	}
}

// Enqueue schedules an event. Events for a file already waiting in the queue
// are coalesced, and the file is processed according to the latest one. It
// reports false when the event was dropped.
func (w *SyncWorker) Enqueue(e watcher.Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, queued := w.pending[e.Filename]; queued {
		w.pending[e.Filename] = e.Kind
		return true
	}

	select {
	case w.queue <- e.Filename:
		w.pending[e.Filename] = e.Kind
		return true
	default:
		slog.Warn("Sync queue full, dropping event", "file", e.Filename, "event", e.Kind)
		return false
	}
}

// Start processes events until ctx is cancelled. A corrupt state or an
// embedding model mismatch stops the worker.
func (w *SyncWorker) Start(ctx context.Context) error {
	slog.Info("Sync worker started", "max_retries", w.maxRetries)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sync worker stopped")
			return ctx.Err()
		case name := <-w.queue:
			w.mu.Lock()
			e := watcher.Event{Filename: name, Kind: w.pending[name]}
			delete(w.pending, name)
			w.mu.Unlock()

			if err := w.process(ctx, e); err != nil {
				return err
			}
		}
	}
}

// process handles one event, returning only errors that must stop the worker
func (w *SyncWorker) process(ctx context.Context, e watcher.Event) error {
	var err error
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		err = w.apply(ctx, e)
		if err == nil || !retryable(err) || ctx.Err() != nil {
			break
		}
		slog.Warn("Sync failed, will retry", "file", e.Filename, "retry", attempt, "max_retries", w.maxRetries, "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.retryDelay):
		}
	}

	switch {
	case err == nil, ctx.Err() != nil:
		return nil
	case errors.Is(err, domain.ErrCorruptState), errors.Is(err, domain.ErrModelMismatch):
		return err
	default:
		slog.Error("Sync failed permanently", "file", e.Filename, "error", err)
		return nil
	}
}

func (w *SyncWorker) apply(ctx context.Context, e watcher.Event) error {
	if e.Kind == watcher.Removed {
		if !w.pruneMissing {
			slog.Debug("Ignoring removed file", "file", e.Filename)
			return nil
		}
		st, err := w.syncer.LoadState()
		if err != nil {
			return err
		}
		return w.syncer.RemoveDocument(ctx, st, e.Filename)
	}

	report, err := w.syncer.SyncFile(ctx, e.Filename)
	if report != nil && w.onReport != nil && err == nil {
		w.onReport(report)
	}
	return err
}

// retryable reports whether err may go away on its own, such as a file that
// is still being written or renamed away
func retryable(err error) bool {
	return errors.Is(err, domain.ErrIO) && !errors.Is(err, domain.ErrCorruptState)
}
