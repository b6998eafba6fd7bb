// Package indexer keeps the graph store in step with a directory of
// documents. Each run hashes every eligible file, skips the unchanged ones,
// purges and re-inserts the changed ones, and records progress file by file.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wouteroostervld/kgrag/pkg/chunker"
	"github.com/wouteroostervld/kgrag/pkg/domain"
	"github.com/wouteroostervld/kgrag/pkg/graph"
	"github.com/wouteroostervld/kgrag/pkg/metrics"
	"github.com/wouteroostervld/kgrag/pkg/state"
)

// cleanupTimeout bounds the purge of a partially synced document, which may
// run after the sync context was cancelled
const cleanupTimeout = 30 * time.Second

// Syncer is the ingestion sync controller
type Syncer struct {
	config   Config
	states   state.Store
	store    graph.Store
	splitter chunker.Splitter
	inserter Inserter
}

// New creates a sync controller. inserter receives every chunk of a changed
// document; store is only used for purging.
func New(cfg Config, states state.Store, store graph.Store, splitter chunker.Splitter, inserter Inserter) *Syncer {
	return &Syncer{
		config:   cfg,
		states:   states,
		store:    store,
		splitter: splitter,
		inserter: inserter,
	}
}

// Config returns the sync configuration
func (s *Syncer) Config() Config {
	return s.config
}

// ComputeHash returns the content digest of filename inside the input directory
func (s *Syncer) ComputeHash(filename string) (string, error) {
	return state.ComputeHash(s.path(filename))
}

// LoadState reads the persisted sync state
func (s *Syncer) LoadState() (*state.State, error) {
	st, err := s.states.Load()
	if err != nil {
		return nil, err
	}
	metrics.TrackedFiles.Set(float64(len(st.Files)))
	return st, nil
}

// SaveState persists st, overwriting the previous record
func (s *Syncer) SaveState(st *state.State) error {
	if err := s.states.Save(st); err != nil {
		return err
	}
	metrics.TrackedFiles.Set(float64(len(st.Files)))
	return nil
}

// PurgeDocument deletes every node tagged with filename and returns how many
// were removed.
func (s *Syncer) PurgeDocument(ctx context.Context, filename string) (int64, error) {
	deleted, err := s.store.DeleteBySource(ctx, filename)
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s: %w", filename, err)
	}
	metrics.PurgedNodesTotal.Add(float64(deleted))
	slog.Info("Purged stale nodes", "file", filename, "deleted", deleted)
	return deleted, nil
}

// SyncOne brings a single document up to date and records its new hash in st.
// Chunk failures are reported in the returned report and never abort the
// document. A non-nil error means the document failed as a whole: whatever
// this attempt stored is purged again, and st keeps the old hash only when
// the old nodes were never touched.
func (s *Syncer) SyncOne(ctx context.Context, st *state.State, filename string) (*DocumentReport, error) {
	start := time.Now()
	report := &DocumentReport{Filename: filename}
	fail := func(err error) (*DocumentReport, error) {
		report.Status = StatusFailed
		report.Err = err
		report.Duration = time.Since(start)
		metrics.DocumentsTotal.WithLabelValues(string(StatusFailed)).Inc()
		return report, err
	}

	content, err := os.ReadFile(s.path(filename))
	if err != nil {
		return fail(domain.IOError("read document", s.path(filename), err))
	}
	report.Hash = state.HashBytes(content)

	stored, known := st.Hash(filename)
	if known && stored == report.Hash {
		slog.Info("Skipping unchanged file", "file", filename)
		report.Status = StatusUnchanged
		report.Duration = time.Since(start)
		metrics.DocumentsTotal.WithLabelValues(string(StatusUnchanged)).Inc()
		return report, nil
	}

	if known {
		slog.Info("File changed, reprocessing", "file", filename)
		deleted, err := s.PurgeDocument(ctx, filename)
		if err != nil {
			return fail(err)
		}
		report.Purged = true
		report.PurgedNodes = deleted
	} else {
		slog.Info("Processing new file", "file", filename)
	}

	// From here on the store may hold a partial version of the document.
	// Any failure discards it before returning.
	abandon := func(err error) (*DocumentReport, error) {
		s.discardPartial(ctx, st, filename, known)
		return fail(err)
	}

	parts, err := s.splitter.Split(string(content))
	if err != nil {
		return abandon(fmt.Errorf("failed to split %s: %w", filename, err))
	}
	slog.Debug("Chunking complete", "file", filename, "chunk_count", len(parts))

	for i, text := range parts {
		if err := ctx.Err(); err != nil {
			return abandon(err)
		}

		chunk := domain.Chunk{
			ID:         ChunkID(filename, i, report.Hash),
			SourceFile: filename,
			Index:      i,
			Text:       text,
		}
		result := ChunkResult{Index: i, ID: chunk.ID}
		if err := s.inserter.Insert(ctx, chunk); err != nil {
			result.Err = domain.InsertionError(filename, i, err)
			slog.Error("Failed to insert chunk", "file", filename, "chunk_index", i, "error", err)
			metrics.ChunksTotal.WithLabelValues("failed").Inc()
		} else {
			metrics.ChunksTotal.WithLabelValues("ok").Inc()
		}
		report.Chunks = append(report.Chunks, result)
	}

	if failed := report.FailedChunks(); len(failed) > 0 {
		slog.Warn("Document ingested with failed chunks",
			"file", filename, "inserted", report.Inserted(), "failed", len(failed))
	}

	previousModel := st.EmbeddingModel
	st.Set(filename, report.Hash)
	if s.config.EmbeddingModel != "" {
		st.EmbeddingModel = s.config.EmbeddingModel
	}
	if err := s.SaveState(st); err != nil {
		// Keep the in-memory state consistent with what is on disk
		if known {
			st.Set(filename, stored)
		} else {
			st.Delete(filename)
		}
		st.EmbeddingModel = previousModel
		return abandon(err)
	}

	report.Status = StatusReprocessed
	report.Duration = time.Since(start)
	metrics.DocumentsTotal.WithLabelValues(string(StatusReprocessed)).Inc()
	slog.Info("Document synced", "file", filename, "chunks", len(parts),
		"inserted", report.Inserted(), "duration", report.Duration)
	return report, nil
}

// discardPartial removes what a failed attempt stored for filename. Chunk
// IDs depend on the content hash, so chunks left behind would never be
// overwritten by a later version of the file. A known file whose old nodes
// are gone is dropped from st, so the next run treats it as new instead of
// trusting a hash whose chunks no longer exist.
func (s *Syncer) discardPartial(ctx context.Context, st *state.State, filename string, known bool) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if _, err := s.PurgeDocument(cleanupCtx, filename); err != nil {
		slog.Error("Failed to discard partially synced document", "file", filename, "error", err)
		return
	}
	if !known {
		return
	}
	st.Delete(filename)
	if err := s.SaveState(st); err != nil {
		slog.Error("Failed to drop partially synced document from state", "file", filename, "error", err)
	}
}

// SyncAll syncs every eligible file in the input directory. Per-file failures
// are counted in the summary; only a corrupt or unreadable state, an embedding
// model mismatch, an unreadable directory or cancellation abort the run.
func (s *Syncer) SyncAll(ctx context.Context) (*SyncSummary, error) {
	start := time.Now()
	summary := &SyncSummary{}
	defer func() {
		summary.Duration = time.Since(start)
		metrics.SyncDuration.Observe(summary.Duration.Seconds())
	}()

	created, err := s.ensureInputDir()
	if err != nil {
		return summary, err
	}
	if created {
		return summary, nil
	}

	st, err := s.LoadState()
	if err != nil {
		return summary, err
	}
	if err := s.checkModel(st); err != nil {
		return summary, err
	}

	files, err := s.ListEligible()
	if err != nil {
		return summary, err
	}
	slog.Info("Starting sync", "dir", s.config.InputDir, "files", len(files), "tracked", len(st.Files))

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		report, err := s.SyncOne(ctx, st, name)
		summary.add(report)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			slog.Error("Failed to sync file", "file", name, "error", err)
		}
	}

	if s.config.PruneMissing {
		pruned, err := s.pruneMissing(ctx, st, files)
		summary.Pruned = pruned
		if err != nil {
			return summary, err
		}
	}

	slog.Info("Sync complete", "processed", summary.Reprocessed, "skipped", summary.Skipped,
		"failed", summary.Failed, "pruned", len(summary.Pruned))
	return summary, nil
}

// SyncFile loads the state and syncs a single document. It is the entry
// point for event driven syncs, where each file is its own run.
func (s *Syncer) SyncFile(ctx context.Context, filename string) (*DocumentReport, error) {
	st, err := s.LoadState()
	if err != nil {
		return nil, err
	}
	if err := s.checkModel(st); err != nil {
		return nil, err
	}
	return s.SyncOne(ctx, st, filename)
}

// RemoveDocument purges a document that left the input directory and drops
// it from st. Untracked files are ignored.
func (s *Syncer) RemoveDocument(ctx context.Context, st *state.State, filename string) error {
	if _, ok := st.Hash(filename); !ok {
		return nil
	}
	if _, err := s.PurgeDocument(ctx, filename); err != nil {
		return err
	}
	st.Delete(filename)
	if err := s.SaveState(st); err != nil {
		return err
	}
	slog.Info("Removed document", "file", filename)
	return nil
}

// ListEligible returns the eligible filenames in the input directory, sorted.
// Subdirectories are not descended into.
func (s *Syncer) ListEligible() ([]string, error) {
	entries, err := os.ReadDir(s.config.InputDir)
	if err != nil {
		return nil, domain.IOError("list input directory", s.config.InputDir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := s.config.Rules.Eligible(s.path(entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to filter %s: %w", entry.Name(), err)
		}
		if ok {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// ChunkID derives a stable identifier for chunk index of one document version
func ChunkID(filename string, index int, hash string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d@%s", filename, index, hash))).String()
}

func (s *Syncer) path(filename string) string {
	return filepath.Join(s.config.InputDir, filename)
}

// ensureInputDir reports whether the input directory had to be created
func (s *Syncer) ensureInputDir() (bool, error) {
	_, err := os.Stat(s.config.InputDir)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) || !s.config.CreateDir {
		return false, domain.IOError("stat input directory", s.config.InputDir, err)
	}
	if err := os.MkdirAll(s.config.InputDir, 0o755); err != nil {
		return false, domain.IOError("create input directory", s.config.InputDir, err)
	}
	slog.Info("Created input directory, add documents and run sync again", "dir", s.config.InputDir)
	return true, nil
}

// checkModel refuses to mix embeddings of different models in one index.
// States written before the model was recorded adopt the configured one.
func (s *Syncer) checkModel(st *state.State) error {
	want := s.config.EmbeddingModel
	if want == "" || st.EmbeddingModel == want {
		return nil
	}
	if st.EmbeddingModel == "" {
		if len(st.Files) > 0 {
			slog.Warn("Sync state has no embedding model, assuming the configured one", "model", want)
		}
		return nil
	}
	return domain.ModelMismatchError(st.EmbeddingModel, want)
}

func (s *Syncer) pruneMissing(ctx context.Context, st *state.State, present []string) ([]string, error) {
	onDisk := make(map[string]struct{}, len(present))
	for _, name := range present {
		onDisk[name] = struct{}{}
	}

	var pruned []string
	for _, name := range st.Filenames() {
		if _, ok := onDisk[name]; ok {
			continue
		}
		if err := s.RemoveDocument(ctx, st, name); err != nil {
			if errors.Is(err, domain.ErrIO) {
				return pruned, err
			}
			slog.Error("Failed to prune missing file", "file", name, "error", err)
			continue
		}
		pruned = append(pruned, name)
	}
	return pruned, nil
}
