package indexer

import (
	"fmt"
	"time"

	"github.com/wouteroostervld/kgrag/pkg/filter"
)

// Config holds sync configuration
type Config struct {
	InputDir       string
	Rules          filter.Rules
	PruneMissing   bool   // Purge documents that disappeared from InputDir
	CreateDir      bool   // Create InputDir when missing
	EmbeddingModel string // Recorded in the sync state
}

// DocumentStatus is the outcome of syncing one document
type DocumentStatus string

const (
	StatusUnchanged   DocumentStatus = "unchanged"
	StatusReprocessed DocumentStatus = "reprocessed"
	StatusFailed      DocumentStatus = "failed"
)

// ChunkResult is the outcome of inserting one chunk. A nil Err means Ok.
type ChunkResult struct {
	Index int
	ID    string
	Err   error
}

// Ok reports whether the chunk was stored
func (r ChunkResult) Ok() bool {
	return r.Err == nil
}

func (r ChunkResult) String() string {
	if r.Ok() {
		return fmt.Sprintf("chunk %d: ok", r.Index)
	}
	return fmt.Sprintf("chunk %d: failed: %v", r.Index, r.Err)
}

// DocumentReport aggregates the chunk results of one document
type DocumentReport struct {
	Filename    string
	Hash        string
	Status      DocumentStatus
	Purged      bool
	PurgedNodes int64
	Chunks      []ChunkResult
	Err         error // set when Status is StatusFailed
	Duration    time.Duration
}

// Inserted counts successfully stored chunks
func (r *DocumentReport) Inserted() int {
	n := 0
	for _, c := range r.Chunks {
		if c.Ok() {
			n++
		}
	}
	return n
}

// FailedChunks returns the chunks that could not be stored
func (r *DocumentReport) FailedChunks() []ChunkResult {
	var failed []ChunkResult
	for _, c := range r.Chunks {
		if !c.Ok() {
			failed = append(failed, c)
		}
	}
	return failed
}

// SyncSummary is the result of a directory sync
type SyncSummary struct {
	Documents   []*DocumentReport
	Reprocessed int
	Skipped     int
	Failed      int
	Pruned      []string
	Duration    time.Duration
}

func (s *SyncSummary) add(r *DocumentReport) {
	s.Documents = append(s.Documents, r)
	switch r.Status {
	case StatusReprocessed:
		s.Reprocessed++
	case StatusUnchanged:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}
