package chunker

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// Strategies
const (
	StrategyRecursive = "recursive"
	StrategyLines     = "lines"
)

// Defaults for document ingestion.
const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 50
)

// Splitter splits document content into overlapping chunks.
type Splitter interface {
	Split(text string) ([]string, error)
}

// Config holds splitter configuration
type Config struct {
	Strategy string
	Size     int
	Overlap  int
}

// New creates a splitter for the configured strategy.
func New(cfg Config) (Splitter, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.Size)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", cfg.Size, cfg.Overlap)
	}

	switch strings.ToLower(cfg.Strategy) {
	case "", StrategyRecursive:
		return NewRecursive(cfg.Size, cfg.Overlap), nil
	case StrategyLines:
		return NewLines(cfg.Size, cfg.Overlap), nil
	default:
		return nil, fmt.Errorf("unknown chunk strategy: %s", cfg.Strategy)
	}
}

// Recursive splits on paragraph, line and word boundaries in that order,
// counting size in runes.
type Recursive struct {
	splitter textsplitter.RecursiveCharacter
}

// NewRecursive creates a recursive character splitter.
func NewRecursive(size, overlap int) *Recursive {
	return &Recursive{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}
}

// Split implements Splitter.
func (r *Recursive) Split(text string) ([]string, error) {
	parts, err := r.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}
	return dropBlank(parts), nil
}

// Lines splits content into byte-bounded chunks aligned to line boundaries.
// A line longer than the chunk size is cut at the size limit.
type Lines struct {
	size    int
	overlap int
	minSize int
}

// NewLines creates a line-aligned splitter.
func NewLines(size, overlap int) *Lines {
	return &Lines{size: size, overlap: overlap, minSize: 1}
}

// Split implements Splitter.
func (l *Lines) Split(text string) ([]string, error) {
	content := []byte(text)
	n := len(content)

	if len(bytes.TrimSpace(content)) < l.minSize {
		return nil, nil
	}
	if n <= l.size {
		return []string{text}, nil
	}

	var chunks []string
	for start := 0; start < n; {
		end := min(start+l.size, n)
		if end < n {
			// Prefer ending on a newline
			if cut := bytes.LastIndexByte(content[start:end], '\n'); cut > 0 {
				end = start + cut + 1
			} else {
				for end > start+1 && !utf8.RuneStart(content[end]) {
					end--
				}
			}
		}

		if chunk := content[start:end]; len(bytes.TrimSpace(chunk)) >= l.minSize {
			chunks = append(chunks, string(chunk))
		}
		if end >= n {
			break
		}

		next := end - l.overlap
		if next <= start {
			next = end
		}
		// Align the overlap to the start of a line when one is available
		if next < end && content[next-1] != '\n' {
			if i := bytes.IndexByte(content[next:end], '\n'); i >= 0 {
				next += i + 1
			}
		}
		for next < end && !utf8.RuneStart(content[next]) {
			next++
		}
		start = next
	}

	return chunks, nil
}

func dropBlank(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
