// Package query answers questions against an ingested index.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tmc/langchaingo/prompts"

	"github.com/wouteroostervld/kgrag/pkg/domain"
	"github.com/wouteroostervld/kgrag/pkg/graph"
	"github.com/wouteroostervld/kgrag/pkg/llm"
	"github.com/wouteroostervld/kgrag/pkg/metrics"
)

// Defaults
const (
	DefaultTopK          = 3
	DefaultSnippetLength = 100
)

// EmptyResponse is the answer text when nothing relevant was retrieved
const EmptyResponse = "Empty Response"

const systemPrompt = "You are an expert Q&A system that is trusted around the world. " +
	"Always answer the query using the provided context information, and not prior knowledge."

const answerTemplate = `Context information is below.
---------------------
{{.context}}
---------------------
Given the context information and not prior knowledge, answer the query.
Query: {{.question}}
Answer: `

// Config holds query configuration
type Config struct {
	TopK          int  // Chunks retrieved per question
	SnippetLength int  // Characters of source text kept in Source.Snippet
	OmitText      bool // Build the prompt context from triples only
}

// Source is a retrieved chunk backing an answer
type Source struct {
	ChunkID    string
	SourceFile string
	Snippet    string
	Text       string
	Score      float64
	Triples    []domain.Triple
}

// Answer is the result of one question. A failed answer has Err set and
// still carries the elapsed time.
type Answer struct {
	Question string
	Text     string
	Sources  []Source
	Elapsed  time.Duration
	Err      error
}

// Failed reports whether the question could not be answered
func (a Answer) Failed() bool {
	return a.Err != nil
}

// Facade loads nothing itself: it combines an open store with the embedder
// the index was built with and a generator for synthesis.
type Facade struct {
	config    Config
	store     graph.Store
	embedder  llm.Embedder
	generator llm.Generator
	template  prompts.PromptTemplate
}

// New creates a query facade. storedModel is the embedding model recorded at
// ingestion; a different configured model is refused. An empty storedModel
// means the index predates model tracking and is accepted with a warning.
func New(cfg Config, store graph.Store, embedder llm.Embedder, generator llm.Generator, storedModel string) (*Facade, error) {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = DefaultSnippetLength
	}

	switch {
	case storedModel == "":
		slog.Warn("Index has no recorded embedding model, assuming the configured one", "model", embedder.Model())
	case storedModel != embedder.Model():
		return nil, domain.ModelMismatchError(storedModel, embedder.Model())
	}

	return &Facade{
		config:    cfg,
		store:     store,
		embedder:  embedder,
		generator: generator,
		template:  prompts.NewPromptTemplate(answerTemplate, []string{"context", "question"}),
	}, nil
}

// Answer retrieves the closest chunks for question and synthesizes an
// answer from them. Errors are reported in the Answer, never panicked or
// returned, so a session can continue with the next question.
func (f *Facade) Answer(ctx context.Context, question string) Answer {
	start := time.Now()
	ans := f.answer(ctx, question)
	ans.Question = question
	ans.Elapsed = time.Since(start)

	metrics.QueryDuration.Observe(ans.Elapsed.Seconds())
	if ans.Failed() {
		metrics.QueryErrorsTotal.Inc()
		slog.Error("Query failed", "question", question, "error", ans.Err, "elapsed", ans.Elapsed)
	} else {
		slog.Info("Query answered", "sources", len(ans.Sources), "elapsed", ans.Elapsed)
	}
	return ans
}

func (f *Facade) answer(ctx context.Context, question string) (ans Answer) {
	// A panicking backend fails this question only
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic while answering", "panic", r, "stack", string(debug.Stack()))
			ans = Answer{Err: domain.QueryError("answer", fmt.Errorf("panic: %v", r))}
		}
	}()

	if strings.TrimSpace(question) == "" {
		return Answer{Err: domain.QueryError("validate question", fmt.Errorf("question is empty"))}
	}

	embeddings, err := f.embedder.Embed(ctx, []string{question})
	if err != nil {
		return Answer{Err: domain.QueryError("embed question", err)}
	}
	if len(embeddings) != 1 {
		return Answer{Err: domain.QueryError("embed question", fmt.Errorf("expected 1 embedding, got %d", len(embeddings)))}
	}

	matches, err := f.store.Search(ctx, embeddings[0], f.config.TopK)
	if err != nil {
		return Answer{Err: domain.QueryError("retrieve", err)}
	}
	if len(matches) == 0 {
		return Answer{Text: EmptyResponse}
	}

	prompt, err := f.template.Format(map[string]any{
		"context":  BuildContext(matches, !f.config.OmitText),
		"question": question,
	})
	if err != nil {
		return Answer{Err: domain.QueryError("format prompt", err)}
	}

	text, err := f.generator.Generate(ctx, prompt, systemPrompt)
	if err != nil {
		return Answer{Err: domain.QueryError("synthesize", err)}
	}

	sources := make([]Source, len(matches))
	for i, m := range matches {
		sources[i] = Source{
			ChunkID:    m.ChunkID,
			SourceFile: m.SourceFile,
			Snippet:    Truncate(m.Text, f.config.SnippetLength),
			Text:       m.Text,
			Score:      m.Score,
			Triples:    m.Triples,
		}
	}
	return Answer{Text: strings.TrimSpace(text), Sources: sources}
}

// BuildContext renders retrieved chunks and their triples for the prompt
func BuildContext(matches []domain.Match, withText bool) string {
	var sb strings.Builder
	for i, m := range matches {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "source_file: %s", m.SourceFile)
		if withText {
			fmt.Fprintf(&sb, "\n\n%s", strings.TrimSpace(m.Text))
		}
		if len(m.Triples) > 0 {
			sb.WriteString("\n\nKnowledge graph:")
			for _, t := range m.Triples {
				fmt.Fprintf(&sb, "\n(%s) -[%s]-> (%s)", t.Subject, t.Relation, t.Object)
			}
		}
	}
	return sb.String()
}

// Truncate shortens s to at most n runes, appending "..." when cut
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
