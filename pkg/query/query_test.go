package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wouteroostervld/kgrag/pkg/domain"
	"github.com/wouteroostervld/kgrag/pkg/graph"
	"github.com/wouteroostervld/kgrag/pkg/llm"
)

const dim = 64

func seededStore(t *testing.T) *graph.MemoryStore {
	t.Helper()
	store := graph.NewMemoryStore(dim)
	docs := []domain.Document{
		{
			Chunk: domain.Chunk{ID: "v0", SourceFile: "vikings.json", Text: "The Vikings raided the monastery at Lindisfarne in 793. " +
				"Viking longships crossed the North Sea and the Vikings settled in Normandy."},
			Triples: []domain.Triple{{Subject: "Vikings", Relation: "raided", Object: "Lindisfarne"}},
		},
		{Chunk: domain.Chunk{ID: "f0", SourceFile: "franks.json", Text: "Charlemagne was crowned emperor of the Franks."}},
		{Chunk: domain.Chunk{ID: "b0", SourceFile: "bakery.json", Text: "Sourdough bread needs a starter."}},
		{Chunk: domain.Chunk{ID: "c0", SourceFile: "cats.json", Text: "Cats sleep most of the day."}},
	}
	for _, d := range docs {
		d.Embedding = llm.HashVector(d.Text, dim)
		require.NoError(t, store.Insert(context.Background(), d))
	}
	return store
}

func TestAnswer_VikingsScenario(t *testing.T) {
	gen := llm.NewMockGenerator("The Vikings raided Lindisfarne in 793.")
	f, err := New(Config{}, seededStore(t), llm.NewMockEmbedder("test-embed", dim), gen, "test-embed")
	require.NoError(t, err)

	ans := f.Answer(context.Background(), "When did the Vikings raid Lindisfarne?")
	require.False(t, ans.Failed(), "unexpected error: %v", ans.Err)

	assert.NotEmpty(t, ans.Text)
	assert.Positive(t, ans.Elapsed)
	require.Len(t, ans.Sources, DefaultTopK)
	assert.Equal(t, "vikings.json", ans.Sources[0].SourceFile)
	assert.Contains(t, ans.Sources[0].Text, "Vikings")
	assert.LessOrEqual(t, len([]rune(ans.Sources[0].Snippet)), DefaultSnippetLength+3)
	assert.True(t, strings.HasSuffix(ans.Sources[0].Snippet, "..."))

	call, ok := gen.LastCall()
	require.True(t, ok)
	assert.Contains(t, call.Prompt, "Query: When did the Vikings raid Lindisfarne?")
	assert.Contains(t, call.Prompt, "source_file: vikings.json")
	assert.Contains(t, call.Prompt, "(Vikings) -[raided]-> (Lindisfarne)")
	assert.NotEmpty(t, call.System)
}

func TestAnswer_EmptyIndex(t *testing.T) {
	gen := llm.NewMockGenerator("should not be called")
	f, err := New(Config{}, graph.NewMemoryStore(dim), llm.NewMockEmbedder("m", dim), gen, "m")
	require.NoError(t, err)

	ans := f.Answer(context.Background(), "Who was Rollo?")
	require.False(t, ans.Failed())
	assert.Equal(t, EmptyResponse, ans.Text)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, gen.CallCount())
}

func TestAnswer_ErrorsAreReported(t *testing.T) {
	store := seededStore(t)

	t.Run("embedding", func(t *testing.T) {
		emb := llm.NewMockEmbedder("m", dim)
		emb.SetError(llm.ErrMockEmbed)
		f, err := New(Config{}, store, emb, llm.NewMockGenerator("x"), "m")
		require.NoError(t, err)

		ans := f.Answer(context.Background(), "Who were the Vikings?")
		require.True(t, ans.Failed())
		assert.ErrorIs(t, ans.Err, domain.ErrQuery)
		assert.ErrorIs(t, ans.Err, llm.ErrMockEmbed)
		assert.Empty(t, ans.Text)
	})

	t.Run("synthesis", func(t *testing.T) {
		gen := llm.NewMockGenerator("")
		gen.SetError(llm.ErrMockGenerate)
		f, err := New(Config{}, store, llm.NewMockEmbedder("m", dim), gen, "m")
		require.NoError(t, err)

		ans := f.Answer(context.Background(), "Who were the Vikings?")
		require.True(t, ans.Failed())
		assert.ErrorIs(t, ans.Err, domain.ErrQuery)
	})

	t.Run("session continues", func(t *testing.T) {
		gen := llm.NewMockGenerator("")
		calls := 0
		gen.GenerateFunc = func(ctx context.Context, prompt, system string) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("timeout")
			}
			return "Rollo", nil
		}
		f, err := New(Config{}, store, llm.NewMockEmbedder("m", dim), gen, "m")
		require.NoError(t, err)

		assert.True(t, f.Answer(context.Background(), "first?").Failed())
		second := f.Answer(context.Background(), "second?")
		require.False(t, second.Failed())
		assert.Equal(t, "Rollo", second.Text)
	})

	t.Run("panicking generator", func(t *testing.T) {
		gen := llm.NewMockGenerator("")
		calls := 0
		gen.GenerateFunc = func(ctx context.Context, prompt, system string) (string, error) {
			calls++
			if calls == 1 {
				panic("nil response body")
			}
			return "Rollo", nil
		}
		f, err := New(Config{}, store, llm.NewMockEmbedder("m", dim), gen, "m")
		require.NoError(t, err)

		first := f.Answer(context.Background(), "first?")
		require.True(t, first.Failed())
		assert.ErrorIs(t, first.Err, domain.ErrQuery)
		assert.Contains(t, first.Err.Error(), "nil response body")
		assert.Equal(t, "first?", first.Question)

		second := f.Answer(context.Background(), "second?")
		require.False(t, second.Failed())
		assert.Equal(t, "Rollo", second.Text)
	})

	t.Run("empty question", func(t *testing.T) {
		f, err := New(Config{}, store, llm.NewMockEmbedder("m", dim), llm.NewMockGenerator("x"), "m")
		require.NoError(t, err)
		assert.ErrorIs(t, f.Answer(context.Background(), "  ").Err, domain.ErrQuery)
	})
}

func TestNew_ModelCheck(t *testing.T) {
	store := graph.NewMemoryStore(dim)
	gen := llm.NewMockGenerator("x")

	_, err := New(Config{}, store, llm.NewMockEmbedder("nomic-embed-text", dim), gen, "mxbai-embed-large")
	assert.ErrorIs(t, err, domain.ErrModelMismatch)

	_, err = New(Config{}, store, llm.NewMockEmbedder("nomic-embed-text", dim), gen, "")
	assert.NoError(t, err)
}

func TestNew_CustomTopK(t *testing.T) {
	f, err := New(Config{TopK: 1, SnippetLength: 10}, seededStore(t), llm.NewMockEmbedder("m", dim), llm.NewMockGenerator("ok"), "m")
	require.NoError(t, err)

	ans := f.Answer(context.Background(), "Vikings")
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "The Viking...", ans.Sources[0].Snippet)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  string
	}{
		{"short", 10, "short"},
		{"exact length", 12, "exact length"},
		{"this is a very long string", 10, "this is a ..."},
		{"Normandië ligt in Frankrijk", 9, "Normandië..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.input, tt.n), "Truncate(%q, %d)", tt.input, tt.n)
	}
}

func TestBuildContext(t *testing.T) {
	matches := []domain.Match{
		{SourceFile: "normans.json", Text: " Rollo founded Normandy. ",
			Triples: []domain.Triple{{Subject: "Rollo", Relation: "founded", Object: "Normandy"}}},
		{SourceFile: "franks.json", Text: "Charlemagne ruled."},
	}

	full := BuildContext(matches, true)
	assert.Equal(t, "source_file: normans.json\n\nRollo founded Normandy.\n\nKnowledge graph:\n(Rollo) -[founded]-> (Normandy)"+
		"\n\nsource_file: franks.json\n\nCharlemagne ruled.", full)

	triplesOnly := BuildContext(matches, false)
	assert.NotContains(t, triplesOnly, "Charlemagne")
	assert.Contains(t, triplesOnly, "(Rollo) -[founded]-> (Normandy)")
}
