package neo4j

import (
	"context"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wouteroostervld/kgrag/pkg/domain"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{URI: "bolt://localhost:7687", IndexName: "chunk_embedding", Dimension: 768}, false},
		{"missing uri", Config{IndexName: "idx", Dimension: 768}, true},
		{"zero dimension", Config{URI: "bolt://x", IndexName: "idx"}, true},
		{"injection in index name", Config{URI: "bolt://x", IndexName: "idx` DROP", Dimension: 3}, true},
		{"empty index name", Config{URI: "bolt://x", Dimension: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), Config{URI: "bolt://localhost:7687"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestVectorIndexStatement(t *testing.T) {
	stmt := vectorIndexStatement("chunk_embedding", 768)
	assert.Contains(t, stmt, "CREATE VECTOR INDEX `chunk_embedding` IF NOT EXISTS")
	assert.Contains(t, stmt, "`vector.dimensions`: 768")
	assert.Contains(t, stmt, "'cosine'")
}

func TestDeleteBySourceQueries_UseLabelledLookups(t *testing.T) {
	// Every label written with a source_file tag has to be covered, and
	// each lookup must name its label so the source_file index applies.
	want := map[string]bool{"Chunk": false, "Entity": false}
	for _, q := range deleteBySourceQueries {
		assert.NotContains(t, q, "MATCH (n)")
		assert.Contains(t, q, "{source_file: $source}")
		for label := range want {
			if strings.Contains(q, ":"+label+" ") {
				want[label] = true
			}
		}
	}
	for label, covered := range want {
		assert.True(t, covered, "no delete query for %s nodes", label)
	}
}

func TestDimensionFromOptions(t *testing.T) {
	opts := map[string]any{
		"indexConfig": map[string]any{"vector.dimensions": int64(384)},
	}
	assert.Equal(t, 384, dimensionFromOptions(opts))
	assert.Equal(t, 0, dimensionFromOptions(nil))
	assert.Equal(t, 0, dimensionFromOptions(map[string]any{}))
}

func TestTripleParams(t *testing.T) {
	params := tripleParams([]domain.Triple{
		{Subject: "Rollo", SubjectType: "PERSON", Relation: "ruled", Object: "Normandy", ObjectType: "PLACE"},
	})
	require.Len(t, params, 1)
	assert.Equal(t, "Rollo", params[0]["subject"])
	assert.Equal(t, "ruled", params[0]["relation"])
	assert.Equal(t, "PLACE", params[0]["object_type"])
}

func TestMatchFromRecord(t *testing.T) {
	rec := &neo4j.Record{
		Keys: []string{"id", "source_file", "text", "score", "triples"},
		Values: []any{
			"c1", "doc1.json", "The Vikings sailed.", 0.92,
			[]any{
				map[string]any{"subject": "Vikings", "subject_type": "ORGANIZATION", "relation": "sailed to", "object": "England", "object_type": "PLACE"},
			},
		},
	}

	m := matchFromRecord(rec)
	assert.Equal(t, "c1", m.ChunkID)
	assert.Equal(t, "doc1.json", m.SourceFile)
	assert.Equal(t, "The Vikings sailed.", m.Text)
	assert.InDelta(t, 0.92, m.Score, 1e-9)
	require.Len(t, m.Triples, 1)
	assert.Equal(t, "England", m.Triples[0].Object)
}

func TestToFloat64s(t *testing.T) {
	assert.Equal(t, []float64{0.5, -2}, toFloat64s([]float32{0.5, -2}))
}
