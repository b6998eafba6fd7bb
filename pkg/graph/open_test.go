package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendFor(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"bolt://localhost:7687", BackendNeo4j, false},
		{"neo4j+s://db.example.com", BackendNeo4j, false},
		{"sqlite:///var/lib/kgrag.db", BackendSQLite, false},
		{"./data/kgrag.db", BackendSQLite, false},
		{"/abs/kgrag.db", BackendSQLite, false},
		{"memory://", BackendMemory, false},
		{"postgres://localhost", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := BackendFor(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSqlitePath(t *testing.T) {
	assert.Equal(t, "/var/lib/kgrag.db", sqlitePath("sqlite:///var/lib/kgrag.db"))
	assert.Equal(t, "rel/kgrag.db", sqlitePath("sqlite://rel/kgrag.db"))
	assert.Equal(t, "kgrag.db", sqlitePath("kgrag.db"))
}

func TestOpen_MemoryAndSQLite(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{URI: "memory://", Dimension: 4})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	assert.NoError(t, CheckHealth(ctx, s))
	require.NoError(t, s.Close(ctx))

	path := filepath.Join(t.TempDir(), "kgrag.db")
	s, err = Open(ctx, Options{URI: "sqlite://" + path, Dimension: 4})
	require.NoError(t, err)
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
	assert.NoError(t, CheckHealth(ctx, s))
	require.NoError(t, s.Close(ctx))
	assert.Error(t, CheckHealth(ctx, s), "closed store should report unhealthy")
}
