package graph

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wouteroostervld/kgrag/pkg/db"
	"github.com/wouteroostervld/kgrag/pkg/graph/neo4j"
)

// Options selects and configures a store backend
type Options struct {
	URI       string // bolt://, neo4j://, neo4j+s://, sqlite://path, memory://, or a file path
	Username  string
	Password  string
	Database  string
	IndexName string
	Dimension int
}

// Backend names
const (
	BackendNeo4j  = "neo4j"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// BackendFor returns the backend serving uri
func BackendFor(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain path, or a Windows drive letter
		if uri == "" {
			return "", fmt.Errorf("store URI is required")
		}
		return BackendSQLite, nil
	}

	switch strings.ToLower(u.Scheme) {
	case "bolt", "bolt+s", "bolt+ssc", "neo4j", "neo4j+s", "neo4j+ssc":
		return BackendNeo4j, nil
	case "sqlite", "file":
		return BackendSQLite, nil
	case "memory":
		return BackendMemory, nil
	default:
		return "", fmt.Errorf("unsupported store scheme: %s", u.Scheme)
	}
}

// Open creates the store for opts.URI
func Open(ctx context.Context, opts Options) (Store, error) {
	backend, err := BackendFor(opts.URI)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendNeo4j:
		s, err := neo4j.Open(ctx, neo4j.Config{
			URI:       opts.URI,
			Username:  opts.Username,
			Password:  opts.Password,
			Database:  opts.Database,
			IndexName: opts.IndexName,
			Dimension: opts.Dimension,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		s, err := db.Open(ctx, db.Config{Path: sqlitePath(opts.URI), EmbeddingDim: opts.Dimension})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return NewMemoryStore(opts.Dimension), nil
	}
}

func sqlitePath(uri string) string {
	for _, prefix := range []string{"sqlite://", "file://", "file:"} {
		if strings.HasPrefix(uri, prefix) {
			return strings.TrimPrefix(uri, prefix)
		}
	}
	return uri
}
