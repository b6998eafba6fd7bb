// Package neo4j implements the graph store on Neo4j, using a native vector
// index over chunk embeddings.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/wouteroostervld/kgrag/pkg/domain"
)

// Config for the Neo4j store
type Config struct {
	URI                   string
	Username              string
	Password              string
	Database              string // empty selects the server default
	IndexName             string
	Dimension             int
	MaxConnectionPoolSize int
	ConnectionTimeout     time.Duration
	ConnectRetries        int
}

const DefaultIndexName = "chunk_embedding"

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("neo4j URI is required")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Dimension)
	}
	if !identifierRe.MatchString(c.IndexName) {
		return fmt.Errorf("invalid index name %q", c.IndexName)
	}
	return nil
}

// Store implements the graph store contract on Neo4j
type Store struct {
	config Config
	driver neo4j.DriverWithContext
}

// Open connects to Neo4j with exponential backoff and ensures the schema.
func Open(ctx context.Context, config Config) (*Store, error) {
	if config.IndexName == "" {
		config.IndexName = DefaultIndexName
	}
	if config.MaxConnectionPoolSize == 0 {
		config.MaxConnectionPoolSize = 10
	}
	if config.ConnectionTimeout == 0 {
		config.ConnectionTimeout = 30 * time.Second
	}
	if config.ConnectRetries == 0 {
		config.ConnectRetries = 5
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	auth := neo4j.NoAuth()
	if config.Username != "" {
		auth = neo4j.BasicAuth(config.Username, config.Password, "")
	}
	driverConfig := func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = config.MaxConnectionPoolSize
		c.ConnectionAcquisitionTimeout = config.ConnectionTimeout
	}

	var lastErr error
	baseDelay := 100 * time.Millisecond
	for attempt := 0; attempt < config.ConnectRetries; attempt++ {
		driver, err := neo4j.NewDriverWithContext(config.URI, auth, driverConfig)
		if err == nil {
			err = driver.VerifyConnectivity(ctx)
			if err == nil {
				s := &Store{config: config, driver: driver}
				if err := s.ensureSchema(ctx); err != nil {
					_ = driver.Close(ctx)
					return nil, err
				}
				return s, nil
			}
			_ = driver.Close(ctx)
		}
		lastErr = err

		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > config.ConnectionTimeout {
			delay = config.ConnectionTimeout
		}
		slog.Debug("Neo4j not reachable, retrying", "uri", config.URI, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to neo4j: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("failed to connect to neo4j after %d attempts: %w", config.ConnectRetries, lastErr)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE CONSTRAINT chunk_id IF NOT EXISTS FOR (c:Chunk) REQUIRE c.id IS UNIQUE`,
		`CREATE INDEX chunk_source_file IF NOT EXISTS FOR (c:Chunk) ON (c.source_file)`,
		`CREATE INDEX entity_name_source IF NOT EXISTS FOR (e:Entity) ON (e.name, e.source_file)`,
		vectorIndexStatement(s.config.IndexName, s.config.Dimension),
	}
	for _, stmt := range statements {
		if _, err := s.execute(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	dim, err := s.indexDimension(ctx)
	if err != nil {
		return err
	}
	if dim != 0 && dim != s.config.Dimension {
		return fmt.Errorf("vector index %s has dimension %d, configured %d", s.config.IndexName, dim, s.config.Dimension)
	}

	if _, err := s.execute(ctx, `CALL db.awaitIndex($name, 300)`, map[string]any{"name": s.config.IndexName}); err != nil {
		return fmt.Errorf("failed waiting for vector index: %w", err)
	}
	return nil
}

func vectorIndexStatement(name string, dim int) string {
	return fmt.Sprintf("CREATE VECTOR INDEX `%s` IF NOT EXISTS FOR (c:Chunk) ON (c.embedding) "+
		"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}", name, dim)
}

// indexDimension returns the dimension of the existing vector index, 0 if unknown
func (s *Store) indexDimension(ctx context.Context) (int, error) {
	res, err := s.execute(ctx,
		`SHOW INDEXES YIELD name, options WHERE name = $name RETURN options`,
		map[string]any{"name": s.config.IndexName})
	if err != nil {
		return 0, fmt.Errorf("failed to inspect vector index: %w", err)
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	opts, _ := res.Records[0].Get("options")
	return dimensionFromOptions(opts), nil
}

func dimensionFromOptions(v any) int {
	opts, ok := v.(map[string]any)
	if !ok {
		return 0
	}
	cfg, ok := opts["indexConfig"].(map[string]any)
	if !ok {
		return 0
	}
	switch d := cfg["vector.dimensions"].(type) {
	case int64:
		return int(d)
	case float64:
		return int(d)
	}
	return 0
}

func (s *Store) execute(ctx context.Context, cypher string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.config.Database))
}

func (s *Store) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.config.Database})
}

// deleteBySourceQueries remove a document's nodes one label at a time, so
// each lookup goes through that label's source_file index.
var deleteBySourceQueries = []string{
	`MATCH (c:Chunk {source_file: $source}) DETACH DELETE c`,
	`MATCH (e:Entity {source_file: $source}) DETACH DELETE e`,
}

// DeleteBySource removes every node tagged with source, with its relationships.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int64, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var deleted int64
		for _, query := range deleteBySourceQueries {
			res, err := tx.Run(ctx, query, map[string]any{"source": source})
			if err != nil {
				return nil, err
			}
			summary, err := res.Consume(ctx)
			if err != nil {
				return nil, err
			}
			deleted += int64(summary.Counters().NodesDeleted())
		}
		return deleted, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete nodes for %s: %w", source, err)
	}
	return result.(int64), nil
}

const upsertChunkQuery = `
MERGE (c:Chunk {id: $id})
SET c.source_file = $source, c.chunk_index = $index, c.text = $text, c.embedding = $embedding
WITH c
OPTIONAL MATCH (c)-[m:MENTIONS]->()
DELETE m`

// Entities are keyed by (name, source_file) so deleting a document never
// leaves relationships pointing at nodes owned by another document.
const insertTriplesQuery = `
MATCH (c:Chunk {id: $id})
UNWIND $triples AS t
MERGE (s:Entity {name: t.subject, source_file: $source})
  ON CREATE SET s.type = t.subject_type
MERGE (o:Entity {name: t.object, source_file: $source})
  ON CREATE SET o.type = t.object_type
MERGE (c)-[:MENTIONS]->(s)
MERGE (c)-[:MENTIONS]->(o)
MERGE (s)-[r:RELATION {label: t.relation, source_file: $source, chunk_id: $id}]->(o)`

// Insert upserts one chunk with its entities and relations in a single transaction.
func (s *Store) Insert(ctx context.Context, doc domain.Document) error {
	if doc.ID == "" || doc.SourceFile == "" {
		return fmt.Errorf("chunk ID and source file are required")
	}
	if len(doc.Embedding) != s.config.Dimension {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(doc.Embedding), s.config.Dimension)
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, upsertChunkQuery, map[string]any{
			"id":        doc.ID,
			"source":    doc.SourceFile,
			"index":     doc.Index,
			"text":      doc.Text,
			"embedding": toFloat64s(doc.Embedding),
		})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if len(doc.Triples) == 0 {
			return nil, nil
		}
		res, err = tx.Run(ctx, insertTriplesQuery, map[string]any{
			"id":      doc.ID,
			"source":  doc.SourceFile,
			"triples": tripleParams(doc.Triples),
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to insert chunk %s: %w", doc.ID, err)
	}
	return nil
}

const searchQuery = `
CALL db.index.vector.queryNodes($index, $k, $embedding) YIELD node, score
OPTIONAL MATCH (node)-[:MENTIONS]->(s:Entity)-[r:RELATION]->(o:Entity)
WHERE r.chunk_id = node.id
WITH node, score, collect(DISTINCT CASE WHEN r IS NULL THEN NULL ELSE
  {subject: s.name, subject_type: s.type, relation: r.label, object: o.name, object_type: o.type} END) AS triples
RETURN node.id AS id, node.source_file AS source_file, node.text AS text, score, triples
ORDER BY score DESC`

// Search runs a top-k vector query and attaches the triples of each chunk.
func (s *Store) Search(ctx context.Context, embedding []float32, k int) ([]domain.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(embedding) != s.config.Dimension {
		return nil, fmt.Errorf("query dimension mismatch: got %d, want %d", len(embedding), s.config.Dimension)
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, searchQuery, map[string]any{
			"index":     s.config.IndexName,
			"k":         k,
			"embedding": toFloat64s(embedding),
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		matches := make([]domain.Match, 0, len(records))
		for _, rec := range records {
			matches = append(matches, matchFromRecord(rec))
		}
		return matches, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return result.([]domain.Match), nil
}

const statsQuery = `
CALL { MATCH (c:Chunk) RETURN count(c) AS chunks }
CALL { MATCH (e:Entity) RETURN count(e) AS entities }
CALL { MATCH ()-[r:RELATION]->() RETURN count(r) AS relations }
RETURN chunks, entities, relations`

// Stats counts chunks, entities and relations
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	res, err := s.execute(ctx, statsQuery, nil)
	if err != nil {
		return domain.StoreStats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	if len(res.Records) == 0 {
		return domain.StoreStats{}, nil
	}
	rec := res.Records[0]
	return domain.StoreStats{
		Chunks:    asInt64(rec, "chunks"),
		Entities:  asInt64(rec, "entities"),
		Relations: asInt64(rec, "relations"),
	}, nil
}

// HealthCheck verifies connectivity and that the vector index still has the
// configured dimension.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.driver == nil {
		return fmt.Errorf("neo4j store is closed")
	}
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j not reachable: %w", err)
	}
	dim, err := s.indexDimension(ctx)
	if err != nil {
		return err
	}
	if dim == 0 {
		return fmt.Errorf("vector index %s not found", s.config.IndexName)
	}
	if dim != s.config.Dimension {
		return fmt.Errorf("vector index %s has dimension %d, configured %d", s.config.IndexName, dim, s.config.Dimension)
	}
	return nil
}

// Close releases the driver
func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func tripleParams(triples []domain.Triple) []map[string]any {
	out := make([]map[string]any, 0, len(triples))
	for _, t := range triples {
		out = append(out, map[string]any{
			"subject":      t.Subject,
			"subject_type": t.SubjectType,
			"relation":     t.Relation,
			"object":       t.Object,
			"object_type":  t.ObjectType,
		})
	}
	return out
}

func matchFromRecord(rec *neo4j.Record) domain.Match {
	m := domain.Match{
		ChunkID:    asString(rec, "id"),
		SourceFile: asString(rec, "source_file"),
		Text:       asString(rec, "text"),
	}
	if v, ok := rec.Get("score"); ok {
		if f, ok := v.(float64); ok {
			m.Score = f
		}
	}
	if v, ok := rec.Get("triples"); ok {
		m.Triples = triplesFromValue(v)
	}
	return m
}

func triplesFromValue(v any) []domain.Triple {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []domain.Triple
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		str := func(key string) string {
			s, _ := m[key].(string)
			return s
		}
		out = append(out, domain.Triple{
			Subject:     str("subject"),
			SubjectType: str("subject_type"),
			Relation:    str("relation"),
			Object:      str("object"),
			ObjectType:  str("object_type"),
		})
	}
	return out
}

func asString(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func asInt64(rec *neo4j.Record, key string) int64 {
	v, _ := rec.Get(key)
	n, _ := v.(int64)
	return n
}
