package db

// Schema version for compatibility checks
const SchemaVersion = "1.0.0"

// DDL statements for database initialization
const (
	// Meta table stores configuration and version info
	CreateMetaTable = `
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

	// Chunks table holds chunk text; every row is tagged with its source file
	CreateChunksTable = `
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chunk_key TEXT UNIQUE NOT NULL,
    source_file TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    content TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

	CreateChunksSourceIndex = `
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_file);`

	// Vec_chunks virtual table for vector similarity search
	// Note: Dimension must be specified at creation time
	CreateVecChunksTableTemplate = `
CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding FLOAT[%d] distance_metric=cosine
);`

	// Entities are scoped to the source file that mentions them
	CreateEntitiesTable = `
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    entity_type TEXT NOT NULL DEFAULT '',
    source_file TEXT NOT NULL,
    UNIQUE(name, source_file)
);`

	// Index for fast entity lookups by name
	CreateEntitiesNameIndex = `
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);`

	CreateEntitiesSourceIndex = `
CREATE INDEX IF NOT EXISTS idx_entities_source ON entities(source_file);`

	// Graph edges table stores knowledge graph relations between entities
	// Note: Cannot use FK to vec_chunks (virtual table) - causes "malformed" errors
	CreateGraphEdgesTable = `
CREATE TABLE IF NOT EXISTS graph_edges (
    source_entity_id INTEGER NOT NULL,
    target_entity_id INTEGER NOT NULL,
    relation_type TEXT NOT NULL,
    chunk_id INTEGER NOT NULL,
    source_file TEXT NOT NULL,
    PRIMARY KEY (source_entity_id, target_entity_id, relation_type, chunk_id),
    FOREIGN KEY(source_entity_id) REFERENCES entities(id) ON DELETE CASCADE,
    FOREIGN KEY(target_entity_id) REFERENCES entities(id) ON DELETE CASCADE,
    FOREIGN KEY(chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
);`

	// Index for finding all edges from a source entity
	CreateGraphSourceIndex = `
CREATE INDEX IF NOT EXISTS idx_graph_source ON graph_edges(source_entity_id);`

	// Index for finding all edges to a target entity
	CreateGraphTargetIndex = `
CREATE INDEX IF NOT EXISTS idx_graph_target ON graph_edges(target_entity_id);`

	CreateGraphChunkIndex = `
CREATE INDEX IF NOT EXISTS idx_graph_chunk ON graph_edges(chunk_id);`

	// Enable WAL mode for concurrent reads/writes
	EnableWALMode = `PRAGMA journal_mode=WAL;`

	// Set reasonable WAL checkpoint parameters
	SetWALCheckpoint = `PRAGMA wal_autocheckpoint=1000;`

	// Enable foreign key constraints
	EnableForeignKeys = `PRAGMA foreign_keys=ON;`
)

// MetaKeys are standard keys stored in the meta table
const (
	MetaKeySchemaVersion = "schema_version"
	MetaKeyCreatedAt     = "created_at"
	MetaKeyEmbeddingDim  = "embedding_dimension"
)
