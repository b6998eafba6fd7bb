// Package db implements the graph store on SQLite, using sqlite-vec for
// vector search. It needs no external services.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/wouteroostervld/kgrag/pkg/domain"
)

// DB is a graph store backed by a single SQLite file
type DB struct {
	conn         *sql.DB
	path         string
	embeddingDim int
	vecEnabled   bool
}

// Config holds database configuration
type Config struct {
	Path         string // Database file path
	EmbeddingDim int    // Length of every stored embedding
	SkipVecTable bool   // No vec_chunks table; Search is unavailable
}

// schemaStatements are applied on every open, in order
var schemaStatements = []string{
	CreateMetaTable,
	CreateChunksTable,
	CreateChunksSourceIndex,
	CreateEntitiesTable,
	CreateEntitiesNameIndex,
	CreateEntitiesSourceIndex,
	CreateGraphEdgesTable,
	CreateGraphSourceIndex,
	CreateGraphTargetIndex,
	CreateGraphChunkIndex,
}

// Open opens the store at cfg.Path, creating the file and schema when they
// do not exist. An existing store must have been created with the same
// schema version and embedding dimension.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path cannot be empty")
	}
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.EmbeddingDim)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlite_vec.Auto()
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{
		conn:         conn,
		path:         cfg.Path,
		embeddingDim: cfg.EmbeddingDim,
		vecEnabled:   !cfg.SkipVecTable,
	}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := os.Chmod(cfg.Path, 0o600); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set database permissions: %w", err)
	}

	slog.Debug("Opened SQLite store", "path", cfg.Path, "dimension", cfg.EmbeddingDim, "vec", db.vecEnabled)
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	for _, pragma := range []string{EnableWALMode, SetWALCheckpoint, EnableForeignKeys} {
		if _, err := db.conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	statements := schemaStatements
	if db.vecEnabled {
		statements = append(statements[:len(statements):len(statements)],
			fmt.Sprintf(CreateVecChunksTableTemplate, db.embeddingDim))
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	// INSERT OR IGNORE only fills the meta of a fresh store
	for key, value := range map[string]string{
		MetaKeySchemaVersion: SchemaVersion,
		MetaKeyCreatedAt:     time.Now().UTC().Format(time.RFC3339),
		MetaKeyEmbeddingDim:  strconv.Itoa(db.embeddingDim),
	} {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to insert meta %s: %w", key, err)
		}
	}
	if err := db.checkMeta(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkMeta verifies the stored schema version and embedding dimension
func (db *DB) checkMeta(ctx context.Context, q queryRower) error {
	version, err := readMeta(ctx, q, MetaKeySchemaVersion)
	if err != nil {
		return err
	}
	if version != SchemaVersion {
		return fmt.Errorf("unsupported schema version %s, expected %s", version, SchemaVersion)
	}

	dim, err := readMeta(ctx, q, MetaKeyEmbeddingDim)
	if err != nil {
		return err
	}
	if dim != strconv.Itoa(db.embeddingDim) {
		return fmt.Errorf("embedding dimension mismatch: database has %s, config has %d", dim, db.embeddingDim)
	}
	return nil
}

func readMeta(ctx context.Context, q queryRower, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta key not found: %s", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	return value, nil
}

// Close checkpoints the WAL and closes the connection. Closing twice is a
// no-op.
func (db *DB) Close(ctx context.Context) error {
	if db.conn == nil {
		return nil
	}

	_, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	closeErr := db.conn.Close()
	if err != nil {
		slog.Warn("Failed to checkpoint WAL", "path", db.path, "error", err)
	}
	db.conn = nil
	return closeErr
}

// HealthCheck verifies that the file is reachable, still matches the
// configured schema and dimension, and runs in WAL mode.
func (db *DB) HealthCheck(ctx context.Context) error {
	if db.conn == nil {
		return errors.New("database is closed")
	}
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := db.checkMeta(ctx, db.conn); err != nil {
		return err
	}

	var journalMode string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled, got: %s", journalMode)
	}
	return nil
}

// Stats counts chunks, entities and relations
func (db *DB) Stats(ctx context.Context) (domain.StoreStats, error) {
	var s domain.StoreStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM entities),
			(SELECT COUNT(*) FROM graph_edges)
	`).Scan(&s.Chunks, &s.Entities, &s.Relations)
	if err != nil {
		return domain.StoreStats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return s, nil
}
