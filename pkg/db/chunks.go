package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/wouteroostervld/kgrag/pkg/domain"
)

// Insert stores one chunk, its embedding and its triples in a single
// transaction. An existing chunk with the same key is replaced.
func (db *DB) Insert(ctx context.Context, doc domain.Document) error {
	if doc.ID == "" || doc.SourceFile == "" {
		return fmt.Errorf("chunk ID and source file are required")
	}
	if len(doc.Embedding) != db.embeddingDim {
		return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", db.embeddingDim, len(doc.Embedding))
	}

	// Serialize embedding to compact binary format for sqlite-vec
	embBytes, err := sqlite_vec.SerializeFloat32(doc.Embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM chunks WHERE chunk_key = ?", doc.ID).Scan(&oldID)
	switch {
	case err == nil:
		if err := db.deleteChunkRows(ctx, tx, []int64{oldID}); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE id = ?", oldID); err != nil {
			return fmt.Errorf("failed to replace chunk: %w", err)
		}
	case err != sql.ErrNoRows:
		return fmt.Errorf("failed to look up chunk: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO chunks (chunk_key, source_file, chunk_index, content)
		VALUES (?, ?, ?, ?)
	`, doc.ID, doc.SourceFile, doc.Index, doc.Text)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	chunkID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get chunk ID: %w", err)
	}

	if db.vecEnabled {
		_, err := tx.ExecContext(ctx, "INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)", chunkID, embBytes)
		if err != nil {
			return fmt.Errorf("failed to insert embedding: %w", err)
		}
	}

	for _, t := range doc.Triples {
		srcID, err := upsertEntity(ctx, tx, t.Subject, t.SubjectType, doc.SourceFile)
		if err != nil {
			return err
		}
		dstID, err := upsertEntity(ctx, tx, t.Object, t.ObjectType, doc.SourceFile)
		if err != nil {
			return err
		}
		if err := insertEdge(ctx, tx, srcID, dstID, t.Relation, chunkID, doc.SourceFile); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk: %w", err)
	}
	return nil
}

// deleteChunkRows removes vectors and edges that belong to the given chunk rows.
// vec0 tables only support deletes by primary key.
func (db *DB) deleteChunkRows(ctx context.Context, tx *sql.Tx, ids []int64) error {
	for _, id := range ids {
		if db.vecEnabled {
			if _, err := tx.ExecContext(ctx, "DELETE FROM vec_chunks WHERE chunk_id = ?", id); err != nil {
				return fmt.Errorf("failed to delete embedding: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM graph_edges WHERE chunk_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete edges: %w", err)
		}
	}
	return nil
}

// DeleteBySource removes every chunk, entity and edge tagged with source.
// The returned count covers chunk and entity rows.
func (db *DB) DeleteBySource(ctx context.Context, source string) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT id FROM chunks WHERE source_file = ?", source)
	if err != nil {
		return 0, fmt.Errorf("failed to query chunks: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating chunks: %w", err)
	}

	if err := db.deleteChunkRows(ctx, tx, ids); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM graph_edges WHERE source_file = ?", source); err != nil {
		return 0, fmt.Errorf("failed to delete edges: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE source_file = ?", source)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entities: %w", err)
	}
	entities, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, "DELETE FROM chunks WHERE source_file = ?", source)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	chunks, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return chunks + entities, nil
}

// Search finds the k chunks closest to the query embedding by cosine
// distance and attaches their triples.
func (db *DB) Search(ctx context.Context, embedding []float32, k int) ([]domain.Match, error) {
	if !db.vecEnabled {
		return nil, fmt.Errorf("vector search unavailable: vec_chunks table not created")
	}
	if len(embedding) != db.embeddingDim {
		return nil, fmt.Errorf("query embedding dimension mismatch: expected %d, got %d", db.embeddingDim, len(embedding))
	}
	if k <= 0 {
		return nil, nil
	}

	queryBytes, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT v.chunk_id, v.distance, c.chunk_key, c.source_file, c.content
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		WHERE v.embedding MATCH ?
		  AND k = ?
		ORDER BY v.distance
	`, queryBytes, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar chunks: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	var rowIDs []int64
	for rows.Next() {
		var id int64
		var distance float64
		var m domain.Match
		if err := rows.Scan(&id, &distance, &m.ChunkID, &m.SourceFile, &m.Text); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		// Cosine distance is in [0, 2]
		m.Score = 1 - distance
		matches = append(matches, m)
		rowIDs = append(rowIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	triples, err := db.triplesForChunks(ctx, rowIDs)
	if err != nil {
		return nil, err
	}
	for i, id := range rowIDs {
		matches[i].Triples = triples[id]
	}
	return matches, nil
}
