package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wouteroostervld/kgrag/pkg/domain"
)

// edgeRow is a relation joined with its endpoint entities
type edgeRow struct {
	ChunkID int64
	domain.Triple
}

// Scan implements Scannable interface for edgeRow
func (e *edgeRow) Scan(rows *sql.Rows) error {
	return rows.Scan(&e.ChunkID, &e.Subject, &e.SubjectType, &e.Relation, &e.Object, &e.ObjectType)
}

// upsertEntity inserts an entity scoped to source, returns the entity ID
func upsertEntity(ctx context.Context, tx *sql.Tx, name, entityType, source string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO entities (name, entity_type, source_file)
		VALUES (?, ?, ?)
	`, name, entityType, source)
	if err != nil {
		return 0, fmt.Errorf("failed to insert entity: %w", err)
	}

	// If inserted, get the new ID
	if rowsAffected, _ := result.RowsAffected(); rowsAffected > 0 {
		id, err := result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get insert ID: %w", err)
		}
		return id, nil
	}

	// Otherwise, fetch existing ID
	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM entities
		WHERE name = ? AND source_file = ?
	`, name, source).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to query existing entity: %w", err)
	}

	return id, nil
}

func insertEdge(ctx context.Context, tx *sql.Tx, sourceID, targetID int64, relation string, chunkID int64, source string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO graph_edges (source_entity_id, target_entity_id, relation_type, chunk_id, source_file)
		VALUES (?, ?, ?, ?, ?)
	`, sourceID, targetID, relation, chunkID, source)
	if err != nil {
		return fmt.Errorf("failed to insert entity edge: %w", err)
	}
	return nil
}

// triplesForChunks returns the triples recorded for each chunk row ID
func (db *DB) triplesForChunks(ctx context.Context, chunkIDs []int64) (map[int64][]domain.Triple, error) {
	out := make(map[int64][]domain.Triple, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}

	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT g.chunk_id, s.name, s.entity_type, g.relation_type, o.name, o.entity_type
		FROM graph_edges g
		JOIN entities s ON s.id = g.source_entity_id
		JOIN entities o ON o.id = g.target_entity_id
		WHERE g.chunk_id IN (%s)
		ORDER BY g.rowid
	`, placeholders(len(chunkIDs))), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query triples: %w", err)
	}
	defer rows.Close()

	edges, err := scanRows[edgeRow](rows)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		out[e.ChunkID] = append(out[e.ChunkID], e.Triple)
	}
	return out, nil
}
