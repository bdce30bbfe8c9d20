package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/models"
)

const metaSchemaVersion = "schema_version"

// SaveSnapshot replaces the cached snapshot within a single transaction.
func (db *DB) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := clearTx(ctx, tx); err != nil {
		return err
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (seq, id, kind, type, uri, filename, title)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare node insert: %w", err)
	}
	defer nodeStmt.Close()
	for i, n := range snap.Graph.Nodes {
		if _, err := nodeStmt.ExecContext(ctx, i, n.ID, string(n.Kind), n.Type, n.Data.URI, n.Data.Filename, n.Data.Title); err != nil {
			return fmt.Errorf("index: insert node %s: %w", n.ID, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO edges (pos, kind, source, target, ref_type)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()
	for i, e := range snap.Graph.Edges {
		if _, err := edgeStmt.ExecContext(ctx, i, e.Kind.String(), e.Source, e.Target, e.RefType); err != nil {
			return fmt.Errorf("index: insert edge: %w", err)
		}
	}

	docStmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (path, checksum, updated_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare document insert: %w", err)
	}
	defer docStmt.Close()
	for _, d := range snap.Documents {
		if _, err := docStmt.ExecContext(ctx, d.Path, d.Checksum, d.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("index: insert document %s: %w", d.Path, err)
		}
	}

	meta := map[string]string{metaSchemaVersion: SchemaVersion, "root": snap.Graph.Root}
	for k, v := range snap.Meta {
		meta[k] = v
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("index: insert meta %s: %w", k, err)
		}
	}

	return tx.Commit()
}

// LoadSnapshot reads the cached snapshot. It returns (nil, nil) when the
// cache is empty or was written with a different schema version.
func (db *DB) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	meta, err := db.meta(ctx)
	if err != nil {
		return nil, err
	}
	if meta[metaSchemaVersion] != SchemaVersion {
		return nil, nil
	}

	snap := &Snapshot{Meta: meta}
	snap.Graph.Root = meta["root"]
	delete(meta, "root")
	delete(meta, metaSchemaVersion)

	rows, err := db.conn.QueryContext(ctx, `SELECT id, kind, type, uri, filename, title FROM nodes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("index: load nodes: %w", err)
	}
	for rows.Next() {
		var n graph.Node
		var kind string
		if err := rows.Scan(&n.ID, &kind, &n.Type, &n.Data.URI, &n.Data.Filename, &n.Data.Title); err != nil {
			rows.Close()
			return nil, err
		}
		n.Kind = graph.Kind(kind)
		snap.Graph.Nodes = append(snap.Graph.Nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.conn.QueryContext(ctx, `SELECT kind, source, target, ref_type FROM edges ORDER BY pos`)
	if err != nil {
		return nil, fmt.Errorf("index: load edges: %w", err)
	}
	for rows.Next() {
		var e graph.Edge
		var kind string
		if err := rows.Scan(&kind, &e.Source, &e.Target, &e.RefType); err != nil {
			rows.Close()
			return nil, err
		}
		if e.Kind, err = graph.ParseEdgeKind(kind); err != nil {
			rows.Close()
			return nil, fmt.Errorf("index: load edges: %w", err)
		}
		snap.Graph.Edges = append(snap.Graph.Edges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.conn.QueryContext(ctx, `SELECT path, checksum, updated_at FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: load documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d models.DocumentMeta
		var updated time.Time
		if err := rows.Scan(&d.Path, &d.Checksum, &updated); err != nil {
			return nil, err
		}
		d.UpdatedAt = updated
		snap.Documents = append(snap.Documents, d)
	}
	return snap, rows.Err()
}

// AllChecksums returns path -> checksum for every cached document.
func (db *DB) AllChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Clear drops the cached snapshot.
func (db *DB) Clear(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := clearTx(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (db *DB) meta(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("index: load meta: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func clearTx(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"edges", "nodes", "documents", "meta"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("index: clear %s: %w", table, err)
		}
	}
	return nil
}
