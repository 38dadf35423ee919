// Package sqlite provides a durable vector index backend on a local SQLite
// database. Embeddings are stored as little-endian float32 blobs; similarity
// is computed in-process over a full scan, which is adequate for
// single-document collections.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"docchat/internal/domain"
	"docchat/internal/vectorindex"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name      TEXT PRIMARY KEY,
	metric    TEXT NOT NULL,
	dimension INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS chunks (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL REFERENCES collections(name),
	id         TEXT NOT NULL,
	document   TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	UNIQUE (collection, id)
);
`

// Config locates the database file and names the logical collection.
type Config struct {
	// Path is the directory holding the database file.
	Path string
	// Collection is the logical collection name. Creation is idempotent:
	// opening an existing collection verifies its recorded metric.
	Collection string
}

// Backend is a SQLite-backed vector store.
type Backend struct {
	db         *sql.DB
	collection string
}

// Open opens (or creates) the database and the named collection. A
// collection persisted with a different similarity metric is rejected with
// domain.ErrStorage: the metric is fixed at creation time.
func Open(cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		cfg.Path = "."
	}
	if cfg.Collection == "" {
		cfg.Collection = "docchat"
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating index directory: %v", domain.ErrStorage, err)
	}
	dbPath := filepath.Join(cfg.Path, "index.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", domain.ErrStorage, dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", domain.ErrStorage, err)
	}

	b := &Backend{db: db, collection: cfg.Collection}
	if err := b.ensureCollection(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// ensureCollection implements get-or-create keyed by the collection name.
func (b *Backend) ensureCollection() error {
	var metric string
	err := b.db.QueryRow(`SELECT metric FROM collections WHERE name = ?`, b.collection).Scan(&metric)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := b.db.Exec(`INSERT INTO collections (name, metric) VALUES (?, ?)`,
			b.collection, vectorindex.Metric); err != nil {
			return fmt.Errorf("%w: creating collection %q: %v", domain.ErrStorage, b.collection, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: reading collection %q: %v", domain.ErrStorage, b.collection, err)
	case metric != vectorindex.Metric:
		return fmt.Errorf("%w: collection %q was built with metric %q, not %q; rebuild the index",
			domain.ErrStorage, b.collection, metric, vectorindex.Metric)
	}
	return nil
}

// Upsert stores records transactionally. Replacing an existing id keeps its
// original insertion position, so query tie-breaking stays stable across
// re-ingestion.
func (b *Backend) Upsert(ctx context.Context, records []vectorindex.Record) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", domain.ErrStorage, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var dimension int
	if err := tx.QueryRowContext(ctx,
		`SELECT dimension FROM collections WHERE name = ?`, b.collection).Scan(&dimension); err != nil {
		return fmt.Errorf("%w: reading collection dimension: %v", domain.ErrStorage, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, document, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			document = excluded.document,
			metadata = excluded.metadata,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("%w: preparing upsert: %v", domain.ErrStorage, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if dimension == 0 {
			dimension = len(rec.Vector)
		} else if len(rec.Vector) != dimension {
			return fmt.Errorf("%w: embedding dimension %d does not match collection dimension %d; rebuild the index",
				domain.ErrStorage, len(rec.Vector), dimension)
		}
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("%w: marshalling metadata for %s: %v", domain.ErrStorage, rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, b.collection, rec.ID, rec.Document, string(meta),
			vectorToBytes(rec.Vector)); err != nil {
			return fmt.Errorf("%w: upserting chunk %s: %v", domain.ErrStorage, rec.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE collections SET dimension = ? WHERE name = ?`, dimension, b.collection); err != nil {
		return fmt.Errorf("%w: recording dimension: %v", domain.ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing upsert: %v", domain.ErrStorage, err)
	}
	return nil
}

// Search scans the collection in insertion order and returns the k nearest
// records by cosine similarity.
func (b *Backend) Search(ctx context.Context, vector []float32, k int) ([]domain.Candidate, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, document, metadata, embedding
		FROM chunks WHERE collection = ?
		ORDER BY seq
	`, b.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: querying chunks: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	candidates := []domain.Candidate{}
	for rows.Next() {
		var (
			id, document, metaJSON string
			blob                   []byte
		)
		if err := rows.Scan(&id, &document, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("%w: scanning chunk: %v", domain.ErrStorage, err)
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("%w: corrupt metadata for chunk %s: %v", domain.ErrStorage, id, err)
		}
		candidates = append(candidates, domain.Candidate{
			ID:       id,
			Content:  document,
			Metadata: meta,
			Score:    vectorindex.Cosine(vector, bytesToVector(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating chunks: %v", domain.ErrStorage, err)
	}
	return vectorindex.TopK(candidates, k), nil
}

// Count reports the number of stored chunks.
func (b *Backend) Count(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE collection = ?`, b.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: counting chunks: %v", domain.ErrStorage, err)
	}
	return n, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func vectorToBytes(vector []float32) []byte {
	if len(vector) == 0 {
		return nil
	}
	buf := make([]byte, len(vector)*4)
	for i, f := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector
}
