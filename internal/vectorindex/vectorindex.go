// Package vectorindex implements the chunk collection: an embedder paired
// with a storage backend, supporting upsert and cosine-similarity query.
package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"

	"docchat/internal/domain"
)

// Metric is the similarity metric of every collection. It is fixed for the
// lifetime of a persisted collection and recorded by durable backends;
// changing it requires rebuilding the index.
const Metric = "cosine"

// Record is one persisted chunk: text, metadata and its embedding vector.
type Record struct {
	ID       string
	Document string
	Metadata map[string]any
	Vector   []float32
}

// Backend stores embedded records and answers nearest-neighbor queries.
// Implementations must serialize concurrent upserts touching the same id
// (last-writer-wins) and keep queries safe alongside unrelated upserts.
type Backend interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float32, k int) ([]domain.Candidate, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Collection implements domain.VectorIndex by embedding texts with the
// configured embedder and delegating storage to a backend. It holds no
// request state and is safe for concurrent use if its backend is.
type Collection struct {
	embedder domain.Embedder
	backend  Backend
}

// NewCollection pairs an embedder with a storage backend.
func NewCollection(embedder domain.Embedder, backend Backend) *Collection {
	return &Collection{embedder: embedder, backend: backend}
}

// Upsert embeds and stores the given chunks. Re-upserting an existing id
// replaces its content and metadata and re-embeds it.
func (c *Collection) Upsert(ctx context.Context, ids, documents []string, metadatas []map[string]any) error {
	if len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("%w: ids/documents/metadatas lengths differ: %d/%d/%d",
			domain.ErrValidation, len(ids), len(documents), len(metadatas))
	}
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty chunk id", domain.ErrValidation)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate chunk id %q in batch", domain.ErrValidation, id)
		}
		seen[id] = struct{}{}
	}

	vectors, err := c.embedder.EmbedBatch(ctx, documents)
	if err != nil {
		return fmt.Errorf("embedding batch: %w", err)
	}
	records := make([]Record, len(ids))
	for i := range ids {
		records[i] = Record{
			ID:       ids[i],
			Document: documents[i],
			Metadata: metadatas[i],
			Vector:   vectors[i],
		}
	}
	return c.backend.Upsert(ctx, records)
}

// Query embeds text and returns the k nearest stored chunks by cosine
// similarity, descending. An empty collection yields an empty set.
func (c *Collection) Query(ctx context.Context, text string, k int) ([]domain.Candidate, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrValidation, k)
	}
	vector, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return c.backend.Search(ctx, vector, k)
}

// Count reports the number of stored chunks.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.backend.Count(ctx)
}

// Close releases the backend.
func (c *Collection) Close() error {
	return c.backend.Close()
}

// Cosine returns the cosine similarity between two vectors. Zero or
// mismatched vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK selects the k highest-scored candidates from a slice ordered by
// insertion; the stable sort keeps insertion order on score ties so results
// are deterministic.
func TopK(candidates []domain.Candidate, k int) []domain.Candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k]
}
