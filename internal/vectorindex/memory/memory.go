// Package memory provides an in-process vector index backend using
// brute-force cosine similarity. Nothing survives a restart; it exists for
// tests and throwaway sessions.
package memory

import (
	"context"
	"sync"

	"docchat/internal/domain"
	"docchat/internal/vectorindex"
)

// Backend is a mutex-guarded in-memory vector store.
type Backend struct {
	mu      sync.RWMutex
	order   []string
	records map[string]vectorindex.Record
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{records: make(map[string]vectorindex.Record)}
}

// Upsert stores records; an existing id is replaced in place, keeping its
// original insertion position for stable tie-breaking.
func (b *Backend) Upsert(_ context.Context, records []vectorindex.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range records {
		if _, exists := b.records[rec.ID]; !exists {
			b.order = append(b.order, rec.ID)
		}
		b.records[rec.ID] = rec
	}
	return nil
}

// Search returns the k nearest records by cosine similarity, insertion order
// breaking ties.
func (b *Backend) Search(_ context.Context, vector []float32, k int) ([]domain.Candidate, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	candidates := make([]domain.Candidate, 0, len(b.order))
	for _, id := range b.order {
		rec := b.records[id]
		candidates = append(candidates, domain.Candidate{
			ID:       rec.ID,
			Content:  rec.Document,
			Metadata: rec.Metadata,
			Score:    vectorindex.Cosine(vector, rec.Vector),
		})
	}
	return vectorindex.TopK(candidates, k), nil
}

// Count reports the number of stored records.
func (b *Backend) Count(_ context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order), nil
}

// Close is a no-op.
func (b *Backend) Close() error { return nil }
