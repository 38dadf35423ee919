// Package qdrant provides a vector index backend on a remote Qdrant server
// through its minimal REST API. The collection is created with cosine
// distance on first upsert; Qdrant requires UUID point ids, so chunk ids are
// mapped to deterministic name-based UUIDs and kept in the payload.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"docchat/internal/domain"
	"docchat/internal/vectorindex"
)

// Config contains connection details for a Qdrant vector store.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Backend is a minimal REST client to Qdrant.
type Backend struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu      sync.Mutex
	created bool
}

// New creates a Qdrant backend. The collection is created lazily because its
// vector size is only known once the first embedding arrives.
func New(cfg Config) *Backend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "docchat"
	}
	return &Backend{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// ensure creates the collection if missing. Qdrant's PUT is idempotent for a
// collection with the same schema.
func (b *Backend) ensure(ctx context.Context, dimension int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.created {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := b.putJSON(ctx, fmt.Sprintf("%s/collections/%s", b.url, b.collection), body); err != nil {
		return err
	}
	b.created = true
	return nil
}

// Upsert writes records as Qdrant points, replacing points with the same id.
func (b *Backend) Upsert(ctx context.Context, records []vectorindex.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := b.ensure(ctx, len(records[0].Vector)); err != nil {
		return err
	}
	points := make([]map[string]any, len(records))
	for i, rec := range records {
		points[i] = map[string]any{
			"id":     pointID(rec.ID),
			"vector": rec.Vector,
			"payload": map[string]any{
				"chunk_id": rec.ID,
				"document": rec.Document,
				"metadata": rec.Metadata,
			},
		}
	}
	body := map[string]any{"points": points}
	return b.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", b.url, b.collection), body)
}

// errNoCollection marks a request against a collection that has not been
// created yet. The collection only comes into existence at the first upsert,
// so readers translate it to an empty result.
var errNoCollection = errors.New("collection does not exist")

// Search delegates nearest-neighbor selection to the server. Score ties are
// broken by Qdrant's own ordering, not insertion order. Querying before
// anything was ingested yields an empty result.
func (b *Backend) Search(ctx context.Context, vector []float32, k int) ([]domain.Candidate, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := b.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", b.url, b.collection), req, &resp); err != nil {
		if errors.Is(err, errNoCollection) {
			return nil, nil
		}
		return nil, err
	}
	candidates := make([]domain.Candidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		c := domain.Candidate{Score: r.Score}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			c.ID = v
		}
		if v, ok := r.Payload["document"].(string); ok {
			c.Content = v
		}
		if v, ok := r.Payload["metadata"].(map[string]any); ok {
			c.Metadata = v
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// Count reports the number of stored points.
func (b *Backend) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := b.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/count", b.url, b.collection),
		map[string]any{"exact": true}, &resp)
	if errors.Is(err, errNoCollection) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Close releases nothing; the HTTP client needs no cleanup.
func (b *Backend) Close() error { return nil }

// pointID derives a stable UUID from a chunk id.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (b *Backend) putJSON(ctx context.Context, url string, body any) error {
	return b.send(ctx, http.MethodPut, url, body, nil)
}

func (b *Backend) postJSON(ctx context.Context, url string, body any, out any) error {
	return b.send(ctx, http.MethodPost, url, body, out)
}

func (b *Backend) send(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("api-key", b.apiKey)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrStorage, method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNoCollection
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: qdrant %s %s failed: %s", domain.ErrStorage, method, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode qdrant response: %v", domain.ErrStorage, err)
		}
	}
	return nil
}
