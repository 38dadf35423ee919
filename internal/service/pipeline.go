// Package service orchestrates the retrieval pipeline: chunking and indexing
// on the write path, recall, re-ranking and grounded generation on the read
// path.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"docchat/internal/domain"
)

// Options tunes the pipeline. Candidates is the recall width of the first
// retrieval stage; TopK is how many passages survive re-ranking. A wider
// candidate pool improves recall of the final top-K at the cost of
// re-ranking compute.
type Options struct {
	Candidates int
	TopK       int
	// BatchSize is the number of chunks embedded and upserted per batch
	// during ingestion.
	BatchSize int
	// MaxRetries bounds retries of upstream embedding failures. Embedding
	// is idempotent per chunk id, so retrying is safe.
	MaxRetries int
	// Parallelism caps concurrent ingestion batches.
	Parallelism int
}

// Pipeline implements domain.Pipeline.
type Pipeline struct {
	chunker   domain.Chunker
	index     domain.VectorIndex
	reranker  domain.Reranker
	generator domain.Generator
	opts      Options
}

// New validates options and assembles the pipeline. The candidate width must
// cover the re-ranking top-K so re-ranking has a real pool to select from.
func New(chunker domain.Chunker, index domain.VectorIndex, reranker domain.Reranker, generator domain.Generator, opts Options) (*Pipeline, error) {
	if opts.Candidates == 0 {
		opts.Candidates = 10
	}
	if opts.TopK == 0 {
		opts.TopK = 3
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.TopK < 0 || opts.Candidates < 0 {
		return nil, fmt.Errorf("%w: candidates and top-k must be positive", domain.ErrConfig)
	}
	if opts.Candidates < opts.TopK {
		return nil, fmt.Errorf("%w: candidate width %d is smaller than top-k %d", domain.ErrConfig, opts.Candidates, opts.TopK)
	}
	return &Pipeline{
		chunker:   chunker,
		index:     index,
		reranker:  reranker,
		generator: generator,
		opts:      opts,
	}, nil
}

// Ingest chunks the document and writes all chunks to the index, embedding
// batches in parallel. Chunk embedding is order-independent and idempotent
// per id, so parallel upserts are safe. Returns the number of chunks
// written. Re-ingesting a document with the same source overwrites its
// chunks instead of duplicating them.
func (p *Pipeline) Ingest(ctx context.Context, document domain.Document) (int, error) {
	var (
		ids       []string
		documents []string
		metadatas []map[string]any
	)
	for chunk := range p.chunker.Split(document) {
		ids = append(ids, chunk.ID)
		documents = append(documents, chunk.Content)
		metadatas = append(metadatas, chunk.Metadata)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Parallelism)
	for start := 0; start < len(ids); start += p.opts.BatchSize {
		end := start + p.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		g.Go(func() error {
			return p.upsertWithRetry(ctx, ids[start:end], documents[start:end], metadatas[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// upsertWithRetry retries transient upstream failures with bounded
// exponential backoff. Caller bugs (ErrValidation, ErrConfig) and storage
// failures surface immediately.
func (p *Pipeline) upsertWithRetry(ctx context.Context, ids, documents []string, metadatas []map[string]any) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = p.index.Upsert(ctx, ids, documents, metadatas)
		if err == nil || !errors.Is(err, domain.ErrUpstream) || attempt >= p.opts.MaxRetries {
			return err
		}
		select {
		case <-time.After(retryDelay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Retrieve returns the nCandidates nearest chunks for the question. A
// non-positive nCandidates uses the configured recall width; an explicit
// width below the re-ranking top-K is a configuration error.
func (p *Pipeline) Retrieve(ctx context.Context, question string, nCandidates int) ([]domain.Candidate, error) {
	if nCandidates <= 0 {
		nCandidates = p.opts.Candidates
	}
	if nCandidates < p.opts.TopK {
		return nil, fmt.Errorf("%w: candidate width %d is smaller than top-k %d", domain.ErrConfig, nCandidates, p.opts.TopK)
	}
	var (
		candidates []domain.Candidate
		err        error
	)
	for attempt := 0; ; attempt++ {
		candidates, err = p.index.Query(ctx, question, nCandidates)
		if err == nil || !errors.Is(err, domain.ErrUpstream) || attempt >= p.opts.MaxRetries {
			break
		}
		select {
		case <-time.After(retryDelay(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return candidates, err
}

// Ask runs the full read path: recall, re-rank, grounded generation. The
// returned answer carries the selected sources so the caller can trace the
// generated text back to chunks. Cancel ctx to abandon the stream early.
func (p *Pipeline) Ask(ctx context.Context, question string) (domain.Answer, error) {
	candidates, err := p.Retrieve(ctx, question, p.opts.Candidates)
	if err != nil {
		return domain.Answer{}, err
	}

	var (
		contextText string
		sources     []domain.RankedCandidate
	)
	if len(candidates) > 0 {
		texts := make([]string, len(candidates))
		for i, c := range candidates {
			texts[i] = c.Content
		}
		// The index may hold fewer chunks than the configured top-K.
		k := p.opts.TopK
		if k > len(candidates) {
			k = len(candidates)
		}
		ranks := p.reranker.Rank(question, texts)
		for _, r := range ranks[:k] {
			contextText += texts[r.Index]
			sources = append(sources, domain.RankedCandidate{
				Candidate:      candidates[r.Index],
				CandidateIndex: r.Index,
				Relevance:      r.Score,
			})
		}
	}
	// An empty context is still a successful generation: the model states
	// that the context is insufficient.
	fragments, err := p.generator.Generate(ctx, contextText, question)
	if err != nil {
		return domain.Answer{}, err
	}
	return domain.Answer{Fragments: fragments, Sources: sources}, nil
}

// retryDelay is exponential backoff starting at 200ms, capped at 5s.
func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
