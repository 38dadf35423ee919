package domain

import (
	"context"
	"iter"
)

// Page is one extracted page (or section) of a source document.
type Page struct {
	Number int
	Text   string
}

// Document is a loaded source file: the extracted pages plus a source
// identifier normalized to a storage-safe alphabet. Immutable once loaded.
type Document struct {
	Source string
	Pages  []Page
}

// Text returns the document content as a single string, pages joined by a
// blank line so the chunker sees page breaks as paragraph boundaries.
func (d Document) Text() string {
	var n int
	for _, p := range d.Pages {
		n += len(p.Text) + 2
	}
	buf := make([]byte, 0, n)
	for i, p := range d.Pages {
		if i > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, p.Text...)
	}
	return string(buf)
}

// Chunk is a bounded passage of a document, indexed independently for
// retrieval. IDs are formed as "{source}-{index}" and are unique within a
// collection; Index is monotonic per document and assigned at creation.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Index      int
	Metadata   map[string]any
}

// Candidate is one entry of a similarity query result: a stored chunk with
// its cosine similarity to the query. Ephemeral, request-scoped.
type Candidate struct {
	ID       string
	Content  string
	Metadata map[string]any
	Score    float64
}

// Rank pairs a candidate's position in the input slice with its relevance
// score from the re-ranker. The score is not comparable to Candidate.Score.
type Rank struct {
	Index int
	Score float64
}

// RankedCandidate is a candidate selected by the re-ranker, annotated with
// its position in the original candidate set and its relevance score.
type RankedCandidate struct {
	Candidate
	CandidateIndex int
	Relevance      float64
}

// Fragment is one streamed piece of a generated answer. A non-nil Err is
// terminal: the channel closes after delivering it.
type Fragment struct {
	Content string
	Err     error
}

// Answer couples a streamed generation with the sources that grounded it.
// The fragment channel is finite and not restartable; cancel the generation
// context to abandon it early.
type Answer struct {
	Fragments <-chan Fragment
	Sources   []RankedCandidate
}

// Chunker splits documents into overlapping passages suitable for embedding.
// The returned sequence is lazy and restartable; splitting is pure.
type Chunker interface {
	Split(document Document) iter.Seq[Chunk]
}

// Embedder converts text into a fixed-dimension vector via a remote model.
// Implementations are stateless from the caller's point of view and do not
// retry: upstream failures wrap ErrUpstream and surface immediately.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is a persistent collection of chunk embeddings supporting
// upsert and approximate nearest-neighbor query by cosine similarity.
type VectorIndex interface {
	// Upsert embeds and stores the given chunks. All three slices must have
	// equal length (ErrValidation otherwise). Re-upserting an id replaces its
	// content and metadata and re-embeds it.
	Upsert(ctx context.Context, ids, documents []string, metadatas []map[string]any) error
	// Query embeds text and returns the k nearest chunks by cosine
	// similarity, descending, ties broken by insertion order. An empty index
	// yields an empty set, not an error.
	Query(ctx context.Context, text string, k int) ([]Candidate, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Reranker scores a candidate set against a query with a finer-grained
// relevance model and selects the topK best. The first return value is the
// selected texts concatenated in descending relevance order with no
// separator; the second maps each selected candidate to its index in the
// input slice.
type Reranker interface {
	Rerank(query string, candidates []string, topK int) (string, []int, error)
	// Rank scores every candidate and returns (index, score) pairs ordered
	// by descending relevance, ties broken by input position.
	Rank(query string, candidates []string) []Rank
}

// Generator streams a grounded answer for a question given a context string.
type Generator interface {
	Generate(ctx context.Context, contextText, question string) (<-chan Fragment, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Pipeline defines the operations exposed by the application core.
type Pipeline interface {
	Ingest(ctx context.Context, document Document) (int, error)
	Retrieve(ctx context.Context, question string, nCandidates int) ([]Candidate, error)
	Ask(ctx context.Context, question string) (Answer, error)
}
