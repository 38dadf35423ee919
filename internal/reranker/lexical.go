// Package reranker re-scores a coarse candidate set against a query with a
// finer-grained relevance model and selects the best few passages. The
// scorer evaluates each query/passage pair jointly, in-process: term
// frequencies saturated BM25-style and weighted by inverse document
// frequency over the candidate pool, so terms that discriminate between
// candidates dominate terms that appear everywhere.
package reranker

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"docchat/internal/domain"
)

// BM25-style constants: k1 controls term-frequency saturation, b controls
// passage-length normalization.
const (
	k1 = 1.2
	b  = 0.75
)

// LexicalScorer is a deterministic, CPU-bound relevance scorer.
type LexicalScorer struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewLexical creates a lexical cross-scorer.
func NewLexical() *LexicalScorer {
	return &LexicalScorer{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Rerank scores every candidate against the query and selects the topK most
// relevant. The first return value is the selected texts concatenated in
// descending relevance order with no separator; the second holds, for each
// selected candidate in output order, its index into the input slice.
func (s *LexicalScorer) Rerank(query string, candidates []string, topK int) (string, []int, error) {
	if len(candidates) == 0 {
		return "", nil, fmt.Errorf("%w: no candidates to rerank", domain.ErrValidation)
	}
	if topK <= 0 {
		return "", nil, fmt.Errorf("%w: top-k must be positive, got %d", domain.ErrValidation, topK)
	}
	if topK > len(candidates) {
		return "", nil, fmt.Errorf("%w: top-k %d exceeds candidate count %d", domain.ErrValidation, topK, len(candidates))
	}

	ranks := s.Rank(query, candidates)
	var relevant strings.Builder
	indices := make([]int, topK)
	for i := 0; i < topK; i++ {
		relevant.WriteString(candidates[ranks[i].Index])
		indices[i] = ranks[i].Index
	}
	return relevant.String(), indices, nil
}

// Rank scores all candidates and returns (index, score) pairs ordered by
// descending score, ties broken by input position.
func (s *LexicalScorer) Rank(query string, candidates []string) []domain.Rank {
	queryTerms := s.terms(query)

	// Per-candidate term frequencies and lengths.
	freqs := make([]map[string]float64, len(candidates))
	lengths := make([]float64, len(candidates))
	var totalLen float64
	for i, cand := range candidates {
		tf := map[string]float64{}
		terms := s.terms(cand)
		for _, t := range terms {
			tf[t]++
		}
		freqs[i] = tf
		lengths[i] = float64(len(terms))
		totalLen += lengths[i]
	}
	avgLen := totalLen / float64(len(candidates))
	if avgLen == 0 {
		avgLen = 1
	}

	// Document frequency of each query term over the candidate pool.
	df := map[string]float64{}
	for _, t := range queryTerms {
		for i := range candidates {
			if freqs[i][t] > 0 {
				df[t]++
			}
		}
	}
	n := float64(len(candidates))

	ranks := make([]domain.Rank, len(candidates))
	for i := range candidates {
		score := 0.0
		for _, t := range queryTerms {
			tf := freqs[i][t]
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (n-df[t]+0.5)/(df[t]+0.5))
			norm := 1 - b + b*lengths[i]/avgLen
			score += idf * tf * (k1 + 1) / (tf + k1*norm)
		}
		ranks[i] = domain.Rank{Index: i, Score: score}
	}
	sort.SliceStable(ranks, func(i, j int) bool { return ranks[i].Score > ranks[j].Score })
	return ranks
}

// terms tokenizes, lowercases and drops stopwords. Numbers are kept: they
// carry most of the signal in questions about amounts, dates and ids.
func (s *LexicalScorer) terms(text string) []string {
	tokens := s.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := tokens[:0]
	for _, t := range tokens {
		if _, skip := s.stopwords[t]; skip {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "what", "which", "who", "whom", "how", "when", "where", "why", "does", "do", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
