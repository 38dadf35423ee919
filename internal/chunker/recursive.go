package chunker

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"unicode/utf8"

	"docchat/internal/domain"
)

// DefaultSeparators is the boundary priority list: paragraph breaks first,
// then line breaks, sentence-ending punctuation, whitespace, and finally
// arbitrary character boundaries.
var DefaultSeparators = []string{"\n\n", "\n", ".", "?", "!", " ", ""}

// RecursiveSplitter splits text into chunks of at most chunkSize characters,
// preferring the coarsest boundary available and recursing into oversized
// pieces with the next separator. Adjacent chunks share up to overlap
// characters of trailing context. Chunks are contiguous substrings of the
// input text.
type RecursiveSplitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// New validates the chunking parameters and returns a splitter.
func New(chunkSize, overlap int) (*RecursiveSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfig, chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrConfig, overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", domain.ErrConfig, overlap, chunkSize)
	}
	return &RecursiveSplitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: DefaultSeparators,
	}, nil
}

// Split returns a lazy, restartable sequence of chunks for the document.
// Chunk indexes are monotonic across the whole document; ids are formed as
// "{source}-{index}". Page metadata is carried on every chunk.
func (s *RecursiveSplitter) Split(document domain.Document) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		idx := 0
		for _, page := range document.Pages {
			for _, content := range s.SplitText(page.Text) {
				chunk := domain.Chunk{
					ID:         document.Source + "-" + strconv.Itoa(idx),
					DocumentID: document.Source,
					Content:    content,
					Index:      idx,
					Metadata: map[string]any{
						"source": document.Source,
						"page":   page.Number,
					},
				}
				if !yield(chunk) {
					return
				}
				idx++
			}
		}
	}
}

// SplitAll materializes the full chunk sequence.
func (s *RecursiveSplitter) SplitAll(document domain.Document) []domain.Chunk {
	var chunks []domain.Chunk
	for c := range s.Split(document) {
		chunks = append(chunks, c)
	}
	return chunks
}

// SplitText splits raw text into passages of at most chunkSize characters.
func (s *RecursiveSplitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	pieces := s.pieces(text, s.separators)
	return s.merge(pieces)
}

// pieces recursively cuts text at the coarsest separator that yields pieces
// no longer than chunkSize, descending the separator list for any piece that
// is still too large. Separators stay attached to the preceding piece so the
// original text is the exact concatenation of the result.
func (s *RecursiveSplitter) pieces(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return splitRunes(text)
	}
	sep, rest := separators[0], separators[1:]
	if sep == "" {
		return splitRunes(text)
	}
	parts := splitAfter(text, sep)
	if len(parts) == 1 {
		// Separator absent; try the next, finer one.
		return s.pieces(text, rest)
	}
	var out []string
	for _, part := range parts {
		if utf8.RuneCountInString(part) > s.chunkSize {
			out = append(out, s.pieces(part, rest)...)
		} else {
			out = append(out, part)
		}
	}
	return out
}

// merge greedily packs consecutive pieces into chunks of at most chunkSize
// characters. When a chunk is emitted, trailing pieces totalling at most
// overlap characters are retained to seed the next chunk.
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var (
		chunks []string
		window []string
		winLen int
		fresh  bool
	)
	flush := func() {
		joined := strings.Join(window, "")
		if strings.TrimSpace(joined) != "" {
			chunks = append(chunks, joined)
		}
	}
	for _, piece := range pieces {
		plen := utf8.RuneCountInString(piece)
		if winLen+plen > s.chunkSize && winLen > 0 {
			flush()
			// Retain trailing pieces for overlap.
			for winLen > s.overlap || (winLen+plen > s.chunkSize && winLen > 0) {
				winLen -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		winLen += plen
		fresh = true
	}
	// The final window is flushed only if it holds content beyond the
	// retained overlap of the previous chunk.
	if fresh {
		flush()
	}
	return chunks
}

// splitAfter splits text by sep, keeping the separator at the end of each
// piece, and folds separator-only fragments into their neighbor.
func splitAfter(text, sep string) []string {
	raw := strings.SplitAfter(text, sep)
	out := raw[:0]
	for _, p := range raw {
		if p == "" {
			continue
		}
		if p == sep && len(out) > 0 {
			out[len(out)-1] += p
			continue
		}
		out = append(out, p)
	}
	return out
}

// splitRunes is the last-resort cut at arbitrary character boundaries: one
// piece per rune, so the merge step can realize exact overlap windows.
func splitRunes(text string) []string {
	out := make([]string, 0, len(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}
