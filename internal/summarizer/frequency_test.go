package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_KeepsTopSentencesInDocumentOrder(t *testing.T) {
	text := "Solar panels convert sunlight into electricity. " +
		"Solar panels need sunlight to produce electricity at all. " +
		"Cats enjoy napping on warm window sills. " +
		"Electricity from solar panels powers homes and sunlight is free."

	s := NewFrequency()
	summary, err := s.Summarize(text, 2)
	require.NoError(t, err)

	// The off-topic sentence carries no frequent tokens and must be dropped.
	assert.NotContains(t, summary, "Cats")
	assert.Contains(t, summary, "Solar panels")

	// Kept sentences appear in their original order.
	first := strings.Index(summary, "convert")
	second := strings.Index(summary, "produce")
	if first >= 0 && second >= 0 {
		assert.Less(t, first, second)
	}
}

func TestSummarize_FewerSentencesThanRequested(t *testing.T) {
	s := NewFrequency()
	summary, err := s.Summarize("Just one sentence here.", 5)
	require.NoError(t, err)
	assert.Equal(t, "Just one sentence here.", summary)
}

func TestSummarize_NoSentencePunctuation(t *testing.T) {
	s := NewFrequency()
	summary, err := s.Summarize("  a fragment without terminal punctuation  ", 3)
	require.NoError(t, err)
	assert.Equal(t, "a fragment without terminal punctuation", summary)
}

func TestSummarize_Empty(t *testing.T) {
	s := NewFrequency()
	summary, err := s.Summarize("", 3)
	require.NoError(t, err)
	assert.Empty(t, summary)
}

func TestSummarize_DefaultSentenceCount(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("Repeated filler sentence about shipping containers. ")
	}
	s := NewFrequency()
	summary, err := s.Summarize(b.String(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(summary, "."))
}
