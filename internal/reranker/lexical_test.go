package reranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
)

func TestRerank_SelectsMostRelevantInOrder(t *testing.T) {
	s := NewLexical()
	candidates := []string{"alpha", "beta", "gamma"}

	relevant, indices, err := s.Rerank("gamma gamma alpha", candidates, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, indices)
	assert.Equal(t, "gammaalpha", relevant)
}

func TestRerank_Validation(t *testing.T) {
	s := NewLexical()

	_, _, err := s.Rerank("anything", nil, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = s.Rerank("anything", []string{"one"}, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = s.Rerank("anything", []string{"one"}, 2)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRerank_TopKEqualsCandidateCount(t *testing.T) {
	s := NewLexical()
	candidates := []string{"red apples", "green pears"}

	_, indices, err := s.Rerank("pears", candidates, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1}, indices)
	assert.Equal(t, 1, indices[0])
}

func TestRank_IsDeterministic(t *testing.T) {
	s := NewLexical()
	candidates := []string{
		"The shipment left the warehouse on Monday.",
		"Payment terms are net thirty days from delivery.",
		"Contact support for warranty claims.",
	}
	first := s.Rank("payment terms", candidates)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Rank("payment terms", candidates))
	}
	assert.Equal(t, 1, first[0].Index)
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	s := NewLexical()
	ranks := s.Rank("nothing matches", []string{"one fish", "two fish"})
	require.Len(t, ranks, 2)
	assert.Equal(t, 0, ranks[0].Index)
	assert.Equal(t, 1, ranks[1].Index)
	assert.Equal(t, ranks[0].Score, ranks[1].Score)
}

func TestRank_NumbersCarrySignal(t *testing.T) {
	s := NewLexical()
	candidates := []string{
		"The agreement covers delivery of office supplies.",
		"Invoice 4471 is payable within thirty days of receipt.",
		"All disputes are settled under local jurisdiction.",
	}
	ranks := s.Rank("What is the total on invoice 4471?", candidates)
	assert.Equal(t, 1, ranks[0].Index)
	assert.Greater(t, ranks[0].Score, ranks[1].Score)
}

func TestRank_RareTermsOutweighCommonOnes(t *testing.T) {
	s := NewLexical()
	// "engine" appears in every candidate, "turbine" in only one: the
	// discriminating term must dominate.
	candidates := []string{
		"engine assembly manual",
		"engine turbine schematics",
		"engine maintenance schedule",
	}
	ranks := s.Rank("turbine engine", candidates)
	assert.Equal(t, 1, ranks[0].Index)
}
