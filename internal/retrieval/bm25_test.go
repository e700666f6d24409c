package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBM25Scores(t *testing.T) {
	t.Parallel()

	docs := [][]string{
		{"ucet", "poplatok", "ucet", "vedenie"},
		{"hypoteka", "urok", "fixacia"},
		{"ucet", "student"},
	}

	scores := BM25Scores([]string{"ucet"}, docs)
	assert.Len(t, scores, 3)

	// Docs containing the term outrank the one that does not.
	assert.Greater(t, scores[0], 0.0)
	assert.Zero(t, scores[1])
	assert.Greater(t, scores[2], 0.0)

	// Higher term frequency wins, moderated by length normalization.
	assert.Greater(t, scores[0], scores[2])
}

func TestBM25ScoresEmptyInputs(t *testing.T) {
	t.Parallel()

	assert.Empty(t, BM25Scores([]string{"ucet"}, nil))

	scores := BM25Scores(nil, [][]string{{"ucet"}})
	assert.Equal(t, []float64{0}, scores)
}

func TestBM25ScoresCommonTermStaysPositive(t *testing.T) {
	t.Parallel()

	// A term present in every doc must keep a positive IDF under
	// add-one smoothing.
	docs := [][]string{{"ucet"}, {"ucet"}, {"ucet"}}
	scores := BM25Scores([]string{"ucet"}, docs)
	for _, s := range scores {
		assert.Greater(t, s, 0.0)
	}
}
