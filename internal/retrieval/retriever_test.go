package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quirkfly/ivesna/internal/store"
	"github.com/quirkfly/ivesna/internal/store/memory"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

func seedDocument(t *testing.T, st *memory.Store, url, title string, chunks ...store.Chunk) {
	t.Helper()
	_, err := st.SaveDocument(context.Background(), store.Document{
		Tenant: "slsp",
		URL:    url,
		Title:  title,
		Lang:   "sk",
	}, chunks)
	require.NoError(t, err)
}

func TestCosine(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Degenerate inputs score zero instead of erroring.
	assert.Zero(t, Cosine(nil, []float32{1}))
	assert.Zero(t, Cosine([]float32{1, 2}, []float32{1}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestRetrieveRanksBySimilarity(t *testing.T) {
	t.Parallel()

	st := memory.New()
	seedDocument(t, st, "https://www.slsp.sk/sk/ludia/ucty", "Účty",
		store.Chunk{Text: "Osobný účet s vedením zadarmo pre študentov.", Embedding: []float32{1, 0, 0}},
	)
	seedDocument(t, st, "https://www.slsp.sk/sk/ludia/hypoteky", "Hypotéky",
		store.Chunk{Text: "Hypotéka s fixáciou úroku na päť rokov.", Embedding: []float32{0, 1, 0}},
	)

	r := New(st, &fakeEmbedder{vec: []float32{1, 0, 0}}, Config{TopK: 6, PreselectLimit: 300}, zap.NewNop())
	hits, err := r.Retrieve(context.Background(), "slsp", "aký účet pre študentov", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "https://www.slsp.sk/sk/ludia/ucty", hits[0].Document.URL)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestRetrieveBestChunkPerDocument(t *testing.T) {
	t.Parallel()

	st := memory.New()
	seedDocument(t, st, "https://www.slsp.sk/sk/ludia/ucty", "Účty",
		store.Chunk{Text: "Navigácia a pätička stránky.", Embedding: []float32{0, 1, 0}},
		store.Chunk{Text: "Osobný účet bez poplatku za vedenie.", Embedding: []float32{1, 0, 0}},
	)

	r := New(st, &fakeEmbedder{vec: []float32{1, 0, 0}}, Config{}, nil)
	hits, err := r.Retrieve(context.Background(), "slsp", "účet poplatok", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Chunk.Ordinal)
}

func TestRetrieveDedupsByURL(t *testing.T) {
	t.Parallel()

	st := memory.New()
	// The same page ingested twice under two document rows.
	for i := 0; i < 2; i++ {
		seedDocument(t, st, "https://www.slsp.sk/sk/ludia/ucty", "Účty",
			store.Chunk{Text: "Osobný účet bez poplatku.", Embedding: []float32{1, 0, 0}},
		)
	}

	r := New(st, &fakeEmbedder{vec: []float32{1, 0, 0}}, Config{}, nil)
	hits, err := r.Retrieve(context.Background(), "slsp", "účet", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestRetrieveHonorsTopK(t *testing.T) {
	t.Parallel()

	st := memory.New()
	urls := []string{
		"https://www.slsp.sk/sk/a", "https://www.slsp.sk/sk/b",
		"https://www.slsp.sk/sk/c", "https://www.slsp.sk/sk/d",
	}
	for i, u := range urls {
		seedDocument(t, st, u, "Stránka",
			store.Chunk{Text: "obsah stránky", Embedding: []float32{float32(i + 1), 1, 0}},
		)
	}

	r := New(st, &fakeEmbedder{vec: []float32{1, 0, 0}}, Config{TopK: 2}, nil)
	hits, err := r.Retrieve(context.Background(), "slsp", "obsah", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	t.Parallel()

	r := New(memory.New(), &fakeEmbedder{vec: []float32{1}}, Config{}, nil)
	hits, err := r.Retrieve(context.Background(), "slsp", "účet", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRetrieveTenantIsolation(t *testing.T) {
	t.Parallel()

	st := memory.New()
	seedDocument(t, st, "https://www.slsp.sk/sk/ludia/ucty", "Účty",
		store.Chunk{Text: "Osobný účet.", Embedding: []float32{1, 0, 0}},
	)

	r := New(st, &fakeEmbedder{vec: []float32{1, 0, 0}}, Config{}, nil)
	hits, err := r.Retrieve(context.Background(), "other-tenant", "účet", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRetrieveEmbedderError(t *testing.T) {
	t.Parallel()

	r := New(memory.New(), &fakeEmbedder{err: errors.New("rate limited")}, Config{}, nil)
	_, err := r.Retrieve(context.Background(), "slsp", "účet", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed query")
}
