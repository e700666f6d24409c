package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/quirkfly/ivesna/internal/store"
)

// Combined score weights: semantic similarity leads, keywords and path
// priors steer.
const (
	weightCosine = 0.60
	weightBM25   = 0.25
	weightPrior  = 0.15
)

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Hit is one ranked retrieval result.
type Hit struct {
	Chunk    store.Chunk
	Document store.Document
	Score    float64
}

// Config tunes the retriever.
type Config struct {
	TopK           int
	PreselectLimit int
}

// Retriever ranks stored chunks against a query.
type Retriever struct {
	docs     store.DocumentStore
	embedder QueryEmbedder
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Retriever.
func New(docs store.DocumentStore, embedder QueryEmbedder, cfg Config, logger *zap.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 6
	}
	if cfg.PreselectLimit < cfg.TopK {
		cfg.PreselectLimit = 300
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{docs: docs, embedder: embedder, cfg: cfg, logger: logger}
}

// Retrieve returns the top-k hits for the query within the tenant:
//  1. cosine over embeddings preselects the closest chunks,
//  2. BM25 scores keywords over the preselected set,
//  3. URL/title priors adjust per document,
//  4. the best chunk per document wins, deduplicated by URL.
//
// k <= 0 uses the configured TopK. An empty corpus yields no hits and no
// error.
func (r *Retriever) Retrieve(ctx context.Context, tenant, query string, k int) ([]Hit, error) {
	if k <= 0 || k > r.cfg.TopK {
		k = r.cfg.TopK
	}

	qVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qToks := Tokens(query)
	business := IsBusinessQuery(qToks)

	chunks, err := r.docs.ChunksByTenant(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	// Cosine preselect.
	type scored struct {
		chunk store.Chunk
		cos   float64
	}
	prelim := make([]scored, 0, len(chunks))
	for _, ch := range chunks {
		prelim = append(prelim, scored{chunk: ch, cos: Cosine(qVec, ch.Embedding)})
	}
	sort.Slice(prelim, func(i, j int) bool { return prelim[i].cos > prelim[j].cos })
	if len(prelim) > r.cfg.PreselectLimit {
		prelim = prelim[:r.cfg.PreselectLimit]
	}

	docTokens := make([][]string, len(prelim))
	for i, sc := range prelim {
		docTokens[i] = Tokens(sc.chunk.Text)
	}
	bm25 := BM25Scores(qToks, docTokens)

	docIDs := make([]int64, 0, len(prelim))
	seenDoc := make(map[int64]struct{}, len(prelim))
	for _, sc := range prelim {
		if _, ok := seenDoc[sc.chunk.DocumentID]; ok {
			continue
		}
		seenDoc[sc.chunk.DocumentID] = struct{}{}
		docIDs = append(docIDs, sc.chunk.DocumentID)
	}
	docMap, err := r.docs.DocumentsByIDs(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	// Combine and keep the best chunk per document.
	bestPerDoc := make(map[int64]Hit, len(docMap))
	for i, sc := range prelim {
		doc := docMap[sc.chunk.DocumentID]
		prior := URLTitlePrior(qToks, doc.URL, doc.Title, business)
		final := weightCosine*sc.cos + weightBM25*bm25[i] + weightPrior*prior
		if prev, ok := bestPerDoc[sc.chunk.DocumentID]; !ok || final > prev.Score {
			bestPerDoc[sc.chunk.DocumentID] = Hit{Chunk: sc.chunk, Document: doc, Score: final}
		}
	}

	// Dedup by URL; the same page can be ingested more than once.
	bestPerURL := make(map[string]Hit, len(bestPerDoc))
	for _, hit := range bestPerDoc {
		if prev, ok := bestPerURL[hit.Document.URL]; !ok || hit.Score > prev.Score {
			bestPerURL[hit.Document.URL] = hit
		}
	}

	ranked := make([]Hit, 0, len(bestPerURL))
	for _, hit := range bestPerURL {
		ranked = append(ranked, hit)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	r.logger.Debug("retrieval complete",
		zap.String("tenant", tenant),
		zap.Int("corpus_chunks", len(chunks)),
		zap.Int("hits", len(ranked)),
	)
	return ranked, nil
}

// Cosine computes cosine similarity between two vectors; mismatched or
// zero-length vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
