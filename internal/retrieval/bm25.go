package retrieval

import "math"

// BM25 tuning constants; standard Robertson values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// BM25Scores scores each token list in docs against the query tokens.
// IDF uses add-0.5 smoothing so rare terms never get a negative weight.
func BM25Scores(qToks []string, docs [][]string) []float64 {
	scores := make([]float64, len(docs))
	if len(docs) == 0 || len(qToks) == 0 {
		return scores
	}

	n := len(docs)
	df := make(map[string]int)
	for _, toks := range docs {
		seen := make(map[string]struct{}, len(toks))
		for _, t := range toks {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}

	idf := make(map[string]float64, len(qToks))
	for _, t := range qToks {
		if _, ok := idf[t]; ok {
			continue
		}
		nt := float64(df[t])
		idf[t] = math.Log((float64(n)-nt+0.5)/(nt+0.5) + 1.0)
	}

	var totalLen int
	for _, toks := range docs {
		totalLen += len(toks)
	}
	avgdl := float64(totalLen) / math.Max(1, float64(n))

	for i, toks := range docs {
		tf := make(map[string]int, len(toks))
		for _, t := range toks {
			tf[t]++
		}
		dl := float64(len(toks))
		var score float64
		for _, qt := range qToks {
			f := float64(tf[qt])
			if f == 0 {
				continue
			}
			num := f * (bm25K1 + 1)
			den := f + bm25K1*(1-bm25B+bm25B*dl/math.Max(1, avgdl))
			score += idf[qt] * (num / den)
		}
		scores[i] = score
	}
	return scores
}
