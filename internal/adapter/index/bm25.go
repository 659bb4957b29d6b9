package index

import (
	"math"
	"sort"

	"kbase/internal/adapter/analyzer"
	"kbase/internal/adapter/corpus"
	"kbase/internal/domain"
)

// Default BM25 constants: k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	DefaultK1 = 1.6
	DefaultB  = 0.75
)

// Hit is one lexical match: a chunk index and its BM25 score.
type Hit struct {
	Doc   int
	Score float64
}

// BM25Index is the read-only lexical index over a corpus snapshot. It is
// built once from the chunk sequence; rebuilding is the only way to change
// it. Index size always equals corpus size.
type BM25Index struct {
	tokenizer *analyzer.Tokenizer
	docTF     []map[string]int
	docLen    []int
	idf       map[string]float64
	avgDocLen float64
	k1        float64
	b         float64
}

// Build constructs the index from the corpus store. The indexed text per
// chunk is the title followed by the body, tokenized with the same filter
// applied to queries.
func Build(store *corpus.Store, tokenizer *analyzer.Tokenizer, k1, b float64) *BM25Index {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b < 0 || b > 1 {
		b = DefaultB
	}

	n := store.Len()
	docTF := make([]map[string]int, 0, n)
	docLen := make([]int, 0, n)
	df := make(map[string]int)

	for i := 0; i < n; i++ {
		chunk := store.Chunk(i)
		tokens := tokenizer.Tokenize(chunk.Title + " " + chunk.Body)
		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		docTF = append(docTF, tf)
		docLen = append(docLen, len(tokens))
		for token := range tf {
			df[token]++
		}
	}

	totalLen := 0
	for _, l := range docLen {
		totalLen += l
	}
	avgDocLen := 0.0
	if len(docLen) > 0 {
		avgDocLen = float64(totalLen) / float64(len(docLen))
	}

	// Smoothed IDF: strictly positive even for terms present in every
	// document, so scores never go negative.
	idf := make(map[string]float64, len(df))
	for token, freq := range df {
		idf[token] = math.Log(1.0 + (float64(n)-float64(freq)+0.5)/(float64(freq)+0.5))
	}

	return &BM25Index{
		tokenizer: tokenizer,
		docTF:     docTF,
		docLen:    docLen,
		idf:       idf,
		avgDocLen: avgDocLen,
		k1:        k1,
		b:         b,
	}
}

// Stats returns the indexed corpus statistics.
func (ix *BM25Index) Stats() domain.Stats {
	return domain.Stats{TotalChunks: len(ix.docLen), AvgDocLen: ix.avgDocLen}
}

// Score returns the BM25 score of the chunk at doc for the query tokens.
// An empty query, empty corpus or out-of-range index scores zero.
func (ix *BM25Index) Score(queryTokens []string, doc int) float64 {
	if len(queryTokens) == 0 || doc < 0 || doc >= len(ix.docTF) {
		return 0
	}

	tf := ix.docTF[doc]
	dl := float64(ix.docLen[doc])
	avgDl := ix.avgDocLen
	if avgDl <= 0 {
		avgDl = 1
	}

	score := 0.0
	for _, token := range queryTokens {
		freq, ok := tf[token]
		if !ok {
			continue
		}
		f := float64(freq)
		denom := f + ix.k1*(1.0-ix.b+ix.b*(dl/avgDl))
		if denom <= 0 {
			continue
		}
		score += ix.idf[token] * (f * (ix.k1 + 1.0)) / denom
	}
	return score
}

// TopCandidates scores the given chunk indices (all chunks when candidates
// is nil) and returns up to n hits with positive scores, descending, ties
// broken by ascending chunk index.
func (ix *BM25Index) TopCandidates(queryTokens []string, candidates []int, n int) []Hit {
	if len(queryTokens) == 0 || len(ix.docTF) == 0 {
		return nil
	}

	var hits []Hit
	score := func(doc int) {
		if s := ix.Score(queryTokens, doc); s > 0 {
			hits = append(hits, Hit{Doc: doc, Score: s})
		}
	}
	if candidates == nil {
		for doc := range ix.docTF {
			score(doc)
		}
	} else {
		for _, doc := range candidates {
			score(doc)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if n > 0 && len(hits) > n {
		hits = hits[:n]
	}
	return hits
}
