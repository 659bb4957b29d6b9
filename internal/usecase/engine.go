package usecase

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"kbase/internal/adapter/analyzer"
	"kbase/internal/adapter/category"
	"kbase/internal/adapter/corpus"
	"kbase/internal/adapter/embedding"
	"kbase/internal/adapter/index"
	"kbase/internal/adapter/rerank"
	"kbase/internal/domain"
	"kbase/internal/port"
)

var _ port.Retriever = (*Engine)(nil)

// Hybrid scoring defaults: candidate pool bound and the convex combination
// weights for the normalized lexical and vector scores.
const (
	DefaultLexicalCandidates = 20
	DefaultLexicalWeight     = 0.65
	DefaultTopK              = 5
)

// ScoredResult pairs a chunk with its overlap-ratio score, the confidence
// gate's scale, distinct from the hybrid score used for ranking.
type ScoredResult struct {
	Score float64
	Chunk domain.Chunk
}

// Engine runs the retrieval pipeline: category narrowing, hybrid lexical +
// vector scoring, best-effort reranking and confidence gating. One Engine
// serves concurrent queries; the corpus and index are read-only and the
// embedding cache synchronizes itself.
type Engine struct {
	store     *corpus.Store
	index     *index.BM25Index
	tokenizer *analyzer.Tokenizer
	cache     *embedding.Cache
	rules     *category.Ruleset
	reranker  *rerank.Reranker
	gate      *Gate
	assembler *Assembler
	logger    *slog.Logger

	lexicalCandidates int
	lexicalWeight     float64
	rerankWindow      int
}

// Params configures an Engine. Store, Index and Tokenizer are required;
// Cache and Reranker are optional (nil degrades to lexical-only scoring and
// no reranking). Zero numeric values take the defaults.
type Params struct {
	Store     *corpus.Store
	Index     *index.BM25Index
	Tokenizer *analyzer.Tokenizer
	Cache     *embedding.Cache
	Rules     *category.Ruleset
	Reranker  *rerank.Reranker
	Gate      *Gate
	Assembler *Assembler
	Logger    *slog.Logger

	LexicalCandidates int
	LexicalWeight     float64
	RerankWindow      int
}

// NewEngine creates an Engine.
func NewEngine(p Params) *Engine {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Rules == nil {
		p.Rules = category.DefaultRuleset()
	}
	if p.Gate == nil {
		p.Gate = NewGate(p.Tokenizer, p.Logger, GateParams{})
	}
	if p.Assembler == nil {
		p.Assembler = NewAssembler(p.Rules, AssemblerParams{})
	}
	if p.LexicalCandidates <= 0 {
		p.LexicalCandidates = DefaultLexicalCandidates
	}
	if p.LexicalWeight <= 0 || p.LexicalWeight > 1 {
		p.LexicalWeight = DefaultLexicalWeight
	}
	if p.RerankWindow <= 0 {
		p.RerankWindow = rerank.DefaultWindow
	}
	return &Engine{
		store:             p.Store,
		index:             p.Index,
		tokenizer:         p.Tokenizer,
		cache:             p.Cache,
		rules:             p.Rules,
		reranker:          p.Reranker,
		gate:              p.Gate,
		assembler:         p.Assembler,
		logger:            p.Logger,
		lexicalCandidates: p.LexicalCandidates,
		lexicalWeight:     p.LexicalWeight,
		rerankWindow:      p.RerankWindow,
	}
}

// Search runs the hybrid pipeline and returns the topK best chunks. An
// empty result means nothing matched; a priority-topic fallback chunk
// short-circuits the pipeline so that topic is never unanswered.
func (e *Engine) Search(ctx context.Context, query string, topK int) []domain.Chunk {
	if topK <= 0 {
		topK = DefaultTopK
	}

	candidates, fallback := e.rules.Narrow(query, e.store)
	if fallback != nil {
		return []domain.Chunk{*fallback}
	}

	scored, lexicalOnly := e.hybrid(ctx, query, candidates, topK)
	if len(scored) == 0 {
		return nil
	}
	if !lexicalOnly && e.reranker != nil {
		scored = e.reranker.Rerank(ctx, query, scored)
	}

	if len(scored) > topK {
		scored = scored[:topK]
	}
	chunks := make([]domain.Chunk, len(scored))
	for i, s := range scored {
		chunks[i] = s.Chunk
	}
	return chunks
}

// SearchScored ranks chunks on the overlap-ratio scale and applies the
// confidence gate to the best result. The returned scores are the gate's
// raw scale. An empty result means no confident match; rejections are
// logged by the gate.
func (e *Engine) SearchScored(ctx context.Context, query string, topK int) []ScoredResult {
	if topK <= 0 {
		topK = 3
	}

	base := e.tokenizer.Tokenize(query)
	baseLen := len(setOf(base))
	tokens := setOf(e.rules.Expand(query, base))
	if len(tokens) == 0 {
		return nil
	}

	candidates, fallback := e.rules.Narrow(query, e.store)
	if fallback != nil {
		// Hand-authored topic fallbacks are never gated.
		return []ScoredResult{{Score: 1.0, Chunk: *fallback}}
	}

	topic := e.rules.MatchedTopic(query)

	var results []ScoredResult
	score := func(chunk domain.Chunk) {
		s := e.overlapScore(tokens, baseLen, chunk)
		if s <= 0 {
			return
		}
		if topic != nil && topic.AnchorsChunk(chunk) {
			s += 1.0
		}
		results = append(results, ScoredResult{Score: s, Chunk: chunk})
	}
	if candidates == nil {
		for _, chunk := range e.store.All() {
			score(chunk)
		}
	} else {
		for _, i := range candidates {
			score(e.store.Chunk(i))
		}
	}
	if len(results) == 0 {
		return nil
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if !e.gate.Admit(query, results[0].Score, results[0].Chunk) {
		return nil
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// BuildContext formats the final chunk selection into one bounded text
// block for the downstream answer composer.
func (e *Engine) BuildContext(query string, chunks []domain.Chunk) string {
	return e.assembler.Build(query, chunks)
}

// Gather merges keyword-rule selections with hybrid search results,
// deduplicated, for context assembly.
func (e *Engine) Gather(ctx context.Context, query string, baseTopK int) []domain.Chunk {
	if baseTopK <= 0 {
		baseTopK = 6
	}
	keyword := e.rules.KeywordChunks(query, e.store, 4)
	searched := e.Search(ctx, query, baseTopK)

	combined := make([]domain.Chunk, 0, len(keyword)+len(searched))
	seen := make(map[string]struct{}, len(keyword)+len(searched))
	for _, chunk := range append(keyword, searched...) {
		key := chunk.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		combined = append(combined, chunk)
		if len(combined) >= baseTopK+len(keyword) {
			break
		}
	}
	return combined
}

// hybrid produces the ranked candidate list. lexicalOnly reports that the
// query embedding was unavailable and the scores are BM25-only; in that
// tier the caller skips the reranker and the lexical order stands.
func (e *Engine) hybrid(ctx context.Context, query string, candidates []int, topK int) (scored []domain.ScoredChunk, lexicalOnly bool) {
	// Query terms are deduplicated: repeating a word in the question must
	// not double its weight.
	tokens := dedupe(e.rules.Expand(query, e.tokenizer.Tokenize(query)))
	if len(tokens) == 0 {
		return nil, false
	}

	pool := e.lexicalCandidates
	if topK > pool {
		pool = topK
	}
	hits := e.index.TopCandidates(tokens, candidates, pool)
	if len(hits) == 0 {
		return nil, false
	}

	out := make([]domain.ScoredChunk, len(hits))
	for i, hit := range hits {
		out[i] = domain.ScoredChunk{
			Chunk:   e.store.Chunk(hit.Doc),
			Lexical: hit.Score,
		}
	}

	var queryVector []float32
	ok := false
	if e.cache != nil {
		queryVector, ok = e.cache.Get(ctx, query)
	}
	if !ok {
		// Lexical-only fallback tier: vector signal unavailable, BM25
		// order is the result.
		for i := range out {
			out[i].Hybrid = out[i].Lexical
		}
		return out, true
	}

	lexical := make([]float64, len(out))
	vector := make([]float64, len(out))
	for i := range out {
		lexical[i] = out[i].Lexical
		chunkVector, ok := e.cache.Get(ctx, out[i].Chunk.Body)
		if !ok {
			vector[i] = 0
			continue
		}
		vector[i] = cosineSimilarity(queryVector, chunkVector)
	}

	lexicalNorm := normalizeScores(lexical)
	vectorNorm := normalizeScores(vector)
	vectorWeight := 1.0 - e.lexicalWeight
	for i := range out {
		out[i].Vector = vector[i]
		out[i].Hybrid = e.lexicalWeight*lexicalNorm[i] + vectorWeight*vectorNorm[i]
	}

	// Stable sort: ties keep the lexical rank.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Hybrid > out[j].Hybrid
	})

	limit := topK
	if e.rerankWindow > limit {
		limit = e.rerankWindow
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, false
}

// overlapScore is the confidence-gate scale: body-token overlap plus half
// the title-token overlap, over the unexpanded query token count.
func (e *Engine) overlapScore(queryTokens map[string]struct{}, baseLen int, chunk domain.Chunk) float64 {
	if len(queryTokens) == 0 || baseLen <= 0 {
		return 0
	}
	bodyTokens := e.tokenizer.TokenSet(chunk.Body)
	if len(bodyTokens) == 0 {
		return 0
	}
	titleTokens := e.tokenizer.TokenSet(chunk.Title)

	bodyOverlap := 0
	titleOverlap := 0
	for token := range queryTokens {
		if _, hit := bodyTokens[token]; hit {
			bodyOverlap++
		}
		if _, hit := titleTokens[token]; hit {
			titleOverlap++
		}
	}
	raw := float64(bodyOverlap) + 0.5*float64(titleOverlap)
	return raw / math.Max(1.0, float64(baseLen))
}

// normalizeScores min-max normalizes to [0,1]. A uniform list normalizes
// to all zeros; no division by zero is possible.
func normalizeScores(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	minVal, maxVal := scores[0], scores[0]
	for _, s := range scores {
		if s < minVal {
			minVal = s
		}
		if s > maxVal {
			maxVal = s
		}
	}
	normalized := make([]float64, len(scores))
	if maxVal-minVal <= 1e-6 {
		return normalized
	}
	for i, s := range scores {
		normalized[i] = (s - minVal) / (maxVal - minVal)
	}
	return normalized
}

// cosineSimilarity treats mismatched or near-zero vectors as similarity 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	normA = math.Sqrt(normA)
	normB = math.Sqrt(normB)
	if normA <= 1e-9 || normB <= 1e-9 {
		return 0
	}
	return dot / (normA * normB)
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func setOf(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}
