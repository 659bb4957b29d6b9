package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbase/internal/adapter/analyzer"
	"kbase/internal/adapter/corpus"
	"kbase/internal/adapter/embedding"
	"kbase/internal/adapter/index"
	"kbase/internal/adapter/rerank"
	"kbase/internal/domain"
	"kbase/internal/port"
)

// failEmbedder simulates an unreachable embedding provider.
type failEmbedder struct{}

func (failEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider unavailable")
}
func (failEmbedder) Dimension() int    { return 8 }
func (failEmbedder) ModelName() string { return "fail" }

// recordingJudge fails the test if it is ever consulted.
type recordingJudge struct {
	t *testing.T
}

func (j *recordingJudge) Judge(context.Context, string, []port.JudgeItem) ([]port.JudgeScore, error) {
	j.t.Error("judge must not be called in the lexical-only tier")
	return nil, nil
}
func (j *recordingJudge) ModelName() string { return "recording" }

func farmChunks() []domain.Chunk {
	return []domain.Chunk{
		{
			URL:   "https://example.si/sobe",
			Title: "Sobe",
			Body:  "Na kmetiji imamo tri sobe: Aljaž, Julija in Ana. Vse sobe imajo lastno kopalnico in pogled na dolino.",
		},
		{
			URL:   "https://example.si/cenik",
			Title: "Cenik",
			Body:  "Nočitev z zajtrkom stane 35 evrov na osebo, otroci imajo popust.",
		},
		{
			URL:   "https://example.si/izdelki",
			Title: "Domači izdelki",
			Body:  "Ponujamo domačo marmelado iz borovnic, salamo in pohorsko bunko.",
		},
	}
}

func newTestEngine(t *testing.T, chunks []domain.Chunk, cache *embedding.Cache, reranker *rerank.Reranker) (*Engine, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	tok := analyzer.NewTokenizer()
	store := corpus.NewStore(chunks)
	engine := NewEngine(Params{
		Store:     store,
		Index:     index.Build(store, tok, 0, -1),
		Tokenizer: tok,
		Cache:     cache,
		Reranker:  reranker,
		Logger:    logger,
	})
	return engine, &buf
}

func TestSearch_LexicalOnlyKeepsIndexOrder(t *testing.T) {
	chunks := []domain.Chunk{
		{Title: "", Body: "marmelada kruh mleko sir jajca"},
		{Title: "", Body: "marmelada marmelada kruh mleko sir"},
		{Title: "", Body: "sobe balkon kopalnica pogled dolina"},
	}
	cache, err := embedding.NewCache(failEmbedder{})
	require.NoError(t, err)
	engine, _ := newTestEngine(t, chunks, cache, nil)

	got := engine.Search(context.Background(), "marmelada", 5)
	require.Len(t, got, 2)
	assert.Equal(t, chunks[1].Body, got[0].Body, "higher term frequency ranks first")
	assert.Equal(t, chunks[0].Body, got[1].Body)
}

func TestSearch_LexicalOnlySkipsJudge(t *testing.T) {
	cache, err := embedding.NewCache(failEmbedder{})
	require.NoError(t, err)
	reranker := rerank.NewReranker(&recordingJudge{t: t}, 0, 0)
	engine, _ := newTestEngine(t, farmChunks(), cache, reranker)

	got := engine.Search(context.Background(), "marmelado iz borovnic", 5)
	assert.NotEmpty(t, got)
}

func TestSearch_HybridWithEmbeddings(t *testing.T) {
	cache, err := embedding.NewCache(embedding.NewMockEmbedder(8))
	require.NoError(t, err)
	engine, _ := newTestEngine(t, farmChunks(), cache, nil)

	got := engine.Search(context.Background(), "katere sobe imate", 2)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 2)
	assert.Equal(t, "Sobe", got[0].Title)
}

func TestSearch_RoomsScenario(t *testing.T) {
	engine, _ := newTestEngine(t, farmChunks(), nil, nil)

	got := engine.Search(context.Background(), "katere sobe imate", 5)
	require.NotEmpty(t, got)
	require.Equal(t, "Sobe", got[0].Title)

	block := engine.BuildContext("katere sobe imate", got)
	assert.Contains(t, block, "Aljaž")
	assert.Contains(t, block, "Ana")
	assert.Contains(t, block, "Naslov: Sobe")
	assert.Contains(t, block, "URL: https://example.si/sobe")
}

func TestSearch_EmptyCorpus(t *testing.T) {
	engine, _ := newTestEngine(t, nil, nil, nil)
	assert.Empty(t, engine.Search(context.Background(), "katere sobe imate", 5))
}

func TestSearch_NoMatchingTokens(t *testing.T) {
	engine, _ := newTestEngine(t, farmChunks(), nil, nil)
	assert.Empty(t, engine.Search(context.Background(), "xylophone quantum", 5))
}

func TestSearch_TopicFallbackShortCircuits(t *testing.T) {
	engine, _ := newTestEngine(t, farmChunks(), nil, nil)

	got := engine.Search(context.Background(), "ali pri vas jahamo konje", 5)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Body, "5,00")
	assert.Equal(t, "https://kmetijapodgoro.si/cenik/", got[0].URL)
}

func TestSearchScored_AdmitsConfidentMatch(t *testing.T) {
	engine, _ := newTestEngine(t, farmChunks(), nil, nil)

	results := engine.SearchScored(context.Background(), "domačo marmelado iz borovnic", 3)
	require.NotEmpty(t, results)
	assert.Equal(t, "Domači izdelki", results[0].Chunk.Title)
	assert.GreaterOrEqual(t, results[0].Score, 0.75)
}

func TestSearchScored_ZeroOverlapReturnsEmpty(t *testing.T) {
	engine, _ := newTestEngine(t, farmChunks(), nil, nil)
	assert.Empty(t, engine.SearchScored(context.Background(), "xylophone quantum", 3))
}

func TestSearchScored_LowRatioRejectedAndLogged(t *testing.T) {
	engine, log := newTestEngine(t, farmChunks(), nil, nil)

	// Eight query tokens, one of which appears in the corpus: the top
	// overlap-ratio score lands far below the threshold.
	query := "marmelado cena dostava naročilo prevzem paket odpiralni čas"
	results := engine.SearchScored(context.Background(), query, 3)
	assert.Empty(t, results)
	assert.Contains(t, log.String(), "low-confidence result rejected")
}

func TestSearchScored_TopicAnchorBoost(t *testing.T) {
	chunks := []domain.Chunk{
		{
			URL:   "https://example.si/cenik",
			Title: "Cenik",
			Body:  "Jahanje s ponijem stane pet evrov za en krog.",
		},
		{
			URL:   "https://example.si/jahanje",
			Title: "Jahanje",
			Body:  "Pri nas jahanje poteka ob sobotah dopoldne.",
		},
	}
	engine, _ := newTestEngine(t, chunks, nil, nil)

	results := engine.SearchScored(context.Background(), "koliko stane jahanje", 3)
	require.NotEmpty(t, results)
	assert.Equal(t, "Jahanje", results[0].Chunk.Title,
		"anchored chunks outrank plain matches")
	assert.Greater(t, results[0].Score, 1.0)
}

func TestSearchScored_TopicFallbackBypassesGate(t *testing.T) {
	chunks := []domain.Chunk{
		{Title: "Sobe", Body: "Vse sobe imajo lastno kopalnico in balkon."},
	}
	engine, log := newTestEngine(t, chunks, nil, nil)

	results := engine.SearchScored(context.Background(), "ali lahko jahamo", 3)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Chunk.Body, "5,00")
	assert.NotContains(t, log.String(), "rejected")
}

func TestGather_MergesKeywordAndSearchResults(t *testing.T) {
	engine, _ := newTestEngine(t, farmChunks(), nil, nil)

	got := engine.Gather(context.Background(), "kje kupim salamo", 6)
	require.NotEmpty(t, got)
	assert.Equal(t, "Domači izdelki", got[0].Title)

	seen := make(map[string]int)
	for _, chunk := range got {
		seen[chunk.Key()]++
	}
	for key, count := range seen {
		assert.Equal(t, 1, count, "duplicate chunk %s", key)
	}
}

func TestNormalizeScores(t *testing.T) {
	normalized := normalizeScores([]float64{2, 4, 8})
	require.Len(t, normalized, 3)
	assert.InDelta(t, 0.0, normalized[0], 1e-9)
	assert.InDelta(t, 1.0, normalized[2], 1e-9)
	for _, v := range normalized {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}

	uniform := normalizeScores([]float64{3, 3, 3})
	assert.Equal(t, []float64{0, 0, 0}, uniform)

	assert.Nil(t, normalizeScores(nil))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, cosineSimilarity(nil, []float32{1}))
}
