package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbase/internal/adapter/analyzer"
	"kbase/internal/adapter/corpus"
	"kbase/internal/domain"
)

func buildIndex(t *testing.T, chunks []domain.Chunk) (*BM25Index, *analyzer.Tokenizer) {
	t.Helper()
	tok := analyzer.NewTokenizer()
	store := corpus.NewStore(chunks)
	return Build(store, tok, DefaultK1, DefaultB), tok
}

func TestBM25_RanksMatchingChunkFirst(t *testing.T) {
	ix, tok := buildIndex(t, []domain.Chunk{
		{Title: "Cenik", Body: "Jahanje s ponijem stane pet evrov za en krog po travniku."},
		{Title: "Sobe", Body: "Vse sobe imajo lastno kopalnico in balkon s pogledom na dolino."},
		{Title: "Zajtrk", Body: "Zajtrk je domač, s kruhom, marmelado in mlekom s kmetije."},
	})

	hits := ix.TopCandidates(tok.Tokenize("kopalnico balkon"), nil, 10)
	require.NotEmpty(t, hits)
	assert.Equal(t, 1, hits[0].Doc)
}

func TestBM25_ScoreMonotonicInTermFrequency(t *testing.T) {
	ix, tok := buildIndex(t, []domain.Chunk{
		{Title: "", Body: "marmelada kruh mleko sir jajca"},
		{Title: "", Body: "marmelada marmelada kruh mleko sir"},
	})

	query := tok.Tokenize("marmelada")
	once := ix.Score(query, 0)
	twice := ix.Score(query, 1)
	assert.Greater(t, twice, once,
		"repeating the term in an equal-length chunk must raise the score")
}

func TestBM25_ScoresAreNonNegative(t *testing.T) {
	// Smoothed IDF keeps terms occurring in every chunk above zero.
	ix, tok := buildIndex(t, []domain.Chunk{
		{Title: "", Body: "kmetija ponuja zajtrk"},
		{Title: "", Body: "kmetija ponuja kosilo"},
		{Title: "", Body: "kmetija ponuja jahanje"},
	})

	query := tok.Tokenize("kmetija")
	for doc := 0; doc < 3; doc++ {
		assert.Greater(t, ix.Score(query, doc), 0.0)
	}
}

func TestBM25_TitleIsIndexed(t *testing.T) {
	ix, tok := buildIndex(t, []domain.Chunk{
		{Title: "Jahanje", Body: "Cena za en krog je pet evrov."},
		{Title: "Kosilo", Body: "Nedeljsko kosilo strežemo od dvanajstih naprej."},
	})

	hits := ix.TopCandidates(tok.Tokenize("jahanje"), nil, 10)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Doc)
}

func TestBM25_CandidateSubsetRestrictsScoring(t *testing.T) {
	ix, tok := buildIndex(t, []domain.Chunk{
		{Title: "", Body: "jahanje s ponijem po travniku"},
		{Title: "", Body: "jahanje velikih konj po gozdu"},
	})

	hits := ix.TopCandidates(tok.Tokenize("jahanje"), []int{1}, 10)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Doc)
}

func TestBM25_EmptyInputs(t *testing.T) {
	ix, tok := buildIndex(t, nil)
	assert.Nil(t, ix.TopCandidates(tok.Tokenize("karkoli"), nil, 10))
	assert.Zero(t, ix.Score(tok.Tokenize("karkoli"), 0))

	populated, _ := buildIndex(t, []domain.Chunk{{Title: "Sobe", Body: "Soba Ana ima balkon in kopalnico."}})
	assert.Nil(t, populated.TopCandidates(nil, nil, 10))
	assert.Zero(t, populated.Score(nil, 0))
	assert.Zero(t, populated.Score([]string{"sobe"}, 99))
}

func TestBM25_Stats(t *testing.T) {
	ix, _ := buildIndex(t, []domain.Chunk{
		{Title: "", Body: "ena dve tri"},
		{Title: "", Body: "ena dve tri štiri pet"},
	})
	stats := ix.Stats()
	assert.Equal(t, 2, stats.TotalChunks)
	assert.InDelta(t, 4.0, stats.AvgDocLen, 1e-9)
}
