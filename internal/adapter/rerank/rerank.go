package rerank

import (
	"context"
	"sort"
	"strings"

	"kbase/internal/domain"
	"kbase/internal/port"
)

// Defaults for the rerank stage.
const (
	DefaultWindow     = 6
	DefaultSnippetMax = 350
)

// Reranker reorders the head of a candidate list by an external judge's
// relevance scores. Reranking is strictly best-effort: on any judge failure
// the input order is returned unchanged, and Rerank never returns an error.
type Reranker struct {
	judge      port.Judge
	window     int
	snippetMax int
}

// NewReranker creates a Reranker sending at most window candidates to the
// judge, each represented by a snippet of at most snippetMax runes.
func NewReranker(judge port.Judge, window, snippetMax int) *Reranker {
	if window <= 0 {
		window = DefaultWindow
	}
	if snippetMax <= 0 {
		snippetMax = DefaultSnippetMax
	}
	return &Reranker{
		judge:      judge,
		window:     window,
		snippetMax: snippetMax,
	}
}

// Rerank reorders the first window candidates by judge score descending;
// candidates past the window keep their positions after the reranked head.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.ScoredChunk) []domain.ScoredChunk {
	if r.judge == nil || len(candidates) == 0 {
		return candidates
	}

	window := r.window
	if window > len(candidates) {
		window = len(candidates)
	}
	head := candidates[:window]

	items := make([]port.JudgeItem, len(head))
	for i, c := range head {
		items[i] = port.JudgeItem{
			Index: i,
			Text:  r.renderItem(c.Chunk),
		}
	}

	verdicts, err := r.judge.Judge(ctx, query, items)
	if err != nil {
		return candidates
	}

	scores := make(map[int]float64, len(verdicts))
	for _, v := range verdicts {
		if v.Index < 0 || v.Index >= window {
			continue
		}
		scores[v.Index] = v.Score
	}

	order := make([]int, window)
	for i := range order {
		order[i] = i
	}
	// Unscored candidates default to 0; the stable sort keeps their
	// pre-rerank relative order.
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	reordered := make([]domain.ScoredChunk, 0, len(candidates))
	for _, i := range order {
		reordered = append(reordered, head[i])
	}
	reordered = append(reordered, candidates[window:]...)
	return reordered
}

// renderItem formats one candidate for the judge prompt: the title on its
// own line, then a length-capped body snippet so prompt size stays bounded.
func (r *Reranker) renderItem(chunk domain.Chunk) string {
	snippet := strings.TrimSpace(chunk.Body)
	runes := []rune(snippet)
	if len(runes) > r.snippetMax {
		snippet = string(runes[:r.snippetMax])
		if cut := strings.LastIndex(snippet, " "); cut > 0 {
			snippet = snippet[:cut]
		}
	}
	title := strings.TrimSpace(chunk.Title)
	if title == "" {
		return snippet
	}
	return title + "\n" + snippet
}
