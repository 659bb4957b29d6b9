package port

import "context"

// JudgeItem is one candidate presented to a relevance judge. Index refers
// to the candidate's position in the pre-rerank order.
type JudgeItem struct {
	Index int
	Text  string
}

// JudgeScore is a relevance verdict for one candidate.
type JudgeScore struct {
	Index int
	Score float64
}

// Judge scores candidates for relevance to a query on a fixed numeric
// scale. Judges are strictly best-effort: any error from Judge leaves the
// caller's candidate order unchanged.
type Judge interface {
	Judge(ctx context.Context, query string, items []JudgeItem) ([]JudgeScore, error)

	// ModelName returns the name of the judging model.
	ModelName() string
}
