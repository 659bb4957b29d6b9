package usecase

import (
	"log/slog"
	"strings"

	"kbase/internal/adapter/analyzer"
	"kbase/internal/domain"
)

// Gate defaults. The score threshold applies to the overlap-ratio scale,
// not the hybrid ranking score.
const (
	DefaultScoreThreshold  = 0.75
	DefaultMinOverlap      = 2
	DefaultLongQueryTokens = 6
	DefaultShortRatio      = 0.5
	DefaultLongRatio       = 0.25
)

// Gate decides whether the top scored candidate is strong enough to
// surface at all. Two independent checks run: an absolute threshold on the
// overlap-ratio score, and a term-overlap guard against false positives.
// Every rejection is logged with the query and overlap metrics for later
// tuning.
type Gate struct {
	tokenizer       *analyzer.Tokenizer
	logger          *slog.Logger
	scoreThreshold  float64
	minOverlap      int
	longQueryTokens int
	shortRatio      float64
	longRatio       float64
}

// GateParams configures a Gate; zero values take the defaults.
type GateParams struct {
	ScoreThreshold  float64
	MinOverlap      int
	LongQueryTokens int
	ShortRatio      float64
	LongRatio       float64
}

// NewGate creates a Gate.
func NewGate(tokenizer *analyzer.Tokenizer, logger *slog.Logger, params GateParams) *Gate {
	if params.ScoreThreshold <= 0 {
		params.ScoreThreshold = DefaultScoreThreshold
	}
	if params.MinOverlap <= 0 {
		params.MinOverlap = DefaultMinOverlap
	}
	if params.LongQueryTokens <= 0 {
		params.LongQueryTokens = DefaultLongQueryTokens
	}
	if params.ShortRatio <= 0 {
		params.ShortRatio = DefaultShortRatio
	}
	if params.LongRatio <= 0 {
		params.LongRatio = DefaultLongRatio
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		tokenizer:       tokenizer,
		logger:          logger,
		scoreThreshold:  params.ScoreThreshold,
		minOverlap:      params.MinOverlap,
		longQueryTokens: params.LongQueryTokens,
		shortRatio:      params.ShortRatio,
		longRatio:       params.LongRatio,
	}
}

// Admit reports whether the candidate may be surfaced. score is the
// candidate's overlap-ratio score.
func (g *Gate) Admit(query string, score float64, chunk domain.Chunk) bool {
	overlap, ratio, querySize := g.overlap(query, chunk)

	if score < g.scoreThreshold {
		g.reject(query, score, overlap, ratio, "below score threshold")
		return false
	}

	if querySize == 0 {
		// No significant tokens to compare; the threshold check stands
		// alone.
		return true
	}

	ok := false
	if querySize >= g.longQueryTokens {
		ok = overlap >= g.minOverlap && ratio >= g.longRatio
	} else {
		ok = overlap >= g.minOverlap || ratio >= g.shortRatio
	}
	if !ok {
		g.reject(query, score, overlap, ratio, "insufficient term overlap")
	}
	return ok
}

func (g *Gate) overlap(query string, chunk domain.Chunk) (overlap int, ratio float64, querySize int) {
	queryTokens := g.tokenizer.SignificantSet(query)
	if len(queryTokens) == 0 {
		return 0, 0, 0
	}
	chunkTokens := g.tokenizer.SignificantSet(strings.TrimSpace(chunk.Title + " " + chunk.Body))
	for token := range queryTokens {
		if _, hit := chunkTokens[token]; hit {
			overlap++
		}
	}
	return overlap, float64(overlap) / float64(len(queryTokens)), len(queryTokens)
}

func (g *Gate) reject(query string, score float64, overlap int, ratio float64, reason string) {
	g.logger.Warn("low-confidence result rejected",
		"reason", reason,
		"query", query,
		"score", score,
		"overlap", overlap,
		"ratio", ratio,
	)
}
