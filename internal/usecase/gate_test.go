package usecase

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"kbase/internal/adapter/analyzer"
	"kbase/internal/domain"
)

func newTestGate(t *testing.T) (*Gate, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewGate(analyzer.NewTokenizer(), logger, GateParams{}), &buf
}

func TestGate_RejectsBelowThreshold(t *testing.T) {
	gate, log := newTestGate(t)

	chunk := domain.Chunk{Title: "Sobe", Body: "Vse sobe imajo lastno kopalnico in balkon."}
	admitted := gate.Admit("sobe kopalnico", 0.5, chunk)
	assert.False(t, admitted)
	assert.Contains(t, log.String(), "low-confidence result rejected")
	assert.Contains(t, log.String(), "below score threshold")
}

func TestGate_ShortQueryOverlapOrRatio(t *testing.T) {
	gate, _ := newTestGate(t)

	chunk := domain.Chunk{Title: "Sobe", Body: "Vse sobe imajo lastno kopalnico in balkon."}

	// Two shared significant tokens satisfy the overlap arm.
	assert.True(t, gate.Admit("sobe kopalnico ceno", 0.9, chunk))

	// One shared token out of one satisfies the ratio arm.
	assert.True(t, gate.Admit("kopalnico", 0.9, chunk))
}

func TestGate_ShortQueryInsufficientOverlap(t *testing.T) {
	gate, log := newTestGate(t)

	chunk := domain.Chunk{Title: "Sobe", Body: "Vse sobe imajo lastno kopalnico in balkon."}

	// One shared token out of three: overlap 1 < 2 and ratio 0.33 < 0.5.
	admitted := gate.Admit("kopalnico zajtrk parkirišče", 0.9, chunk)
	assert.False(t, admitted)
	assert.Contains(t, log.String(), "insufficient term overlap")
}

func TestGate_LongQueryRequiresBothArms(t *testing.T) {
	gate, log := newTestGate(t)

	chunk := domain.Chunk{Title: "Izdelki", Body: "Domača marmelada iz borovnic je na voljo vse leto."}

	// Eight significant tokens, one shared: rejected despite a passing score.
	longQuery := "marmelada cena dostava naročilo prevzem kmetija odpiralni čas"
	assert.False(t, gate.Admit(longQuery, 0.9, chunk))
	assert.Contains(t, log.String(), "insufficient term overlap")

	// Two shared tokens at ratio 0.25 pass both arms.
	chunk = domain.Chunk{Title: "Izdelki", Body: "Domača marmelada iz borovnic, cena na kozarec."}
	assert.True(t, gate.Admit(longQuery, 0.9, chunk))
}

func TestGate_NoSignificantTokens(t *testing.T) {
	gate, _ := newTestGate(t)

	chunk := domain.Chunk{Title: "Sobe", Body: "Vse sobe imajo balkon."}

	// Only stopwords and sub-minimum words: the threshold decides alone.
	assert.True(t, gate.Admit("ali je to", 0.9, chunk))
	assert.False(t, gate.Admit("ali je to", 0.5, chunk))
}
