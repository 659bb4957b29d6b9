package category

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"kbase/internal/adapter/corpus"
	"kbase/internal/domain"
)

// Rule maps a keyword group to a corpus subset. A query matches when any
// term appears as a substring of the lowercased query; matching chunks are
// those whose title, body or URL contains any of the same terms.
type Rule struct {
	Label string   `yaml:"label"`
	Terms []string `yaml:"terms"`
}

// Topic is a higher-priority check for a high-value subject that must never
// go unanswered. When a query matches, the candidate set is narrowed to
// chunks containing an anchor term; when none qualify, the hand-authored
// Fallback chunk is substituted.
type Topic struct {
	Label    string        `yaml:"label"`
	Terms    []string      `yaml:"terms"`
	Anchors  []string      `yaml:"anchors"`
	Fallback *domain.Chunk `yaml:"fallback,omitempty"`
}

// Expansion adds query tokens when any trigger appears as a substring of
// the lowercased query.
type Expansion struct {
	Triggers []string `yaml:"triggers"`
	Tokens   []string `yaml:"tokens"`
}

// Ruleset is the hand-authored, versioned category table. It is data, not
// code, so it can be unit-tested and revised independently of the scoring
// pipeline.
type Ruleset struct {
	Version    string      `yaml:"version"`
	Rules      []Rule      `yaml:"rules"`
	Topics     []Topic     `yaml:"topics"`
	Expansions []Expansion `yaml:"expansions"`
}

// LoadRuleset reads a ruleset from a YAML file.
func LoadRuleset(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Save writes the ruleset to a YAML file.
func (rs *Ruleset) Save(path string) error {
	data, err := yaml.Marshal(rs)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Narrow returns the candidate chunk indices for the query, or nil when no
// rule matches (no narrowing). A non-nil empty slice means a rule matched
// but no chunk did. When a priority topic matches and no chunk carries its
// anchors, the topic's synthetic fallback chunk is returned instead.
func (rs *Ruleset) Narrow(query string, store *corpus.Store) ([]int, *domain.Chunk) {
	lowered := strings.ToLower(query)

	var candidates []int
	narrowed := false
	for _, rule := range rs.Rules {
		if !matchesAny(lowered, rule.Terms) {
			continue
		}
		narrowed = true
		candidates = make([]int, 0)
		for i := 0; i < store.Len(); i++ {
			if matchesAny(chunkText(store.Chunk(i)), rule.Terms) {
				candidates = append(candidates, i)
			}
		}
		break
	}

	for _, topic := range rs.Topics {
		if !matchesAny(lowered, topic.Terms) {
			continue
		}
		source := candidates
		if !narrowed {
			source = allIndices(store.Len())
		}
		filtered := make([]int, 0, len(source))
		for _, i := range source {
			if matchesAny(chunkText(store.Chunk(i)), topic.Anchors) {
				filtered = append(filtered, i)
			}
		}
		if len(filtered) > 0 {
			return filtered, nil
		}
		if topic.Fallback != nil {
			return nil, topic.Fallback
		}
	}

	if !narrowed {
		return nil, nil
	}
	return candidates, nil
}

// MatchedTopic returns the first priority topic the query matches, if any.
func (rs *Ruleset) MatchedTopic(query string) *Topic {
	lowered := strings.ToLower(query)
	for i := range rs.Topics {
		if matchesAny(lowered, rs.Topics[i].Terms) {
			return &rs.Topics[i]
		}
	}
	return nil
}

// AnchorsChunk reports whether the chunk's title or URL carries one of the
// topic's anchor terms.
func (t *Topic) AnchorsChunk(chunk domain.Chunk) bool {
	text := strings.ToLower(chunk.Title) + " " + strings.ToLower(chunk.URL)
	return matchesAny(text, t.Anchors)
}

// FocusTerms collects the terms of every rule the query matches, falling
// back to defaults when none do. Terms shorter than three runes are
// dropped; the result is deduplicated.
func (rs *Ruleset) FocusTerms(query string, defaults []string) []string {
	lowered := strings.ToLower(query)
	var focus []string
	for _, rule := range rs.Rules {
		if matchesAny(lowered, rule.Terms) {
			focus = append(focus, rule.Terms...)
		}
	}
	if len(focus) == 0 {
		focus = append(focus, defaults...)
	}

	seen := make(map[string]struct{}, len(focus))
	out := make([]string, 0, len(focus))
	for _, term := range focus {
		if len([]rune(term)) < 3 {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

// Expand adds expansion tokens for every matching trigger. The input slice
// is not mutated.
func (rs *Ruleset) Expand(query string, tokens []string) []string {
	lowered := strings.ToLower(query)
	expanded := make([]string, len(tokens))
	copy(expanded, tokens)

	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		seen[tok] = struct{}{}
	}
	for _, exp := range rs.Expansions {
		if !matchesAny(lowered, exp.Triggers) {
			continue
		}
		for _, tok := range exp.Tokens {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			expanded = append(expanded, tok)
		}
	}
	return expanded
}

// KeywordChunks returns up to limit chunks selected purely by the rule
// table, deduplicated, in rule then corpus order.
func (rs *Ruleset) KeywordChunks(query string, store *corpus.Store, limit int) []domain.Chunk {
	lowered := strings.ToLower(query)
	var selected []domain.Chunk
	seen := make(map[string]struct{})

	for _, rule := range rs.Rules {
		if !matchesAny(lowered, rule.Terms) {
			continue
		}
		for i := 0; i < store.Len(); i++ {
			chunk := store.Chunk(i)
			if !matchesAny(chunkText(chunk), rule.Terms) {
				continue
			}
			key := chunk.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			selected = append(selected, chunk)
			seen[key] = struct{}{}
			if len(selected) >= limit {
				return selected
			}
		}
	}
	return selected
}

func matchesAny(text string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func chunkText(chunk domain.Chunk) string {
	return strings.ToLower(chunk.Title) + " " + strings.ToLower(chunk.Body) + " " + strings.ToLower(chunk.URL)
}

func allIndices(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

// DefaultRuleset returns the built-in table for the farm knowledge corpus.
func DefaultRuleset() *Ruleset {
	return &Ruleset{
		Version: "1",
		Rules: []Rule{
			{Label: "salama", Terms: []string{"salama", "salamo", "salame", "klobasa", "klobaso", "mesni izdelki", "klobase"}},
			{Label: "bunka", Terms: []string{"bunka", "bunko", "bunke", "pohorska bunka"}},
			{Label: "marmelada", Terms: []string{"marmelada", "marmelado", "marmelade", "marmeldo", "džem", "namaz", "marmelad"}},
			{Label: "liker", Terms: []string{"liker", "likerje", "žganje", "žganja", "tepkovec"}},
			{Label: "jahanje", Terms: []string{"jahanje", "jahati", "jahamo", "poni", "ponij", "ponija", "ponijem"}},
			{Label: "nočitev", Terms: []string{"nočitev", "nočitve", "noči"}},
			{Label: "kosilo", Terms: []string{"vikend kosilo", "degustacijski", "degustacijo", "kosilo"}},
		},
		Topics: []Topic{
			{
				Label:   "jahanje",
				Terms:   []string{"jahanje", "jahati", "jahamo", "poni", "ponij", "konj", "konja"},
				Anchors: []string{"ponij", "jahanje"},
				Fallback: &domain.Chunk{
					URL:   "https://kmetijapodgoro.si/cenik/",
					Title: "Jahanje s ponijem",
					Body:  "Jahanje s ponijem / 1 krog – 5,00 € (glej cenik Kmetija Pod Goro).",
				},
			},
		},
		Expansions: []Expansion{
			{Triggers: []string{"konj", "konja"}, Tokens: []string{"poni", "ponij", "ponija", "jahanje"}},
			{Triggers: []string{"jah"}, Tokens: []string{"jahanje", "poni", "ponij", "ponija"}},
		},
	}
}
