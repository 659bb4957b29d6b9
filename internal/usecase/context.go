package usecase

import (
	"strings"
	"unicode/utf8"

	"kbase/internal/adapter/category"
	"kbase/internal/adapter/corpus"
	"kbase/internal/domain"
)

// Trimming defaults: bodies longer than MaxBody runes are shortened to a
// window around the first focus term.
const (
	DefaultMaxBody      = 700
	DefaultWindowBefore = 200
	DefaultWindowAfter  = 500
)

// Assembler formats the final chunk selection into one text block with a
// title, source reference and trimmed body per chunk.
type Assembler struct {
	rules        *category.Ruleset
	defaultFocus []string
	maxBody      int
	windowBefore int
	windowAfter  int
}

// AssemblerParams configures an Assembler; zero values take the defaults.
type AssemblerParams struct {
	MaxBody      int
	WindowBefore int
	WindowAfter  int
	DefaultFocus []string
}

// NewAssembler creates an Assembler.
func NewAssembler(rules *category.Ruleset, params AssemblerParams) *Assembler {
	if params.MaxBody <= 0 {
		params.MaxBody = DefaultMaxBody
	}
	if params.WindowBefore <= 0 {
		params.WindowBefore = DefaultWindowBefore
	}
	if params.WindowAfter <= 0 {
		params.WindowAfter = DefaultWindowAfter
	}
	if len(params.DefaultFocus) == 0 {
		params.DefaultFocus = corpus.ImportantTerms()
	}
	return &Assembler{
		rules:        rules,
		defaultFocus: params.DefaultFocus,
		maxBody:      params.MaxBody,
		windowBefore: params.WindowBefore,
		windowAfter:  params.WindowAfter,
	}
}

// Build produces the context block: one section per chunk, separated by
// horizontal rules.
func (a *Assembler) Build(query string, chunks []domain.Chunk) string {
	focus := a.rules.FocusTerms(query, a.defaultFocus)

	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		var lines []string
		if chunk.Title != "" {
			lines = append(lines, "Naslov: "+chunk.Title)
		}
		if chunk.URL != "" {
			lines = append(lines, "URL: "+chunk.URL)
		}
		lines = append(lines, "Vsebina: "+a.trim(strings.TrimSpace(chunk.Body), focus))
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// trim shortens bodies beyond maxBody runes. It extracts a window around
// the first focus-term occurrence, snapped to a sentence boundary, so the
// excerpt stays readable and on topic; with no focus term it truncates at
// the nearest trailing sentence boundary.
func (a *Assembler) trim(content string, focus []string) string {
	runes := []rune(content)
	if len(runes) <= a.maxBody {
		return content
	}

	lowered := strings.ToLower(content)
	for _, term := range focus {
		byteIdx := strings.Index(lowered, term)
		if byteIdx == -1 {
			continue
		}
		runeIdx := utf8.RuneCountInString(lowered[:byteIdx])

		start := runeIdx - a.windowBefore
		if start < 0 {
			start = 0
		}
		end := runeIdx + a.windowAfter
		if end > len(runes) {
			end = len(runes)
		}
		snippet := string(runes[start:end])
		if start > 0 {
			// The window begins mid-sentence; drop through the first
			// boundary.
			if dot := strings.Index(snippet, ". "); dot != -1 {
				snippet = snippet[dot+1:]
			}
		}
		return strings.TrimSpace(snippet)
	}

	snippet := string(runes[:a.maxBody])
	if dot := strings.LastIndex(snippet, "."); dot != -1 {
		if utf8.RuneCountInString(snippet[:dot]) > a.windowBefore {
			snippet = snippet[:dot+1]
		}
	}
	return snippet
}
