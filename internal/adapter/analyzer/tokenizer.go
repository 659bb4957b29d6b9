package analyzer

import (
	"strings"
	"unicode"
)

// minTokenLen is the shared token-length floor. It applies identically when
// indexing and when querying; the two must never disagree.
const minTokenLen = 3

// Tokenizer splits text into lowercase tokens. The same instance serves the
// lexical index, the overlap scorer and the confidence gate.
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer creates a Tokenizer with the default stopword list.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{stopwords: defaultStopwords()}
}

// Tokenize returns the lexical tokens of text: lowercased maximal runs of
// letters and digits, shorter-than-three-rune tokens dropped.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < minTokenLen {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// TokenSet returns the lexical tokens of text as a set.
func (t *Tokenizer) TokenSet(text string) map[string]struct{} {
	tokens := t.Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// SignificantSet returns the lexical tokens of text with stopwords removed.
// The confidence gate's overlap checks run on these.
func (t *Tokenizer) SignificantSet(text string) map[string]struct{} {
	set := t.TokenSet(text)
	for tok := range set {
		if _, stop := t.stopwords[tok]; stop {
			delete(set, tok)
		}
	}
	return set
}

// splitWords splits text into maximal runs of letters and digits. Unicode
// letter classes cover the extended Latin alphabet (č, š, ž, đ, ć).
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

// defaultStopwords returns the Slovenian and English stopwords stripped
// before overlap checks.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"ali", "kaj", "kdaj", "kje", "kako", "kdo", "kolik", "koliko",
		"ker", "niso", "naj", "tudi", "lahko", "biti", "smo", "ste",
		"sem", "vas", "vam", "nas", "jih", "tisto", "moj", "moja",
		"moje", "tvoj", "tvoja", "tvoje", "njihov", "njihova",
		"the", "and", "are", "for", "was", "were", "will", "with",
		"this", "that", "have", "had", "but", "not", "you", "your",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
