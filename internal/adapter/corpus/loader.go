package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"kbase/internal/domain"
)

// minParagraphLen is the shortest paragraph kept unconditionally. Shorter
// lines survive only when they mention a domain-important term, so price
// lines like "Jahanje s ponijem / 1 krog – 5,00 €" are not dropped.
const minParagraphLen = 40

// importantTerms marks short-but-critical lines worth keeping.
var importantTerms = []string{
	"jahanje",
	"jahamo",
	"ponij",
	"bunka",
	"marmelad",
	"salama",
	"klobasa",
	"liker",
}

// Loader reads raw JSONL corpus records and splits them into chunks.
type Loader struct {
	patterns []string
}

// NewLoader creates a Loader that ingests files matching the given glob
// patterns (doublestar syntax, relative to the load directory).
func NewLoader(patterns []string) *Loader {
	if len(patterns) == 0 {
		patterns = []string{"**/*.jsonl"}
	}
	return &Loader{patterns: patterns}
}

// LoadDir reads every matching file under dir and returns the chunk
// sequence in file, record and paragraph order.
func (l *Loader) LoadDir(dir string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if !l.matches(filepath.ToSlash(rel)) {
			return nil
		}
		fileChunks, err := LoadFile(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		chunks = append(chunks, fileChunks...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

func (l *Loader) matches(rel string) bool {
	for _, pattern := range l.patterns {
		matched, err := doublestar.Match(pattern, rel)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// LoadFile reads one JSONL file of corpus records.
func LoadFile(path string) ([]domain.Chunk, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadRecords(file)
}

// ReadRecords parses JSONL corpus records from r and splits each record's
// content into chunks. Blank and malformed lines are skipped.
func ReadRecords(r io.Reader) ([]domain.Chunk, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var chunks []domain.Chunk
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record domain.Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		chunks = append(chunks, SplitRecord(record)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return chunks, nil
}

// SplitRecord turns one raw record into paragraph chunks.
func SplitRecord(record domain.Record) []domain.Chunk {
	if record.URL == "" && record.Title == "" && record.Content == "" {
		return nil
	}
	paragraphs := splitParagraphs(record.Content)
	chunks := make([]domain.Chunk, 0, len(paragraphs))
	for _, paragraph := range paragraphs {
		chunks = append(chunks, domain.Chunk{
			URL:   record.URL,
			Title: record.Title,
			Body:  paragraph,
		})
	}
	return chunks
}

// splitParagraphs splits content into paragraph-like units. Units shorter
// than minParagraphLen runes are kept only when they contain an important
// term.
func splitParagraphs(content string) []string {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	var paragraphs []string
	for _, raw := range strings.Split(normalized, "\n") {
		paragraph := strings.TrimSpace(raw)
		if paragraph == "" {
			continue
		}
		if len([]rune(paragraph)) < minParagraphLen && !containsImportantTerm(paragraph) {
			continue
		}
		paragraphs = append(paragraphs, paragraph)
	}
	return paragraphs
}

func containsImportantTerm(paragraph string) bool {
	lowered := strings.ToLower(paragraph)
	for _, term := range importantTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

// ImportantTerms returns the default domain-important term list, used as
// the focus-term fallback when no category rule matches a query.
func ImportantTerms() []string {
	terms := make([]string, len(importantTerms))
	copy(terms, importantTerms)
	return terms
}
