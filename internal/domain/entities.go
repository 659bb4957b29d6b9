package domain

// Record is a raw corpus record as it arrives from the ingestion feed.
type Record struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Chunk is an immutable unit of retrievable text with source metadata.
// Chunks are created once at load time and never mutated.
type Chunk struct {
	URL   string `json:"url" yaml:"url"`
	Title string `json:"title" yaml:"title"`
	Body  string `json:"body" yaml:"body"`
}

// Key returns the deduplication key for a chunk: the source URL plus the
// first 80 runes of the body.
func (c Chunk) Key() string {
	body := []rune(c.Body)
	if len(body) > 80 {
		body = body[:80]
	}
	return c.URL + "\x00" + string(body)
}

// ScoredChunk carries the per-query scoring signals for one candidate.
// Never persisted.
type ScoredChunk struct {
	Chunk   Chunk
	Lexical float64
	Vector  float64
	Hybrid  float64
}

// Stats describes the indexed corpus.
type Stats struct {
	TotalChunks int
	AvgDocLen   float64
}
