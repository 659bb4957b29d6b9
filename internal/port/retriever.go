package port

import (
	"context"

	"kbase/internal/domain"
)

// Retriever searches the corpus and returns top-k chunks.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) []domain.Chunk
}
