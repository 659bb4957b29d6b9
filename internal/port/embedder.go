package port

import "context"

// Embedder turns text into a dense vector via an external provider.
type Embedder interface {
	// Embed returns the embedding for a single text. A failed or timed-out
	// provider call is reported as an error; callers treat it as a soft
	// failure and degrade to lexical-only scoring.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
