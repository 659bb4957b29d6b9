package corpus

import "kbase/internal/domain"

// Store is the immutable, ordered corpus snapshot. It is built once at
// startup and read-only thereafter, so concurrent readers need no locking.
type Store struct {
	chunks []domain.Chunk
}

// NewStore wraps a chunk sequence. The slice is copied so later mutation of
// the caller's slice cannot leak into the snapshot.
func NewStore(chunks []domain.Chunk) *Store {
	owned := make([]domain.Chunk, len(chunks))
	copy(owned, chunks)
	return &Store{chunks: owned}
}

// Len returns the number of chunks in the corpus.
func (s *Store) Len() int {
	return len(s.chunks)
}

// Chunk returns the chunk at index i.
func (s *Store) Chunk(i int) domain.Chunk {
	return s.chunks[i]
}

// All returns the ordered chunk sequence. Callers must not mutate it.
func (s *Store) All() []domain.Chunk {
	return s.chunks
}
