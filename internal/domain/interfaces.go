package domain

import (
	"context"
	"time"
)

// Embedder maps text to fixed-dimension dense vectors via an external
// embedding service. EmbedTexts preserves input order and returns exactly one
// vector per input.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}

// Generator produces free text from a prompt (tutor hints, quiz questions).
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ChunkStore persists chunks with embeddings and metadata.
type ChunkStore interface {
	// Upsert inserts or updates chunks keyed by (course, source_uri, chunk_no).
	// Updating replaces content, embedding, and metadata, never the key.
	Upsert(ctx context.Context, chunks []Chunk) error
	// FetchAll bulk-loads chunks for in-memory similarity search.
	// An empty course loads every course.
	FetchAll(ctx context.Context, course string) ([]Chunk, error)
	// DeleteBySource removes all chunks belonging to one document.
	DeleteBySource(ctx context.Context, sourceURI string) error
}

// QueryStore tracks logged questions and quiz mastery per user.
type QueryStore interface {
	// Log records a question, deduplicated by normalized-text hash.
	// Returns false when the record already existed.
	Log(ctx context.Context, userID, queryText string, isGuest bool) (bool, error)
	// RandomUnmastered picks a uniformly random unmastered question for the
	// user, skipping excludeHash. Empty result means no question is available.
	RandomUnmastered(ctx context.Context, userID, excludeHash string) (string, error)
	// MarkMastered flips a question to its terminal mastered state.
	MarkMastered(ctx context.Context, userID, queryText string) error
	Stats(ctx context.Context, userID string) (UserStats, error)
	// PurgeGuests removes guest records older than the retention window.
	PurgeGuests(ctx context.Context, olderThan time.Duration) (int64, error)
	// EndGuestSession removes everything logged for one guest user.
	EndGuestSession(ctx context.Context, userID string) (int64, error)
}

// Searcher answers a query with ranked chunks and provenance.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]SearchResult, error)
}
