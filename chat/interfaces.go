package chat

import (
	"context"

	"github.com/poiesic/ragpilot/core"
)

// History persists per-session conversation turns.
// Implemented by history.Store.
type History interface {
	// Append records one completed turn for the session.
	Append(ctx context.Context, sessionID string, turn core.Turn) error

	// Turns returns the session's history, oldest first.
	Turns(ctx context.Context, sessionID string) ([]core.Turn, error)

	// TrimTo drops the oldest turns so at most n remain.
	TrimTo(ctx context.Context, sessionID string, n int64) error

	// Clear removes the session's history entirely.
	Clear(ctx context.Context, sessionID string) error
}

// Cache is a similarity-keyed store of prior prompt/answer pairs.
// Implemented by semcache.Cache.
type Cache interface {
	// Check returns cached answers semantically similar to the prompt,
	// ranked by ascending distance.
	Check(ctx context.Context, prompt string) ([]core.CacheHit, error)

	// Store caches a prompt/answer pair with its references.
	Store(ctx context.Context, prompt, response string, refs map[string]core.Reference) error

	// IncrPopularity bumps the popularity counter of a cache entry by one.
	IncrPopularity(ctx context.Context, id string) error
}

// Retriever answers similarity searches against the active document index.
// Implemented by vectorstore drivers.
type Retriever interface {
	// Search returns the k documents most similar to the query, ranked by
	// descending similarity score.
	Search(ctx context.Context, query string, k int) ([]core.Document, error)
}

// ExchangeRecorder receives completed question/answer exchanges for
// accounting. Implemented by ExchangeLog.
type ExchangeRecorder interface {
	Record(ctx context.Context, exchange Exchange) error
}
