package ingest

import "errors"

var (
	// ErrClientRequired is returned when no Redis client is provided and
	// the default index factory is in use.
	ErrClientRequired = errors.New("redis client required")

	// ErrEmbedderRequired is returned when no embedder is provided and
	// the default index factory is in use.
	ErrEmbedderRequired = errors.New("embedder required")
)
