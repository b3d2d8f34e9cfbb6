package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// TokenFunc receives incremental output fragments during streaming
// generation. Returning an error aborts the generation.
type TokenFunc func(ctx context.Context, chunk []byte) error

// ChatModel generates text from chat conversations.
// Implementations must be thread-safe for concurrent use.
type ChatModel interface {
	// Generate produces a chat completion for the given messages,
	// delivering incremental fragments through onToken as they arrive.
	// The full response text is returned once generation completes.
	// onToken may be nil to disable streaming delivery.
	Generate(ctx context.Context, messages []Message, onToken TokenFunc) (string, error)

	// Complete produces a non-streaming completion for a single prompt.
	// Used for auxiliary generations such as question condensation, where
	// streaming the intermediate output to the user would be wrong.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message passed to a ChatModel.
type Message struct {
	Role    Role
	Content string
}

// Provider aggregates AI services for convenient initialization and lifecycle
// management. A provider creates and manages Embedder and ChatModel instances,
// ensuring they share configuration and resources appropriately.
type Provider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// ChatModel returns the chat generation service.
	// The returned ChatModel is safe for concurrent use.
	ChatModel() ChatModel

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
