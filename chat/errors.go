package chat

import "errors"

// TooLongMessage is streamed to the user when the LLM provider rejects a
// turn, which is attributed to an overlong conversation. The session's
// history is cleared alongside.
const TooLongMessage = "This conversation is too long, started a new one"

var (
	// ErrSessionIDRequired is returned when a session id is not provided.
	ErrSessionIDRequired = errors.New("session id required")

	// ErrChatModelRequired is returned when a chat model is not provided.
	ErrChatModelRequired = errors.New("chat model required")

	// ErrRetrieverRequired is returned when a retriever is not provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrHistoryRequired is returned when a history store is not provided.
	ErrHistoryRequired = errors.New("history store required")
)
