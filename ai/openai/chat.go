package openai

import (
	"context"
	"log/slog"

	"github.com/poiesic/ragpilot/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ChatModel implements ai.ChatModel using OpenAI-compatible chat APIs.
type ChatModel struct {
	llm         llms.Model
	temperature float64
	logger      *slog.Logger
}

// newChatModel is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newChatModel(config *ai.Config) (*ChatModel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []openai.Option{
		openai.WithModel(config.ChatModel),
	}
	if config.Host != "" {
		opts = append(opts,
			openai.WithBaseURL(config.Host),
			openai.WithToken("none"),
		)
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	return &ChatModel{
		llm:         client,
		temperature: config.Temperature,
		logger:      slog.Default().With("component", "openai-chat"),
	}, nil
}

// NewChatModel creates a new chat model using the provided configuration.
//
// Returns ai.ChatModel interface to enforce abstraction.
func NewChatModel(config *ai.Config) (ai.ChatModel, error) {
	return newChatModel(config)
}

// Generate produces a chat completion, delivering incremental fragments
// through onToken as the provider streams them.
func (m *ChatModel) Generate(ctx context.Context, messages []ai.Message, onToken ai.TokenFunc) (string, error) {
	m.logger.Debug("generating chat completion", "messages", len(messages))

	content := make([]llms.MessageContent, len(messages))
	for i, msg := range messages {
		content[i] = llms.TextParts(chatMessageType(msg.Role), msg.Content)
	}

	opts := []llms.CallOption{
		llms.WithTemperature(m.temperature),
	}
	if onToken != nil {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return onToken(ctx, chunk)
		}))
	}

	resp, err := m.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		m.logger.Error("chat completion failed", "err", err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		m.logger.Warn("chat completion returned no choices")
		return "", nil
	}

	return resp.Choices[0].Content, nil
}

// Complete produces a non-streaming completion for a single prompt.
// Runs at temperature 0 for deterministic auxiliary generations.
func (m *ChatModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.logger.Debug("generating completion", "length", len(prompt))

	out, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt, llms.WithTemperature(0))
	if err != nil {
		m.logger.Error("completion failed", "err", err)
		return "", err
	}
	return out, nil
}

// chatMessageType maps an ai.Role onto the langchaingo message type.
func chatMessageType(role ai.Role) llms.ChatMessageType {
	switch role {
	case ai.RoleSystem:
		return llms.ChatMessageTypeSystem
	case ai.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
