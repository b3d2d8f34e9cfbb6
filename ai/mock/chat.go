package mock

import (
	"context"
	"strings"

	"github.com/poiesic/ragpilot/ai"
)

// MockChatModel is a test double for ai.ChatModel.
// It allows custom behavior injection via function fields.
type MockChatModel struct {
	// GenerateFunc is called by Generate if set.
	// If nil, the model streams Response fragment by fragment.
	GenerateFunc func(ctx context.Context, messages []ai.Message, onToken ai.TokenFunc) (string, error)

	// CompleteFunc is called by Complete if set.
	// If nil, Complete echoes the prompt's last line.
	CompleteFunc func(ctx context.Context, prompt string) (string, error)

	// Response is the canned answer streamed by the default Generate
	// behavior, split into Fragments-sized pieces.
	Response string

	// FragmentSize controls how the default Generate behavior splits
	// Response when streaming. Defaults to 4 runes.
	FragmentSize int

	generateCalls int
	completeCalls int
}

// NewMockChatModel creates a mock chat model with a canned response.
// Note: Returns concrete type to allow test assertions.
func NewMockChatModel(response string) *MockChatModel {
	return &MockChatModel{Response: response}
}

// Generate streams the canned response through onToken and returns it.
func (m *MockChatModel) Generate(ctx context.Context, messages []ai.Message, onToken ai.TokenFunc) (string, error) {
	m.generateCalls++

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, messages, onToken)
	}

	size := m.FragmentSize
	if size <= 0 {
		size = 4
	}
	if onToken != nil {
		runes := []rune(m.Response)
		for i := 0; i < len(runes); i += size {
			end := min(i+size, len(runes))
			if err := onToken(ctx, []byte(string(runes[i:end]))); err != nil {
				return "", err
			}
		}
	}
	return m.Response, nil
}

// Complete echoes the last non-empty line of the prompt by default.
func (m *MockChatModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.completeCalls++

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}

	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

// GenerateCalls returns how many times Generate was called.
func (m *MockChatModel) GenerateCalls() int {
	return m.generateCalls
}

// CompleteCalls returns how many times Complete was called.
func (m *MockChatModel) CompleteCalls() int {
	return m.completeCalls
}

// Reset clears call counts and injected behavior.
func (m *MockChatModel) Reset() {
	m.generateCalls = 0
	m.completeCalls = 0
	m.GenerateFunc = nil
	m.CompleteFunc = nil
}
