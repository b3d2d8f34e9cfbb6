// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package chat

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/ragpilot/ai"
	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/stream"
)

const (
	defaultHistoryLength  = 10
	defaultContextLength  = 4
	defaultStreamTimeout  = 30 * time.Second
	defaultScoreThreshold = 0.75
)

// Chain orchestrates one session's conversation turns: it decides between a
// semantic cache short-circuit and the full retrieval+generation path, and
// persists each resulting turn to history.
//
// A Chain is bound to one session id. Each Ask runs its producer side on a
// dedicated goroutine and hands fragments to the caller through a stream
// bridge; the caller drains the returned sequence.
type Chain struct {
	sessionID string
	model     ai.ChatModel
	retriever Retriever
	history   History
	cache     Cache
	exchanges ExchangeRecorder
	prompts   Prompts

	historyLength  int64
	contextLength  int
	streamTimeout  time.Duration
	scoreThreshold float64

	logger *slog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithCache enables the semantic cache. A nil cache disables caching.
func WithCache(cache Cache) Option {
	return func(c *Chain) {
		c.cache = cache
	}
}

// WithExchangeRecorder sets a recorder for completed exchanges.
func WithExchangeRecorder(rec ExchangeRecorder) Option {
	return func(c *Chain) {
		c.exchanges = rec
	}
}

// WithPrompts overrides the default prompt set.
func WithPrompts(p Prompts) Option {
	return func(c *Chain) {
		c.prompts = p
	}
}

// WithHistoryLength bounds how many turns are kept and fed back into
// condensation. Default is 10.
func WithHistoryLength(n int64) Option {
	return func(c *Chain) {
		if n > 0 {
			c.historyLength = n
		}
	}
}

// WithContextLength sets how many documents are retrieved per turn.
// Default is 4.
func WithContextLength(k int) Option {
	return func(c *Chain) {
		if k > 0 {
			c.contextLength = k
		}
	}
}

// WithStreamTimeout bounds how long the consumer waits for each fragment.
// Default is 30 seconds.
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Chain) {
		if d > 0 {
			c.streamTimeout = d
		}
	}
}

// WithScoreThreshold sets the minimum similarity score for a retrieved
// document to count as context. Questions whose retrieval yields nothing
// above the threshold produce no references and are never cached.
// Default is 0.75.
func WithScoreThreshold(threshold float64) Option {
	return func(c *Chain) {
		if threshold > 0 {
			c.scoreThreshold = threshold
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// NewChain creates a conversation chain for one session.
func NewChain(sessionID string, model ai.ChatModel, retriever Retriever, history History, opts ...Option) (*Chain, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	if model == nil {
		return nil, ErrChatModelRequired
	}
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if history == nil {
		return nil, ErrHistoryRequired
	}

	c := &Chain{
		sessionID:      sessionID,
		model:          model,
		retriever:      retriever,
		history:        history,
		prompts:        DefaultPrompts(),
		historyLength:  defaultHistoryLength,
		contextLength:  defaultContextLength,
		streamTimeout:  defaultStreamTimeout,
		scoreThreshold: defaultScoreThreshold,
		logger:         slog.Default().With("component", "chat"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ask answers one question. The producer runs on its own goroutine; the
// returned sequence is the consumer side of the stream bridge and yields
// incremental fragments until the answer completes, fails visibly, or the
// per-fragment timeout fires.
//
// The context governs the producer's upstream calls. The returned sequence
// must be iterated; abandoning it mid-stream does not cancel the producer,
// which runs to completion with its remaining output discarded.
func (c *Chain) Ask(ctx context.Context, question string) iter.Seq[string] {
	bridge := stream.New(
		stream.WithTimeout(c.streamTimeout),
		stream.WithLogger(c.logger),
		stream.WithOnDone(func(stats stream.Stats) {
			c.recordExchange(ctx, question, stats)
		}),
	)

	go c.answer(ctx, question, bridge)

	return bridge.Drain()
}

// References runs the standalone retrieval explaining which documents back
// an answer to q. A non-positive k falls back to the configured context
// length.
func (c *Chain) References(ctx context.Context, q string, k int) ([]core.Document, error) {
	if k <= 0 {
		k = c.contextLength
	}
	return c.retriever.Search(ctx, q, k)
}

// ResetHistory clears the session's conversation history.
func (c *Chain) ResetHistory(ctx context.Context) error {
	return c.history.Clear(ctx, c.sessionID)
}

// answer is the producer side of one exchange. Every return path leaves the
// bridge closed so the consumer always reaches a terminal state.
func (c *Chain) answer(ctx context.Context, question string, bridge *stream.Bridge) {
	defer bridge.Close()

	if c.cache != nil && c.serveFromCache(ctx, question, bridge) {
		return
	}

	// Bound the history before using it for condensation.
	if err := c.history.TrimTo(ctx, c.sessionID, c.historyLength); err != nil {
		c.logger.Warn("failed to trim history", "session", c.sessionID, "err", err)
	}

	turns, err := c.history.Turns(ctx, c.sessionID)
	if err != nil {
		c.logger.Error("failed to read history", "session", c.sessionID, "err", err)
		return
	}

	// A first question is already standalone; only follow-ups need the
	// condensation round trip.
	standalone := question
	if len(turns) > 0 {
		standalone, err = c.condense(ctx, turns, question)
		if err != nil {
			c.providerFailure(ctx, bridge, err)
			return
		}
	}

	docs, err := c.retriever.Search(ctx, standalone, c.contextLength)
	if err != nil {
		c.logger.Error("retrieval failed", "session", c.sessionID, "err", err)
		return
	}
	docs = aboveThreshold(docs, c.scoreThreshold)

	answer, err := c.generate(ctx, docs, question, bridge)
	if err != nil {
		c.providerFailure(ctx, bridge, err)
		return
	}

	// Persist before the deferred close so a consumer that observes the
	// end of the stream also observes the completed turn.
	refs := collectReferences(docs)
	turn := core.Turn{User: question, AI: answer, References: refs}
	if err := c.history.Append(ctx, c.sessionID, turn); err != nil {
		c.logger.Warn("failed to persist turn", "session", c.sessionID, "err", err)
	}

	// Cache only turns that had independent retrievable context. A
	// follow-up like "are you sure?" retrieves nothing above threshold
	// and must not be cached, or it would poison unrelated sessions.
	if len(refs) > 0 && c.cache != nil {
		if err := c.cache.Store(ctx, standalone, answer, refs); err != nil {
			c.logger.Warn("failed to store cache entry", "err", err)
		}
	}
}

// serveFromCache attempts the cache short-circuit. Returns true when the
// exchange was fully served from cache.
func (c *Chain) serveFromCache(ctx context.Context, question string, bridge *stream.Bridge) bool {
	hits, err := c.cache.Check(ctx, question)
	if err != nil {
		c.logger.Warn("cache check failed, falling through", "err", err)
		return false
	}
	if len(hits) == 0 {
		return false
	}

	top := hits[0]
	c.logger.Info("cache hit", "session", c.sessionID, "entry", top.ID, "distance", top.Distance)

	bridge.Push(top.Response)

	if err := c.cache.IncrPopularity(ctx, top.ID); err != nil {
		c.logger.Warn("failed to increase cache popularity", "entry", top.ID, "err", err)
	}

	// The question was served from cache, but the exchange still belongs
	// to the conversation history.
	turn := core.Turn{User: question, AI: top.Response, References: top.References}
	if err := c.history.Append(ctx, c.sessionID, turn); err != nil {
		c.logger.Warn("failed to persist cached turn", "session", c.sessionID, "err", err)
	}
	return true
}

// condense derives a standalone question from history plus the follow-up.
func (c *Chain) condense(ctx context.Context, turns []core.Turn, question string) (string, error) {
	prompt, err := c.prompts.Condense.Format(map[string]any{
		"chat_history": historyText(turns),
		"question":     question,
	})
	if err != nil {
		return "", err
	}

	standalone, err := c.model.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(standalone), nil
}

// generate runs the streaming completion conditioned on the retrieved
// documents, pushing fragments through the bridge as they arrive.
func (c *Chain) generate(ctx context.Context, docs []core.Document, question string, bridge *stream.Bridge) (string, error) {
	user, err := c.prompts.User.Format(map[string]any{
		"context":  contextBlock(docs),
		"question": question,
	})
	if err != nil {
		return "", err
	}

	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: c.prompts.System},
		{Role: ai.RoleUser, Content: user},
	}

	return c.model.Generate(ctx, messages, func(_ context.Context, chunk []byte) error {
		bridge.Push(string(chunk))
		return nil
	})
}

// providerFailure handles an LLM-provider-level error: the user gets a
// fixed notice, the history is cleared since the failure is attributed to
// an overlong conversation, and nothing is persisted for the turn.
func (c *Chain) providerFailure(ctx context.Context, bridge *stream.Bridge, err error) {
	c.logger.Warn("provider error", "session", c.sessionID, "err", err)
	if clearErr := c.history.Clear(ctx, c.sessionID); clearErr != nil {
		c.logger.Error("failed to clear history after provider error", "session", c.sessionID, "err", clearErr)
	}
	bridge.Notify(TooLongMessage)
}

func (c *Chain) recordExchange(ctx context.Context, question string, stats stream.Stats) {
	if c.exchanges == nil {
		return
	}
	err := c.exchanges.Record(ctx, Exchange{
		SessionID:    c.sessionID,
		Question:     question,
		Answer:       stats.Answer,
		FirstTokenMs: stats.FirstToken.Milliseconds(),
		ElapsedMs:    stats.Elapsed.Milliseconds(),
	})
	if err != nil {
		c.logger.Warn("failed to record exchange", "err", err)
	}
}

// historyText flattens turns into the transcript fed to condensation.
func historyText(turns []core.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		b.WriteString("Human: ")
		b.WriteString(turn.User)
		b.WriteString("\nAssistant: ")
		b.WriteString(turn.AI)
		b.WriteString("\n")
	}
	return b.String()
}

// contextBlock joins retrieved chunks into the context section of the user
// prompt.
func contextBlock(docs []core.Document) string {
	parts := make([]string, len(docs))
	for i, doc := range docs {
		parts[i] = doc.Content
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// aboveThreshold keeps only documents relevant enough to count as context.
func aboveThreshold(docs []core.Document, threshold float64) []core.Document {
	kept := docs[:0]
	for _, doc := range docs {
		if doc.Score >= threshold {
			kept = append(kept, doc)
		}
	}
	return kept
}

// collectReferences maps document ids to their source metadata.
func collectReferences(docs []core.Document) map[string]core.Reference {
	if len(docs) == 0 {
		return nil
	}
	refs := make(map[string]core.Reference, len(docs))
	for _, doc := range docs {
		refs[doc.ID] = doc.Reference
	}
	return refs
}
