package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/ragpilot/ai"
	"github.com/poiesic/ragpilot/ai/mock"
	"github.com/poiesic/ragpilot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHistory implements History in memory.
type fakeHistory struct {
	mu    sync.Mutex
	turns map[string][]core.Turn
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{turns: make(map[string][]core.Turn)}
}

func (h *fakeHistory) Append(ctx context.Context, sessionID string, turn core.Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns[sessionID] = append(h.turns[sessionID], turn)
	return nil
}

func (h *fakeHistory) Turns(ctx context.Context, sessionID string) ([]core.Turn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]core.Turn, len(h.turns[sessionID]))
	copy(out, h.turns[sessionID])
	return out, nil
}

func (h *fakeHistory) TrimTo(ctx context.Context, sessionID string, n int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := h.turns[sessionID]
	if int64(len(turns)) > n {
		h.turns[sessionID] = turns[int64(len(turns))-n:]
	}
	return nil
}

func (h *fakeHistory) Clear(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.turns, sessionID)
	return nil
}

func (h *fakeHistory) length(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns[sessionID])
}

// fakeCache implements Cache in memory.
type fakeCache struct {
	mu         sync.Mutex
	hits       []core.CacheHit
	stored     map[string]string
	popularity map[string]int
}

func newFakeCache(hits ...core.CacheHit) *fakeCache {
	return &fakeCache{
		hits:       hits,
		stored:     make(map[string]string),
		popularity: make(map[string]int),
	}
}

func (c *fakeCache) Check(ctx context.Context, prompt string) ([]core.CacheHit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, nil
}

func (c *fakeCache) Store(ctx context.Context, prompt, response string, refs map[string]core.Reference) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored[prompt] = response
	return nil
}

func (c *fakeCache) IncrPopularity(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.popularity[id]++
	return nil
}

func (c *fakeCache) storedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stored)
}

// fakeRetriever implements Retriever with canned documents.
type fakeRetriever struct {
	docs    []core.Document
	err     error
	queries []string
}

func (r *fakeRetriever) Search(ctx context.Context, query string, k int) ([]core.Document, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return nil, r.err
	}
	if len(r.docs) > k {
		return r.docs[:k], nil
	}
	return r.docs, nil
}

func scoredDocs() []core.Document {
	return []core.Document{
		{ID: "doc1", Content: "names: Avatar", Reference: core.Reference{Title: "Avatar", Score: 7.6}, Score: 0.93},
		{ID: "doc2", Content: "names: Titanic", Reference: core.Reference{Title: "Titanic", Score: 7.9}, Score: 0.88},
	}
}

func drainAll(t *testing.T, c *Chain, question string) string {
	t.Helper()
	var answer string
	for fragment := range c.Ask(context.Background(), question) {
		answer += fragment
	}
	return answer
}

func TestNewChain_Validation(t *testing.T) {
	model := mock.NewMockChatModel("answer")
	retriever := &fakeRetriever{}
	hist := newFakeHistory()

	t.Run("valid", func(t *testing.T) {
		c, err := NewChain("s1", model, retriever, hist)
		require.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("missing session id", func(t *testing.T) {
		_, err := NewChain("", model, retriever, hist)
		assert.Equal(t, ErrSessionIDRequired, err)
	})

	t.Run("missing model", func(t *testing.T) {
		_, err := NewChain("s1", nil, retriever, hist)
		assert.Equal(t, ErrChatModelRequired, err)
	})

	t.Run("missing retriever", func(t *testing.T) {
		_, err := NewChain("s1", model, nil, hist)
		assert.Equal(t, ErrRetrieverRequired, err)
	})

	t.Run("missing history", func(t *testing.T) {
		_, err := NewChain("s1", model, retriever, nil)
		assert.Equal(t, ErrHistoryRequired, err)
	})
}

func TestAsk_FullPathStreamsAnswerAndPersists(t *testing.T) {
	model := mock.NewMockChatModel("The movie earned billions.")
	retriever := &fakeRetriever{docs: scoredDocs()}
	hist := newFakeHistory()

	c, err := NewChain("s1", model, retriever, hist)
	require.NoError(t, err)

	answer := drainAll(t, c, "how much did it earn?")
	assert.Equal(t, "The movie earned billions.", answer)
	assert.Equal(t, 1, model.GenerateCalls())

	require.Equal(t, 1, hist.length("s1"))
	turn, _ := hist.Turns(context.Background(), "s1")
	assert.Equal(t, "how much did it earn?", turn[0].User)
	assert.Equal(t, "The movie earned billions.", turn[0].AI)
	assert.Contains(t, turn[0].References, "doc1")
	assert.Contains(t, turn[0].References, "doc2")
}

func TestAsk_FirstQuestionSkipsCondensation(t *testing.T) {
	model := mock.NewMockChatModel("answer")
	retriever := &fakeRetriever{docs: scoredDocs()}

	c, err := NewChain("s1", model, retriever, newFakeHistory())
	require.NoError(t, err)

	drainAll(t, c, "what is the top movie?")
	assert.Equal(t, 0, model.CompleteCalls())
	require.Len(t, retriever.queries, 1)
	assert.Equal(t, "what is the top movie?", retriever.queries[0])
}

func TestAsk_FollowUpUsesStandaloneQuestion(t *testing.T) {
	model := mock.NewMockChatModel("answer")
	model.CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		return "standalone question", nil
	}
	retriever := &fakeRetriever{docs: scoredDocs()}
	hist := newFakeHistory()
	require.NoError(t, hist.Append(context.Background(), "s1", core.Turn{User: "q0", AI: "a0"}))

	c, err := NewChain("s1", model, retriever, hist)
	require.NoError(t, err)

	drainAll(t, c, "and then?")
	assert.Equal(t, 1, model.CompleteCalls())
	require.Len(t, retriever.queries, 1)
	assert.Equal(t, "standalone question", retriever.queries[0])
}

func TestAsk_CacheHitBypassesModel(t *testing.T) {
	hit := core.CacheHit{
		ID:         "ragpilot:cache:abc",
		Response:   "cached verbatim answer",
		References: map[string]core.Reference{"doc1": {Title: "Avatar"}},
		Distance:   0.02,
	}
	model := mock.NewMockChatModel("should never stream")
	cache := newFakeCache(hit)
	hist := newFakeHistory()

	c, err := NewChain("s1", model, &fakeRetriever{}, hist, WithCache(cache))
	require.NoError(t, err)

	answer := drainAll(t, c, "how much did Avatar earn?")
	assert.Equal(t, "cached verbatim answer", answer)
	assert.Equal(t, 0, model.GenerateCalls())
	assert.Equal(t, 0, model.CompleteCalls())
	assert.Equal(t, 1, cache.popularity["ragpilot:cache:abc"])

	// The cached exchange still lands in history with the cached metadata.
	require.Equal(t, 1, hist.length("s1"))
	turns, _ := hist.Turns(context.Background(), "s1")
	assert.Equal(t, hit.References, turns[0].References)
}

func TestAsk_CacheMissWithReferencesStores(t *testing.T) {
	model := mock.NewMockChatModel("generated answer")
	cache := newFakeCache()
	retriever := &fakeRetriever{docs: scoredDocs()}

	c, err := NewChain("s1", model, retriever, newFakeHistory(), WithCache(cache))
	require.NoError(t, err)

	drainAll(t, c, "how much did it earn?")
	assert.Equal(t, 1, cache.storedCount())
	assert.Equal(t, "generated answer", cache.stored["how much did it earn?"])
}

func TestAsk_NoReferencesSkipsCacheStore(t *testing.T) {
	model := mock.NewMockChatModel("I'm quite sure.")
	cache := newFakeCache()
	// Retrieval returns only low-relevance documents, as for a follow-up
	// like "are you sure?".
	retriever := &fakeRetriever{docs: []core.Document{
		{ID: "doc9", Content: "irrelevant", Score: 0.2},
	}}

	c, err := NewChain("s1", model, retriever, newFakeHistory(), WithCache(cache))
	require.NoError(t, err)

	answer := drainAll(t, c, "are you sure?")
	assert.Equal(t, "I'm quite sure.", answer)
	assert.Equal(t, 0, cache.storedCount())

	// The turn itself is still persisted, without references.
	turns, _ := c.history.Turns(context.Background(), "s1")
	require.Len(t, turns, 1)
	assert.Empty(t, turns[0].References)
}

func TestAsk_ProviderErrorClearsHistory(t *testing.T) {
	model := mock.NewMockChatModel("")
	model.GenerateFunc = func(ctx context.Context, messages []ai.Message, onToken ai.TokenFunc) (string, error) {
		return "", errors.New("context_length_exceeded")
	}
	hist := newFakeHistory()
	for i := 0; i < 3; i++ {
		require.NoError(t, hist.Append(context.Background(), "s1", core.Turn{User: "q", AI: "a"}))
	}

	c, err := NewChain("s1", model, &fakeRetriever{docs: scoredDocs()}, hist)
	require.NoError(t, err)

	answer := drainAll(t, c, "one question too many")
	assert.Equal(t, TooLongMessage, answer)
	assert.Equal(t, 0, hist.length("s1"))
}

func TestAsk_CondensationErrorClearsHistory(t *testing.T) {
	model := mock.NewMockChatModel("unused")
	model.CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("rate limited")
	}
	hist := newFakeHistory()
	require.NoError(t, hist.Append(context.Background(), "s1", core.Turn{User: "q0", AI: "a0"}))

	c, err := NewChain("s1", model, &fakeRetriever{docs: scoredDocs()}, hist)
	require.NoError(t, err)

	answer := drainAll(t, c, "follow up")
	assert.Equal(t, TooLongMessage, answer)
	assert.Equal(t, 0, hist.length("s1"))
	assert.Equal(t, 0, model.GenerateCalls())
}

func TestAsk_HistoryTrimmedBeforeTurn(t *testing.T) {
	model := mock.NewMockChatModel("answer")
	model.CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		return "standalone", nil
	}
	hist := newFakeHistory()
	for i := 0; i < 7; i++ {
		require.NoError(t, hist.Append(context.Background(), "s1", core.Turn{User: "q", AI: "a"}))
	}

	c, err := NewChain("s1", model, &fakeRetriever{docs: scoredDocs()}, hist,
		WithHistoryLength(5))
	require.NoError(t, err)

	drainAll(t, c, "next question")
	// 7 trimmed to 5, plus the new turn.
	assert.Equal(t, 6, hist.length("s1"))
}

func TestAsk_RetrievalErrorTerminatesStream(t *testing.T) {
	model := mock.NewMockChatModel("unused")
	retriever := &fakeRetriever{err: errors.New("index unavailable")}

	c, err := NewChain("s1", model, retriever, newFakeHistory(),
		WithStreamTimeout(time.Second))
	require.NoError(t, err)

	answer := drainAll(t, c, "anything")
	assert.Equal(t, "", answer)
	assert.Equal(t, 0, model.GenerateCalls())
}

func TestAsk_RecordsExchange(t *testing.T) {
	var mu sync.Mutex
	var recorded []Exchange
	rec := exchangeRecorderFunc(func(ctx context.Context, exchange Exchange) error {
		mu.Lock()
		defer mu.Unlock()
		recorded = append(recorded, exchange)
		return nil
	})

	model := mock.NewMockChatModel("the answer")
	c, err := NewChain("s1", model, &fakeRetriever{docs: scoredDocs()}, newFakeHistory(),
		WithExchangeRecorder(rec))
	require.NoError(t, err)

	drainAll(t, c, "a question")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, recorded, 1)
	assert.Equal(t, "s1", recorded[0].SessionID)
	assert.Equal(t, "a question", recorded[0].Question)
	assert.Equal(t, "the answer", recorded[0].Answer)
}

type exchangeRecorderFunc func(ctx context.Context, exchange Exchange) error

func (f exchangeRecorderFunc) Record(ctx context.Context, exchange Exchange) error {
	return f(ctx, exchange)
}

func TestReferences(t *testing.T) {
	retriever := &fakeRetriever{docs: scoredDocs()}
	c, err := NewChain("s1", mock.NewMockChatModel(""), retriever, newFakeHistory(),
		WithContextLength(2))
	require.NoError(t, err)

	docs, err := c.References(context.Background(), "avatar", 0)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestHistoryText(t *testing.T) {
	text := historyText([]core.Turn{
		{User: "hello", AI: "hi there"},
		{User: "bye", AI: "goodbye"},
	})
	assert.Equal(t, "Human: hello\nAssistant: hi there\nHuman: bye\nAssistant: goodbye\n", text)
}

func TestAboveThreshold(t *testing.T) {
	docs := []core.Document{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.5},
		{ID: "c", Score: 0.8},
	}
	kept := aboveThreshold(docs, 0.75)
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ID)
	assert.Equal(t, "c", kept[1].ID)
}

func TestCollectReferences(t *testing.T) {
	assert.Nil(t, collectReferences(nil))

	refs := collectReferences(scoredDocs())
	require.Len(t, refs, 2)
	assert.Equal(t, "Avatar", refs["doc1"].Title)
}
