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


package ragpilot

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/ragpilot/ai"
	"github.com/poiesic/ragpilot/ai/openai"
	"github.com/poiesic/ragpilot/chat"
	"github.com/poiesic/ragpilot/history"
	"github.com/poiesic/ragpilot/ingest"
	"github.com/poiesic/ragpilot/semcache"
	vsredis "github.com/poiesic/ragpilot/vectorstore/redis"
	goredis "github.com/redis/go-redis/v9"
)

// Pilot wires the Redis client, the AI provider and the stores behind a
// single handle. Per-session conversation chains and ingestion workers are
// constructed from it.
type Pilot struct {
	client    *goredis.Client
	provider  ai.Provider
	history   *history.Store
	cache     *semcache.Cache
	store     *vsredis.Store
	exchanges *chat.ExchangeLog
	options   *pilotOptions
	logger    *slog.Logger
}

// PilotOption configures a Pilot.
type PilotOption func(*pilotOptions)

type pilotOptions struct {
	aiConfig       *ai.Config
	historyLength  int64
	historyTTL     time.Duration
	contextLength  int
	streamTimeout  time.Duration
	scoreThreshold float64
	cacheEnabled   bool
	cacheDistance  float64
	alias          string
}

// WithAIConfig sets the AI provider configuration.
// Default is ai.DefaultConfig().
func WithAIConfig(config *ai.Config) PilotOption {
	return func(o *pilotOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithHistoryLength bounds how many turns each session keeps.
func WithHistoryLength(n int64) PilotOption {
	return func(o *pilotOptions) {
		o.historyLength = n
	}
}

// WithHistoryTTL sets how long idle sessions survive.
func WithHistoryTTL(ttl time.Duration) PilotOption {
	return func(o *pilotOptions) {
		o.historyTTL = ttl
	}
}

// WithContextLength sets how many documents are retrieved per turn.
func WithContextLength(k int) PilotOption {
	return func(o *pilotOptions) {
		o.contextLength = k
	}
}

// WithStreamTimeout bounds how long a chat consumer waits per fragment.
func WithStreamTimeout(d time.Duration) PilotOption {
	return func(o *pilotOptions) {
		o.streamTimeout = d
	}
}

// WithScoreThreshold sets the minimum similarity score for retrieved
// context documents.
func WithScoreThreshold(threshold float64) PilotOption {
	return func(o *pilotOptions) {
		o.scoreThreshold = threshold
	}
}

// WithCacheEnabled toggles the semantic cache. Enabled by default.
func WithCacheEnabled(enabled bool) PilotOption {
	return func(o *pilotOptions) {
		o.cacheEnabled = enabled
	}
}

// WithCacheDistance sets the maximum vector distance for a cache hit.
func WithCacheDistance(d float64) PilotOption {
	return func(o *pilotOptions) {
		o.cacheDistance = d
	}
}

// WithAlias sets the retrieval index alias.
// Default is vsredis.DefaultAlias.
func WithAlias(alias string) PilotOption {
	return func(o *pilotOptions) {
		if alias != "" {
			o.alias = alias
		}
	}
}

// NewPilot connects to Redis at the given URL and builds the provider and
// stores. The URL follows the redis:// scheme, e.g. "redis://localhost:6379".
func NewPilot(redisURL string, opts ...PilotOption) (*Pilot, error) {
	options := &pilotOptions{
		aiConfig:     ai.DefaultConfig(),
		cacheEnabled: true,
		alias:        vsredis.DefaultAlias,
	}
	for _, opt := range opts {
		opt(options)
	}

	redisOpts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := goredis.NewClient(redisOpts)

	provider, err := openai.NewProvider(options.aiConfig)
	if err != nil {
		client.Close()
		return nil, err
	}

	var historyOpts []history.Option
	if options.historyTTL > 0 {
		historyOpts = append(historyOpts, history.WithTTL(options.historyTTL))
	}

	var cache *semcache.Cache
	if options.cacheEnabled {
		var cacheOpts []semcache.Option
		if options.cacheDistance > 0 {
			cacheOpts = append(cacheOpts, semcache.WithMaxDistance(options.cacheDistance))
		}
		cache = semcache.New(client, provider.Embedder(), cacheOpts...)
	}

	return &Pilot{
		client:    client,
		provider:  provider,
		history:   history.New(client, historyOpts...),
		cache:     cache,
		store:     vsredis.New(client, provider.Embedder(), vsredis.WithIndexName(options.alias)),
		exchanges: chat.NewExchangeLog(client),
		options:   options,
		logger:    slog.Default(),
	}, nil
}

// Chain builds the conversation chain for one session.
func (p *Pilot) Chain(sessionID string) (*chat.Chain, error) {
	opts := []chat.Option{
		chat.WithExchangeRecorder(p.exchanges),
	}
	if p.cache != nil {
		opts = append(opts, chat.WithCache(p.cache))
	}
	if p.options.historyLength > 0 {
		opts = append(opts, chat.WithHistoryLength(p.options.historyLength))
	}
	if p.options.contextLength > 0 {
		opts = append(opts, chat.WithContextLength(p.options.contextLength))
	}
	if p.options.streamTimeout > 0 {
		opts = append(opts, chat.WithStreamTimeout(p.options.streamTimeout))
	}
	if p.options.scoreThreshold > 0 {
		opts = append(opts, chat.WithScoreThreshold(p.options.scoreThreshold))
	}

	return chat.NewChain(sessionID, p.provider.ChatModel(), p.store, p.history, opts...)
}

// NewIngestWorker builds an ingestion worker writing through the pilot's
// client and embedder.
func (p *Pilot) NewIngestWorker(opts ...ingest.Option) (*ingest.Worker, error) {
	opts = append([]ingest.Option{ingest.WithAlias(p.options.alias)}, opts...)
	return ingest.NewWorker(p.client, p.provider.Embedder(), opts...)
}

// PromoteIndex points the retrieval alias at the given index. All chains
// pick up the new index on their next retrieval.
func (p *Pilot) PromoteIndex(ctx context.Context, index string) error {
	return p.store.PromoteAlias(ctx, p.options.alias, index)
}

// ResetSession clears one session's conversation history.
func (p *Pilot) ResetSession(ctx context.Context, sessionID string) error {
	return p.history.Clear(ctx, sessionID)
}

// History returns the session history store.
func (p *Pilot) History() *history.Store {
	return p.history
}

// VectorStore returns the retrieval vector store.
func (p *Pilot) VectorStore() *vsredis.Store {
	return p.store
}

// Close releases the provider and the Redis connection.
func (p *Pilot) Close() error {
	if err := p.provider.Close(); err != nil {
		p.logger.Error("error closing AI provider", "err", err)
	}
	return p.client.Close()
}
