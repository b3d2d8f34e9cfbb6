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


package semcache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/poiesic/ragpilot/ai"
	"github.com/poiesic/ragpilot/core"
	"github.com/redis/go-redis/v9"
)

const (
	defaultIndexName   = "ragpilot_cache_idx"
	defaultKeyPrefix   = "ragpilot:cache:"
	defaultMaxDistance = 0.1
)

// Cache is a similarity-keyed store mapping prior prompts to prior answers.
//
// Entries are Redis hashes under a key prefix, indexed by an HNSW vector
// field over the prompt embedding. A lookup is a KNN search bounded by a
// cosine distance threshold. Entries are never deleted by this system.
type Cache struct {
	client      *redis.Client
	embedder    ai.Embedder
	indexName   string
	keyPrefix   string
	maxDistance float64
	logger      *slog.Logger

	mu         sync.Mutex
	indexReady bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithIndexName sets the RediSearch index name.
// Default is "ragpilot_cache_idx".
func WithIndexName(name string) Option {
	return func(c *Cache) {
		if name != "" {
			c.indexName = name
		}
	}
}

// WithKeyPrefix sets the Redis key prefix for cache entries.
// Default is "ragpilot:cache:".
func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// WithMaxDistance sets the cosine distance threshold below which a cached
// prompt counts as a hit. Default is 0.1.
func WithMaxDistance(d float64) Option {
	return func(c *Cache) {
		if d > 0 {
			c.maxDistance = d
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// New creates a semantic cache backed by the given Redis client and embedder.
func New(client *redis.Client, embedder ai.Embedder, opts ...Option) *Cache {
	c := &Cache{
		client:      client,
		embedder:    embedder,
		indexName:   defaultIndexName,
		keyPrefix:   defaultKeyPrefix,
		maxDistance: defaultMaxDistance,
		logger:      slog.Default().With("component", "semcache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check looks up cached answers semantically similar to the prompt.
// Hits are ranked by ascending distance; entries beyond the distance
// threshold are filtered out. An empty result is not an error.
func (c *Cache) Check(ctx context.Context, prompt string) ([]core.CacheHit, error) {
	vector, err := c.embedder.EmbedText(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if err := c.ensureIndex(ctx, len(vector)); err != nil {
		return nil, err
	}

	res, err := c.client.FTSearchWithArgs(ctx, c.indexName,
		"*=>[KNN $k @prompt_vector $vec AS distance]",
		&redis.FTSearchOptions{
			Return: []redis.FTSearchReturn{
				{FieldName: "response"},
				{FieldName: "metadata"},
				{FieldName: "distance"},
			},
			SortBy:         []redis.FTSearchSortBy{{FieldName: "distance", Asc: true}},
			DialectVersion: 2,
			Params: map[string]interface{}{
				"k":   1,
				"vec": vectorBytes(vector),
			},
			Limit: 1,
		}).Result()
	if err != nil {
		return nil, err
	}

	hits := make([]core.CacheHit, 0, len(res.Docs))
	for _, doc := range res.Docs {
		hit, ok := parseHit(doc.ID, doc.Fields, c.maxDistance)
		if !ok {
			continue
		}
		hits = append(hits, hit)
	}

	c.logger.Debug("cache check", "hits", len(hits))
	return hits, nil
}

// Store caches a prompt/answer pair with its references. The entry key is
// derived from the prompt content, so storing the same prompt twice
// overwrites one document rather than accumulating duplicates.
func (c *Cache) Store(ctx context.Context, prompt, response string, refs map[string]core.Reference) error {
	vector, err := c.embedder.EmbedText(ctx, prompt)
	if err != nil {
		return err
	}
	if err := c.ensureIndex(ctx, len(vector)); err != nil {
		return err
	}

	metadata, err := json.Marshal(refs)
	if err != nil {
		return err
	}

	key := c.keyPrefix + core.KeyFromContent(prompt)
	err = c.client.HSet(ctx, key, map[string]interface{}{
		"prompt":        prompt,
		"response":      response,
		"metadata":      metadata,
		"popularity":    0,
		"prompt_vector": vectorBytes(vector),
	}).Err()
	if err != nil {
		return err
	}

	c.logger.Debug("cached answer", "key", key, "references", len(refs))
	return nil
}

// IncrPopularity bumps the popularity counter of a cache entry by one.
// The id is the full entry key as returned in a CacheHit.
func (c *Cache) IncrPopularity(ctx context.Context, id string) error {
	return c.client.HIncrBy(ctx, id, "popularity", 1).Err()
}

// ensureIndex creates the cache index on first use. The vector dimension is
// only known once an embedding has been computed, hence the lazy creation.
// One cache is shared across concurrent questions, so the ready flag is
// guarded.
func (c *Cache) ensureIndex(ctx context.Context, dim int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexReady {
		return nil
	}

	err := c.client.FTCreate(ctx, c.indexName,
		&redis.FTCreateOptions{
			OnHash: true,
			Prefix: []interface{}{c.keyPrefix},
		},
		&redis.FieldSchema{FieldName: "prompt", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "response", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "popularity", FieldType: redis.SearchFieldTypeNumeric},
		&redis.FieldSchema{
			FieldName: "prompt_vector",
			FieldType: redis.SearchFieldTypeVector,
			VectorArgs: &redis.FTVectorArgs{
				HNSWOptions: &redis.FTHNSWOptions{
					Type:           "FLOAT32",
					Dim:            dim,
					DistanceMetric: "COSINE",
				},
			},
		}).Err()
	if err != nil && !strings.Contains(err.Error(), "Index already exists") {
		return err
	}

	c.indexReady = true
	return nil
}

// parseHit converts a search result document into a CacheHit, rejecting
// documents beyond the distance threshold or with unparseable fields.
func parseHit(id string, fields map[string]string, maxDistance float64) (core.CacheHit, bool) {
	distance, err := strconv.ParseFloat(fields["distance"], 64)
	if err != nil || distance > maxDistance {
		return core.CacheHit{}, false
	}

	hit := core.CacheHit{
		ID:       id,
		Response: fields["response"],
		Distance: distance,
	}
	if raw := fields["metadata"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &hit.References); err != nil {
			return core.CacheHit{}, false
		}
	}
	return hit, true
}

// vectorBytes encodes a float32 vector into the little-endian byte layout
// RediSearch expects for FLOAT32 vector fields.
func vectorBytes(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
