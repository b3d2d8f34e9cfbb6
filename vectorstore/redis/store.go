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


package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/poiesic/ragpilot/ai"
	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/vectorstore"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultAlias is the index alias queried at retrieval time. Ingestion
// creates freshly named indexes; an operator promotes one to this alias.
const DefaultAlias = "ragpilot_rag_alias"

// Store implements vectorstore.Index over a RediSearch vector index.
//
// Documents are Redis hashes keyed "<index>:<content-hash>" carrying the
// chunk text, its embedding and the source metadata columns. The index
// schema is created lazily on first write, once the embedding dimension
// is known.
type Store struct {
	client   *goredis.Client
	embedder ai.Embedder
	index    string
	logger   *slog.Logger

	mu      sync.Mutex
	created bool
}

var _ vectorstore.Index = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithIndexName sets the index this store reads from and writes to.
// Default is DefaultAlias, the promoted retrieval index.
func WithIndexName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.index = name
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// New creates a vector store over the given Redis client and embedder.
func New(client *goredis.Client, embedder ai.Embedder, opts ...Option) *Store {
	s := &Store{
		client:   client,
		embedder: embedder,
		index:    DefaultAlias,
		logger:   slog.Default().With("component", "vectorstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IndexName returns the index this store targets.
func (s *Store) IndexName() string {
	return s.index
}

// Add writes documents into the index, one embedding per chunk.
// Document ids default to the chunk content hash when unset.
func (s *Store) Add(ctx context.Context, docs []core.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedding result mismatch. expected %d, received %d", len(docs), len(vectors))
	}

	if err := s.ensureIndex(ctx, len(vectors[0])); err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = core.KeyFromContent(doc.Content)
		}
		key := s.index + ":" + id
		pipe.HSet(ctx, key, documentFields(doc, vectors[i]))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Search returns the k documents most similar to the query through the
// store's index, ranked by descending similarity score.
func (s *Store) Search(ctx context.Context, query string, k int) ([]core.Document, error) {
	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}

	res, err := s.client.FTSearchWithArgs(ctx, s.index,
		"*=>[KNN $k @content_vector $vec AS vector_score]",
		&goredis.FTSearchOptions{
			Return: []goredis.FTSearchReturn{
				{FieldName: "content"},
				{FieldName: "title"},
				{FieldName: "genre"},
				{FieldName: "country"},
				{FieldName: "revenue"},
				{FieldName: "score"},
				{FieldName: "date"},
				{FieldName: "vector_score"},
			},
			SortBy:         []goredis.FTSearchSortBy{{FieldName: "vector_score", Asc: true}},
			DialectVersion: 2,
			Params: map[string]interface{}{
				"k":   k,
				"vec": vectorBytes(vector),
			},
			Limit: k,
		}).Result()
	if err != nil {
		return nil, err
	}

	docs := make([]core.Document, 0, len(res.Docs))
	for _, d := range res.Docs {
		docs = append(docs, parseDocument(d.ID, d.Fields))
	}

	s.logger.Debug("similarity search", "index", s.index, "k", k, "results", len(docs))
	return docs, nil
}

// AliasExists reports whether an index (or alias) of the given name is
// known to RediSearch.
func (s *Store) AliasExists(ctx context.Context, alias string) bool {
	return s.client.FTInfo(ctx, alias).Err() == nil
}

// PromoteAlias points the retrieval alias at the given index, replacing
// any previous target. Old indexes stay queryable under their own names.
func (s *Store) PromoteAlias(ctx context.Context, alias, index string) error {
	if err := s.client.FTAliasUpdate(ctx, index, alias).Err(); err != nil {
		return err
	}
	s.logger.Info("alias promoted", "alias", alias, "index", index)
	return nil
}

// ensureIndex creates the index schema on first write.
func (s *Store) ensureIndex(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}

	err := s.client.FTCreate(ctx, s.index,
		&goredis.FTCreateOptions{
			OnHash: true,
			Prefix: []interface{}{s.index + ":"},
		},
		&goredis.FieldSchema{FieldName: "content", FieldType: goredis.SearchFieldTypeText},
		&goredis.FieldSchema{FieldName: "title", FieldType: goredis.SearchFieldTypeText},
		&goredis.FieldSchema{FieldName: "genre", FieldType: goredis.SearchFieldTypeTag},
		&goredis.FieldSchema{FieldName: "country", FieldType: goredis.SearchFieldTypeTag},
		&goredis.FieldSchema{FieldName: "revenue", FieldType: goredis.SearchFieldTypeNumeric},
		&goredis.FieldSchema{FieldName: "score", FieldType: goredis.SearchFieldTypeNumeric},
		&goredis.FieldSchema{FieldName: "date", FieldType: goredis.SearchFieldTypeNumeric},
		&goredis.FieldSchema{
			FieldName: "content_vector",
			FieldType: goredis.SearchFieldTypeVector,
			VectorArgs: &goredis.FTVectorArgs{
				HNSWOptions: &goredis.FTHNSWOptions{
					Type:           "FLOAT32",
					Dim:            dim,
					DistanceMetric: "COSINE",
				},
			},
		}).Err()
	if err != nil && !strings.Contains(err.Error(), "Index already exists") {
		return err
	}

	s.created = true
	return nil
}
