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


// Package history persists per-session conversation turns in Redis lists.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/poiesic/ragpilot/core"
	"github.com/redis/go-redis/v9"
)

const (
	// defaultKeyPrefix namespaces history lists in Redis.
	defaultKeyPrefix = "ragpilot:history:"

	// defaultTTL bounds how long an idle session's history is retained.
	defaultTTL = time.Hour
)

// Store persists per-session conversation history as a Redis list.
//
// Each session id owns one list of JSON-encoded turns, newest first
// (LPUSH). The list TTL is refreshed on every append, so idle sessions
// expire as a whole. Turns are append-only; the only mutations are
// tail-trimming to a bounded length and explicit reset.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix for history lists.
// Default is "ragpilot:history:".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithTTL sets the retention for idle sessions.
// Default is one hour.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
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

// New creates a history store backed by the given Redis client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       defaultTTL,
		logger:    slog.Default().With("component", "history"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records one completed turn for the session and refreshes the
// session TTL.
func (s *Store) Append(ctx context.Context, sessionID string, turn core.Turn) error {
	val, err := json.Marshal(turn)
	if err != nil {
		return err
	}

	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, val)
	pipe.Expire(ctx, key, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Turns returns the session's history, oldest first.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]core.Turn, error) {
	vals, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	// The list is newest-first; reverse while decoding.
	turns := make([]core.Turn, 0, len(vals))
	for i := len(vals) - 1; i >= 0; i-- {
		var turn core.Turn
		if err := json.Unmarshal([]byte(vals[i]), &turn); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Len returns the number of stored turns for the session.
func (s *Store) Len(ctx context.Context, sessionID string) (int64, error) {
	return s.client.LLen(ctx, s.key(sessionID)).Result()
}

// TrimTo drops the oldest turns so at most n remain.
func (s *Store) TrimTo(ctx context.Context, sessionID string, n int64) error {
	length, err := s.Len(ctx, sessionID)
	if err != nil {
		return err
	}
	if length <= n {
		return nil
	}

	// Oldest turns sit at the list tail.
	excess := length - n
	s.logger.Debug("trimming session history", "session", sessionID, "dropped", excess)
	return s.client.RPopCount(ctx, s.key(sessionID), int(excess)).Err()
}

// Clear removes the session's history entirely.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

// key constructs the Redis key for a session id.
func (s *Store) key(sessionID string) string {
	return s.keyPrefix + sessionID
}
