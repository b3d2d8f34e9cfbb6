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


package core

import (
	"encoding/hex"

	"github.com/go-crypt/x/blake2b"
)

// KeyFromContent derives a deterministic hex key from text content using
// BLAKE2b hashing. Identical content always produces the same key, so
// repeated ingestions of the same chunk or repeated cache writes for the
// same prompt land on the same document.
func KeyFromContent(text string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Reference describes a source document that backed an answer.
// The fields mirror the metadata columns carried by ingested rows.
type Reference struct {
	Title   string  `json:"title"`
	Genre   string  `json:"genre,omitempty"`
	Country string  `json:"country,omitempty"`
	Revenue float64 `json:"revenue,omitempty"`
	Score   float64 `json:"score,omitempty"`
	Date    int64   `json:"date,omitempty"`
}

// Turn is one completed question/answer exchange in a session.
// Turns are append-only: created once at the end of a successful
// conversation step and never mutated afterwards.
type Turn struct {
	User string `json:"user"`
	AI   string `json:"ai"`

	// References maps document ids to the sources used for the answer.
	// Empty when the answer was produced without retrieved context.
	References map[string]Reference `json:"references,omitempty"`
}

// Document is a chunk of ingested content as stored in, or returned by,
// the vector index.
type Document struct {
	// ID is the document key within the index. Derived from content when
	// written; populated from the index on search results.
	ID string

	// Content is the chunk text.
	Content string

	// Reference carries the source metadata indexed with the chunk.
	Reference Reference

	// Score is the similarity score of a search result, in [0, 1] with
	// higher meaning more similar. Zero for documents being written.
	Score float64
}

// CacheHit is one ranked result from a semantic cache lookup.
type CacheHit struct {
	// ID is the full Redis key of the cache entry.
	ID string

	// Response is the previously generated answer.
	Response string

	// References are the sources stored with the cached answer.
	References map[string]Reference

	// Distance is the vector distance between the query prompt and the
	// cached prompt. Lower is closer.
	Distance float64
}
