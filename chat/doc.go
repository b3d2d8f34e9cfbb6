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


// Package chat orchestrates retrieval-augmented conversation turns.
//
// For each question the Chain either serves a semantic cache hit directly,
// or runs the full path: trim and read session history, condense a
// standalone question, retrieve context documents, and stream a generated
// answer through the hand-off bridge. Completed turns are appended to the
// session history; turns backed by retrieved references feed the cache.
//
// The chain depends only on the small History, Cache and Retriever
// interfaces, so it can be tested in isolation and wired to any store
// implementation.
package chat
