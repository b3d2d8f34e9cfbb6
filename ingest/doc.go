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


// Package ingest loads CSV datasets into vector indexes.
//
// Each run writes to a freshly named index derived from the source file
// and the run timestamp. Serving never switches automatically: an operator
// promotes a finished index to the retrieval alias once it is verified,
// and the previous index stays queryable under its own name.
//
// Rows are flattened to one "key: value" line per column, split into
// chunks sized for a single embedding call, and fanned out over a worker
// pool. A failing row is logged and counted; it does not stop the run.
package ingest
