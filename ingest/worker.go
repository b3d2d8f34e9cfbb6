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


package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragpilot/ai"
	"github.com/poiesic/ragpilot/core"
	vsredis "github.com/poiesic/ragpilot/vectorstore/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/tmc/langchaingo/textsplitter"
)

// text-embedding-ada-002 accepts 8191 tokens, roughly 4 characters each,
// so a 10000 character chunk stays comfortably inside one embedding call.
const (
	defaultChunkSize    = 10000
	defaultChunkOverlap = 50
)

// Index is the destination for ingested documents.
type Index interface {
	Add(ctx context.Context, docs []core.Document) error
}

// aliasChecker is implemented by destinations that can inspect RediSearch
// aliases, like vectorstore/redis.Store.
type aliasChecker interface {
	AliasExists(ctx context.Context, alias string) bool
}

// Worker loads a CSV file into a freshly named vector index. Each run
// targets a new index; nothing is served from it until an operator
// promotes it to the retrieval alias.
type Worker struct {
	client       *goredis.Client
	embedder     ai.Embedder
	pool         *ants.Pool
	alias        string
	chunkSize    int
	chunkOverlap int
	newIndex     func(name string) Index
	logger       *slog.Logger
}

// Report summarizes one ingestion run.
type Report struct {
	// Index is the name of the index the run wrote to.
	Index string

	// Rows is the number of CSV rows read.
	Rows int

	// Failed is the number of rows that could not be ingested.
	Failed int
}

// Option configures a Worker.
type Option func(*Worker) error

// WithPoolSize sets the worker pool size for concurrent row processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(w *Worker) error {
		if size < 1 {
			size = 1
		}
		if w.pool != nil {
			w.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		w.pool = pool
		return nil
	}
}

// WithAlias sets the retrieval alias checked before the run. A missing
// alias is reported as a warning; it never stops the run.
// Default is vsredis.DefaultAlias.
func WithAlias(alias string) Option {
	return func(w *Worker) error {
		if alias != "" {
			w.alias = alias
		}
		return nil
	}
}

// WithChunkSize sets the splitter chunk size in characters.
// Default is 10000.
func WithChunkSize(size int) Option {
	return func(w *Worker) error {
		if size > 0 {
			w.chunkSize = size
		}
		return nil
	}
}

// WithChunkOverlap sets the splitter chunk overlap in characters.
// Default is 50.
func WithChunkOverlap(overlap int) Option {
	return func(w *Worker) error {
		if overlap >= 0 {
			w.chunkOverlap = overlap
		}
		return nil
	}
}

// WithIndexFactory overrides how the per-run destination index is built.
// Default writes through a vectorstore over the worker's Redis client.
func WithIndexFactory(fn func(name string) Index) Option {
	return func(w *Worker) error {
		w.newIndex = fn
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// NewWorker creates an ingestion worker.
func NewWorker(client *goredis.Client, embedder ai.Embedder, opts ...Option) (*Worker, error) {
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		client:       client,
		embedder:     embedder,
		pool:         pool,
		alias:        vsredis.DefaultAlias,
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
		logger:       slog.Default().With("component", "ingest"),
	}
	for _, opt := range opts {
		if optErr := opt(w); optErr != nil {
			w.Release()
			return nil, optErr
		}
	}

	// The default factory needs both to build its vector store.
	if w.newIndex == nil {
		if client == nil {
			w.Release()
			return nil, ErrClientRequired
		}
		if embedder == nil {
			w.Release()
			return nil, ErrEmbedderRequired
		}
		w.newIndex = func(name string) Index {
			return vsredis.New(client, embedder,
				vsredis.WithIndexName(name),
				vsredis.WithLogger(w.logger))
		}
	}

	return w, nil
}

// Run ingests one CSV file into a new index named after the file and the
// current time. Row-level failures are logged and counted but do not stop
// the run. The returned report names the index so it can be promoted.
func (w *Worker) Run(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	indexName := IndexName(path, time.Now())
	w.logger.Info("starting ingestion", "file", path, "index", indexName)

	index := w.newIndex(indexName)
	if checker, ok := index.(aliasChecker); ok && !checker.AliasExists(ctx, w.alias) {
		w.logger.Warn("no retrieval alias exists, promote an index to serve queries", "alias", w.alias)
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(w.chunkSize),
		textsplitter.WithChunkOverlap(w.chunkOverlap),
	)

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	var (
		wg     sync.WaitGroup
		rows   int
		failed atomic.Int64
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			w.logger.Error("failed to read CSV row", "row", rows+1, "err", err)
			failed.Add(1)
			rows++
			continue
		}
		rows++

		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := w.ingestRow(ctx, index, splitter, header, row); err != nil {
				w.logger.Error("failed to ingest row", "err", err)
				failed.Add(1)
			}
		}
		if err := w.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	report := &Report{Index: indexName, Rows: rows, Failed: int(failed.Load())}
	w.logger.Info("ingestion complete",
		"index", report.Index, "rows", report.Rows, "failed", report.Failed)
	return report, nil
}

// ingestRow flattens one CSV row, splits it and writes the chunks.
func (w *Worker) ingestRow(ctx context.Context, index Index, splitter textsplitter.RecursiveCharacter, header, row []string) error {
	chunks, err := splitter.SplitText(flattenRow(header, row))
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	ref := rowReference(header, row)
	docs := make([]core.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = core.Document{Content: chunk, Reference: ref}
	}
	return index.Add(ctx, docs)
}

// Release releases the worker pool. The worker should not be used after
// calling Release.
func (w *Worker) Release() {
	if w.pool != nil {
		w.pool.Release()
	}
}

// IndexName derives the per-run index name from the source file and the
// run time, so repeated loads of the same file never collide.
func IndexName(path string, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return fmt.Sprintf("ragpilot_rag_%s_%s_idx", base, now.Format("20060102_150405"))
}

// flattenRow renders a CSV row as one "key: value" line per column, in
// header order. Short rows render their missing columns with empty values.
func flattenRow(header, row []string) string {
	var b strings.Builder
	for i, key := range header {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(key)
		b.WriteString(": ")
		if i < len(row) {
			b.WriteString(row[i])
		}
	}
	return b.String()
}

// rowReference extracts the source metadata columns from a row. Unknown
// columns are ignored; unparseable numerics and dates stay zero.
func rowReference(header, row []string) core.Reference {
	var ref core.Reference
	for i, key := range header {
		if i >= len(row) {
			break
		}
		value := strings.TrimSpace(row[i])
		if value == "" {
			continue
		}
		switch strings.ToLower(key) {
		case "names", "title":
			ref.Title = value
		case "genre":
			ref.Genre = value
		case "country":
			ref.Country = value
		case "revenue":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				ref.Revenue = f
			}
		case "score":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				ref.Score = f
			}
		case "date_x", "date":
			if t, err := time.Parse("1/2/2006", value); err == nil {
				ref.Date = t.Unix()
			}
		}
	}
	return ref
}
