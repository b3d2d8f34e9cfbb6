package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/ragpilot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex collects added documents in memory.
type fakeIndex struct {
	mu   sync.Mutex
	name string
	docs []core.Document
	err  error
}

func (f *fakeIndex) Add(ctx context.Context, docs []core.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, docs...)
	return nil
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const moviesCSV = `names,genre,country,revenue,score,date_x,overview
Avatar,Science Fiction,AU,2923706026,7.6,12/15/2022,A marine on an alien moon.
Titanic,"Drama, Romance",AU,2264162353,7.9,12/19/1997,A ship meets an iceberg.
`

func newTestWorker(t *testing.T, index *fakeIndex, opts ...Option) *Worker {
	t.Helper()
	opts = append(opts, WithIndexFactory(func(name string) Index {
		index.name = name
		return index
	}))
	w, err := NewWorker(nil, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(w.Release)
	return w
}

func TestRun_IngestsEveryRow(t *testing.T) {
	index := &fakeIndex{}
	w := newTestWorker(t, index)

	path := writeCSV(t, "movies.csv", moviesCSV)
	report, err := w.Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, 0, report.Failed)
	assert.Contains(t, report.Index, "ragpilot_rag_movies_")
	assert.Equal(t, report.Index, index.name)

	require.Len(t, index.docs, 2)
	titles := []string{index.docs[0].Reference.Title, index.docs[1].Reference.Title}
	assert.ElementsMatch(t, []string{"Avatar", "Titanic"}, titles)
	for _, doc := range index.docs {
		assert.Contains(t, doc.Content, "names: ")
		assert.Contains(t, doc.Content, "overview: ")
	}
}

// aliasAwareIndex additionally records alias lookups, like the real store.
type aliasAwareIndex struct {
	fakeIndex
	aliasChecked string
	aliasExists  bool
}

func (f *aliasAwareIndex) AliasExists(ctx context.Context, alias string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aliasChecked = alias
	return f.aliasExists
}

func TestRun_ChecksRetrievalAlias(t *testing.T) {
	index := &aliasAwareIndex{}
	opts := []Option{
		WithAlias("custom_alias"),
		WithIndexFactory(func(name string) Index { return index }),
	}
	w, err := NewWorker(nil, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(w.Release)

	path := writeCSV(t, "movies.csv", moviesCSV)
	report, err := w.Run(context.Background(), path)
	require.NoError(t, err)

	// A missing alias is only a warning; the run still ingests everything.
	assert.Equal(t, "custom_alias", index.aliasChecked)
	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, 0, report.Failed)
}

func TestRun_RowFailuresAreCountedNotFatal(t *testing.T) {
	index := &fakeIndex{err: errors.New("index write failed")}
	w := newTestWorker(t, index)

	path := writeCSV(t, "movies.csv", moviesCSV)
	report, err := w.Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, 2, report.Failed)
}

func TestRun_MissingFile(t *testing.T) {
	w := newTestWorker(t, &fakeIndex{})

	_, err := w.Run(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestRun_EmptyFileFailsOnHeader(t *testing.T) {
	w := newTestWorker(t, &fakeIndex{})

	path := writeCSV(t, "empty.csv", "")
	_, err := w.Run(context.Background(), path)
	assert.Error(t, err)
}

func TestNewWorker_DefaultFactoryValidation(t *testing.T) {
	t.Run("missing client", func(t *testing.T) {
		_, err := NewWorker(nil, nil)
		assert.Equal(t, ErrClientRequired, err)
	})
}

func TestIndexName(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "ragpilot_rag_movies_20250101_120000_idx",
		IndexName("/data/movies.csv", now))
	assert.Equal(t, "ragpilot_rag_movies_20250101_120000_idx",
		IndexName("movies.csv", now))
	assert.Equal(t, "ragpilot_rag_imdb-top-1000_20250101_120000_idx",
		IndexName("./exports/imdb-top-1000.csv", now))
}

func TestFlattenRow(t *testing.T) {
	header := []string{"names", "genre", "score"}

	t.Run("preserves header order", func(t *testing.T) {
		got := flattenRow(header, []string{"Avatar", "Science Fiction", "7.6"})
		assert.Equal(t, "names: Avatar\ngenre: Science Fiction\nscore: 7.6", got)
	})

	t.Run("short row keeps empty trailing columns", func(t *testing.T) {
		got := flattenRow(header, []string{"Avatar"})
		assert.Equal(t, "names: Avatar\ngenre: \nscore: ", got)
	})
}

func TestRowReference(t *testing.T) {
	header := []string{"names", "genre", "country", "revenue", "score", "date_x"}

	t.Run("full row", func(t *testing.T) {
		ref := rowReference(header, []string{
			"Avatar", "Science Fiction", "AU", "2923706026", "7.6", "12/15/2022",
		})
		assert.Equal(t, "Avatar", ref.Title)
		assert.Equal(t, "Science Fiction", ref.Genre)
		assert.Equal(t, "AU", ref.Country)
		assert.Equal(t, float64(2923706026), ref.Revenue)
		assert.Equal(t, 7.6, ref.Score)
		assert.Equal(t, time.Date(2022, 12, 15, 0, 0, 0, 0, time.UTC).Unix(), ref.Date)
	})

	t.Run("unparseable numerics stay zero", func(t *testing.T) {
		ref := rowReference(header, []string{
			"Avatar", "", "", "unknown", "n/a", "someday",
		})
		assert.Equal(t, "Avatar", ref.Title)
		assert.Zero(t, ref.Revenue)
		assert.Zero(t, ref.Score)
		assert.Zero(t, ref.Date)
	})

	t.Run("unknown columns ignored", func(t *testing.T) {
		ref := rowReference([]string{"overview", "crew"}, []string{"text", "people"})
		assert.Equal(t, core.Reference{}, ref)
	})
}
