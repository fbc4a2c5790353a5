// ABOUTME: Tests for ingestion, ranking, and degradation of the context retriever
// ABOUTME: Runs the ranking contract against both the memory and chromem indexes

package retriever

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/teller/internal/embedding"
	"github.com/2389/teller/internal/store"
)

// fixedEmbedder returns preset vectors and counts calls.
type fixedEmbedder struct {
	vectors map[string][]float32
	calls   atomic.Int32
	err     error
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

func newFixed() *fixedEmbedder {
	return &fixedEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0, 0},
		"beta":  {0, 1, 0},
		"gamma": {1, 0, 0},
		"delta": {1, 1, 0},
		"q":     {1, 0, 0},
		"zero":  {0, 0, 0},
	}}
}

type indexCase struct {
	name string
	new  func(t *testing.T) Index
}

func indexCases() []indexCase {
	return []indexCase{
		{"memory", func(t *testing.T) Index { return NewMemoryIndex() }},
		{"chromem", func(t *testing.T) Index {
			idx, err := NewChromemIndex()
			require.NoError(t, err)
			return idx
		}},
	}
}

func ingestAll(t *testing.T, r *Retriever, contents ...string) {
	t.Helper()
	for _, c := range contents {
		_, err := r.Ingest(t.Context(), c)
		require.NoError(t, err)
	}
}

func TestRetrieve_RanksByCosineWithInsertionTieBreak(t *testing.T) {
	for _, tc := range indexCases() {
		t.Run(tc.name, func(t *testing.T) {
			r := New(newFixed(), store.NewMockStore(), tc.new(t))
			ingestAll(t, r, "alpha", "beta", "gamma", "delta")

			got, err := r.Retrieve(t.Context(), "q", 3)
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "gamma", "delta"}, got)

			all, err := r.Retrieve(t.Context(), "q", 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "gamma", "delta", "beta"}, all)
		})
	}
}

func TestRetrieve_Deterministic(t *testing.T) {
	for _, tc := range indexCases() {
		t.Run(tc.name, func(t *testing.T) {
			r := New(newFixed(), store.NewMockStore(), tc.new(t))
			ingestAll(t, r, "gamma", "alpha", "delta", "beta")

			first, err := r.Retrieve(t.Context(), "q", 4)
			require.NoError(t, err)
			for i := 0; i < 20; i++ {
				again, err := r.Retrieve(t.Context(), "q", 4)
				require.NoError(t, err)
				require.Equal(t, first, again)
			}
			assert.Equal(t, []string{"gamma", "alpha", "delta", "beta"}, first)
		})
	}
}

func TestSearch_TiesAtCutoffKeepInsertionOrder(t *testing.T) {
	for _, tc := range indexCases() {
		t.Run(tc.name, func(t *testing.T) {
			idx := tc.new(t)
			for i := 1; i <= 8; i++ {
				require.NoError(t, idx.Add(t.Context(), &store.Document{
					ID:        fmt.Sprintf("doc-%d", i),
					Seq:       int64(i),
					Content:   fmt.Sprintf("doc %d", i),
					Embedding: []float32{1, 0},
				}))
			}

			for i := 0; i < 100; i++ {
				matches, err := idx.Search(t.Context(), []float32{1, 0}, 2)
				require.NoError(t, err)
				require.Len(t, matches, 2)
				require.Equal(t, "doc 1", matches[0].Document.Content)
				require.Equal(t, "doc 2", matches[1].Document.Content)
			}
		})
	}
}

func TestRetrieve_DefaultK(t *testing.T) {
	r := New(newFixed(), store.NewMockStore(), NewMemoryIndex())
	ingestAll(t, r, "alpha", "beta", "gamma", "delta")

	got, err := r.Retrieve(t.Context(), "q", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultTopK)

	r2 := New(newFixed(), store.NewMockStore(), NewMemoryIndex(), WithTopK(1))
	ingestAll(t, r2, "alpha", "beta")
	got, err = r2.Retrieve(t.Context(), "q", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, got)
}

func TestRetrieve_EmptyCorpus(t *testing.T) {
	for _, tc := range indexCases() {
		t.Run(tc.name, func(t *testing.T) {
			emb := newFixed()
			r := New(emb, store.NewMockStore(), tc.new(t))

			got, err := r.Retrieve(t.Context(), "q", 3)
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)

			assert.Equal(t, "", r.Context(t.Context(), "q"))
			assert.Equal(t, int32(0), emb.calls.Load(), "empty corpus should not embed the query")
		})
	}
}

func TestRetrieve_SkipsDocumentsWithoutEmbedding(t *testing.T) {
	for _, tc := range indexCases() {
		t.Run(tc.name, func(t *testing.T) {
			docs := store.NewMockStore()
			ctx := t.Context()
			require.NoError(t, docs.SaveDocument(ctx, &store.Document{ID: "raw", Content: "no vector"}))
			require.NoError(t, docs.SaveDocument(ctx, &store.Document{ID: "zero", Content: "zero vector", Embedding: []float32{0, 0, 0}}))
			require.NoError(t, docs.SaveDocument(ctx, &store.Document{ID: "ok", Content: "alpha", Embedding: []float32{1, 0, 0}}))
			require.NoError(t, docs.SaveDocument(ctx, &store.Document{ID: "short", Content: "wrong dims", Embedding: []float32{1, 0}}))

			r := New(newFixed(), docs, tc.new(t))
			_, err := r.Load(ctx)
			require.NoError(t, err)

			got, err := r.Retrieve(ctx, "q", 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha"}, got)
		})
	}
}

func TestRetrieve_ZeroQueryMatchesNothing(t *testing.T) {
	r := New(newFixed(), store.NewMockStore(), NewMemoryIndex())
	ingestAll(t, r, "alpha")

	got, err := r.Retrieve(t.Context(), "zero", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestContext_JoinsWithBlankLine(t *testing.T) {
	r := New(newFixed(), store.NewMockStore(), NewMemoryIndex())
	ingestAll(t, r, "alpha", "beta", "delta")

	assert.Equal(t, "alpha\n\ndelta\n\nbeta", r.Context(t.Context(), "q"))
}

func TestContext_DegradesOnEmbeddingFailure(t *testing.T) {
	emb := newFixed()
	r := New(emb, store.NewMockStore(), NewMemoryIndex())
	ingestAll(t, r, "alpha")

	emb.err = errors.New("connection refused")

	_, err := r.Retrieve(t.Context(), "q", 3)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "", r.Context(t.Context(), "q"))
}

func TestContext_DegradesOnTimeout(t *testing.T) {
	slow := embedding.Func(func(ctx context.Context, text string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	docs := store.NewMockStore()
	require.NoError(t, docs.SaveDocument(t.Context(), &store.Document{ID: "d", Content: "alpha", Embedding: []float32{1}}))

	r := New(slow, docs, NewMemoryIndex(), WithTimeout(20*time.Millisecond))
	_, err := r.Load(t.Context())
	require.NoError(t, err)

	start := time.Now()
	assert.Equal(t, "", r.Context(t.Context(), "q"))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestIngest(t *testing.T) {
	docs := store.NewMockStore()
	r := New(newFixed(), docs, NewMemoryIndex())

	d1, err := r.Ingest(t.Context(), "  alpha \n")
	require.NoError(t, err)
	assert.Equal(t, "alpha", d1.Content)
	assert.Equal(t, []float32{1, 0, 0}, d1.Embedding)
	assert.NotEmpty(t, d1.ID)

	// No deduplication.
	d2, err := r.Ingest(t.Context(), "alpha")
	require.NoError(t, err)
	assert.NotEqual(t, d1.ID, d2.ID)

	stored, err := docs.ListDocuments(t.Context())
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	got, err := r.Retrieve(t.Context(), "q", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "alpha"}, got)
}

func TestIngest_Errors(t *testing.T) {
	emb := newFixed()
	docs := store.NewMockStore()
	r := New(emb, docs, NewMemoryIndex())

	_, err := r.Ingest(t.Context(), "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = r.Ingest(t.Context(), "unknown text")
	assert.ErrorIs(t, err, ErrUnavailable)

	stored, _ := docs.ListDocuments(t.Context())
	assert.Empty(t, stored, "failed ingestion must not persist anything")
}

// brokenIndex accepts nothing.
type brokenIndex struct{ MemoryIndex }

func (b *brokenIndex) Add(ctx context.Context, doc *store.Document) error {
	return errors.New("index full")
}

func TestIngest_IndexFailureKeepsStoredDocument(t *testing.T) {
	docs := store.NewMockStore()
	r := New(newFixed(), docs, &brokenIndex{})

	doc, err := r.Ingest(t.Context(), "alpha")
	require.ErrorIs(t, err, ErrNotIndexed)
	require.NotNil(t, doc)
	assert.Equal(t, "alpha", doc.Content)

	stored, err := docs.ListDocuments(t.Context())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, doc.ID, stored[0].ID)

	// A fresh retriever over the same store finds it after Load.
	reloaded := New(newFixed(), docs, NewMemoryIndex())
	n, err := reloaded.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := reloaded.Retrieve(t.Context(), "q", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, got)
}

func TestIngest_VisibleAfterReturnUnderConcurrency(t *testing.T) {
	h := embedding.NewHashEmbedder(64)
	r := New(h, store.NewMockStore(), NewMemoryIndex())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				content := fmt.Sprintf("document %d from writer %d", i, w)
				_, err := r.Ingest(context.Background(), content)
				assert.NoError(t, err)

				got, err := r.Retrieve(context.Background(), content, 100)
				assert.NoError(t, err)
				assert.Contains(t, got, content)
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := r.Retrieve(context.Background(), "document", 3)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func TestLoad_FromSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "corpus.db")
	ctx := t.Context()

	s1, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	r1 := New(newFixed(), s1, NewMemoryIndex())
	ingestAll(t, r1, "beta", "alpha", "gamma")
	require.NoError(t, s1.Close())

	s2, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	for _, tc := range indexCases() {
		t.Run(tc.name, func(t *testing.T) {
			r2 := New(newFixed(), s2, tc.new(t))
			n, err := r2.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			got, err := r2.Retrieve(ctx, "q", 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "gamma"}, got)
		})
	}
}
