// ABOUTME: chromem-go backed similarity index
// ABOUTME: Delegates nearest-neighbor search to an embedded chromem collection

package retriever

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/2389/teller/internal/store"
)

const chromemCollection = "corpus"

// errNotPreEmbedded is returned if chromem ever asks us to embed; documents
// always arrive with vectors from the configured embedder.
var errNotPreEmbedded = errors.New("chromem index requires pre-embedded documents")

// ChromemIndex keeps documents in a chromem-go collection.
// All vectors in one index must share a length; the first document fixes it.
type ChromemIndex struct {
	col *chromem.Collection

	mu   sync.RWMutex
	docs map[string]*store.Document // chromem ID -> document
	dims int
}

// NewChromemIndex creates an index over a fresh in-memory chromem database.
func NewChromemIndex() (*ChromemIndex, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(chromemCollection, nil, func(ctx context.Context, text string) ([]float32, error) {
		return nil, errNotPreEmbedded
	})
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemIndex{
		col:  col,
		docs: make(map[string]*store.Document),
	}, nil
}

// Add inserts doc into the collection. Documents whose embedding is missing,
// zero, or of a different length than the index are skipped.
func (c *ChromemIndex) Add(ctx context.Context, doc *store.Document) error {
	if norm(doc.Embedding) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dims == 0 {
		c.dims = len(doc.Embedding)
	}
	if len(doc.Embedding) != c.dims {
		return nil
	}

	d := *doc
	d.Embedding = append([]float32(nil), doc.Embedding...)

	err := c.col.AddDocument(ctx, chromem.Document{
		ID:        d.ID,
		Content:   d.Content,
		Embedding: append([]float32(nil), d.Embedding...),
		Metadata:  map[string]string{"seq": strconv.FormatInt(d.Seq, 10)},
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	c.docs[d.ID] = &d
	return nil
}

// Len returns the number of searchable documents.
func (c *ChromemIndex) Len() int {
	return c.col.Count()
}

// Search queries the collection and re-ranks so equal scores keep insertion
// order. Every document is requested because chromem's scan order among equal
// scores varies between calls; cutting to k happens after ranking.
func (c *ChromemIndex) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if k <= 0 || norm(query) == 0 {
		return nil, nil
	}

	c.mu.RLock()
	dims := c.dims
	c.mu.RUnlock()
	if len(query) != dims {
		return nil, nil
	}

	// chromem rejects nResults larger than the collection.
	n := c.col.Count()
	if n == 0 {
		return nil, nil
	}

	results, err := c.col.QueryEmbedding(ctx, append([]float32(nil), query...), n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	c.mu.RLock()
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		d, ok := c.docs[r.ID]
		if !ok {
			continue
		}
		matches = append(matches, Match{Document: d, Score: float64(r.Similarity)})
	}
	c.mu.RUnlock()

	rank(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
