// ABOUTME: Similarity indexes over the document corpus
// ABOUTME: MemoryIndex does a full cosine scan with insertion-order tie-breaks

package retriever

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/2389/teller/internal/store"
)

// Match is a scored document.
type Match struct {
	Document *store.Document
	Score    float64
}

// Index stores embedded documents and answers nearest-neighbor queries.
type Index interface {
	// Add makes doc searchable. Documents without a usable embedding are kept out of results.
	Add(ctx context.Context, doc *store.Document) error

	// Search returns at most k matches, best first, ties in insertion order.
	Search(ctx context.Context, query []float32, k int) ([]Match, error)

	// Len reports how many documents were added.
	Len() int
}

// MemoryIndex scores every document on each query.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs []*store.Document
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Add appends a copy of doc.
func (m *MemoryIndex) Add(ctx context.Context, doc *store.Document) error {
	d := *doc
	d.Embedding = append([]float32(nil), doc.Embedding...)

	m.mu.Lock()
	m.docs = append(m.docs, &d)
	m.mu.Unlock()
	return nil
}

// Len returns the number of documents added.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Search scores all documents by cosine similarity to query.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if k <= 0 || norm(query) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	matches := make([]Match, 0, len(m.docs))
	for _, d := range m.docs {
		score, ok := cosine(query, d.Embedding)
		if !ok {
			continue
		}
		matches = append(matches, Match{Document: d, Score: score})
	}
	m.mu.RUnlock()

	rank(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// rank orders matches by score descending, then by insertion order.
func rank(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Document.Seq < matches[j].Document.Seq
	})
}

// cosine returns dot(a,b)/(|a||b|). ok is false when the vectors are not
// comparable: different lengths, empty, or zero norm.
func cosine(a, b []float32) (score float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
