// ABOUTME: Context retriever: document ingestion and top-k similarity lookup
// ABOUTME: Produces the context string handed to the intent classifier

package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/teller/internal/embedding"
	"github.com/2389/teller/internal/store"
)

// DefaultTopK is the number of documents returned when no k is given.
const DefaultTopK = 3

// ContextSeparator joins ranked documents into one context string.
const ContextSeparator = "\n\n"

var (
	// ErrUnavailable wraps embedding or index failures.
	ErrUnavailable = errors.New("retriever unavailable")

	// ErrEmptyContent is returned when ingesting blank text.
	ErrEmptyContent = errors.New("document content is empty")

	// ErrNotIndexed means the document was stored but could not be added to
	// the index. It becomes searchable on the next Load.
	ErrNotIndexed = errors.New("document stored but not indexed")
)

// Retriever owns the corpus: it persists documents and keeps the index in step.
type Retriever struct {
	embedder embedding.Embedder
	docs     store.DocumentStore
	index    Index
	topK     int
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK sets the default number of results.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithTimeout bounds each embedding call.
func WithTimeout(d time.Duration) Option {
	return func(r *Retriever) { r.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) { r.logger = logger }
}

// New creates a Retriever. Call Load to index previously stored documents.
func New(embedder embedding.Embedder, docs store.DocumentStore, index Index, opts ...Option) *Retriever {
	r := &Retriever{
		embedder: embedder,
		docs:     docs,
		index:    index,
		topK:     DefaultTopK,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "retriever")
	return r
}

// Load adds every stored document to the index, in insertion order.
func (r *Retriever) Load(ctx context.Context) (int, error) {
	docs, err := r.docs.ListDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing documents: %w", err)
	}
	for _, d := range docs {
		if err := r.index.Add(ctx, d); err != nil {
			return 0, fmt.Errorf("indexing document %s: %w", d.ID, err)
		}
	}
	r.logger.Info("corpus loaded", "documents", len(docs))
	return len(docs), nil
}

// Ingest embeds content, stores it, and makes it searchable before returning.
// Identical content ingested twice is stored twice. If indexing fails after
// the document was stored, Ingest returns the document together with an
// error wrapping ErrNotIndexed.
func (r *Retriever) Ingest(ctx context.Context, content string) (*store.Document, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	vec, err := r.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	doc := &store.Document{
		ID:        uuid.New().String(),
		Content:   content,
		Embedding: vec,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.docs.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}
	if err := r.index.Add(ctx, doc); err != nil {
		r.logger.Warn("document stored but not indexed", "id", doc.ID, "error", err)
		return doc, fmt.Errorf("%w: %v", ErrNotIndexed, err)
	}

	r.logger.Debug("document ingested", "id", doc.ID, "seq", doc.Seq, "dims", len(vec))
	return doc, nil
}

// Retrieve returns the contents of the k documents most similar to query,
// best first. k <= 0 uses the configured default. An empty corpus yields an
// empty slice without calling the embedder.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		k = r.topK
	}
	if r.index.Len() == 0 {
		return []string{}, nil
	}

	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Document.Content)
	}
	return out, nil
}

// Context returns the top documents for query joined by blank lines.
// Failures are logged and yield "" so the request can proceed without context.
func (r *Retriever) Context(ctx context.Context, query string) string {
	docs, err := r.Retrieve(ctx, query, 0)
	if err != nil {
		r.logger.Warn("retrieval failed, continuing without context", "error", err)
		return ""
	}
	return strings.Join(docs, ContextSeparator)
}

func (r *Retriever) embed(ctx context.Context, text string) ([]float32, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding: %v", ErrUnavailable, err)
	}
	return vec, nil
}
