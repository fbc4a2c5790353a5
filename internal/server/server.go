// ABOUTME: Server orchestrator wiring store, ledger, retriever, router, and chat transport
// ABOUTME: Owns the HTTP listener, health endpoints, and shutdown ordering

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/teller/internal/chat"
	"github.com/2389/teller/internal/classifier"
	"github.com/2389/teller/internal/config"
	"github.com/2389/teller/internal/embedding"
	"github.com/2389/teller/internal/ledger"
	"github.com/2389/teller/internal/retriever"
	"github.com/2389/teller/internal/router"
	"github.com/2389/teller/internal/store"
)

// shutdownTimeout bounds graceful shutdown after Run's context ends.
const shutdownTimeout = 5 * time.Second

// Server runs the banking assistant over HTTP and websockets.
type Server struct {
	config     *config.Config
	store      store.Store
	ledger     *ledger.Ledger
	retriever  *retriever.Retriever
	router     *router.Router
	hub        *chat.Hub
	embedder   embedding.Embedder
	httpServer *http.Server
	logger     *slog.Logger
}

type options struct {
	classifier classifier.Classifier
	embedder   embedding.Embedder
}

// Option overrides a collaborator that would otherwise be built from config.
type Option func(*options)

// WithClassifier uses c instead of the configured classifier provider.
func WithClassifier(c classifier.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithEmbedder uses e instead of the configured embedding provider.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// OpenStore opens the SQLite database. TELLER_DB_PATH overrides the configured path.
func OpenStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("TELLER_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// NewIndex returns the retriever index selected by cfg.
func NewIndex(cfg config.RetrieverConfig) (retriever.Index, error) {
	switch cfg.Index {
	case config.IndexChromem:
		return retriever.NewChromemIndex()
	case config.IndexMemory, "":
		return retriever.NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unknown retriever index %q", cfg.Index)
	}
}

// NewRetriever builds the retriever over s and loads the stored corpus.
func NewRetriever(ctx context.Context, cfg *config.Config, emb embedding.Embedder, s store.DocumentStore, logger *slog.Logger) (*retriever.Retriever, error) {
	idx, err := NewIndex(cfg.Retriever)
	if err != nil {
		return nil, err
	}
	r := retriever.New(emb, s, idx,
		retriever.WithTopK(cfg.Retriever.TopK),
		retriever.WithTimeout(cfg.Retriever.Timeout),
		retriever.WithLogger(logger),
	)
	if _, err := r.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	return r, nil
}

// New creates a Server: it opens the database, restores accounts and the
// corpus, and registers the HTTP routes.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	srv := &Server{
		config: cfg,
		store:  s,
		logger: logger.With("component", "server"),
	}
	if err := srv.build(ctx, o, logger); err != nil {
		srv.closeComponents()
		return nil, err
	}
	return srv, nil
}

func (s *Server) build(ctx context.Context, o options, logger *slog.Logger) error {
	cfg := s.config

	led, err := ledger.Open(ctx, s.store,
		ledger.WithIBANAttempts(cfg.Ledger.IBANAttempts),
		ledger.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	s.ledger = led

	s.embedder = o.embedder
	if s.embedder == nil {
		if s.embedder, err = embedding.New(cfg.Embedder, logger); err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
	}

	if s.retriever, err = NewRetriever(ctx, cfg, s.embedder, s.store, logger); err != nil {
		return err
	}

	cls := o.classifier
	if cls == nil {
		if cls, err = classifier.New(cfg.Classifier, logger); err != nil {
			return fmt.Errorf("creating classifier: %w", err)
		}
	}

	s.router = router.New(led, cls, s.retriever,
		router.WithClassifyTimeout(cfg.Classifier.Timeout),
		router.WithLogger(logger),
	)
	s.hub = chat.NewHub(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)
	mux.Handle("GET /ws/chat/{room}", chat.NewHandler(s.hub, s.router, cfg.Chat, logger))
	mux.HandleFunc("POST /api/documents", s.handleCreateDocument)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("server ready",
		"accounts", led.Count(),
		"embedder", cfg.Embedder.Provider,
		"index", cfg.Retriever.Index,
	)
	return nil
}

// Handler returns the HTTP handler, for serving without Run.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Retriever returns the server's retriever.
func (s *Server) Retriever() *retriever.Retriever {
	return s.retriever
}

// Run listens on the configured address and blocks until ctx is canceled or
// the HTTP server fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := s.startServer(ln)
	serverErr := s.waitForShutdownSignal(ctx, errCh)
	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (s *Server) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown uses a fresh context since Run's context is already done.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown disconnects chat clients, stops the HTTP server, and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Websocket connections are hijacked, so http.Server.Shutdown does not
	// wait for them; closing the hub ends their write loops.
	if s.hub != nil {
		s.hub.Close()
	}

	var errs []error
	if s.httpServer != nil {
		errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	}
	errs = append(errs, s.closeComponents()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// closeComponents releases the embedder cache and the store.
func (s *Server) closeComponents() []error {
	if c, ok := s.embedder.(interface{ Close() }); ok {
		c.Close()
	}
	var errs []error
	if s.store != nil {
		errs = appendCloseError(errs, "store close", s.store.Close())
		s.store = nil
	}
	return errs
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d accounts)", s.ledger.Count())
}
