// ABOUTME: Embedding collaborator boundary and provider factory
// ABOUTME: Wraps chromem-go embedding funcs (OpenAI, Ollama) and the local hashing embedder

// Package embedding is the boundary to text-embedding services.
package embedding

import (
	"context"
	"fmt"
	"log/slog"

	chromem "github.com/philippgille/chromem-go"

	"github.com/2389/teller/internal/config"
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Func adapts a plain function (including chromem.EmbeddingFunc) to Embedder.
type Func func(ctx context.Context, text string) ([]float32, error)

// Embed calls f.
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// FromChromem adapts a chromem-go embedding function.
func FromChromem(fn chromem.EmbeddingFunc) Embedder {
	return Func(fn)
}

// New builds the configured embedder, wrapped in a query cache when
// cfg.CacheSize is positive.
func New(cfg config.EmbedderConfig, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var e Embedder
	switch cfg.Provider {
	case config.EmbedderOpenAI:
		model := chromem.EmbeddingModelOpenAI3Small
		if cfg.Model != "" {
			model = chromem.EmbeddingModelOpenAI(cfg.Model)
		}
		e = FromChromem(chromem.NewEmbeddingFuncOpenAI(cfg.APIKey, model))
	case config.EmbedderOllama:
		e = FromChromem(chromem.NewEmbeddingFuncOllama(cfg.Model, cfg.BaseURL))
	case config.EmbedderHash, "":
		e = NewHashEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.Provider)
	}

	logger.Info("embedder configured", "component", "embedding", "provider", cfg.Provider, "model", cfg.Model)

	if cfg.CacheSize > 0 {
		cached, err := NewCached(e, cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating embedding cache: %w", err)
		}
		return cached, nil
	}
	return e, nil
}
