// Package embed generates and persists crate embeddings through a Genkit
// ai.Embedder.
//
// Single-text and batch calls enforce the vector dimension the crates table
// is declared with; the bulk indexer fans out over missing rows with bounded
// concurrency and reports per-crate failures without aborting the run.
package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"

	"github.com/cratespro/cratesearch/internal/crate"
	"github.com/cratespro/cratesearch/internal/search"
)

// Service generates embeddings and writes them to the crate store.
//
// Service is safe for concurrent use by multiple goroutines.
type Service struct {
	embedder ai.Embedder
	store    *crate.Store
	logger   *slog.Logger
	limiter  *rate.Limiter
	options  any
}

// New creates a Service. A nil limiter disables client-side rate limiting;
// a nil logger falls back to slog.Default().
//
// options is attached to every provider request. Providers whose models
// emit more than search.VectorDimension dimensions natively need it to pin
// the output size (for Gemini, a *genai.EmbedContentConfig with
// OutputDimensionality set); nil keeps the provider defaults.
func New(embedder ai.Embedder, store *crate.Store, logger *slog.Logger, limiter *rate.Limiter, options any) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder: embedder,
		store:    store,
		logger:   logger,
		limiter:  limiter,
		options:  options,
	}
}

// Embed returns the embedding vector for a single text.
// The result always has exactly search.VectorDimension entries; anything
// else from the provider is reported as ErrProvider.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedAll returns one embedding per input text, in input order.
// The whole batch is sent as a single provider request: either every text
// is embedded or the call fails.
func (s *Service) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return s.embedBatch(ctx, texts)
}

// embedBatch issues one provider request for all texts and validates the
// response shape: one vector per input, each of the expected dimension.
func (s *Service) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs, Options: s.options})
	if err != nil {
		return nil, providerErr("embed", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, providerErr("embed",
			fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts)))
	}

	vecs := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) != search.VectorDimension {
			return nil, providerErr("embed",
				fmt.Errorf("embedding %d has dimension %d, want %d",
					i, len(emb.Embedding), search.VectorDimension))
		}
		vecs[i] = emb.Embedding
	}
	return vecs, nil
}

// UpdateCrateEmbedding embeds a single crate's metadata and stores the
// vector. crate.ErrNotFound passes through when the id does not exist.
func (s *Service) UpdateCrateEmbedding(ctx context.Context, id string) error {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	vec, err := s.Embed(ctx, c.EmbeddingText())
	if err != nil {
		return fmt.Errorf("embedding crate %q: %w", id, err)
	}

	if err := s.store.SetEmbedding(ctx, id, vec); err != nil {
		return err
	}

	s.logger.Info("updated crate embedding", "crate_id", id)
	return nil
}

// wait blocks on the rate limiter if one is configured.
func (s *Service) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
