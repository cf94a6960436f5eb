package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cratespro/cratesearch/internal/crate"
)

// searchTimeout bounds a single search query against the store.
const searchTimeout = 10 * time.Second

// Result is a single semantic search hit.
type Result struct {
	CrateID string
	Score   float32
}

// Store is the slice of the crate store the engine uses. SetEmbedding is
// only written on the hybrid path, to persist vectors embedded on demand
// for candidates the indexer has not reached yet.
type Store interface {
	ListEmbeddings(ctx context.Context) ([]crate.Crate, error)
	SearchKeyword(ctx context.Context, tsquery string, limit int) ([]crate.KeywordMatch, error)
	SetEmbedding(ctx context.Context, id string, vec []float32) error
}

// Embedder turns text into vectors. Satisfied by *embed.Service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine performs exact brute-force similarity search over all indexed
// crates. The corpus is small enough that a linear scan beats maintaining
// an ANN index.
//
// Engine is safe for concurrent use by multiple goroutines.
type Engine struct {
	store    Store
	embedder Embedder
	logger   *slog.Logger
}

// NewEngine creates an Engine. A nil logger falls back to slog.Default().
func NewEngine(store Store, embedder Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, embedder: embedder, logger: logger}
}

// Search returns the top k crates by cosine similarity to queryVec,
// descending, ties broken by ascending crate id. An empty index yields an
// empty result, not an error. Crates without embeddings never appear.
func (e *Engine) Search(ctx context.Context, queryVec []float32, k int) ([]Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	indexed, err := e.store.ListEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(indexed))
	for _, c := range indexed {
		if c.Embedding == nil {
			continue
		}
		results = append(results, Result{
			CrateID: c.ID,
			Score:   CosineSimilarity(queryVec, c.Embedding.Slice()),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CrateID < results[j].CrateID
	})

	if len(results) > k {
		results = results[:k]
	}

	e.logger.Debug("semantic search", "indexed", len(indexed), "k", k, "returned", len(results))
	return results, nil
}

// SearchText embeds the query and runs Search.
func (e *Engine) SearchText(ctx context.Context, query string, k int) ([]Result, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return e.Search(ctx, vec, k)
}
