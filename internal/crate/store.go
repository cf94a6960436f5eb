package crate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// Querier defines the database operations the Store depends on.
// Following Go best practices: interfaces are defined by the consumer, not
// the provider (similar to http.RoundTripper, io.Reader). The production
// implementation is PG (backed by pgxpool); tests supply mocks.
type Querier interface {
	// GetCrate returns a crate row by id, pgx.ErrNoRows when absent.
	GetCrate(ctx context.Context, id string) (Crate, error)

	// SetEmbedding writes the embedding column for a crate and returns
	// the number of rows affected.
	SetEmbedding(ctx context.Context, id string, embedding pgvector.Vector) (int64, error)

	// ListMissingEmbeddings returns id, name and description of all crates
	// whose embedding column is NULL.
	ListMissingEmbeddings(ctx context.Context) ([]Crate, error)

	// ListEmbeddings returns id and embedding of all indexed crates.
	ListEmbeddings(ctx context.Context) ([]Crate, error)

	// SearchKeyword runs the tsv @@ to_tsquery full-text query ordered by
	// ts_rank descending.
	SearchKeyword(ctx context.Context, tsquery string, limit int) ([]KeywordMatch, error)

	// SearchSubstring runs a case-insensitive substring match over name and
	// description, ranked by where the match lands.
	SearchSubstring(ctx context.Context, query string, limit int) ([]KeywordMatch, error)

	// SearchWeb runs a websearch_to_tsquery full-text query over the raw
	// user input, falling back to plainto_tsquery.
	SearchWeb(ctx context.Context, query string, limit int) ([]KeywordMatch, error)

	// SearchPhrase runs a phraseto_tsquery full-text query, widened with a
	// substring pattern built from the query words.
	SearchPhrase(ctx context.Context, query string, limit int) ([]KeywordMatch, error)

	// ClearEmbeddings nulls the embedding column for all crates and
	// returns the number of rows affected.
	ClearEmbeddings(ctx context.Context) (int64, error)

	// ClearEmbedding nulls the embedding column for a single crate and
	// returns the number of rows affected.
	ClearEmbedding(ctx context.Context, id string) (int64, error)
}

// Store manages crate metadata with vector and full-text search support.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries Querier
	logger  *slog.Logger
}

// New creates a new Store instance. A nil logger falls back to slog.Default().
func New(querier Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{queries: querier, logger: logger}
}

// Get returns the crate with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Crate, error) {
	c, err := s.queries.GetCrate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr("get", err)
	}
	return &c, nil
}

// Description returns the description of the crate with the given id.
func (s *Store) Description(ctx context.Context, id string) (string, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return c.Description, nil
}

// SetEmbedding stores the embedding vector for a crate.
// Returns ErrNotFound when the id does not exist.
func (s *Store) SetEmbedding(ctx context.Context, id string, vec []float32) error {
	affected, err := s.queries.SetEmbedding(ctx, id, pgvector.NewVector(vec))
	if err != nil {
		return storeErr("set_embedding", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("stored crate embedding", "crate_id", id, "dimension", len(vec))
	return nil
}

// ListMissingEmbeddings returns all crates that have not been indexed yet.
func (s *Store) ListMissingEmbeddings(ctx context.Context) ([]Crate, error) {
	crates, err := s.queries.ListMissingEmbeddings(ctx)
	if err != nil {
		return nil, storeErr("list_missing_embeddings", err)
	}
	return crates, nil
}

// ListEmbeddings returns id and embedding of every indexed crate.
// Rows with a NULL embedding are excluded by the query itself.
func (s *Store) ListEmbeddings(ctx context.Context) ([]Crate, error) {
	crates, err := s.queries.ListEmbeddings(ctx)
	if err != nil {
		return nil, storeErr("list_embeddings", err)
	}
	return crates, nil
}

// SearchKeyword runs a full-text query against the tsvector column and
// returns matches ordered by rank. The tsquery string must already be in
// to_tsquery syntax (see search.BuildTSQuery).
func (s *Store) SearchKeyword(ctx context.Context, tsquery string, limit int) ([]KeywordMatch, error) {
	if limit < 1 {
		limit = 10
	}
	matches, err := s.queries.SearchKeyword(ctx, tsquery, limit)
	if err != nil {
		return nil, storeErr("search_keyword", err)
	}

	s.logger.Debug("keyword search", "tsquery", tsquery, "matches", len(matches))
	return matches, nil
}

// SearchSubstring matches the query as a case-insensitive substring of
// crate names and descriptions. Name matches rank above description
// matches; used by the LLM-free search pipeline.
func (s *Store) SearchSubstring(ctx context.Context, query string, limit int) ([]KeywordMatch, error) {
	if limit < 1 {
		limit = 10
	}
	matches, err := s.queries.SearchSubstring(ctx, query, limit)
	if err != nil {
		return nil, storeErr("search_substring", err)
	}
	return matches, nil
}

// SearchWeb runs a full-text query parsed from raw user input with
// websearch semantics (quoted phrases, or, minus prefixes).
func (s *Store) SearchWeb(ctx context.Context, query string, limit int) ([]KeywordMatch, error) {
	if limit < 1 {
		limit = 10
	}
	matches, err := s.queries.SearchWeb(ctx, query, limit)
	if err != nil {
		return nil, storeErr("search_web", err)
	}
	return matches, nil
}

// SearchPhrase runs a phrase-level full-text query widened with a
// substring pattern so long sentences still surface loose matches.
func (s *Store) SearchPhrase(ctx context.Context, query string, limit int) ([]KeywordMatch, error) {
	if limit < 1 {
		limit = 10
	}
	matches, err := s.queries.SearchPhrase(ctx, query, limit)
	if err != nil {
		return nil, storeErr("search_phrase", err)
	}
	return matches, nil
}

// ResetEmbeddings nulls every stored embedding so the corpus can be
// re-indexed, e.g. after switching embedder models. Returns the number of
// rows cleared.
func (s *Store) ResetEmbeddings(ctx context.Context) (int64, error) {
	affected, err := s.queries.ClearEmbeddings(ctx)
	if err != nil {
		return 0, storeErr("reset_embeddings", err)
	}

	s.logger.Info("reset all crate embeddings", "cleared", affected)
	return affected, nil
}

// ResetEmbedding nulls the stored embedding for a single crate.
// Returns ErrNotFound when the id does not exist.
func (s *Store) ResetEmbedding(ctx context.Context, id string) error {
	affected, err := s.queries.ClearEmbedding(ctx, id)
	if err != nil {
		return storeErr("reset_embedding", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Info("reset crate embedding", "crate_id", id)
	return nil
}
