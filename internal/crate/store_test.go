package crate

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockQuerier implements Querier with configurable behavior and call tracking.
type mockQuerier struct {
	getCrateFunc        func(ctx context.Context, id string) (Crate, error)
	setEmbeddingFunc    func(ctx context.Context, id string, embedding pgvector.Vector) (int64, error)
	listMissingFunc     func(ctx context.Context) ([]Crate, error)
	listEmbeddingsFunc  func(ctx context.Context) ([]Crate, error)
	searchKeywordFunc   func(ctx context.Context, tsquery string, limit int) ([]KeywordMatch, error)
	searchTextFunc      func(ctx context.Context, query string, limit int) ([]KeywordMatch, error)
	clearEmbeddingsFunc func(ctx context.Context) (int64, error)
	clearEmbeddingFunc  func(ctx context.Context, id string) (int64, error)

	setEmbeddingCalls []string
}

func (m *mockQuerier) GetCrate(ctx context.Context, id string) (Crate, error) {
	if m.getCrateFunc != nil {
		return m.getCrateFunc(ctx, id)
	}
	return Crate{}, pgx.ErrNoRows
}

func (m *mockQuerier) SetEmbedding(ctx context.Context, id string, embedding pgvector.Vector) (int64, error) {
	m.setEmbeddingCalls = append(m.setEmbeddingCalls, id)
	if m.setEmbeddingFunc != nil {
		return m.setEmbeddingFunc(ctx, id, embedding)
	}
	return 1, nil
}

func (m *mockQuerier) ListMissingEmbeddings(ctx context.Context) ([]Crate, error) {
	if m.listMissingFunc != nil {
		return m.listMissingFunc(ctx)
	}
	return nil, nil
}

func (m *mockQuerier) ListEmbeddings(ctx context.Context) ([]Crate, error) {
	if m.listEmbeddingsFunc != nil {
		return m.listEmbeddingsFunc(ctx)
	}
	return nil, nil
}

func (m *mockQuerier) SearchKeyword(ctx context.Context, tsquery string, limit int) ([]KeywordMatch, error) {
	if m.searchKeywordFunc != nil {
		return m.searchKeywordFunc(ctx, tsquery, limit)
	}
	return nil, nil
}

func (m *mockQuerier) SearchSubstring(ctx context.Context, query string, limit int) ([]KeywordMatch, error) {
	if m.searchTextFunc != nil {
		return m.searchTextFunc(ctx, query, limit)
	}
	return nil, nil
}

func (m *mockQuerier) SearchWeb(ctx context.Context, query string, limit int) ([]KeywordMatch, error) {
	if m.searchTextFunc != nil {
		return m.searchTextFunc(ctx, query, limit)
	}
	return nil, nil
}

func (m *mockQuerier) SearchPhrase(ctx context.Context, query string, limit int) ([]KeywordMatch, error) {
	if m.searchTextFunc != nil {
		return m.searchTextFunc(ctx, query, limit)
	}
	return nil, nil
}

func (m *mockQuerier) ClearEmbeddings(ctx context.Context) (int64, error) {
	if m.clearEmbeddingsFunc != nil {
		return m.clearEmbeddingsFunc(ctx)
	}
	return 0, nil
}

func (m *mockQuerier) ClearEmbedding(ctx context.Context, id string) (int64, error) {
	if m.clearEmbeddingFunc != nil {
		return m.clearEmbeddingFunc(ctx, id)
	}
	return 0, nil
}

func TestStore_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		q := &mockQuerier{
			getCrateFunc: func(_ context.Context, id string) (Crate, error) {
				return Crate{ID: id, Name: "serde", Description: "serialization framework"}, nil
			},
		}
		store := New(q, nil)

		c, err := store.Get(context.Background(), "serde")
		require.NoError(t, err)
		assert.Equal(t, "serde", c.ID)
		assert.Equal(t, "serialization framework", c.Description)
	})

	t.Run("not found maps ErrNoRows", func(t *testing.T) {
		store := New(&mockQuerier{}, nil)

		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrStore)
	})

	t.Run("db failure wraps ErrStore", func(t *testing.T) {
		q := &mockQuerier{
			getCrateFunc: func(_ context.Context, _ string) (Crate, error) {
				return Crate{}, errors.New("connection refused")
			},
		}
		store := New(q, nil)

		_, err := store.Get(context.Background(), "serde")
		assert.ErrorIs(t, err, ErrStore)

		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "get", storeErr.Op)
	})
}

func TestStore_Description(t *testing.T) {
	q := &mockQuerier{
		getCrateFunc: func(_ context.Context, id string) (Crate, error) {
			return Crate{ID: id, Description: "async runtime"}, nil
		},
	}
	store := New(q, nil)

	desc, err := store.Description(context.Background(), "tokio")
	require.NoError(t, err)
	assert.Equal(t, "async runtime", desc)
}

func TestStore_SetEmbedding(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		q := &mockQuerier{}
		store := New(q, nil)

		err := store.SetEmbedding(context.Background(), "serde", []float32{0.1, 0.2})
		require.NoError(t, err)
		assert.Equal(t, []string{"serde"}, q.setEmbeddingCalls)
	})

	t.Run("zero rows affected means not found", func(t *testing.T) {
		q := &mockQuerier{
			setEmbeddingFunc: func(_ context.Context, _ string, _ pgvector.Vector) (int64, error) {
				return 0, nil
			},
		}
		store := New(q, nil)

		err := store.SetEmbedding(context.Background(), "missing", []float32{0.1})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("db failure wraps ErrStore", func(t *testing.T) {
		q := &mockQuerier{
			setEmbeddingFunc: func(_ context.Context, _ string, _ pgvector.Vector) (int64, error) {
				return 0, errors.New("timeout")
			},
		}
		store := New(q, nil)

		err := store.SetEmbedding(context.Background(), "serde", []float32{0.1})
		assert.ErrorIs(t, err, ErrStore)
	})
}

func TestStore_ResetEmbedding(t *testing.T) {
	t.Run("clears single crate", func(t *testing.T) {
		q := &mockQuerier{
			clearEmbeddingFunc: func(_ context.Context, _ string) (int64, error) { return 1, nil },
		}
		store := New(q, nil)

		require.NoError(t, store.ResetEmbedding(context.Background(), "serde"))
	})

	t.Run("unknown id", func(t *testing.T) {
		store := New(&mockQuerier{}, nil)
		err := store.ResetEmbedding(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_ResetEmbeddings(t *testing.T) {
	q := &mockQuerier{
		clearEmbeddingsFunc: func(_ context.Context) (int64, error) { return 42, nil },
	}
	store := New(q, nil)

	cleared, err := store.ResetEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), cleared)
}

func TestStore_TextSearches(t *testing.T) {
	t.Run("defaults the limit", func(t *testing.T) {
		var gotLimit int
		q := &mockQuerier{
			searchTextFunc: func(_ context.Context, _ string, limit int) ([]KeywordMatch, error) {
				gotLimit = limit
				return nil, nil
			},
		}
		store := New(q, nil)

		_, err := store.SearchSubstring(context.Background(), "serde", 0)
		require.NoError(t, err)
		assert.Equal(t, 10, gotLimit)
	})

	t.Run("decorates errors with the operation", func(t *testing.T) {
		q := &mockQuerier{
			searchTextFunc: func(_ context.Context, _ string, _ int) ([]KeywordMatch, error) {
				return nil, errors.New("boom")
			},
		}
		store := New(q, nil)

		_, err := store.SearchWeb(context.Background(), "serde", 5)
		assert.ErrorContains(t, err, "search_web")

		_, err = store.SearchPhrase(context.Background(), "serde", 5)
		assert.ErrorContains(t, err, "search_phrase")
	})
}

func TestCrate_EmbeddingText(t *testing.T) {
	tests := []struct {
		name  string
		crate Crate
		want  string
	}{
		{"name and description", Crate{Name: "serde", Description: "serialization framework"}, "serde : serialization framework"},
		{"empty description", Crate{Name: "tokio"}, "tokio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.crate.EmbeddingText())
		})
	}
}

func TestNewPG_RejectsUnsafeTableName(t *testing.T) {
	for _, table := range []string{"", "Crates", "crates; DROP TABLE crates", "1crates", `cr"ates`} {
		_, err := NewPG(nil, table)
		assert.Error(t, err, "table %q should be rejected", table)
	}

	_, err := NewPG(nil, "crates")
	assert.NoError(t, err)
}
