package search

import (
	"context"
	"errors"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratespro/cratesearch/internal/crate"
	"github.com/cratespro/cratesearch/internal/log"
)

// mockStore implements Store with fixed data.
type mockStore struct {
	crates  []crate.Crate
	listErr error

	matches   []crate.KeywordMatch
	searchErr error
	tsqueries []string

	setEmbeddings map[string][]float32
	setErr        error
}

func (m *mockStore) ListEmbeddings(_ context.Context) ([]crate.Crate, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.crates, nil
}

func (m *mockStore) SearchKeyword(_ context.Context, tsquery string, _ int) ([]crate.KeywordMatch, error) {
	m.tsqueries = append(m.tsqueries, tsquery)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.matches, nil
}

func (m *mockStore) SetEmbedding(_ context.Context, id string, vec []float32) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.setEmbeddings == nil {
		m.setEmbeddings = make(map[string][]float32)
	}
	m.setEmbeddings[id] = vec
	return nil
}

// mockQueryEmbedder implements Embedder. Embed returns the fixed query
// vector; EmbedAll looks each text up in batch.
type mockQueryEmbedder struct {
	vec []float32
	err error

	batch    map[string][]float32
	batchErr error
}

func (m *mockQueryEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

func (m *mockQueryEmbedder) EmbedAll(_ context.Context, texts []string) ([][]float32, error) {
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.batch[text]
	}
	return out, nil
}

func indexedCrate(id string, vec ...float32) crate.Crate {
	v := pgvector.NewVector(vec)
	return crate.Crate{ID: id, Name: id, Embedding: &v}
}

func newTestEngine(store Store, embedder Embedder) *Engine {
	return NewEngine(store, embedder, log.NewNop())
}

func TestEngine_Search(t *testing.T) {
	store := &mockStore{crates: []crate.Crate{
		indexedCrate("serde", 1, 0, 0),
		indexedCrate("tokio", 0, 1, 0),
		indexedCrate("rand", 0.9, 0.1, 0),
	}}
	engine := newTestEngine(store, &mockQueryEmbedder{})

	t.Run("top k sorted descending", func(t *testing.T) {
		results, err := engine.Search(context.Background(), []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "serde", results[0].CrateID)
		assert.Equal(t, "rand", results[1].CrateID)
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	})

	t.Run("k larger than index returns all", func(t *testing.T) {
		results, err := engine.Search(context.Background(), []float32{1, 0, 0}, 50)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("k below one is rejected", func(t *testing.T) {
		_, err := engine.Search(context.Background(), []float32{1, 0, 0}, 0)
		assert.Error(t, err)
	})

	t.Run("empty index yields empty result", func(t *testing.T) {
		empty := newTestEngine(&mockStore{}, &mockQueryEmbedder{})
		results, err := empty.Search(context.Background(), []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		failing := newTestEngine(&mockStore{listErr: errors.New("connection reset")}, &mockQueryEmbedder{})
		_, err := failing.Search(context.Background(), []float32{1, 0, 0}, 5)
		assert.Error(t, err)
	})
}

// Two indexed crates and one unembedded crate: the unembedded one must
// never surface, regardless of k.
func TestEngine_SearchSkipsUnindexedCrates(t *testing.T) {
	store := &mockStore{crates: []crate.Crate{
		indexedCrate("serde", 1, 0),
		indexedCrate("tokio", 0, 1),
		{ID: "newcrate", Name: "newcrate"}, // embedding still NULL
	}}
	engine := newTestEngine(store, &mockQueryEmbedder{})

	results, err := engine.Search(context.Background(), []float32{1, 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "newcrate", r.CrateID)
	}
}

func TestEngine_SearchTieBreaksByID(t *testing.T) {
	store := &mockStore{crates: []crate.Crate{
		indexedCrate("zeta", 1, 0),
		indexedCrate("alpha", 1, 0),
		indexedCrate("mid", 1, 0),
	}}
	engine := newTestEngine(store, &mockQueryEmbedder{})

	results, err := engine.Search(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "alpha", results[0].CrateID)
	assert.Equal(t, "mid", results[1].CrateID)
	assert.Equal(t, "zeta", results[2].CrateID)
}

func TestEngine_SearchText(t *testing.T) {
	t.Run("embeds then searches", func(t *testing.T) {
		store := &mockStore{crates: []crate.Crate{indexedCrate("serde", 1, 0)}}
		engine := newTestEngine(store, &mockQueryEmbedder{vec: []float32{1, 0}})

		results, err := engine.SearchText(context.Background(), "serialization", 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "serde", results[0].CrateID)
	})

	t.Run("embedder failure propagates", func(t *testing.T) {
		engine := newTestEngine(&mockStore{}, &mockQueryEmbedder{err: errors.New("provider down")})
		_, err := engine.SearchText(context.Background(), "query", 1)
		assert.Error(t, err)
	})
}
