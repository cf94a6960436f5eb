package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratespro/cratesearch/internal/crate"
)

func keywordMatch(id string, rank float32, downloads int64) crate.KeywordMatch {
	return crate.KeywordMatch{
		Crate: crate.Crate{ID: id, Name: id, Downloads: downloads},
		Rank:  rank,
	}
}

func TestParseSortCriteria(t *testing.T) {
	for _, valid := range []string{"comprehensive", "relevance", "downloads"} {
		c, err := ParseSortCriteria(valid)
		require.NoError(t, err)
		assert.Equal(t, SortCriteria(valid), c)
	}

	_, err := ParseSortCriteria("popularity")
	assert.Error(t, err)
}

func TestFinalScore(t *testing.T) {
	tests := []struct {
		criteria SortCriteria
		want     float32
	}{
		{SortComprehensive, 0.6*0.5 + 0.4*1.0},
		{SortRelevance, 0.8*0.5 + 0.2*1.0},
		{SortDownloads, 0.5*0.5 + 0.5*1.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.criteria), func(t *testing.T) {
			assert.InDelta(t, tt.want, FinalScore(0.5, 1.0, tt.criteria), 1e-6)
		})
	}
}

func TestEngine_SearchCrates(t *testing.T) {
	t.Run("blends keyword and vector scores", func(t *testing.T) {
		store := &mockStore{
			crates: []crate.Crate{
				indexedCrate("serde", 1, 0),
				indexedCrate("tokio", 0, 1),
			},
			matches: []crate.KeywordMatch{
				keywordMatch("serde", 0.2, 100),
				keywordMatch("tokio", 0.3, 200),
			},
		}
		// Query vector aligned with serde's embedding.
		engine := newTestEngine(store, &mockQueryEmbedder{vec: []float32{1, 0}})

		ranked, err := engine.SearchCrates(context.Background(), nil, "serde", SortComprehensive)
		require.NoError(t, err)
		require.Len(t, ranked, 2)

		// serde: 0.6*0.2 + 0.4*1.0 = 0.52; tokio: 0.6*0.3 + 0.4*0.0 = 0.18
		assert.Equal(t, "serde", ranked[0].ID)
		assert.InDelta(t, 0.52, ranked[0].FinalScore, 1e-6)
		assert.InDelta(t, 1.0, ranked[0].VectorScore, 1e-6)
		assert.Equal(t, "tokio", ranked[1].ID)
	})

	t.Run("unindexed candidate is embedded on demand and persisted", func(t *testing.T) {
		store := &mockStore{
			matches: []crate.KeywordMatch{keywordMatch("newcrate", 0.5, 0)},
		}
		embedder := &mockQueryEmbedder{
			vec:   []float32{1, 0},
			batch: map[string][]float32{"newcrate": {1, 0}},
		}
		engine := newTestEngine(store, embedder)

		ranked, err := engine.SearchCrates(context.Background(), nil, "new", SortComprehensive)
		require.NoError(t, err)
		require.Len(t, ranked, 1)
		assert.InDelta(t, 1.0, ranked[0].VectorScore, 1e-6)
		assert.InDelta(t, 0.6*0.5+0.4*1.0, ranked[0].FinalScore, 1e-6)

		require.Contains(t, store.setEmbeddings, "newcrate")
		assert.Equal(t, []float32{1, 0}, store.setEmbeddings["newcrate"])
	})

	t.Run("candidate embedding failure leaves keyword score only", func(t *testing.T) {
		store := &mockStore{
			matches: []crate.KeywordMatch{keywordMatch("newcrate", 0.5, 0)},
		}
		embedder := &mockQueryEmbedder{
			vec:      []float32{1, 0},
			batchErr: errors.New("provider down"),
		}
		engine := newTestEngine(store, embedder)

		ranked, err := engine.SearchCrates(context.Background(), nil, "new", SortComprehensive)
		require.NoError(t, err)
		require.Len(t, ranked, 1)
		assert.Zero(t, ranked[0].VectorScore)
		assert.InDelta(t, 0.6*0.5, ranked[0].FinalScore, 1e-6)
		assert.Empty(t, store.setEmbeddings)
	})

	t.Run("persist failure still scores the fresh vector", func(t *testing.T) {
		store := &mockStore{
			matches: []crate.KeywordMatch{keywordMatch("newcrate", 0.5, 0)},
			setErr:  errors.New("db down"),
		}
		embedder := &mockQueryEmbedder{
			vec:   []float32{1, 0},
			batch: map[string][]float32{"newcrate": {1, 0}},
		}
		engine := newTestEngine(store, embedder)

		ranked, err := engine.SearchCrates(context.Background(), nil, "new", SortComprehensive)
		require.NoError(t, err)
		require.Len(t, ranked, 1)
		assert.InDelta(t, 1.0, ranked[0].VectorScore, 1e-6)
	})

	t.Run("embedder failure falls back to keyword ranking", func(t *testing.T) {
		store := &mockStore{
			matches: []crate.KeywordMatch{
				keywordMatch("low", 0.1, 0),
				keywordMatch("high", 0.9, 0),
			},
		}
		engine := newTestEngine(store, &mockQueryEmbedder{err: errors.New("provider down")})

		ranked, err := engine.SearchCrates(context.Background(), nil, "query", SortComprehensive)
		require.NoError(t, err)
		require.Len(t, ranked, 2)
		assert.Equal(t, "high", ranked[0].ID)
		assert.InDelta(t, 0.9, ranked[0].FinalScore, 1e-6)
		assert.Zero(t, ranked[0].VectorScore)
	})

	t.Run("no keyword matches yields empty result", func(t *testing.T) {
		engine := newTestEngine(&mockStore{}, &mockQueryEmbedder{})
		ranked, err := engine.SearchCrates(context.Background(), nil, "nomatch", SortComprehensive)
		require.NoError(t, err)
		assert.Empty(t, ranked)
	})

	t.Run("keyword search failure propagates", func(t *testing.T) {
		engine := newTestEngine(&mockStore{searchErr: errors.New("bad tsquery")}, &mockQueryEmbedder{})
		_, err := engine.SearchCrates(context.Background(), nil, "query", SortComprehensive)
		assert.Error(t, err)
	})

	t.Run("without rewriter the raw query becomes the tsquery", func(t *testing.T) {
		store := &mockStore{}
		engine := newTestEngine(store, &mockQueryEmbedder{})

		_, err := engine.SearchCrates(context.Background(), nil, "http client", SortComprehensive)
		require.NoError(t, err)
		require.Len(t, store.tsqueries, 1)
		assert.Equal(t, "http & client:*", store.tsqueries[0])
	})

	t.Run("downloads criteria breaks score ties", func(t *testing.T) {
		store := &mockStore{
			matches: []crate.KeywordMatch{
				keywordMatch("small", 0.5, 10),
				keywordMatch("big", 0.5, 1000),
			},
		}
		engine := newTestEngine(store, &mockQueryEmbedder{vec: []float32{1, 0}})

		ranked, err := engine.SearchCrates(context.Background(), nil, "query", SortDownloads)
		require.NoError(t, err)
		require.Len(t, ranked, 2)
		assert.Equal(t, "big", ranked[0].ID)
	})
}

func TestRewriterFallbackWithoutGenkit(t *testing.T) {
	// A Rewriter with no Genkit instance must still normalize
	// natural-language queries deterministically.
	r := NewRewriter(nil, "", nil, nil)

	got := r.Process(context.Background(), "I need a crate for parsing json")
	assert.Equal(t, "parsing, json", got)

	// Keyword-style queries pass through untouched.
	got = r.Process(context.Background(), "serde")
	assert.Equal(t, "serde", got)
}
