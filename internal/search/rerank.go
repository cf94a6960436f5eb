package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/cratespro/cratesearch/internal/crate"
)

// rerankLimit caps the final hybrid result set.
const rerankLimit = 100

// SortCriteria selects the keyword/vector weighting for hybrid ranking.
type SortCriteria string

const (
	// SortComprehensive balances keyword rank and vector similarity.
	SortComprehensive SortCriteria = "comprehensive"
	// SortRelevance weights the keyword rank heavily.
	SortRelevance SortCriteria = "relevance"
	// SortDownloads splits evenly; download counts break the remaining ties.
	SortDownloads SortCriteria = "downloads"
)

// ParseSortCriteria maps a CLI flag value to a SortCriteria.
func ParseSortCriteria(s string) (SortCriteria, error) {
	switch SortCriteria(s) {
	case SortComprehensive, SortRelevance, SortDownloads:
		return SortCriteria(s), nil
	default:
		return "", fmt.Errorf("unknown sort criteria %q (want comprehensive, relevance or downloads)", s)
	}
}

// FinalScore blends a keyword rank and a vector similarity per criteria.
func FinalScore(keywordScore, vectorScore float32, criteria SortCriteria) float32 {
	switch criteria {
	case SortRelevance:
		return 0.8*keywordScore + 0.2*vectorScore
	case SortDownloads:
		return 0.5*keywordScore + 0.5*vectorScore
	default:
		return 0.6*keywordScore + 0.4*vectorScore
	}
}

// RankedCrate is a hybrid search result with its component scores.
type RankedCrate struct {
	crate.KeywordMatch
	VectorScore float32
	FinalScore  float32
}

// SearchCrates is the full keyword-first pipeline: rewrite the query into
// keywords, retrieve candidates from the full-text index, then rerank them
// by blending keyword rank with cosine similarity to the original query.
//
// Vector scoring is best-effort: if the query cannot be embedded the
// candidates are returned ranked by keyword score alone.
func (e *Engine) SearchCrates(ctx context.Context, rewriter *Rewriter, query string, criteria SortCriteria) ([]RankedCrate, error) {
	keywords := query
	if rewriter != nil {
		keywords = rewriter.Process(ctx, query)
	}

	tsquery := BuildTSQuery(keywords)
	if tsquery == "" {
		return nil, nil
	}

	matches, err := e.store.SearchKeyword(ctx, tsquery, keywordRetrieveLimit)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	// Similarity is computed against the user's original query, not the
	// rewritten keywords.
	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding failed, ranking by keywords only", "error", err)
		return rankByKeywordOnly(matches), nil
	}

	embeddings, err := e.indexedEmbeddings(ctx)
	if err != nil {
		e.logger.Warn("loading embeddings failed, ranking by keywords only", "error", err)
		return rankByKeywordOnly(matches), nil
	}

	var unindexed []crate.KeywordMatch
	for _, m := range matches {
		if _, ok := embeddings[m.ID]; !ok {
			unindexed = append(unindexed, m)
		}
	}
	if len(unindexed) > 0 {
		e.embedCandidates(ctx, unindexed, embeddings)
	}

	ranked := make([]RankedCrate, 0, len(matches))
	for _, m := range matches {
		var vectorScore float32
		if vec, ok := embeddings[m.ID]; ok {
			vectorScore = CosineSimilarity(queryVec, vec)
		}
		ranked = append(ranked, RankedCrate{
			KeywordMatch: m,
			VectorScore:  vectorScore,
			FinalScore:   FinalScore(m.Rank, vectorScore, criteria),
		})
	}

	sortRanked(ranked, criteria)
	if len(ranked) > rerankLimit {
		ranked = ranked[:rerankLimit]
	}

	e.logger.Debug("hybrid search",
		"query", query, "tsquery", tsquery, "candidates", len(matches), "criteria", string(criteria))
	return ranked, nil
}

// embedCandidates fills in vectors for keyword candidates the indexer has
// not embedded yet, persisting each so later searches find them
// precomputed. Best-effort: on failure the candidates stay keyword-ranked
// only, and a failed write still leaves the fresh vector usable for this
// ranking.
func (e *Engine) embedCandidates(ctx context.Context, candidates []crate.KeywordMatch, embeddings map[string][]float32) {
	texts := make([]string, len(candidates))
	for i, m := range candidates {
		texts[i] = m.EmbeddingText()
	}

	vecs, err := e.embedder.EmbedAll(ctx, texts)
	if err != nil {
		e.logger.Warn("embedding keyword candidates failed",
			"candidates", len(candidates), "error", err)
		return
	}

	for i, m := range candidates {
		embeddings[m.ID] = vecs[i]
		if err := e.store.SetEmbedding(ctx, m.ID, vecs[i]); err != nil {
			e.logger.Warn("persisting candidate embedding failed",
				"crate_id", m.ID, "error", err)
		}
	}
}

// indexedEmbeddings returns crate id -> embedding for every indexed crate.
func (e *Engine) indexedEmbeddings(ctx context.Context) (map[string][]float32, error) {
	indexed, err := e.store.ListEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	m := make(map[string][]float32, len(indexed))
	for _, c := range indexed {
		if c.Embedding != nil {
			m[c.ID] = c.Embedding.Slice()
		}
	}
	return m, nil
}

// rankByKeywordOnly is the fallback ranking when no query vector is
// available: final score is the keyword rank itself.
func rankByKeywordOnly(matches []crate.KeywordMatch) []RankedCrate {
	ranked := make([]RankedCrate, 0, len(matches))
	for _, m := range matches {
		ranked = append(ranked, RankedCrate{KeywordMatch: m, FinalScore: m.Rank})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		return ranked[i].ID < ranked[j].ID
	})

	if len(ranked) > rerankLimit {
		ranked = ranked[:rerankLimit]
	}
	return ranked
}

// sortRanked orders by final score descending; under SortDownloads the
// download count is the primary tie-breaker, otherwise ascending id keeps
// the order deterministic.
func sortRanked(ranked []RankedCrate, criteria SortCriteria) {
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		if criteria == SortDownloads && ranked[i].Downloads != ranked[j].Downloads {
			return ranked[i].Downloads > ranked[j].Downloads
		}
		return ranked[i].ID < ranked[j].ID
	})
}
