package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/cratespro/cratesearch/internal/crate"
)

// Strategy weights and retrieval limits for the LLM-free pipeline. Exact
// substring hits dominate, prefix full-text hits come next, loose
// full-text hits fill in, and the phrase supplement only runs when the
// other strategies came back thin.
const (
	weightExact      float32 = 1.0
	weightPrefix     float32 = 0.8
	weightFulltext   float32 = 0.6
	weightSupplement float32 = 0.5

	exactLimit      = 50
	prefixLimit     = 150
	fulltextLimit   = 150
	supplementLimit = 200

	supplementThreshold = 10
)

// TraditionalStore is the slice of the crate store the LLM-free pipeline
// reads from.
type TraditionalStore interface {
	SearchSubstring(ctx context.Context, query string, limit int) ([]crate.KeywordMatch, error)
	SearchKeyword(ctx context.Context, tsquery string, limit int) ([]crate.KeywordMatch, error)
	SearchWeb(ctx context.Context, query string, limit int) ([]crate.KeywordMatch, error)
	SearchPhrase(ctx context.Context, query string, limit int) ([]crate.KeywordMatch, error)
}

// Traditional ranks crates with classic IR techniques only: substring
// matching, prefix full-text queries and websearch parsing, merged under
// per-strategy weights. No model calls, no embeddings; results are fully
// deterministic for a given corpus.
type Traditional struct {
	store  TraditionalStore
	logger *slog.Logger
}

// NewTraditional creates a Traditional searcher. A nil logger falls back
// to slog.Default().
func NewTraditional(store TraditionalStore, logger *slog.Logger) *Traditional {
	if logger == nil {
		logger = slog.Default()
	}
	return &Traditional{store: store, logger: logger}
}

// Search runs every strategy for every query variant and merges the hits.
// A crate keeps the weight of the first strategy that found it, so an
// exact hit is never demoted by a later loose match. Results are ordered
// by weighted rank and capped like the hybrid pipeline.
func (t *Traditional) Search(ctx context.Context, query string, criteria SortCriteria) ([]RankedCrate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	variants := queryVariants(query)
	seen := make(map[string]bool)
	var ranked []RankedCrate

	collect := func(matches []crate.KeywordMatch, weight float32) {
		for _, m := range matches {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			ranked = append(ranked, RankedCrate{
				KeywordMatch: m,
				FinalScore:   adjustScore(m.Rank*weight, criteria),
			})
		}
	}

	for _, variant := range variants {
		exact, err := t.store.SearchSubstring(ctx, variant, exactLimit)
		if err != nil {
			return nil, err
		}
		collect(exact, weightExact)

		if tsquery := prefixTSQuery(variant); tsquery != "" {
			prefix, err := t.store.SearchKeyword(ctx, tsquery, prefixLimit)
			if err != nil {
				return nil, err
			}
			collect(prefix, weightPrefix)
		}

		loose, err := t.store.SearchWeb(ctx, variant, fulltextLimit)
		if err != nil {
			return nil, err
		}
		collect(loose, weightFulltext)
	}

	if len(ranked) < supplementThreshold {
		extra, err := t.store.SearchPhrase(ctx, query, supplementLimit)
		if err != nil {
			return nil, err
		}
		collect(extra, weightSupplement)
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

	t.logger.Debug("traditional search",
		"query", query, "variants", len(variants), "results", len(ranked))
	return ranked, nil
}

// adjustScore applies the sort criteria as a multiplier: relevance boosts
// match quality, downloads dampens it so popularity-adjacent ties matter
// more.
func adjustScore(score float32, criteria SortCriteria) float32 {
	switch criteria {
	case SortRelevance:
		return score * 1.2
	case SortDownloads:
		return score * 0.8
	default:
		return score
	}
}

// prefixTSQuery turns a variant into an OR-joined prefix tsquery,
// skipping words too short to prefix-match usefully.
func prefixTSQuery(variant string) string {
	var terms []string
	for _, word := range strings.Fields(variant) {
		if len(word) >= 2 {
			terms = append(terms, word+":*")
		}
	}
	return strings.Join(terms, " | ")
}

// queryVariants expands a query into the forms worth searching for: the
// raw query, a stop-word-cleaned form, and word combinations (bigrams,
// trigrams, halves) that let parts of a long sentence match on their own.
func queryVariants(query string) []string {
	var variants []string
	seen := make(map[string]bool)
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v != "" && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	add(query)

	var words []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if !stopWords[word] {
			words = append(words, word)
		}
	}
	add(strings.Join(words, " "))

	if len(words) >= 2 {
		for i := 0; i+1 < len(words); i++ {
			add(words[i] + " " + words[i+1])
		}
	}
	if len(words) >= 3 {
		for i := 0; i+2 < len(words); i++ {
			add(strings.Join(words[i:i+3], " "))
		}
	}
	if len(words) >= 4 {
		mid := len(words) / 2
		add(strings.Join(words[:mid], " "))
		add(strings.Join(words[mid:], " "))
	}

	return variants
}
