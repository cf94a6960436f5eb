package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// rewriteTimeout bounds a single query-rewriting call; rewriting is
// best-effort and must never stall a search.
const rewriteTimeout = 15 * time.Second

const extractKeywordsPrompt = `You extract Rust package search keywords from natural-language queries.
Analyze the question, identify the core concepts and capabilities it asks for,
and return ONLY a comma-separated keyword list, no explanations.

Query: %s`

const rewriteQueryPrompt = `You rewrite queries for the crates.io search engine.
Whether the input is a keyword list or a natural-language question, convert it
into a list of relevant technical terms and synonyms for finding Rust packages.
Return ONLY a comma-separated keyword list, no explanations.

Input: %s`

// questionWords are tokens that mark a query as natural language.
var questionWords = map[string]bool{
	"how": true, "what": true, "which": true, "where": true, "who": true,
	"why": true, "can": true, "could": true, "help": true, "find": true,
	"need": true, "want": true, "looking": true,
}

// stopWords are dropped during deterministic keyword extraction. The tail
// entries strip search-intent filler ("need", "looking") and the domain
// words every query implies ("rust", "crate").
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "in": true, "on": true, "at": true, "by": true,
	"for": true, "with": true, "about": true, "against": true, "how": true,
	"what": true, "where": true, "when": true, "why": true, "who": true,
	"which": true, "and": true, "or": true, "if": true, "but": true,
	"because": true, "as": true, "until": true, "while": true, "of": true,
	"to": true, "from": true, "need": true, "want": true, "find": true,
	"looking": true, "search": true, "rust": true, "crate": true,
}

// Rewriter turns free-form queries into keyword lists for the full-text
// path, preferring LLM rewriting with a deterministic fallback.
type Rewriter struct {
	g         *genkit.Genkit
	modelName string
	genConfig any
	logger    *slog.Logger
}

// NewRewriter creates a Rewriter. A nil g disables LLM rewriting entirely;
// every call then uses the deterministic fallback. genConfig is the
// provider config value sent with every rewrite call; nil keeps the
// provider defaults.
func NewRewriter(g *genkit.Genkit, modelName string, genConfig any, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{g: g, modelName: modelName, genConfig: genConfig, logger: logger}
}

// Process prepares a raw query for keyword retrieval. Natural-language
// queries go through keyword extraction first; the result is then rewritten
// into search-engine terms. Both steps are best-effort: on any failure the
// previous form of the query survives.
func (r *Rewriter) Process(ctx context.Context, query string) string {
	processed := query
	if IsNaturalLanguage(query) {
		r.logger.Debug("natural language query detected", "query", query)
		processed = r.extractKeywords(ctx, query)
	}
	return r.rewrite(ctx, processed)
}

// extractKeywords pulls search keywords out of a natural-language query.
func (r *Rewriter) extractKeywords(ctx context.Context, query string) string {
	if text, ok := r.generate(ctx, extractKeywordsPrompt, query); ok {
		r.logger.Debug("extracted keywords", "keywords", text)
		return text
	}
	return ExtractKeywords(query)
}

// rewrite expands a query into related technical terms.
func (r *Rewriter) rewrite(ctx context.Context, query string) string {
	if text, ok := r.generate(ctx, rewriteQueryPrompt, query); ok {
		r.logger.Debug("rewrote query", "rewritten", text)
		return text
	}
	return query
}

// generate runs one best-effort LLM call and reports whether it produced
// usable text.
func (r *Rewriter) generate(ctx context.Context, prompt, query string) (string, bool) {
	if r.g == nil {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, rewriteTimeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithPrompt(prompt, query),
	}
	if r.modelName != "" {
		opts = append(opts, ai.WithModelName(r.modelName))
	}
	if r.genConfig != nil {
		opts = append(opts, ai.WithConfig(r.genConfig))
	}

	resp, err := genkit.Generate(ctx, r.g, opts...)
	if err != nil {
		r.logger.Debug("query rewriting failed, using fallback", "error", err)
		return "", false
	}

	text := strings.TrimSpace(resp.Text())
	return text, text != ""
}

// IsNaturalLanguage reports whether a query looks like a sentence rather
// than a keyword list: more than three words, sentence punctuation, or a
// question word.
func IsNaturalLanguage(query string) bool {
	words := strings.Fields(query)
	if len(words) > 3 {
		return true
	}
	if strings.ContainsAny(query, "?.") {
		return true
	}
	for _, w := range words {
		if questionWords[strings.ToLower(w)] {
			return true
		}
	}
	return false
}

// ExtractKeywords is the deterministic fallback: lowercase, split on
// non-identifier characters, drop stop words and words shorter than three
// characters, join with commas.
func ExtractKeywords(query string) string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !isIdentRune(r)
	})

	keywords := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) <= 2 || stopWords[w] {
			continue
		}
		keywords = append(keywords, w)
	}
	return strings.Join(keywords, ", ")
}

func isIdentRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
