package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/cratespro/cratesearch/internal/search"
)

// ErrGeneration indicates the upstream language-model call failed after
// retries.
var ErrGeneration = errors.New("chat generation failure")

// DefaultTopK is the number of retrieved crates injected per RAG turn.
const DefaultTopK = 5

// Searcher retrieves the crates most similar to a query text.
// Satisfied by *search.Engine.
type Searcher interface {
	SearchText(ctx context.Context, query string, k int) ([]search.Result, error)
}

// Descriptions resolves crate ids to their descriptive text.
// Satisfied by *crate.Store.
type Descriptions interface {
	Description(ctx context.Context, id string) (string, error)
}

// Answer is the result of a RAG chat turn. Degraded marks turns where
// retrieval failed and the reply was generated without context; Sources
// lists the crates whose descriptions were injected.
type Answer struct {
	Text     string
	Degraded bool
	Sources  []search.Result
}

// Orchestrator couples retrieval and generation for chat turns.
// Sessions stay pure message history; this is the only place that knows
// about embeddings.
//
// Orchestrator is safe for concurrent use across different sessions;
// callers serialize turns within one session.
type Orchestrator struct {
	g            *genkit.Genkit
	modelName    string
	genConfig    any
	searcher     Searcher
	descriptions Descriptions
	topK         int
	logger       *slog.Logger
	limiter      *rate.Limiter
	retryConfig  RetryConfig
}

// NewOrchestrator creates an Orchestrator.
// genConfig is the provider config value (temperature, token limit) sent
// with every generate call; nil keeps the provider defaults. topK < 1
// falls back to DefaultTopK; a nil limiter disables client-side rate
// limiting; a nil logger falls back to slog.Default().
func NewOrchestrator(
	g *genkit.Genkit,
	modelName string,
	genConfig any,
	searcher Searcher,
	descriptions Descriptions,
	topK int,
	logger *slog.Logger,
	limiter *rate.Limiter,
) *Orchestrator {
	if topK < 1 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		g:            g,
		modelName:    modelName,
		genConfig:    genConfig,
		searcher:     searcher,
		descriptions: descriptions,
		topK:         topK,
		logger:       logger,
		limiter:      limiter,
		retryConfig:  DefaultRetryConfig(),
	}
}

// Chat runs one plain turn: append the user message, generate from the
// full snapshot, append and return the reply.
//
// The user message is appended before generation, so it stays in history
// even when generation fails and a retried turn does not duplicate it.
func (o *Orchestrator) Chat(ctx context.Context, session *Session, userMessage string) (string, error) {
	session.AppendUser(userMessage)

	reply, err := o.generate(ctx, session.Snapshot())
	if err != nil {
		return "", err
	}

	session.AppendAssistant(reply)
	return reply, nil
}

// ChatWithEmbedding runs one RAG turn: retrieve the crates most similar
// to the user message and inject their descriptions before generating.
//
// Retrieval is an enhancement, not a correctness requirement: when
// embedding, search, or snippet loading fails the turn degrades to the
// plain path, the degradation is logged and Answer.Degraded is set.
func (o *Orchestrator) ChatWithEmbedding(ctx context.Context, session *Session, userMessage string) (*Answer, error) {
	session.AppendUser(userMessage)

	sources, snippets := o.retrieve(ctx, userMessage)

	payload := session.InjectContext(snippets)

	reply, err := o.generate(ctx, payload)
	if err != nil {
		return nil, err
	}

	session.AppendAssistant(reply)
	return &Answer{
		Text:     reply,
		Degraded: sources == nil,
		Sources:  sources,
	}, nil
}

// retrieve runs top-K retrieval for a query. A nil sources slice marks a
// degraded turn; an empty non-nil slice is a healthy turn that simply
// matched nothing.
func (o *Orchestrator) retrieve(ctx context.Context, query string) (sources []search.Result, snippets []string) {
	results, err := o.searcher.SearchText(ctx, query, o.topK)
	if err != nil {
		o.logger.Warn("retrieval failed, answering without context", "error", err)
		return nil, nil
	}
	if results == nil {
		results = []search.Result{}
	}

	snippets = make([]string, 0, len(results))
	for _, r := range results {
		desc, err := o.descriptions.Description(ctx, r.CrateID)
		if err != nil {
			o.logger.Warn("loading crate description failed, answering without context",
				"crate_id", r.CrateID, "error", err)
			return nil, nil
		}
		snippets = append(snippets, formatSnippet(r, desc))
	}

	return results, snippets
}

// generate calls the model and normalizes failures to ErrGeneration.
func (o *Orchestrator) generate(ctx context.Context, payload []*ai.Message) (string, error) {
	resp, err := o.generateWithRetry(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return text, nil
}

func formatSnippet(r search.Result, description string) string {
	if description == "" {
		return fmt.Sprintf("%s (similarity %.2f)", r.CrateID, r.Score)
	}
	return fmt.Sprintf("%s (similarity %.2f): %s", r.CrateID, r.Score, description)
}
