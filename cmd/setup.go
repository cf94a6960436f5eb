package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/cratespro/cratesearch/db"
	"github.com/cratespro/cratesearch/internal/chat"
	"github.com/cratespro/cratesearch/internal/config"
	"github.com/cratespro/cratesearch/internal/crate"
	"github.com/cratespro/cratesearch/internal/embed"
	"github.com/cratespro/cratesearch/internal/search"
)

const systemPrompt = `You are a Rust crate recommendation assistant. You answer
questions about crates using the indexed metadata provided as context. When the
context does not cover the question, say so instead of inventing crates.`

// app bundles the wired application components behind the CLI commands.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	pool         *pgxpool.Pool
	genkit       *genkit.Genkit
	store        *crate.Store
	embedService *embed.Service
	engine       *search.Engine
	traditional  *search.Traditional
	rewriter     *search.Rewriter
	orchestrator *chat.Orchestrator
}

// newApp loads configuration, connects to PostgreSQL (running migrations
// first), initializes the configured AI provider and wires all components.
// The returned cleanup closes the pool.
func newApp(ctx context.Context) (*app, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.Default()

	pool, poolCleanup, err := openPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	g, embedder, embedOpts, err := initGenkit(ctx, cfg)
	if err != nil {
		poolCleanup()
		return nil, nil, err
	}

	querier, err := crate.NewPG(pool, cfg.TableName)
	if err != nil {
		poolCleanup()
		return nil, nil, err
	}

	// Client-side limiter shared by embedding and generation calls.
	limiter := rate.NewLimiter(10, 30)
	genCfg := generationConfig(cfg)

	store := crate.New(querier, logger)
	embedService := embed.New(embedder, store, logger, limiter, embedOpts)
	engine := search.NewEngine(store, embedService, logger)
	traditional := search.NewTraditional(store, logger)
	rewriter := search.NewRewriter(g, cfg.FullModelName(), genCfg, logger)
	orchestrator := chat.NewOrchestrator(
		g, cfg.FullModelName(), genCfg, engine, store, cfg.TopK, logger, limiter)

	return &app{
		cfg:          cfg,
		logger:       logger,
		pool:         pool,
		genkit:       g,
		store:        store,
		embedService: embedService,
		engine:       engine,
		traditional:  traditional,
		rewriter:     rewriter,
		orchestrator: orchestrator,
	}, poolCleanup, nil
}

// generationConfig maps the configured sampling settings onto the config
// value sent with every generate call.
func generationConfig(cfg *config.Config) any {
	if cfg.Provider == config.ProviderGemini || cfg.Provider == config.ProviderGoogleAI {
		return &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(cfg.Temperature),
			MaxOutputTokens: int32(cfg.MaxTokens),
		}
	}
	return &ai.GenerationCommonConfig{
		Temperature:     float64(cfg.Temperature),
		MaxOutputTokens: cfg.MaxTokens,
	}
}

// openPool runs migrations and creates the connection pool with pgvector
// types registered on every connection.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// initGenkit initializes Genkit with the configured AI provider and
// returns the embedder registered by that provider, plus the request
// options the embedder needs (nil when the provider defaults suffice).
func initGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, ai.Embedder, any, error) {
	var (
		g         *genkit.Genkit
		embedder  ai.Embedder
		embedOpts any
	)

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, nil, nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		embedder = ollama.Embedder(g, cfg.OllamaHost)
		slog.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, nil, nil, errors.New("initializing genkit with openai provider")
		}
		embedder = genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
		slog.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, nil, errors.New("initializing genkit with gemini provider")
		}
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		// gemini-embedding-001 natively emits 3072 dimensions; truncate to
		// the vector(768) column the migrations declare.
		dim := int32(search.VectorDimension)
		embedOpts = &genai.EmbedContentConfig{OutputDimensionality: &dim}
		slog.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	if embedder == nil {
		return nil, nil, nil, fmt.Errorf("no embedder registered for model %q", cfg.EmbedderModel)
	}
	return g, embedder, embedOpts, nil
}
