package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/cratespro/cratesearch/internal/search"
)

// Validation bounds.
const (
	MinTemperature float32 = 0.0
	MaxTemperature float32 = 2.0

	MinMaxTokens = 1
	MaxMaxTokens = 2_097_152 // Gemini 2.5 max context

	MinPostgresPort = 1
	MaxPostgresPort = 65535

	MinTopK = 1
	MaxTopK = 100
)

// tableNamePattern is the only shape of table name the store will interpolate
// into SQL. Anything else is rejected outright.
var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// embedderDimensions lists the native output dimension of known embedder
// models. Truncatable models can emit any smaller dimension through the
// request's output-dimensionality option; the rest are fixed.
var embedderDimensions = map[string]struct {
	native      int
	truncatable bool
}{
	"gemini-embedding-001":   {3072, true},
	"text-embedding-004":     {768, false},
	"embedding-001":          {768, false},
	"nomic-embed-text":       {768, false},
	"text-embedding-3-small": {1536, true},
	"text-embedding-3-large": {3072, true},
	"mxbai-embed-large":      {1024, false},
}

// Validate checks the configuration and returns the first problem found.
// Called by Load(); exposed for tests and for callers that build a Config
// by hand.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOllama, ProviderOpenAI:
	case "":
		return fmt.Errorf("%w: provider must not be empty", ErrInvalidProvider)
	default:
		return fmt.Errorf("%w: %q (supported: gemini, ollama, openai)", ErrInvalidProvider, c.Provider)
	}

	if err := c.validateAPIKey(); err != nil {
		return err
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}

	if c.Temperature < MinTemperature || c.Temperature > MaxTemperature {
		return fmt.Errorf("%w: %g (must be between %g and %g)",
			ErrInvalidTemperature, c.Temperature, MinTemperature, MaxTemperature)
	}

	if c.MaxTokens < MinMaxTokens || c.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("%w: %d (must be between %d and %d)",
			ErrInvalidMaxTokens, c.MaxTokens, MinMaxTokens, MaxMaxTokens)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	if err := c.validateEmbedderDimension(); err != nil {
		return err
	}

	if !tableNamePattern.MatchString(c.TableName) {
		return fmt.Errorf("%w: %q (must match %s)", ErrInvalidTableName, c.TableName, tableNamePattern)
	}

	if c.TopK < MinTopK || c.TopK > MaxTopK {
		return fmt.Errorf("top_k %d out of range [%d, %d]", c.TopK, MinTopK, MaxTopK)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < MinPostgresPort || c.PostgresPort > MaxPostgresPort {
		return fmt.Errorf("%w: %d (must be between %d and %d)",
			ErrInvalidPostgresPort, c.PostgresPort, MinPostgresPort, MaxPostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}

	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.Provider == ProviderOllama && strings.TrimSpace(c.OllamaHost) == "" {
		return fmt.Errorf("%w: host must not be empty for ollama provider", ErrInvalidOllamaHost)
	}

	return nil
}

// validateAPIKey checks that the credential required by the selected provider
// is present in the environment. The keys themselves are consumed by the
// Genkit plugins; missing credential is a hard startup failure.
func (c *Config) validateAPIKey() error {
	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable not set", ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", ErrMissingAPIKey)
		}
	case ProviderOllama:
		// Self-hosted; no credential required.
	}
	return nil
}

// validateEmbedderDimension rejects embedder models known to be unable to
// produce search.VectorDimension-sized vectors. Unknown models pass; the
// embedding service still enforces the dimension on every response.
func (c *Config) validateEmbedderDimension() error {
	dims, ok := embedderDimensions[c.EmbedderModel]
	if !ok {
		return nil
	}
	if dims.native == search.VectorDimension {
		return nil
	}
	if dims.truncatable && dims.native > search.VectorDimension {
		return nil
	}
	return fmt.Errorf("%w: %q outputs %d dimensions, need %d",
		ErrInvalidEmbedderDimension, c.EmbedderModel, dims.native, search.VectorDimension)
}
