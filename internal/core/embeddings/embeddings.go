// Package embeddings provides the text embedding client used for semantic
// retrieval. Embedding computation itself is an external capability; this
// package only wraps the provider API.
package embeddings

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lueurxax/franchise-support-bot/internal/platform/config"
)

// Client produces embedding vectors for semantic search.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const apiKeyMock = "mock"

// New creates the embedding client, falling back to a deterministic mock
// when no API key is configured.
func New(cfg *config.Config, logger *zerolog.Logger) Client {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	if cfg.LLMAPIKey == "" || cfg.LLMAPIKey == apiKeyMock {
		logger.Warn().Msg("no embedding API key configured, using mock client")

		return NewMock(cfg.EmbeddingDimensions)
	}

	return NewOpenAI(cfg)
}
