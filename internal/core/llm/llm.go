// Package llm provides the language-model completion client used by the
// question-answering pipeline for query expansion, classification,
// sufficiency and grounding judgments, and answer generation.
package llm

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lueurxax/franchise-support-bot/internal/platform/config"
)

// Client is a single-turn completion interface. All pipeline judgment
// calls go through it; callers own prompt construction and must treat
// every error as recoverable (spec'd fallbacks, never user-visible).
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)
}

const apiKeyMock = "mock"

// New creates the completion client. With LLM_API_KEY=mock a deterministic
// mock is returned for local development and tests.
func New(cfg *config.Config, logger *zerolog.Logger) Client {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	if cfg.LLMAPIKey == "" || cfg.LLMAPIKey == apiKeyMock {
		logger.Warn().Msg("no LLM API key configured, using mock client")

		return NewMock()
	}

	return NewOpenAI(cfg, logger)
}
