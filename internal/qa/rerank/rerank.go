// Package rerank rescores the fused candidate pool against the effective
// query and selects the evidence set the answer is written from. Two
// reranker backends exist: a listwise LLM judgment and an external
// cross-encoder service. Selection applies a relevance floor, drops
// near-duplicate passages and bounds how many passages one document may
// contribute.
package rerank

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
	"github.com/lueurxax/franchise-support-bot/internal/core/llm"
	"github.com/lueurxax/franchise-support-bot/internal/platform/config"
)

// Reranker rescores candidates by relevance to the query. Returned chunks
// carry reranker scores and may be a subset of the input.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.Chunk) ([]domain.Chunk, error)
}

const (
	modeLLM     = "llm"
	modeService = "service"
)

// New picks the reranker backend from configuration. An unknown mode or a
// service mode without a URL falls back to the LLM backend.
func New(cfg *config.Config, llmClient llm.Client, logger *zerolog.Logger) Reranker {
	if cfg.RerankMode == modeService && cfg.RerankServiceURL != "" {
		return NewCrossEncoder(cfg.RerankServiceURL, cfg.RerankTimeout)
	}

	if cfg.RerankMode != modeLLM {
		logger.Warn().Str("mode", cfg.RerankMode).Msg("unknown rerank mode, using llm")
	}

	return NewLLMReranker(llmClient, cfg.SelectionMax)
}
