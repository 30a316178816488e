// Package app provides the main application bootstrap and runtime wiring.
//
// The App type wires together all dependencies and exposes methods to run
// the operational modes:
//
//   - Bot mode: the Telegram bot answering partner questions
//   - HTTP mode: standalone health and metrics server, for deployments
//     where the bot runs elsewhere
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/franchise-support-bot/internal/bot"
	"github.com/lueurxax/franchise-support-bot/internal/core/embeddings"
	"github.com/lueurxax/franchise-support-bot/internal/core/llm"
	"github.com/lueurxax/franchise-support-bot/internal/platform/config"
	"github.com/lueurxax/franchise-support-bot/internal/platform/observability"
	"github.com/lueurxax/franchise-support-bot/internal/qa/answer"
	"github.com/lueurxax/franchise-support-bot/internal/qa/clarify"
	"github.com/lueurxax/franchise-support-bot/internal/qa/convstate"
	"github.com/lueurxax/franchise-support-bot/internal/qa/escalate"
	"github.com/lueurxax/franchise-support-bot/internal/qa/formulate"
	"github.com/lueurxax/franchise-support-bot/internal/qa/pipeline"
	"github.com/lueurxax/franchise-support-bot/internal/qa/querycache"
	"github.com/lueurxax/franchise-support-bot/internal/qa/rerank"
	"github.com/lueurxax/franchise-support-bot/internal/qa/retrieval"
	db "github.com/lueurxax/franchise-support-bot/internal/storage"
)

const (
	errBotInit            = "bot initialization failed: %w"
	ticketMetricsInterval = time.Minute
)

// App holds the application dependencies and provides methods to run
// different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunHTTP runs the HTTP-only mode serving health checks and metrics.
func (a *App) RunHTTP(ctx context.Context) error {
	a.logger.Info().Msg("Starting HTTP-only mode")

	return a.StartHealthServer(ctx)
}

// RunBot runs the bot mode: the full answering pipeline behind Telegram
// long polling.
func (a *App) RunBot(ctx context.Context) error {
	a.logger.Info().Msg("Starting bot mode")

	llmClient := llm.New(a.cfg, a.logger)
	embeddingClient := embeddings.New(a.cfg, a.logger)

	lexical, err := a.buildLexicalIndex(ctx)
	if err != nil {
		return err
	}

	b, err := bot.New(a.cfg, a.database, a.logger)
	if err != nil {
		return fmt.Errorf(errBotInit, err)
	}

	escalator := escalate.NewManager(a.database, embeddingClient, b, lexical, a.logger)

	cache := querycache.New(a.cfg.QueryCacheCapacity, a.cfg.QueryCacheTTL)

	engine := retrieval.NewEngine(a.database, embeddingClient, llmClient, lexical, cache, retrieval.Options{
		TopK:        a.cfg.RetrievalTopK,
		PoolCap:     a.cfg.RetrievalPoolCap,
		HyDEEnabled: a.cfg.HyDEEnabled,
	}, a.logger)

	contexts := convstate.New(convstate.Options{
		Capacity: a.cfg.ContextCapacity,
		TTL:      a.cfg.ContextTTL,
		MaxTurns: a.cfg.HistoryMaxTurns,
	})

	qa := pipeline.New(pipeline.Deps{
		Formulator:  formulate.New(llmClient, a.cfg.AspectQueriesMax, a.logger),
		Retriever:   engine,
		Reranker:    rerank.New(a.cfg, llmClient, a.logger),
		Selector:    a.newSelector(),
		Sufficiency: answer.NewSufficiencyChecker(llmClient, a.database, a.logger),
		Generator:   answer.NewGenerator(llmClient, a.database, a.cfg.LLMTemperature, a.logger),
		Verifier:    answer.NewVerifier(llmClient, a.database),
		Clarifier:   clarify.New(a.cfg.MaxClarificationRounds),
		Escalator:   escalator,
		Contexts:    contexts,
	}, a.cfg.StageTimeout, a.logger)

	b.Wire(qa, escalator)

	go a.runTicketMetrics(ctx)

	if err := b.Run(ctx); err != nil {
		return fmt.Errorf("bot run: %w", err)
	}

	return nil
}

func (a *App) newSelector() rerank.Selector {
	return rerank.Selector{
		Max:              a.cfg.SelectionMax,
		ScoreFloor:       a.cfg.ScoreFloor,
		DuplicateOverlap: a.cfg.DuplicateOverlap,
		GroupCap:         a.cfg.DiversityGroupCap,
	}
}

// buildLexicalIndex loads the knowledge base into the in-memory BM25
// index. Later human-answer fold-backs append to it at runtime.
func (a *App) buildLexicalIndex(ctx context.Context) (*retrieval.BM25Index, error) {
	chunks, err := a.database.AllChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("build lexical index: %w", err)
	}

	lexical := retrieval.NewBM25Index()
	lexical.Add(chunks...)

	a.logger.Info().Int("chunks", lexical.Len()).Msg("lexical index built")

	return lexical, nil
}

// runTicketMetrics keeps the open ticket gauges current.
func (a *App) runTicketMetrics(ctx context.Context) {
	ticker := time.NewTicker(ticketMetricsInterval)
	defer ticker.Stop()

	for {
		a.updateTicketMetrics(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) updateTicketMetrics(ctx context.Context) {
	count, oldestAge, err := a.database.CountOpenTickets(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("open ticket metrics update failed")

		return
	}

	observability.OpenTickets.Set(float64(count))
	observability.OldestOpenTicketAgeSeconds.Set(oldestAge.Seconds())
}
