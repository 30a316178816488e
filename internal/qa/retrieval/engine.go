// Package retrieval finds knowledge base candidates for a formulated
// query. Several strategies run concurrently over the same corpus:
// semantic search on the expanded and original queries, lexical BM25 on
// extracted keywords, a hypothetical-answer search and predefined aspect
// sub-queries for broad questions. Their ranked lists are merged with
// reciprocal rank fusion into a single candidate pool.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
	"github.com/lueurxax/franchise-support-bot/internal/core/embeddings"
	"github.com/lueurxax/franchise-support-bot/internal/core/llm"
	"github.com/lueurxax/franchise-support-bot/internal/platform/observability"
	"github.com/lueurxax/franchise-support-bot/internal/qa/formulate"
	"github.com/lueurxax/franchise-support-bot/internal/qa/querycache"
)

const hydeSystemPrompt = `You draft a short passage of internal franchise documentation that would answer the partner's question.
Write one factual paragraph in the language of the question, as it would appear in the knowledge base.
Return only the passage.`

type searcher interface {
	SearchChunks(ctx context.Context, embedding []float32, topK int) ([]domain.Chunk, error)
}

type Options struct {
	TopK        int // Per-strategy result limit
	PoolCap     int // Fused pool size limit
	HyDEEnabled bool
}

type Engine struct {
	store    searcher
	embedder embeddings.Client
	llm      llm.Client
	lexical  *BM25Index
	cache    *querycache.Cache
	opts     Options
	logger   *zerolog.Logger
}

func NewEngine(
	store searcher,
	embedder embeddings.Client,
	llmClient llm.Client,
	lexical *BM25Index,
	cache *querycache.Cache,
	opts Options,
	logger *zerolog.Logger,
) *Engine {
	return &Engine{
		store:    store,
		embedder: embedder,
		llm:      llmClient,
		lexical:  lexical,
		cache:    cache,
		opts:     opts,
		logger:   logger,
	}
}

type strategy struct {
	name string
	run  func(ctx context.Context) ([]domain.Chunk, error)
}

// Retrieve runs all applicable strategies concurrently and fuses their
// results. An empty pool with no errors means the knowledge base holds
// nothing relevant; the caller escalates in that case. Individual
// strategy failures are tolerated as long as any strategy produced
// candidates.
func (e *Engine) Retrieve(ctx context.Context, q formulate.Query) ([]domain.Chunk, error) {
	if cached, ok := e.cache.Get(q.Original); ok {
		return cached, nil
	}

	strategies := e.plan(q)

	results := make([][]domain.Chunk, len(strategies))
	errs := make([]error, len(strategies))

	g, gctx := errgroup.WithContext(ctx)

	for i, s := range strategies {
		g.Go(func() error {
			start := time.Now()

			chunks, err := s.run(gctx)

			observability.RetrievalDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())

			if err != nil {
				e.logger.Warn().Err(err).Str("strategy", s.name).Msg("retrieval strategy failed")
				errs[i] = err

				return nil
			}

			results[i] = chunks

			return nil
		})
	}

	_ = g.Wait()

	fused := fuseRRF(results)
	if len(fused) > e.opts.PoolCap {
		fused = fused[:e.opts.PoolCap]
	}

	observability.RetrievalCandidates.Observe(float64(len(fused)))

	if len(fused) == 0 {
		for _, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("all retrieval strategies failed: %w", err)
			}
		}

		return nil, nil
	}

	e.cache.Put(q.Original, fused)

	return fused, nil
}

func (e *Engine) plan(q formulate.Query) []strategy {
	strategies := []strategy{{
		name: "expanded",
		run: func(ctx context.Context) ([]domain.Chunk, error) {
			return e.vectorSearch(ctx, q.Expanded)
		},
	}}

	if q.Original != q.Expanded {
		strategies = append(strategies, strategy{
			name: "original",
			run: func(ctx context.Context) ([]domain.Chunk, error) {
				return e.vectorSearch(ctx, q.Original)
			},
		})
	}

	if q.Keywords != "" {
		strategies = append(strategies, strategy{
			name: "lexical",
			run: func(_ context.Context) ([]domain.Chunk, error) {
				return e.lexical.Search(q.Keywords, e.opts.TopK), nil
			},
		})
	}

	if e.opts.HyDEEnabled {
		strategies = append(strategies, strategy{
			name: "hyde",
			run: func(ctx context.Context) ([]domain.Chunk, error) {
				return e.hydeSearch(ctx, q.Original)
			},
		})
	}

	for _, aspect := range q.Aspects {
		strategies = append(strategies, strategy{
			name: "aspect",
			run: func(ctx context.Context) ([]domain.Chunk, error) {
				return e.vectorSearch(ctx, aspect)
			},
		})
	}

	return strategies
}

func (e *Engine) vectorSearch(ctx context.Context, query string) ([]domain.Chunk, error) {
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return e.store.SearchChunks(ctx, embedding, e.opts.TopK)
}

// hydeSearch drafts a hypothetical documentation passage answering the
// question and searches by its embedding. A drafted answer sits closer to
// real documentation in embedding space than the question itself.
func (e *Engine) hydeSearch(ctx context.Context, query string) ([]domain.Chunk, error) {
	start := time.Now()

	draft, err := e.llm.Complete(ctx, hydeSystemPrompt, query, 0.7)

	observability.LLMRequestDuration.WithLabelValues("hyde").Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("draft hypothetical answer: %w", err)
	}

	return e.vectorSearch(ctx, draft)
}
