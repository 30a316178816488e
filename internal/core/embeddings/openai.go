package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/lueurxax/franchise-support-bot/internal/platform/config"
)

// ErrEmptyEmbedding indicates an empty embedding response.
var ErrEmptyEmbedding = errors.New("empty embedding response")

const embeddingRateLimiterBurst = 5

type openaiClient struct {
	client      *openai.Client
	model       string
	dimensions  int
	rateLimiter *rate.Limiter
}

func NewOpenAI(cfg *config.Config) Client {
	return &openaiClient{
		client:      openai.NewClient(cfg.LLMAPIKey),
		model:       cfg.EmbeddingModel,
		dimensions:  cfg.EmbeddingDimensions,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPS)), embeddingRateLimiterBurst),
	}
}

func (c *openaiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	}

	// text-embedding-3-large supports dimension reduction via API parameter.
	if c.model == string(openai.LargeEmbedding3) && c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return resp.Data[0].Embedding, nil
}
