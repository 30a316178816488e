package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
)

// crossEncoder calls an external cross-encoder scoring service. The
// service scores each (query, passage) pair independently, so unlike the
// LLM backend every candidate comes back with a calibrated score and
// nothing is dropped here; the selection floor does the cutting.
type crossEncoder struct {
	url    string
	client *http.Client
}

func NewCrossEncoder(url string, timeout time.Duration) Reranker {
	return &crossEncoder{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
}

type rerankResponse struct {
	Scores []float32 `json:"scores"`
}

func (r *crossEncoder) Rerank(ctx context.Context, query string, candidates []domain.Chunk) ([]domain.Chunk, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	passages := make([]string, 0, len(candidates))
	for _, c := range candidates {
		passages = append(passages, c.Text)
	}

	body, err := json.Marshal(rerankRequest{Query: query, Passages: passages})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call rerank service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank service returned status %d", resp.StatusCode)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	if len(parsed.Scores) != len(candidates) {
		return nil, fmt.Errorf("rerank service returned %d scores for %d passages", len(parsed.Scores), len(candidates))
	}

	scored := make([]domain.Chunk, len(candidates))

	for i, c := range candidates {
		c.Score = parsed.Scores[i]
		scored[i] = c
	}

	return scored, nil
}
