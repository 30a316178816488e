package rerank

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
	"github.com/lueurxax/franchise-support-bot/internal/core/llm"
	"github.com/lueurxax/franchise-support-bot/internal/platform/observability"
)

const rerankSystemPrompt = `You rank knowledge base passages by how well they answer a franchise partner's question.
Passages are numbered. Prefer passages from official documents and complete checklists over fragments.
Respond with a comma-separated list of indices of the most relevant passages, best first, at most %d.
Respond with indices only.`

var indexPattern = regexp.MustCompile(`\d+`)

// llmReranker asks the judgment model for a listwise ranking. The model
// returns an ordering, not scores, so selected passages get synthetic
// scores spread linearly from 1.0 down; passages the model left out are
// dropped.
type llmReranker struct {
	llm llm.Client
	max int
}

func NewLLMReranker(llmClient llm.Client, max int) Reranker {
	return &llmReranker{llm: llmClient, max: max}
}

func (r *llmReranker) Rerank(ctx context.Context, query string, candidates []domain.Chunk) ([]domain.Chunk, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "Question: %s\n\nPassages:\n", query)

	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %s%s\n", i+1, passageTag(c), c.Text)
	}

	start := time.Now()

	out, err := r.llm.Complete(ctx, fmt.Sprintf(rerankSystemPrompt, r.max), sb.String(), 0)

	observability.LLMRequestDuration.WithLabelValues("rerank").Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("rerank candidates: %w", err)
	}

	indices := parseIndices(out, len(candidates), r.max)
	if len(indices) == 0 {
		return nil, fmt.Errorf("rerank candidates: no valid indices in %q", out)
	}

	ranked := make([]domain.Chunk, 0, len(indices))

	for pos, idx := range indices {
		c := candidates[idx]
		c.Score = 1 - 0.5*float32(pos)/float32(len(indices))
		ranked = append(ranked, c)
	}

	return ranked, nil
}

func passageTag(c domain.Chunk) string {
	var tags []string

	if c.Metadata.IsOfficial {
		tags = append(tags, "official")
	}

	if c.Metadata.IsChecklist {
		tags = append(tags, fmt.Sprintf("checklist of %d items", c.Metadata.ItemCount))
	}

	if len(tags) == 0 {
		return ""
	}

	return "[" + strings.Join(tags, ", ") + "] "
}

// parseIndices extracts 1-based passage indices from the model output,
// dropping out-of-range values and duplicates. Returned indices are
// 0-based.
func parseIndices(out string, n, max int) []int {
	seen := make(map[int]bool)

	var indices []int

	for _, m := range indexPattern.FindAllString(out, -1) {
		idx, err := strconv.Atoi(m)
		if err != nil || idx < 1 || idx > n || seen[idx] {
			continue
		}

		seen[idx] = true
		indices = append(indices, idx-1)

		if len(indices) == max {
			break
		}
	}

	return indices
}
