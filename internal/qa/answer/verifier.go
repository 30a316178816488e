package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
	"github.com/lueurxax/franchise-support-bot/internal/core/llm"
	"github.com/lueurxax/franchise-support-bot/internal/platform/observability"
)

const verifySystemPrompt = `You verify that a support answer is fully grounded in the evidence passages it was written from.
Every factual claim in the answer must be supported by at least one passage.
Ignore greetings, the source list and phrasing differences; answer yes or no only.`

// Verifier runs the final grounding check before an answer is sent.
type Verifier struct {
	llm     llm.Client
	prompts PromptSource
}

func NewVerifier(llmClient llm.Client, prompts PromptSource) *Verifier {
	return &Verifier{llm: llmClient, prompts: prompts}
}

// Verify reports whether the answer's claims are supported by the
// evidence. A verification failure is an error, not a pass: an answer
// that cannot be verified must not reach the partner, so the caller
// escalates instead of sending it.
func (v *Verifier) Verify(ctx context.Context, answerText string, evidence []domain.Chunk) (bool, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Answer:\n%s\n\nEvidence:\n", answerText)

	for i, c := range evidence {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c.Text)
	}

	start := time.Now()

	out, err := v.llm.Complete(ctx, systemPrompt(ctx, v.prompts, promptKeyVerify, verifySystemPrompt), sb.String(), 0)

	observability.LLMRequestDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())

	if err != nil {
		return false, fmt.Errorf("verify grounding: %w", err)
	}

	verdict := strings.ToLower(strings.TrimRight(strings.TrimSpace(out), ".!"))

	return strings.HasPrefix(verdict, "yes") || strings.HasPrefix(verdict, "да"), nil
}
