// Package answer covers the three judgment calls around the answer text:
// whether the evidence suffices, composing the answer itself and verifying
// the composed answer is grounded in that evidence.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
	"github.com/lueurxax/franchise-support-bot/internal/core/llm"
	"github.com/lueurxax/franchise-support-bot/internal/platform/observability"
)

// sufficiencyTopN bounds how much evidence the sufficiency judgment sees.
// The top passages decide the call; tail passages only add noise.
const sufficiencyTopN = 3

const sufficiencySystemPrompt = `You judge whether evidence passages contain enough information to answer a franchise partner's question.
On the first line answer yes or no.
If no, on the second line describe in the language of the question what information is missing.`

// SufficiencyResult is the outcome of the evidence sufficiency judgment.
type SufficiencyResult struct {
	Sufficient  bool
	MissingInfo string // What the evidence lacks, set when insufficient
}

type SufficiencyChecker struct {
	llm     llm.Client
	prompts PromptSource
	logger  *zerolog.Logger
}

func NewSufficiencyChecker(llmClient llm.Client, prompts PromptSource, logger *zerolog.Logger) *SufficiencyChecker {
	return &SufficiencyChecker{llm: llmClient, prompts: prompts, logger: logger}
}

// Check judges whether evidence can answer the question. Empty evidence is
// insufficient without consulting the model. A judgment failure counts as
// sufficient: a wrong answer attempt still passes grounding verification,
// while a wrong insufficiency verdict silently degrades into needless
// clarification rounds.
func (s *SufficiencyChecker) Check(ctx context.Context, question string, evidence []domain.Chunk) SufficiencyResult {
	if len(evidence) == 0 {
		return SufficiencyResult{Sufficient: false, MissingInfo: ""}
	}

	top := evidence
	if len(top) > sufficiencyTopN {
		top = top[:sufficiencyTopN]
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "Question: %s\n\nEvidence:\n", question)

	for i, c := range top {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c.Text)
	}

	start := time.Now()

	out, err := s.llm.Complete(ctx, systemPrompt(ctx, s.prompts, promptKeySufficiency, sufficiencySystemPrompt), sb.String(), 0)

	observability.LLMRequestDuration.WithLabelValues("sufficiency").Observe(time.Since(start).Seconds())

	if err != nil {
		s.logger.Warn().Err(err).Msg("sufficiency judgment failed, assuming sufficient")

		return SufficiencyResult{Sufficient: true}
	}

	return parseSufficiency(out)
}

func parseSufficiency(out string) SufficiencyResult {
	lines := strings.SplitN(strings.TrimSpace(out), "\n", 2)

	verdict := strings.ToLower(strings.TrimRight(strings.TrimSpace(lines[0]), ".!"))
	if strings.HasPrefix(verdict, "yes") || strings.HasPrefix(verdict, "да") {
		return SufficiencyResult{Sufficient: true}
	}

	var missing string
	if len(lines) > 1 {
		missing = strings.TrimSpace(lines[1])
	}

	return SufficiencyResult{Sufficient: false, MissingInfo: missing}
}
