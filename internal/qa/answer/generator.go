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

const generateSystemPrompt = `You are a support assistant for franchise partners of a hardware retail network.
Answer the partner's question using ONLY the evidence passages. Never add facts that are not in the evidence.
If passages contradict each other, say so explicitly and present both versions.
Answer in the language of the question, concise and practical. Do not greet the partner and do not mention the evidence passages themselves.`

const historyMaxForPrompt = 6

// Generator composes the answer text from the selected evidence.
type Generator struct {
	llm         llm.Client
	prompts     PromptSource
	temperature float32
	logger      *zerolog.Logger
}

func NewGenerator(llmClient llm.Client, prompts PromptSource, temperature float32, logger *zerolog.Logger) *Generator {
	return &Generator{llm: llmClient, prompts: prompts, temperature: temperature, logger: logger}
}

// Input carries everything the answer is composed from.
type Input struct {
	Question string
	Evidence []domain.Chunk
	History  []domain.Turn
	Greet    bool // First reply in a fresh conversation gets a greeting
}

// Generate writes the answer from evidence and appends a source line built
// from the evidence metadata. Citations are assembled here rather than by
// the model so they cannot be hallucinated.
func (g *Generator) Generate(ctx context.Context, in Input) (string, error) {
	var sb strings.Builder

	if len(in.History) > 0 {
		sb.WriteString("Recent conversation:\n")

		history := in.History
		if len(history) > historyMaxForPrompt {
			history = history[len(history)-historyMaxForPrompt:]
		}

		for _, turn := range history {
			fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Text)
		}

		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Question: %s\n\nEvidence:\n", in.Question)

	for i, c := range in.Evidence {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c.Text)
	}

	start := time.Now()

	out, err := g.llm.Complete(ctx, systemPrompt(ctx, g.prompts, promptKeyGenerate, generateSystemPrompt), sb.String(), g.temperature)

	observability.LLMRequestDuration.WithLabelValues("generate").Observe(time.Since(start).Seconds())

	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	text := strings.TrimSpace(out)
	if text == "" {
		return "", fmt.Errorf("generate answer: empty completion")
	}

	if in.Greet {
		text = "Здравствуйте! " + text
	}

	if sources := sourceLine(in.Evidence); sources != "" {
		text += "\n\n" + sources
	}

	return text, nil
}

func sourceLine(evidence []domain.Chunk) string {
	seen := make(map[string]bool)

	var titles []string

	for _, c := range evidence {
		title := c.Metadata.DocumentTitle
		if title == "" {
			title = c.Metadata.Source
		}

		if title == "" || seen[title] {
			continue
		}

		seen[title] = true
		titles = append(titles, title)
	}

	if len(titles) == 0 {
		return ""
	}

	return "Источники: " + strings.Join(titles, ", ")
}
