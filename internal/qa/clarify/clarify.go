// Package clarify composes clarifying questions when the retrieved
// evidence cannot answer the partner's question. The dialogue is bounded:
// once the round limit is reached the pipeline answers with what it has or
// escalates instead of asking again.
package clarify

import (
	"fmt"
	"strings"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
)

const maxOptions = 5

const (
	optionsHeader   = "Ваш вопрос можно понять по-разному. Что именно вас интересует?"
	missingTemplate = "Чтобы ответить точнее, уточните, пожалуйста: %s"
)

// Composer builds clarifying questions and enforces the round limit.
// Composition is deterministic: options come straight from candidate
// metadata and the missing-info description, with no model call that
// could itself need verification.
type Composer struct {
	maxRounds int
}

func New(maxRounds int) *Composer {
	return &Composer{maxRounds: maxRounds}
}

// CanAsk reports whether another clarification round is allowed for this
// conversation.
func (c *Composer) CanAsk(conv domain.ConversationContext) bool {
	return conv.ClarificationRounds < c.maxRounds
}

// Compose builds the clarifying question. Distinct candidate topics become
// a numbered option list the partner can answer with a single digit;
// otherwise the missing-info description is turned into a direct question.
// With neither topics nor a missing-info description there is nothing
// concrete to ask, and Compose reports false so the caller escalates
// instead of sending a question the partner cannot usefully answer.
func (c *Composer) Compose(missingInfo string, candidates []domain.Chunk) (string, bool) {
	if options := topicOptions(candidates); len(options) >= 2 {
		var sb strings.Builder

		sb.WriteString(optionsHeader)

		for i, opt := range options {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, opt)
		}

		return sb.String(), true
	}

	if missingInfo != "" {
		return fmt.Sprintf(missingTemplate, missingInfo), true
	}

	return "", false
}

// topicOptions extracts distinct candidate topics in pool order. Section
// headings are preferred over document titles as they name the narrower
// subject.
func topicOptions(candidates []domain.Chunk) []string {
	seen := make(map[string]bool)

	var options []string

	for _, c := range candidates {
		topic := c.Metadata.SectionHeading
		if topic == "" {
			topic = c.Metadata.DocumentTitle
		}

		if topic == "" || seen[topic] {
			continue
		}

		seen[topic] = true
		options = append(options, topic)

		if len(options) == maxOptions {
			break
		}
	}

	return options
}
