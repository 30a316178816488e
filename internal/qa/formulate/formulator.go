// Package formulate turns a raw user message into the queries the
// retrieval engine searches with: it resolves whether the message answers
// a pending clarification or starts a new question, expands the query,
// extracts a keyword variant and derives aspect sub-queries for broad
// document-wide questions.
package formulate

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
	"github.com/lueurxax/franchise-support-bot/internal/core/llm"
)

// Kind classifies how the incoming message relates to the conversation.
type Kind string

const (
	KindNewQuestion         Kind = "new_question"
	KindClarificationAnswer Kind = "clarification_response"
)

// Query is the formulated retrieval input for one user message.
type Query struct {
	Kind     Kind
	Original string   // Effective query text
	Expanded string   // Paraphrased variant, equals Original when expansion failed
	Keywords string   // Extracted keyword query, empty when too few keywords
	Aspects  []string // Predefined facet sub-queries for broad questions
}

const (
	classifySystemPrompt = `You classify a user's reply in a support conversation.
The assistant previously asked a clarifying question about the user's pending question.
Respond with exactly one token, clarification_response or new_question:
clarification_response if the reply answers the clarifying question, new_question if it starts an unrelated question.`

	expandSystemPrompt = `You rewrite franchise partner support questions for semantic search.
Rephrase the question in different words, expanding abbreviations and adding likely synonyms.
Return only the rewritten question, in the language of the original.`

	mergedQueryFormat = "Original question: %s. User's clarification: %s"

	maxKeywords        = 5
	minKeywordLength   = 3
	minKeywordsInQuery = 2
)

// Generic "not that, something else" replies. The literal reply text is
// useless as a search query, so the previous user question is searched
// instead.
var differentTopicPattern = regexp.MustCompile(`(?i)^(другой вопрос|не то|нет,? другое|different (question|topic)|no,? something else)[.!]?$`)

var classifyTokenPattern = regexp.MustCompile(`(?i)(clarification_response|new_question)`)

type Formulator struct {
	llm        llm.Client
	aspectsMax int
	logger     *zerolog.Logger
}

func New(llmClient llm.Client, aspectsMax int, logger *zerolog.Logger) *Formulator {
	return &Formulator{
		llm:        llmClient,
		aspectsMax: aspectsMax,
		logger:     logger,
	}
}

// Formulate resolves the effective query for a raw user message given the
// conversation context. Formulation never fails: every error path falls
// back to using the raw text as both original and expanded query.
func (f *Formulator) Formulate(ctx context.Context, raw string, conv domain.ConversationContext) Query {
	raw = strings.TrimSpace(raw)

	kind, effective := f.resolve(ctx, raw, conv)

	q := Query{
		Kind:     kind,
		Original: effective,
		Expanded: f.expand(ctx, effective),
		Keywords: keywordQuery(effective),
		Aspects:  AspectQueries(effective, f.aspectsMax),
	}

	return q
}

func (f *Formulator) resolve(ctx context.Context, raw string, conv domain.ConversationContext) (Kind, string) {
	if !conv.AwaitingClarification() {
		return KindNewQuestion, raw
	}

	if IsShortChoice(raw) {
		return KindClarificationAnswer, fmt.Sprintf(mergedQueryFormat, conv.PendingClarification, raw)
	}

	if f.classify(ctx, raw, conv) == KindClarificationAnswer {
		return KindClarificationAnswer, fmt.Sprintf(mergedQueryFormat, conv.PendingClarification, raw)
	}

	if differentTopicPattern.MatchString(raw) && conv.LastUserQuestion != "" {
		return KindNewQuestion, conv.LastUserQuestion
	}

	return KindNewQuestion, raw
}

func (f *Formulator) classify(ctx context.Context, reply string, conv domain.ConversationContext) Kind {
	userPrompt := fmt.Sprintf("Pending question: %s\nAssistant's clarifying question: %s\nUser's reply: %s",
		conv.PendingClarification, conv.LastAssistantMessage, reply)

	out, err := f.llm.Complete(ctx, classifySystemPrompt, userPrompt, 0)
	if err != nil {
		f.logger.Warn().Err(err).Msg("reply classification failed, treating as new question")

		return KindNewQuestion
	}

	match := classifyTokenPattern.FindString(out)
	if strings.EqualFold(match, string(KindClarificationAnswer)) {
		return KindClarificationAnswer
	}

	return KindNewQuestion
}

func (f *Formulator) expand(ctx context.Context, query string) string {
	out, err := f.llm.Complete(ctx, expandSystemPrompt, query, 0.3)
	if err != nil {
		f.logger.Debug().Err(err).Msg("query expansion failed, using raw query")

		return query
	}

	expanded := strings.TrimSpace(out)
	if expanded == "" {
		return query
	}

	return expanded
}

// keywordQuery builds a keyword-only search variant from the most
// frequent content words of the query.
func keywordQuery(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	freq := make(map[string]int)

	for _, word := range words {
		if len([]rune(word)) >= minKeywordLength && !isStopWord(word) {
			freq[word]++
		}
	}

	type wordFreq struct {
		word  string
		count int
	}

	sorted := make([]wordFreq, 0, len(freq))
	for w, c := range freq {
		sorted = append(sorted, wordFreq{w, c})
	}

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}

		return sorted[i].word < sorted[j].word
	})

	if len(sorted) < minKeywordsInQuery {
		return ""
	}

	limit := maxKeywords
	if len(sorted) < limit {
		limit = len(sorted)
	}

	keywords := make([]string, 0, limit)
	for _, wf := range sorted[:limit] {
		keywords = append(keywords, wf.word)
	}

	return strings.Join(keywords, " ")
}

var stopWords = map[string]bool{
	// Russian
	"как": true, "что": true, "для": true, "это": true, "или": true,
	"при": true, "его": true, "если": true, "чтобы": true, "где": true,
	"когда": true, "можно": true, "нужно": true, "есть": true, "какой": true,
	"какие": true, "меня": true, "мне": true, "под": true, "надо": true,
	// English
	"the": true, "and": true, "for": true, "how": true, "what": true,
	"can": true, "with": true, "that": true, "this": true, "are": true,
	"you": true, "your": true, "should": true, "where": true, "when": true,
}

func isStopWord(word string) bool {
	return stopWords[word]
}
