// Package pipeline orchestrates the question answering flow: formulation,
// retrieval, reranking, the sufficiency judgment, bounded clarification,
// answer generation with grounding verification, and escalation when no
// trustworthy answer exists. The pipeline never sends an unverified answer
// and never leaves a question without a reply of some kind.
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
	"github.com/lueurxax/franchise-support-bot/internal/platform/observability"
	"github.com/lueurxax/franchise-support-bot/internal/qa/answer"
	"github.com/lueurxax/franchise-support-bot/internal/qa/clarify"
	"github.com/lueurxax/franchise-support-bot/internal/qa/convstate"
	"github.com/lueurxax/franchise-support-bot/internal/qa/escalate"
	"github.com/lueurxax/franchise-support-bot/internal/qa/formulate"
	"github.com/lueurxax/franchise-support-bot/internal/qa/rerank"
)

// Outcome classifies how a message was resolved.
type Outcome string

const (
	OutcomeAnswered      Outcome = "answered"
	OutcomeClarification Outcome = "clarification"
	OutcomeEscalated     Outcome = "escalated"
	OutcomeGreeting      Outcome = "greeting"
)

const (
	statusSearching = "Ищу ответ в базе знаний…"
	statusComposing = "Составляю ответ…"

	greetingReply      = "Здравствуйте! Я помощник поддержки партнеров. Задайте вопрос, и я поищу ответ в базе знаний."
	greetingReplyAgain = "Чем могу помочь?"
)

var greetingPattern = regexp.MustCompile(`^(привет|здравствуйте|здравствуй|добрый день|добрый вечер|доброе утро|hi|hello|hey)[!.)\s]*$`)

// Request is one incoming partner message.
type Request struct {
	ChatID   int64
	UserID   int64
	UserName string
	Text     string
	Progress func(status string) // Optional, called as stages start
}

// Response is the reply the transport delivers to the partner.
type Response struct {
	Text    string
	Outcome Outcome
}

// Formulator resolves raw messages into retrieval queries.
type Formulator interface {
	Formulate(ctx context.Context, raw string, conv domain.ConversationContext) formulate.Query
}

// Retriever produces the fused candidate pool for a query.
type Retriever interface {
	Retrieve(ctx context.Context, q formulate.Query) ([]domain.Chunk, error)
}

// Escalator hands unanswerable questions to human operators.
type Escalator interface {
	Escalate(ctx context.Context, req escalate.Request) (string, error)
}

type Pipeline struct {
	formulator   Formulator
	retriever    Retriever
	reranker     rerank.Reranker
	selector     rerank.Selector
	sufficiency  *answer.SufficiencyChecker
	generator    *answer.Generator
	verifier     *answer.Verifier
	clarifier    *clarify.Composer
	escalator    Escalator
	contexts     *convstate.Store
	stageTimeout time.Duration
	logger       *zerolog.Logger
}

type Deps struct {
	Formulator  Formulator
	Retriever   Retriever
	Reranker    rerank.Reranker
	Selector    rerank.Selector
	Sufficiency *answer.SufficiencyChecker
	Generator   *answer.Generator
	Verifier    *answer.Verifier
	Clarifier   *clarify.Composer
	Escalator   Escalator
	Contexts    *convstate.Store
}

func New(deps Deps, stageTimeout time.Duration, logger *zerolog.Logger) *Pipeline {
	return &Pipeline{
		formulator:   deps.Formulator,
		retriever:    deps.Retriever,
		reranker:     deps.Reranker,
		selector:     deps.Selector,
		sufficiency:  deps.Sufficiency,
		generator:    deps.Generator,
		verifier:     deps.Verifier,
		clarifier:    deps.Clarifier,
		escalator:    deps.Escalator,
		contexts:     deps.Contexts,
		stageTimeout: stageTimeout,
		logger:       logger,
	}
}

// Handle resolves one partner message into a reply. Every return path
// updates the conversation context, so the next message sees a consistent
// history and pending state.
func (p *Pipeline) Handle(ctx context.Context, req Request) (Response, error) {
	key := convstate.Key{ChatID: req.ChatID, UserID: req.UserID}
	conv := p.contexts.Get(key)
	text := strings.TrimSpace(req.Text)

	if isGreeting(text) {
		return p.replyGreeting(key, conv, text), nil
	}

	progress(req, statusSearching)

	query := p.formulate(ctx, text, conv)

	// A new question abandons any clarification in flight. The pending
	// state and the round counter belong to the abandoned question, so the
	// new one starts with a fresh round budget.
	if query.Kind == formulate.KindNewQuestion && conv.AwaitingClarification() {
		conv = p.contexts.Update(key, func(c *domain.ConversationContext) {
			c.PendingClarification = ""
			c.ClarificationRounds = 0
		})
	}

	logger := p.logger.With().
		Int64("chat_id", req.ChatID).
		Str("kind", string(query.Kind)).
		Logger()
	logger.Info().Str("query", query.Original).Msg("handling question")

	pool, err := p.retrieve(ctx, query)
	if err != nil {
		logger.Error().Err(err).Msg("retrieval failed")

		return p.escalateAndReply(ctx, req, key, conv, query.Original, escalate.TriggerNoEvidence)
	}

	if len(pool) == 0 {
		logger.Info().Msg("knowledge base has no candidates")

		return p.escalateAndReply(ctx, req, key, conv, query.Original, escalate.TriggerNoEvidence)
	}

	evidence := p.selectEvidence(ctx, query.Original, pool, &logger)
	if len(evidence) == 0 {
		logger.Info().Int("pool", len(pool)).Msg("no candidate passed the relevance floor")

		return p.escalateAndReply(ctx, req, key, conv, query.Original, escalate.TriggerLowRelevance)
	}

	verdict := p.checkSufficiency(ctx, query.Original, evidence)
	if !verdict.Sufficient {
		if p.clarifier.CanAsk(conv) {
			if question, ok := p.clarifier.Compose(verdict.MissingInfo, pool); ok {
				return p.replyClarification(key, conv, query, text, question), nil
			}

			logger.Info().Msg("nothing concrete to clarify, escalating")

			return p.escalateAndReply(ctx, req, key, conv, query.Original, escalate.TriggerInsufficient)
		}

		logger.Info().Int("rounds", conv.ClarificationRounds).Msg("clarification rounds exhausted, attempting answer")
	}

	progress(req, statusComposing)

	answerText, err := p.generate(ctx, query.Original, evidence, conv)
	if err != nil {
		logger.Error().Err(err).Msg("answer generation failed")

		return p.escalateAndReply(ctx, req, key, conv, query.Original, escalate.TriggerGeneration)
	}

	grounded, err := p.verify(ctx, answerText, evidence)
	if err != nil {
		logger.Error().Err(err).Msg("grounding verification failed")

		return p.escalateAndReply(ctx, req, key, conv, query.Original, escalate.TriggerVerifierError)
	}

	if !grounded {
		logger.Warn().Msg("generated answer is not grounded in evidence")

		return p.escalateAndReply(ctx, req, key, conv, query.Original, escalate.TriggerUngrounded)
	}

	observability.QuestionsHandled.WithLabelValues(string(OutcomeAnswered)).Inc()
	observability.ClarificationRounds.Observe(float64(conv.ClarificationRounds))

	p.contexts.Update(key, func(c *domain.ConversationContext) {
		c.History = append(c.History,
			domain.Turn{Role: domain.RoleUser, Text: text, At: time.Now()},
			domain.Turn{Role: domain.RoleAssistant, Text: answerText, At: time.Now()},
		)
		c.PendingClarification = ""
		c.ClarificationRounds = 0
		c.Greeted = true
		c.LastAssistantMessage = answerText
		c.LastUserQuestion = query.Original
	})

	return Response{Text: answerText, Outcome: OutcomeAnswered}, nil
}

func (p *Pipeline) formulate(ctx context.Context, text string, conv domain.ConversationContext) formulate.Query {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	return p.formulator.Formulate(stageCtx, text, conv)
}

func (p *Pipeline) retrieve(ctx context.Context, query formulate.Query) ([]domain.Chunk, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	return p.retriever.Retrieve(stageCtx, query)
}

// selectEvidence reranks the pool and applies selection. A reranker
// failure falls back to selecting straight from the fusion ordering with
// the score floor disabled, because fusion scores live on a different
// scale.
func (p *Pipeline) selectEvidence(ctx context.Context, query string, pool []domain.Chunk, logger *zerolog.Logger) []domain.Chunk {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	reranked, err := p.reranker.Rerank(stageCtx, query, pool)
	if err != nil {
		logger.Warn().Err(err).Msg("rerank failed, selecting by fusion order")

		fallback := p.selector
		fallback.ScoreFloor = 0

		return fallback.Select(pool)
	}

	return p.selector.Select(reranked)
}

func (p *Pipeline) checkSufficiency(ctx context.Context, query string, evidence []domain.Chunk) answer.SufficiencyResult {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	return p.sufficiency.Check(stageCtx, query, evidence)
}

func (p *Pipeline) generate(ctx context.Context, query string, evidence []domain.Chunk, conv domain.ConversationContext) (string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	return p.generator.Generate(stageCtx, answer.Input{
		Question: query,
		Evidence: evidence,
		History:  conv.History,
		Greet:    !conv.Greeted,
	})
}

func (p *Pipeline) verify(ctx context.Context, answerText string, evidence []domain.Chunk) (bool, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	return p.verifier.Verify(stageCtx, answerText, evidence)
}

func (p *Pipeline) replyGreeting(key convstate.Key, conv domain.ConversationContext, text string) Response {
	reply := greetingReply
	if conv.Greeted {
		reply = greetingReplyAgain
	}

	p.contexts.Update(key, func(c *domain.ConversationContext) {
		c.History = append(c.History,
			domain.Turn{Role: domain.RoleUser, Text: text, At: time.Now()},
			domain.Turn{Role: domain.RoleAssistant, Text: reply, At: time.Now()},
		)
		c.Greeted = true
		c.LastAssistantMessage = reply
	})

	observability.QuestionsHandled.WithLabelValues(string(OutcomeGreeting)).Inc()

	return Response{Text: reply, Outcome: OutcomeGreeting}
}

// replyClarification asks a clarifying question and records the pending
// state. The pending clarification always stores the original question,
// not the merged retrieval query, so later merges start from the
// partner's own words. The round counter tracks questions asked by the
// bot, so it increments here and only here.
func (p *Pipeline) replyClarification(key convstate.Key, conv domain.ConversationContext, query formulate.Query, text, question string) Response {
	pending := text
	if query.Kind == formulate.KindClarificationAnswer {
		pending = conv.PendingClarification
	}

	p.contexts.Update(key, func(c *domain.ConversationContext) {
		c.History = append(c.History,
			domain.Turn{Role: domain.RoleUser, Text: text, At: time.Now()},
			domain.Turn{Role: domain.RoleAssistant, Text: question, At: time.Now()},
		)
		c.PendingClarification = pending
		c.ClarificationRounds++
		c.Greeted = true
		c.LastAssistantMessage = question
	})

	observability.QuestionsHandled.WithLabelValues(string(OutcomeClarification)).Inc()

	return Response{Text: question, Outcome: OutcomeClarification}
}

func (p *Pipeline) escalateAndReply(ctx context.Context, req Request, key convstate.Key, conv domain.ConversationContext, question string, trigger escalate.Trigger) (Response, error) {
	ack, err := p.escalator.Escalate(ctx, escalate.Request{
		Trigger:   trigger,
		Question:  question,
		AskerID:   req.UserID,
		AskerName: req.UserName,
		ChatID:    req.ChatID,
	})
	if err != nil {
		return Response{}, fmt.Errorf("escalate: %w", err)
	}

	observability.QuestionsHandled.WithLabelValues(string(OutcomeEscalated)).Inc()
	observability.ClarificationRounds.Observe(float64(conv.ClarificationRounds))

	p.contexts.Update(key, func(c *domain.ConversationContext) {
		c.History = append(c.History,
			domain.Turn{Role: domain.RoleUser, Text: strings.TrimSpace(req.Text), At: time.Now()},
			domain.Turn{Role: domain.RoleAssistant, Text: ack, At: time.Now()},
		)
		c.PendingClarification = ""
		c.ClarificationRounds = 0
		c.Greeted = true
		c.LastAssistantMessage = ack
		c.LastUserQuestion = question
	})

	return Response{Text: ack, Outcome: OutcomeEscalated}, nil
}

func isGreeting(text string) bool {
	return greetingPattern.MatchString(strings.ToLower(text))
}

func progress(req Request, status string) {
	if req.Progress != nil {
		req.Progress(status)
	}
}
