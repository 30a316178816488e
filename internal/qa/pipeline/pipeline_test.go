package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
	"github.com/lueurxax/franchise-support-bot/internal/qa/answer"
	"github.com/lueurxax/franchise-support-bot/internal/qa/clarify"
	"github.com/lueurxax/franchise-support-bot/internal/qa/convstate"
	"github.com/lueurxax/franchise-support-bot/internal/qa/escalate"
	"github.com/lueurxax/franchise-support-bot/internal/qa/formulate"
	"github.com/lueurxax/franchise-support-bot/internal/qa/rerank"
)

// scriptedLLM routes completions by prompt markers so one stub serves
// every judgment call in the pipeline.
type scriptedLLM struct {
	classify    string
	rerank      string
	sufficiency string
	generate    string
	verify      string
	verifyErr   error
	generateErr error
}

func (s *scriptedLLM) Complete(_ context.Context, systemPrompt, userPrompt string, _ float32) (string, error) {
	switch {
	case strings.Contains(systemPrompt, "clarification_response or new_question"):
		return s.classify, nil
	case strings.Contains(systemPrompt, "comma-separated list of indices"):
		return s.rerank, nil
	case strings.Contains(systemPrompt, "enough information"):
		return s.sufficiency, nil
	case strings.Contains(systemPrompt, "grounded"):
		if s.verifyErr != nil {
			return "", s.verifyErr
		}

		return s.verify, nil
	case strings.Contains(systemPrompt, "rewrite"):
		return userPrompt, nil
	default:
		if s.generateErr != nil {
			return "", s.generateErr
		}

		return s.generate, nil
	}
}

type stubRetriever struct {
	pool      []domain.Chunk
	err       error
	lastQuery formulate.Query
}

func (r *stubRetriever) Retrieve(_ context.Context, q formulate.Query) ([]domain.Chunk, error) {
	r.lastQuery = q

	return r.pool, r.err
}

type stubEscalator struct {
	lastRequest escalate.Request
	err         error
}

func (e *stubEscalator) Escalate(_ context.Context, req escalate.Request) (string, error) {
	e.lastRequest = req

	if e.err != nil {
		return "", e.err
	}

	return "Передал вопрос специалисту. Номер обращения: ticket-1", nil
}

func checklistPool() []domain.Chunk {
	return []domain.Chunk{
		{ID: "1", Text: "Площадь торгового зала не менее 80 кв. м.", Score: 0.016, Metadata: domain.ChunkMetadata{
			DocumentTitle: "Чек-лист помещения", SectionHeading: "Требования к площади", IsChecklist: true, ItemCount: 12, IsOfficial: true,
		}},
		{ID: "2", Text: "Отдельный вход с улицы и зона разгрузки.", Score: 0.015, Metadata: domain.ChunkMetadata{
			DocumentTitle: "Чек-лист помещения", SectionHeading: "Требования к входу", IsChecklist: true, ItemCount: 12, IsOfficial: true,
		}},
	}
}

type fixture struct {
	pipeline  *Pipeline
	retriever *stubRetriever
	escalator *stubEscalator
	contexts  *convstate.Store
}

func newFixture(llmClient *scriptedLLM, retriever *stubRetriever) fixture {
	logger := zerolog.Nop()
	contexts := convstate.New(convstate.Options{Capacity: 100, TTL: time.Minute, MaxTurns: 12})
	escalator := &stubEscalator{}

	p := New(Deps{
		Formulator:  formulate.New(llmClient, 4, &logger),
		Retriever:   retriever,
		Reranker:    rerank.NewLLMReranker(llmClient, 5),
		Selector:    rerank.Selector{Max: 5, ScoreFloor: 0.25, DuplicateOverlap: 0.8, GroupCap: 2},
		Sufficiency: answer.NewSufficiencyChecker(llmClient, nil, &logger),
		Generator:   answer.NewGenerator(llmClient, nil, 0.2, &logger),
		Verifier:    answer.NewVerifier(llmClient, nil),
		Clarifier:   clarify.New(2),
		Escalator:   escalator,
		Contexts:    contexts,
	}, 5*time.Second, &logger)

	return fixture{pipeline: p, retriever: retriever, escalator: escalator, contexts: contexts}
}

func happyLLM() *scriptedLLM {
	return &scriptedLLM{
		classify:    "new_question",
		rerank:      "1, 2",
		sufficiency: "yes",
		generate:    "В чек-листе 12 пунктов: площадь от 80 кв. м, отдельный вход, зона разгрузки.",
		verify:      "yes",
	}
}

func request(text string) Request {
	return Request{ChatID: 100, UserID: 42, UserName: "Иван", Text: text}
}

func TestHandle_AnswersChecklistQuestion(t *testing.T) {
	f := newFixture(happyLLM(), &stubRetriever{pool: checklistPool()})

	var statuses []string

	req := request("как выбрать помещение для магазина")
	req.Progress = func(s string) { statuses = append(statuses, s) }

	resp, err := f.pipeline.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, OutcomeAnswered, resp.Outcome)
	require.Contains(t, resp.Text, "Здравствуйте!", "first reply greets")
	require.Contains(t, resp.Text, "12 пунктов")
	require.Contains(t, resp.Text, "Источники: Чек-лист помещения")
	require.Equal(t, []string{statusSearching, statusComposing}, statuses)

	conv := f.contexts.Get(convstate.Key{ChatID: 100, UserID: 42})
	require.True(t, conv.Greeted)
	require.Empty(t, conv.PendingClarification)
	require.Zero(t, conv.ClarificationRounds)
	require.Len(t, conv.History, 2)
}

func TestHandle_SecondAnswerDoesNotGreet(t *testing.T) {
	f := newFixture(happyLLM(), &stubRetriever{pool: checklistPool()})

	_, err := f.pipeline.Handle(context.Background(), request("первый вопрос про помещение"))
	require.NoError(t, err)

	resp, err := f.pipeline.Handle(context.Background(), request("второй вопрос про помещение"))
	require.NoError(t, err)
	require.NotContains(t, resp.Text, "Здравствуйте")
}

func TestHandle_EmptyPoolEscalates(t *testing.T) {
	f := newFixture(happyLLM(), &stubRetriever{})

	resp, err := f.pipeline.Handle(context.Background(), request("как согласовать нестандартную вывеску"))
	require.NoError(t, err)
	require.Equal(t, OutcomeEscalated, resp.Outcome)
	require.Contains(t, resp.Text, "ticket-1")
	require.Equal(t, escalate.TriggerNoEvidence, f.escalator.lastRequest.Trigger)
	require.Equal(t, "как согласовать нестандартную вывеску", f.escalator.lastRequest.Question)
}

func TestHandle_ClarificationThenShortChoiceAnswer(t *testing.T) {
	llmClient := happyLLM()
	llmClient.sufficiency = "no\nНепонятно, о каком формате магазина идет речь"

	f := newFixture(llmClient, &stubRetriever{pool: checklistPool()})
	key := convstate.Key{ChatID: 100, UserID: 42}

	resp, err := f.pipeline.Handle(context.Background(), request("какие требования"))
	require.NoError(t, err)
	require.Equal(t, OutcomeClarification, resp.Outcome)
	require.Contains(t, resp.Text, "1. Требования к площади")

	conv := f.contexts.Get(key)
	require.Equal(t, "какие требования", conv.PendingClarification)
	require.Equal(t, 1, conv.ClarificationRounds)

	// The short choice resolves against the pending question; answering a
	// clarification does not consume a round.
	llmClient.sufficiency = "yes"

	resp, err = f.pipeline.Handle(context.Background(), request("2"))
	require.NoError(t, err)
	require.Equal(t, OutcomeAnswered, resp.Outcome)
	require.Contains(t, f.retriever.lastQuery.Original, "Original question: какие требования")
	require.Contains(t, f.retriever.lastQuery.Original, "User's clarification: 2")

	conv = f.contexts.Get(key)
	require.Empty(t, conv.PendingClarification)
	require.Zero(t, conv.ClarificationRounds)
}

func TestHandle_NewQuestionResetsClarificationState(t *testing.T) {
	llmClient := happyLLM()
	llmClient.sufficiency = "no\nНепонятно, о каком формате магазина идет речь"

	f := newFixture(llmClient, &stubRetriever{pool: checklistPool()})
	key := convstate.Key{ChatID: 100, UserID: 42}

	// Rounds exhausted on an abandoned question must not be charged to
	// the new one.
	f.contexts.Update(key, func(c *domain.ConversationContext) {
		c.PendingClarification = "старый вопрос про кассу"
		c.ClarificationRounds = 2
		c.Greeted = true
	})

	resp, err := f.pipeline.Handle(context.Background(), request("как согласовать вывеску"))
	require.NoError(t, err)
	require.Equal(t, OutcomeClarification, resp.Outcome, "a new question gets a fresh round budget")

	conv := f.contexts.Get(key)
	require.Equal(t, "как согласовать вывеску", conv.PendingClarification, "pending belongs to the new question")
	require.Equal(t, 1, conv.ClarificationRounds, "first round of the new question, not a carry-over")
}

func TestHandle_NothingToClarifyEscalates(t *testing.T) {
	llmClient := happyLLM()
	llmClient.sufficiency = "no"
	llmClient.rerank = "1"

	// One candidate gives no topic options, and the judgment named no
	// missing information.
	f := newFixture(llmClient, &stubRetriever{pool: checklistPool()[:1]})

	resp, err := f.pipeline.Handle(context.Background(), request("какие требования к помещению"))
	require.NoError(t, err)
	require.Equal(t, OutcomeEscalated, resp.Outcome)
	require.Equal(t, escalate.TriggerInsufficient, f.escalator.lastRequest.Trigger)
}

func TestHandle_ExhaustedRoundsForceAnswer(t *testing.T) {
	llmClient := happyLLM()
	llmClient.classify = "clarification_response"
	llmClient.sufficiency = "no\nВсе еще мало данных"

	f := newFixture(llmClient, &stubRetriever{pool: checklistPool()})
	key := convstate.Key{ChatID: 100, UserID: 42}

	f.contexts.Update(key, func(c *domain.ConversationContext) {
		c.PendingClarification = "какие требования"
		c.ClarificationRounds = 2
		c.Greeted = true
	})

	resp, err := f.pipeline.Handle(context.Background(), request("для формата у дома"))
	require.NoError(t, err)
	require.Equal(t, OutcomeAnswered, resp.Outcome, "no third clarifying question")
}

func TestHandle_UngroundedAnswerEscalates(t *testing.T) {
	llmClient := happyLLM()
	llmClient.verify = "no"

	f := newFixture(llmClient, &stubRetriever{pool: checklistPool()})

	resp, err := f.pipeline.Handle(context.Background(), request("какие требования к помещению"))
	require.NoError(t, err)
	require.Equal(t, OutcomeEscalated, resp.Outcome)
	require.Equal(t, escalate.TriggerUngrounded, f.escalator.lastRequest.Trigger)
}

func TestHandle_VerifierErrorEscalates(t *testing.T) {
	llmClient := happyLLM()
	llmClient.verifyErr = errors.New("circuit open")

	f := newFixture(llmClient, &stubRetriever{pool: checklistPool()})

	resp, err := f.pipeline.Handle(context.Background(), request("какие требования к помещению"))
	require.NoError(t, err)
	require.Equal(t, OutcomeEscalated, resp.Outcome)
	require.Equal(t, escalate.TriggerVerifierError, f.escalator.lastRequest.Trigger, "an unverifiable answer is never sent")
}

func TestHandle_RerankFailureFallsBackToFusionOrder(t *testing.T) {
	llmClient := happyLLM()
	llmClient.rerank = "ничем не могу помочь"

	f := newFixture(llmClient, &stubRetriever{pool: checklistPool()})

	// Fusion scores sit far below the floor; the fallback must ignore it.
	resp, err := f.pipeline.Handle(context.Background(), request("какие требования к помещению"))
	require.NoError(t, err)
	require.Equal(t, OutcomeAnswered, resp.Outcome)
}

func TestHandle_Greeting(t *testing.T) {
	f := newFixture(happyLLM(), &stubRetriever{pool: checklistPool()})
	key := convstate.Key{ChatID: 100, UserID: 42}

	resp, err := f.pipeline.Handle(context.Background(), request("Привет!"))
	require.NoError(t, err)
	require.Equal(t, OutcomeGreeting, resp.Outcome)
	require.Equal(t, greetingReply, resp.Text)
	require.True(t, f.contexts.Get(key).Greeted)

	resp, err = f.pipeline.Handle(context.Background(), request("привет"))
	require.NoError(t, err)
	require.Equal(t, greetingReplyAgain, resp.Text)
}

func TestHandle_EscalatorFailureSurfaces(t *testing.T) {
	f := newFixture(happyLLM(), &stubRetriever{})
	f.escalator.err = errors.New("db down")

	_, err := f.pipeline.Handle(context.Background(), request("вопрос без ответа в базе"))
	require.Error(t, err)
}
