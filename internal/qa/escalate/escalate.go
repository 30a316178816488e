// Package escalate hands questions the pipeline could not answer over to
// human operators and folds their answers back into the knowledge base, so
// the same question is answered automatically next time.
package escalate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
	"github.com/lueurxax/franchise-support-bot/internal/core/embeddings"
	"github.com/lueurxax/franchise-support-bot/internal/platform/observability"
	"github.com/lueurxax/franchise-support-bot/internal/qa/retrieval"
)

// Trigger names why a question was escalated.
type Trigger string

const (
	TriggerNoEvidence    Trigger = "no_evidence"
	TriggerInsufficient  Trigger = "insufficient_evidence"
	TriggerLowRelevance  Trigger = "low_relevance"
	TriggerUngrounded    Trigger = "ungrounded_answer"
	TriggerVerifierError Trigger = "verifier_error"
	TriggerGeneration    Trigger = "generation_error"
)

const (
	ackFormat = "Я не нашел в базе знаний надежного ответа на ваш вопрос, поэтому передал его специалисту. " +
		"Ответ придет в этот чат. Номер обращения: %s"

	humanAnswerSource = "human_answer"
	humanAnswerTitle  = "Ответы специалистов"
)

type store interface {
	CreateTicket(ctx context.Context, question string, askerID int64, askerName string, chatID int64) (string, error)
	AnswerTicket(ctx context.Context, id, answer, answeredBy string) (*domain.Ticket, error)
	InsertChunk(ctx context.Context, chunk domain.Chunk, embedding []float32) (string, error)
}

// Notifier delivers escalation traffic: operator cards to the operator
// chat and human answers back to the asking partner.
type Notifier interface {
	NotifyOperators(ctx context.Context, ticket domain.Ticket) error
	SendAnswer(ctx context.Context, chatID int64, text string) error
}

// Request describes one escalated question.
type Request struct {
	Trigger   Trigger
	Question  string
	AskerID   int64
	AskerName string
	ChatID    int64
}

type Manager struct {
	store    store
	embedder embeddings.Client
	notifier Notifier
	lexical  *retrieval.BM25Index
	logger   *zerolog.Logger
}

func NewManager(s store, embedder embeddings.Client, notifier Notifier, lexical *retrieval.BM25Index, logger *zerolog.Logger) *Manager {
	return &Manager{
		store:    s,
		embedder: embedder,
		notifier: notifier,
		lexical:  lexical,
		logger:   logger,
	}
}

// Escalate records a ticket, notifies operators and returns the
// acknowledgement text for the partner. A failed operator notification is
// logged but does not fail the escalation: the ticket is already recorded
// and visible through the operator listing.
func (m *Manager) Escalate(ctx context.Context, req Request) (string, error) {
	id, err := m.store.CreateTicket(ctx, req.Question, req.AskerID, req.AskerName, req.ChatID)
	if err != nil {
		return "", fmt.Errorf("escalate question: %w", err)
	}

	observability.EscalationsTotal.WithLabelValues(string(req.Trigger)).Inc()

	m.logger.Info().
		Str("ticket_id", id).
		Str("trigger", string(req.Trigger)).
		Int64("asker_id", req.AskerID).
		Msg("question escalated")

	ticket := domain.Ticket{
		ID:        id,
		Status:    domain.TicketStatusOpen,
		Question:  req.Question,
		AskerID:   req.AskerID,
		AskerName: req.AskerName,
		ChatID:    req.ChatID,
	}

	if err := m.notifier.NotifyOperators(ctx, ticket); err != nil {
		m.logger.Warn().Err(err).Str("ticket_id", id).Msg("operator notification failed")
	}

	return fmt.Sprintf(ackFormat, id), nil
}

// HandleAnswer records a human answer, delivers it to the asking partner
// and folds the question-answer pair back into the knowledge base. The
// fold-back is best effort: the partner already has the answer.
func (m *Manager) HandleAnswer(ctx context.Context, ticketID, answerText, operatorName string) (*domain.Ticket, error) {
	ticket, err := m.store.AnswerTicket(ctx, ticketID, answerText, operatorName)
	if err != nil {
		return nil, err
	}

	if err := m.notifier.SendAnswer(ctx, ticket.ChatID, answerText); err != nil {
		return nil, fmt.Errorf("deliver answer for ticket %s: %w", ticketID, err)
	}

	if err := m.ingestAnswer(ctx, ticket); err != nil {
		m.logger.Warn().Err(err).Str("ticket_id", ticketID).Msg("answer fold-back failed")
	}

	return ticket, nil
}

func (m *Manager) ingestAnswer(ctx context.Context, ticket *domain.Ticket) error {
	chunk := domain.Chunk{
		Text: fmt.Sprintf("Вопрос: %s\nОтвет: %s", ticket.Question, ticket.Answer),
		Metadata: domain.ChunkMetadata{
			Source:        humanAnswerSource,
			DocumentTitle: humanAnswerTitle,
		},
	}

	embedding, err := m.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return fmt.Errorf("embed human answer: %w", err)
	}

	id, err := m.store.InsertChunk(ctx, chunk, embedding)
	if err != nil {
		return fmt.Errorf("store human answer: %w", err)
	}

	chunk.ID = id
	m.lexical.Add(chunk)

	m.logger.Info().Str("ticket_id", ticket.ID).Str("chunk_id", id).Msg("human answer folded into knowledge base")

	return nil
}
