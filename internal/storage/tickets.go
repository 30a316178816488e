package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
)

// ErrTicketNotFound is returned when no ticket exists for the given id.
var ErrTicketNotFound = errors.New("ticket not found")

// CreateTicket records an escalated question in the open state.
func (db *DB) CreateTicket(ctx context.Context, question string, askerID int64, askerName string, chatID int64) (string, error) {
	var id string

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO tickets (status, question, asker_id, asker_name, chat_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, domain.TicketStatusOpen, SanitizeUTF8(question), askerID, SanitizeUTF8(askerName), chatID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create ticket: %w", err)
	}

	return id, nil
}

// AnswerTicket transitions an open ticket to answered and records the
// human answer. Answered is a terminal state.
func (db *DB) AnswerTicket(ctx context.Context, id, answer, answeredBy string) (*domain.Ticket, error) {
	row := db.Pool.QueryRow(ctx, `
		UPDATE tickets
		SET status = $2, answer = $3, answered_by = $4, answered_at = now()
		WHERE id = $1 AND status = $5
		RETURNING id, status, question, asker_id, asker_name, chat_id, answer, answered_by, created_at, answered_at
	`, toUUID(id), domain.TicketStatusAnswered, SanitizeUTF8(answer), SanitizeUTF8(answeredBy), domain.TicketStatusOpen)

	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}

		return nil, fmt.Errorf("answer ticket: %w", err)
	}

	return ticket, nil
}

// ListOpenTickets returns open tickets oldest first.
func (db *DB) ListOpenTickets(ctx context.Context, limit int) ([]domain.Ticket, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, status, question, asker_id, asker_name, chat_id, answer, answered_by, created_at, answered_at
		FROM tickets
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2
	`, domain.TicketStatusOpen, limit)
	if err != nil {
		return nil, fmt.Errorf("list open tickets: %w", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket

	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}

		tickets = append(tickets, *ticket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}

	return tickets, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t          domain.Ticket
		id         pgtype.UUID
		answer     pgtype.Text
		answeredBy pgtype.Text
		createdAt  pgtype.Timestamptz
		answeredAt pgtype.Timestamptz
	)

	if err := row.Scan(&id, &t.Status, &t.Question, &t.AskerID, &t.AskerName, &t.ChatID, &answer, &answeredBy, &createdAt, &answeredAt); err != nil {
		return nil, err
	}

	t.ID = fromUUID(id)
	t.Answer = fromText(answer)
	t.AnsweredBy = fromText(answeredBy)
	t.CreatedAt = fromTimestamptz(createdAt)
	t.AnsweredAt = fromTimestamptz(answeredAt)

	return &t, nil
}

// CountOpenTickets returns the number of open tickets and the age of the
// oldest one, for operational metrics.
func (db *DB) CountOpenTickets(ctx context.Context) (int, time.Duration, error) {
	var (
		count  int
		oldest pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT count(*), min(created_at)
		FROM tickets
		WHERE status = $1
	`, domain.TicketStatusOpen).Scan(&count, &oldest)
	if err != nil {
		return 0, 0, fmt.Errorf("count open tickets: %w", err)
	}

	if !oldest.Valid {
		return count, 0, nil
	}

	return count, time.Since(oldest.Time), nil
}
