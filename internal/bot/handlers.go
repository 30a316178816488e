package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
	"github.com/lueurxax/franchise-support-bot/internal/qa/pipeline"
	db "github.com/lueurxax/franchise-support-bot/internal/storage"
)

const (
	partnerHelp = "Я помощник поддержки партнеров. Задайте вопрос обычным сообщением, " +
		"и я поищу ответ в базе знаний. Если ответа нет, вопрос уйдет специалисту, " +
		"и ответ придет в этот чат."

	operatorHelp = "Команды оператора:\n" +
		"/tickets — открытые вопросы партнеров\n" +
		"/answer &lt;номер&gt; &lt;текст&gt; — ответить на вопрос"

	openTicketsLimit = 20
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)

		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	b.handleQuestion(ctx, msg, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	b.logger.Info().Str("command", msg.Command()).Int64("user_id", msg.From.ID).Msg("handling command")

	switch msg.Command() {
	case "start", "help":
		help := partnerHelp
		if b.isOperator(ctx, msg.From.ID) {
			help += "\n\n" + operatorHelp
		}

		b.send(msg.Chat.ID, help)
	case "tickets":
		b.handleTickets(ctx, msg)
	case "answer":
		b.handleAnswerCommand(ctx, msg)
	default:
		b.send(msg.Chat.ID, "Неизвестная команда. /help покажет, что я умею.")
	}
}

// handleQuestion runs the pipeline for a partner message. A status
// message is sent on the first progress callback and edited in place as
// stages advance, then deleted once the reply is ready.
func (b *Bot) handleQuestion(ctx context.Context, msg *tgbotapi.Message, text string) {
	var statusMsgID int

	progress := func(status string) {
		if statusMsgID == 0 {
			sent, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, status))
			if err != nil {
				b.logger.Warn().Err(err).Msg("status message failed")

				return
			}

			statusMsgID = sent.MessageID

			return
		}

		if _, err := b.api.Request(tgbotapi.NewEditMessageText(msg.Chat.ID, statusMsgID, status)); err != nil {
			b.logger.Warn().Err(err).Msg("status edit failed")
		}
	}

	resp, err := b.pipeline.Handle(ctx, pipeline.Request{
		ChatID:   msg.Chat.ID,
		UserID:   msg.From.ID,
		UserName: userName(msg.From),
		Text:     text,
		Progress: progress,
	})

	if statusMsgID != 0 {
		if _, delErr := b.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, statusMsgID)); delErr != nil {
			b.logger.Warn().Err(delErr).Msg("status delete failed")
		}
	}

	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("question handling failed")
		b.send(msg.Chat.ID, "Не получилось обработать вопрос. Попробуйте еще раз чуть позже.")

		return
	}

	b.send(msg.Chat.ID, resp.Text)
}

func (b *Bot) handleTickets(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isOperator(ctx, msg.From.ID) {
		return
	}

	tickets, err := b.store.ListOpenTickets(ctx, openTicketsLimit)
	if err != nil {
		b.logger.Error().Err(err).Msg("list open tickets failed")
		b.send(msg.Chat.ID, "Не удалось получить список вопросов.")

		return
	}

	if len(tickets) == 0 {
		b.send(msg.Chat.ID, "Открытых вопросов нет.")

		return
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "Открытые вопросы (%d):\n", len(tickets))

	for _, t := range tickets {
		fmt.Fprintf(&sb, "\n<code>%s</code>\n%s — %s\n", t.ID, html.EscapeString(t.AskerName), html.EscapeString(t.Question))
	}

	b.send(msg.Chat.ID, sb.String())
}

func (b *Bot) handleAnswerCommand(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isOperator(ctx, msg.From.ID) {
		return
	}

	ticketID, answerText, ok := parseAnswerArgs(msg.CommandArguments())
	if !ok {
		b.send(msg.Chat.ID, "Формат: /answer &lt;номер&gt; &lt;текст ответа&gt;")

		return
	}

	ticket, err := b.answers.HandleAnswer(ctx, ticketID, answerText, userName(msg.From))
	if err != nil {
		if errors.Is(err, db.ErrTicketNotFound) {
			b.send(msg.Chat.ID, "Вопрос не найден или уже закрыт.")

			return
		}

		b.logger.Error().Err(err).Str("ticket_id", ticketID).Msg("answer handling failed")
		b.send(msg.Chat.ID, "Не удалось отправить ответ партнеру.")

		return
	}

	b.send(msg.Chat.ID, fmt.Sprintf("Ответ на вопрос %s отправлен партнеру и добавлен в базу знаний.", ticket.ID))
}

func parseAnswerArgs(args string) (ticketID, answerText string, ok bool) {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
		return "", "", false
	}

	return fields[0], strings.TrimSpace(fields[1]), true
}

// NotifyOperators posts the ticket card to the operator chat.
func (b *Bot) NotifyOperators(_ context.Context, ticket domain.Ticket) error {
	card := fmt.Sprintf(
		"🔔 Новый вопрос без ответа\n\nОт: %s\nВопрос: %s\n\nОтветить: <code>/answer %s текст ответа</code>",
		html.EscapeString(ticket.AskerName),
		html.EscapeString(ticket.Question),
		ticket.ID,
	)

	msg := tgbotapi.NewMessage(b.cfg.OperatorChatID, card)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("notify operators: %w", err)
	}

	return nil
}

// SendAnswer delivers a human answer to the partner's chat.
func (b *Bot) SendAnswer(_ context.Context, chatID int64, text string) error {
	reply := "Специалист ответил на ваш вопрос:\n\n" + text

	for _, part := range splitMessage(sanitizeHTML(reply), telegramMessageLimit) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		if _, err := b.api.Send(msg); err != nil {
			return fmt.Errorf("send answer to chat %d: %w", chatID, err)
		}
	}

	return nil
}

func userName(user *tgbotapi.User) string {
	if user.UserName != "" {
		return "@" + user.UserName
	}

	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}
