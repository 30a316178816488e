// Package bot is the Telegram transport: it routes partner questions into
// the answering pipeline, edits progress statuses while the pipeline
// works, and carries the operator side of escalations (ticket cards, the
// /answer command, delivery of human answers).
package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
	"github.com/lueurxax/franchise-support-bot/internal/platform/config"
	"github.com/lueurxax/franchise-support-bot/internal/qa/pipeline"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
}

type qaPipeline interface {
	Handle(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

type answerHandler interface {
	HandleAnswer(ctx context.Context, ticketID, answerText, operatorName string) (*domain.Ticket, error)
}

type storage interface {
	ListOpenTickets(ctx context.Context, limit int) ([]domain.Ticket, error)
	GetSetting(ctx context.Context, key string, target interface{}) error
}

type Bot struct {
	cfg      *config.Config
	api      telegramAPI
	pipeline qaPipeline
	answers  answerHandler
	store    storage
	logger   *zerolog.Logger
}

func New(cfg *config.Config, store storage, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}

	return &Bot{
		cfg:    cfg,
		api:    api,
		store:  store,
		logger: logger,
	}, nil
}

// Wire breaks the construction cycle between the bot and the escalation
// manager: the manager notifies operators through the bot, while the bot
// routes questions to the pipeline and /answer commands to the manager.
// Must be called before Run.
func (b *Bot) Wire(qa qaPipeline, answers answerHandler) {
	b.pipeline = qa
	b.answers = answers
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info().Msg("bot started, waiting for messages")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil || update.Message.From == nil {
				continue
			}

			b.handleMessage(ctx, update.Message)
		}
	}
}

const operatorIDsSettingKey = "operator_ids"

func (b *Bot) isOperator(ctx context.Context, userID int64) bool {
	for _, id := range b.operators(ctx) {
		if id == userID {
			return true
		}
	}

	return false
}

// operators merges the configured operator list with extras granted at
// runtime through the settings table.
func (b *Bot) operators(ctx context.Context) []int64 {
	operators := make([]int64, len(b.cfg.OperatorIDs))
	copy(operators, b.cfg.OperatorIDs)

	var extra []int64
	if err := b.store.GetSetting(ctx, operatorIDsSettingKey, &extra); err == nil {
		operators = append(operators, extra...)
	}

	return operators
}

func (b *Bot) send(chatID int64, text string) {
	for _, part := range splitMessage(sanitizeHTML(text), telegramMessageLimit) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		if _, err := b.api.Send(msg); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
		}
	}
}
