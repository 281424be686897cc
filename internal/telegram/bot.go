// Package telegram is the chat adapter: it polls Telegram for commands and
// delivers recon reports back to the chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/recondora/internal/config"
	"github.com/harun/recondora/internal/logger"
	"github.com/harun/recondora/internal/metrics"
	"github.com/harun/recondora/pkg/report"
	"github.com/rs/zerolog"
)

// botAPI is the subset of *tgbotapi.BotAPI used by the bot.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// UpdateHandler handles incoming updates
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

// Bot represents a Telegram bot instance
type Bot struct {
	api     botAPI
	self    tgbotapi.User
	config  *config.TelegramConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics

	handler UpdateHandler

	// State
	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New creates a new Telegram bot instance
func New(cfg *config.TelegramConfig, log *logger.Logger, m *metrics.Metrics) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram config is required")
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := newBot(api, api.Self, cfg, log.Component("telegram"), m)

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

func newBot(api botAPI, self tgbotapi.User, cfg *config.TelegramConfig, log zerolog.Logger, m *metrics.Metrics) *Bot {
	return &Bot{
		api:     api,
		self:    self,
		config:  cfg,
		logger:  log,
		metrics: m,
	}
}

// SetHandler sets the update handler
func (b *Bot) SetHandler(handler UpdateHandler) {
	b.handler = handler
}

// Start starts polling for updates. Updates are processed until ctx is
// cancelled or Stop is called.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("bot is already running")
	}

	b.logger.Info().Msg("Starting Telegram bot")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.config.PollTimeout
	if u.Timeout <= 0 {
		u.Timeout = 60
	}

	updates := b.api.GetUpdatesChan(u)
	b.running = true

	b.wg.Add(1)
	go b.processUpdates(ctx, updates)

	b.logger.Info().Msg("Telegram bot started")

	return nil
}

// Stop stops polling and waits for the update loop to exit
func (b *Bot) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot is not running")
	}
	b.running = false
	b.mu.Unlock()

	b.logger.Info().Msg("Stopping Telegram bot")

	b.api.StopReceivingUpdates()
	b.wg.Wait()

	b.logger.Info().Msg("Telegram bot stopped")

	return nil
}

// IsRunning returns whether the bot is running
func (b *Bot) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *Bot) processUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	b.metrics.RecordTelegramReceived()

	if b.handler == nil {
		return
	}

	if err := b.handler.HandleUpdate(ctx, update); err != nil {
		b.metrics.RecordTelegramError()
		b.logger.Error().
			Err(err).
			Int("update_id", update.UpdateID).
			Msg("Failed to handle update")
	}
}

// SendText implements report.Sender. When Telegram cannot parse the entities
// of a formatted message the text is sent again without a parse mode.
func (b *Bot) SendText(ctx context.Context, out report.OutboundText) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.send(out)
	return err
}

func (b *Bot) send(out report.OutboundText) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(out.ChatID, out.Text)
	msg.ParseMode = out.ParseMode
	msg.ReplyToMessageID = out.ReplyTo
	msg.DisableWebPagePreview = true

	sent, err := b.api.Send(msg)
	if err != nil && out.ParseMode != "" && isEntityParseError(err) {
		b.logger.Warn().
			Err(err).
			Int64("chat_id", out.ChatID).
			Str("parse_mode", out.ParseMode).
			Msg("Formatted message rejected, resending as plain text")

		msg.ParseMode = ""
		sent, err = b.api.Send(msg)
	}
	if err != nil {
		b.metrics.RecordTelegramError()
		return tgbotapi.Message{}, fmt.Errorf("failed to send message: %w", err)
	}

	b.metrics.RecordTelegramSent()
	b.logger.Debug().
		Int64("chat_id", out.ChatID).
		Int("reply_to", out.ReplyTo).
		Msg("Message sent")

	return sent, nil
}

// isEntityParseError reports whether Telegram rejected a message because its
// markup did not parse. Other failures are not retried.
func isEntityParseError(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "can't parse entities")
	}
	var valErr tgbotapi.Error
	if errors.As(err, &valErr) {
		return valErr.Code == http.StatusBadRequest && strings.Contains(valErr.Message, "can't parse entities")
	}
	return false
}

// SendMessageWithReply sends a text message as a reply and returns its id
func (b *Bot) SendMessageWithReply(chatID int64, text, parseMode string, replyToMessageID int) (int, error) {
	sent, err := b.send(report.OutboundText{
		ChatID:    chatID,
		Text:      text,
		ParseMode: parseMode,
		ReplyTo:   replyToMessageID,
	})
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// DeleteMessage deletes a message the bot sent earlier
func (b *Bot) DeleteMessage(chatID int64, messageID int) error {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// SetCommands sets the bot's command list in Telegram
func (b *Bot) SetCommands(commands []tgbotapi.BotCommand) error {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}

	b.logger.Info().Int("count", len(commands)).Msg("Bot commands updated")
	return nil
}

// GetBotInfo returns bot information
func (b *Bot) GetBotInfo() map[string]interface{} {
	return map[string]interface{}{
		"username":  b.self.UserName,
		"id":        b.self.ID,
		"firstName": b.self.FirstName,
		"running":   b.IsRunning(),
	}
}
