package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-bot-dispatch/internal/config"
	"telegram-bot-dispatch/internal/domain/model"
	"telegram-bot-dispatch/internal/domain/ports/adapter"
	"telegram-bot-dispatch/internal/infra/metrics"
)

var (
	_ adapter.UpdateSource = (*Bot)(nil)
	_ adapter.Notifier     = (*Bot)(nil)
)

// Bot adapts tgbotapi long polling to the UpdateSource port and exposes the
// reply Notifier. It owns all Telegram network I/O; the dispatch core never
// talks to the transport directly.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.BotConfig
	log *zerolog.Logger
}

func NewBot(cfg *config.BotConfig, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	return &Bot{api: api, cfg: cfg, log: logger}, nil
}

// Updates starts long polling and returns the converted update stream. The
// channel closes when ctx is done or the transport stops. Telegram tracks the
// polling offset server-side, so a restart replays unacknowledged updates
// (at-least-once).
func (b *Bot) Updates(ctx context.Context) (<-chan model.Update, error) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	raw := b.api.GetUpdatesChan(u)

	out := make(chan model.Update, 100)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				b.api.StopReceivingUpdates()
				return
			case up, ok := <-raw:
				if !ok {
					return
				}
				mu, typ, ok := convertUpdate(up, time.Now())
				if !ok {
					continue
				}
				metrics.IncUpdateReceived(typ)
				if up.CallbackQuery != nil {
					// Stop the telegram spinner regardless of the outcome.
					if _, err := b.api.Request(tgbotapi.NewCallback(up.CallbackQuery.ID, "")); err != nil {
						b.log.Debug().Err(err).Msg("callback ack failed")
					}
				}
				select {
				case out <- mu:
				case <-ctx.Done():
					b.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out, nil
}

// SendReply implements the Notifier port.
func (b *Bot) SendReply(ctx context.Context, chatID int64, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

// SetMenuCommands publishes the command menu shown in the Telegram client.
func (b *Bot) SetMenuCommands(ctx context.Context, commands map[string]string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	list := make([]tgbotapi.BotCommand, 0, len(commands))
	for name, desc := range commands {
		list = append(list, tgbotapi.BotCommand{Command: name, Description: desc})
	}
	_, err := b.api.Request(tgbotapi.NewSetMyCommands(list...))
	return err
}

// convertUpdate maps a raw transport update onto the domain Update. The
// second return value is the update type for metrics; the third is false for
// update kinds the dispatcher does not consume (edits, channel posts, ...).
func convertUpdate(up tgbotapi.Update, now time.Time) (model.Update, string, bool) {
	if cb := up.CallbackQuery; cb != nil && cb.From != nil {
		chatID := cb.From.ID
		if cb.Message != nil && cb.Message.Chat != nil {
			chatID = cb.Message.Chat.ID
		}
		data := strings.TrimSpace(cb.Data)
		mu := model.Update{
			ID:         int64(up.UpdateID),
			UserID:     cb.From.ID,
			ChatID:     chatID,
			Username:   cb.From.UserName,
			Text:       data,
			ReceivedAt: now,
		}
		// Menu buttons carry "cmd:<name>" callback data.
		if strings.HasPrefix(data, "cmd:") {
			mu.Command = strings.TrimPrefix(data, "cmd:")
		}
		return mu, "callback", true
	}

	msg := up.Message
	if msg == nil || msg.From == nil {
		return model.Update{}, "", false
	}
	mu := model.Update{
		ID:         int64(up.UpdateID),
		UserID:     msg.From.ID,
		ChatID:     msg.Chat.ID,
		Username:   msg.From.UserName,
		Text:       msg.Text,
		ReceivedAt: now,
	}
	mu.Command, mu.Args = model.ParseCommand(msg.Text)
	if mu.IsCommand() {
		return mu, "command", true
	}
	return mu, "text", true
}
