package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"telegram-bot-dispatch/internal/dispatch"
	"telegram-bot-dispatch/internal/domain/model"
)

// Session state keys owned by the built-in handlers.
const (
	keyMessageCount  = "message_count"
	keyCommandCount  = "command_count"
	keyNotifications = "notifications_enabled"
	keyLanguage      = "preferred_language"
)

// Handlers is the built-in handler set: onboarding, help, per-user settings
// and usage stats, plus the default text handler. All state lives in the
// session blob and is persisted by the dispatcher.
type Handlers struct {
	log *zerolog.Logger
}

func NewHandlers(logger *zerolog.Logger) *Handlers {
	return &Handlers{log: logger}
}

// Register wires every handler into the router. Duplicate registration is a
// configuration error and fails before any update is processed.
func (h *Handlers) Register(r *dispatch.Router) error {
	routes := map[string]dispatch.HandlerFunc{
		"start":    h.Start,
		"help":     h.Help,
		"settings": h.Settings,
		"stats":    h.Stats,
	}
	for cmd, fn := range routes {
		if err := r.HandleFunc(cmd, fn); err != nil {
			return err
		}
	}
	r.Default(dispatch.HandlerFunc(h.Text))
	return nil
}

// MenuCommands describes the command menu for the Telegram client.
func (h *Handlers) MenuCommands() map[string]string {
	return map[string]string{
		"start":    "Start the bot",
		"help":     "Show available commands",
		"settings": "Toggle notification settings",
		"stats":    "Show your usage statistics",
	}
}

func (h *Handlers) Start(_ context.Context, update *model.Update, sess *model.Session) (model.Response, error) {
	sess.SetInt(keyCommandCount, sess.GetInt(keyCommandCount)+1)
	if _, ok := sess.State[keyLanguage]; !ok {
		sess.State[keyLanguage] = "en"
	}

	name := update.Username
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf(
		"👋 Welcome, %s!\n\n"+
			"Commands:\n"+
			"/help - show all commands\n"+
			"/settings - configure the bot\n"+
			"/stats - your usage statistics\n\n"+
			"You can also just send me a message.",
		name,
	)
	return model.Response{Text: text}, nil
}

func (h *Handlers) Help(_ context.Context, _ *model.Update, sess *model.Session) (model.Response, error) {
	sess.SetInt(keyCommandCount, sess.GetInt(keyCommandCount)+1)
	text := "🤖 Commands:\n" +
		"/start - start the bot\n" +
		"/help - this message\n" +
		"/settings - toggle notifications\n" +
		"/stats - usage statistics"
	return model.Response{Text: text}, nil
}

// Settings toggles the notification preference stored in the session.
func (h *Handlers) Settings(_ context.Context, update *model.Update, sess *model.Session) (model.Response, error) {
	sess.SetInt(keyCommandCount, sess.GetInt(keyCommandCount)+1)

	enabled := sess.GetBool(keyNotifications, true)
	if arg := strings.TrimSpace(update.Args); arg != "" {
		switch strings.ToLower(arg) {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return model.Response{Text: "Usage: /settings [on|off]"}, nil
		}
	} else {
		enabled = !enabled
	}
	sess.SetBool(keyNotifications, enabled)

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return model.Response{Text: "🔔 Notifications " + state + "."}, nil
}

func (h *Handlers) Stats(_ context.Context, _ *model.Update, sess *model.Session) (model.Response, error) {
	sess.SetInt(keyCommandCount, sess.GetInt(keyCommandCount)+1)
	text := fmt.Sprintf(
		"📊 Your statistics:\nMessages: %d\nCommands: %d\nLast active: %s",
		sess.GetInt(keyMessageCount),
		sess.GetInt(keyCommandCount),
		sess.LastActiveAt.Format("2006-01-02 15:04:05"),
	)
	return model.Response{Text: text}, nil
}

// Text is the default handler for free-form messages.
func (h *Handlers) Text(_ context.Context, update *model.Update, sess *model.Session) (model.Response, error) {
	text := strings.TrimSpace(update.Text)
	if text == "" {
		return model.Response{}, nil
	}
	sess.SetInt(keyMessageCount, sess.GetInt(keyMessageCount)+1)
	h.log.Debug().Int64("tg_id", update.UserID).Int("len", len(text)).Msg("text message")

	reply := fmt.Sprintf("📝 Got your message (%d characters, %d words).", len(text), len(strings.Fields(text)))
	return model.Response{Text: reply}, nil
}
