package dispatch

import (
	"context"
	"fmt"

	"telegram-bot-dispatch/internal/domain"
	"telegram-bot-dispatch/internal/domain/model"
)

// Handler is the uniform contract business logic is invoked through. A handler
// may read and mutate the session; mutations are persisted atomically by the
// dispatcher after the handler returns. Handlers must be idempotent-safe:
// the update source may redeliver an update after a crash.
type Handler interface {
	Handle(ctx context.Context, update *model.Update, sess *model.Session) (model.Response, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, update *model.Update, sess *model.Session) (model.Response, error)

func (f HandlerFunc) Handle(ctx context.Context, update *model.Update, sess *model.Session) (model.Response, error) {
	return f(ctx, update, sess)
}

// Router maps a command name to a registered handler. Matching is exact and
// case-sensitive; free-form text falls through to an optional default handler.
//
// Router is safe for concurrent reads after configuration is complete. Do not
// call Handle or Default after the dispatcher has started.
type Router struct {
	handlers map[string]Handler
	fallback Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Handle registers a command handler. Duplicate names fail fast at setup,
// never at dispatch time.
func (r *Router) Handle(command string, h Handler) error {
	if command == "" {
		return fmt.Errorf("register handler: %w: empty command", domain.ErrInvalidArgument)
	}
	if h == nil {
		return fmt.Errorf("register handler %q: %w: nil handler", command, domain.ErrInvalidArgument)
	}
	if _, exists := r.handlers[command]; exists {
		return fmt.Errorf("register handler %q: %w", command, domain.ErrDuplicateCommand)
	}
	r.handlers[command] = h
	return nil
}

// HandleFunc registers a function handler for a command.
func (r *Router) HandleFunc(command string, fn HandlerFunc) error {
	return r.Handle(command, fn)
}

// MustHandle is Handle that panics on configuration errors; intended for
// static wiring in main.
func (r *Router) MustHandle(command string, h Handler) {
	if err := r.Handle(command, h); err != nil {
		panic(err)
	}
}

// Default sets the handler for free-form text that matches no command.
func (r *Router) Default(h Handler) {
	r.fallback = h
}

// Resolve returns the handler for an update, or false when nothing matches.
func (r *Router) Resolve(update *model.Update) (Handler, bool) {
	if update.IsCommand() {
		h, ok := r.handlers[update.Command]
		return h, ok
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}
