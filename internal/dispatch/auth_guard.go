package dispatch

import (
	"context"

	"telegram-bot-dispatch/internal/domain/model"
	"telegram-bot-dispatch/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// AuthGuard checks the sender against an access policy. Denied senders are
// rejected with a stable reason code; when DenyReply is set, the guard
// short-circuits with that reply instead so the user gets an explicit answer.
type AuthGuard struct {
	policy    adapter.AuthPolicy
	denyReply string
	log       *zerolog.Logger
}

func NewAuthGuard(policy adapter.AuthPolicy, denyReply string, logger *zerolog.Logger) *AuthGuard {
	return &AuthGuard{policy: policy, denyReply: denyReply, log: logger}
}

func (g *AuthGuard) Name() string { return "auth" }

func (g *AuthGuard) Check(ctx context.Context, update *model.Update, _ *model.Session) model.MiddlewareResult {
	ok, err := g.policy.Allowed(ctx, update.UserID)
	if err != nil {
		// Policy lookup failures deny access; the reason stays stable so the
		// user-visible message does not leak internals.
		g.log.Warn().Err(err).Int64("tg_id", update.UserID).Msg("auth policy lookup failed")
		return model.Reject(model.ReasonUnauthorized)
	}
	if !ok {
		if g.denyReply != "" {
			return model.ShortCircuit(model.Response{Text: g.denyReply})
		}
		return model.Reject(model.ReasonUnauthorized)
	}
	return model.Allow()
}
