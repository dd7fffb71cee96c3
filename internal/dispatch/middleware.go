package dispatch

import (
	"context"

	"telegram-bot-dispatch/internal/domain/model"
)

// Guard is one middleware stage. Guards run strictly in registration order;
// the first non-Allow result terminates the chain for that update. Guards may
// mutate the session working copy (e.g. rate counters); the dispatcher decides
// whether those mutations are persisted based on the final outcome.
type Guard interface {
	Name() string
	Check(ctx context.Context, update *model.Update, sess *model.Session) model.MiddlewareResult
}

// GuardFunc adapts a function to Guard.
type GuardFunc struct {
	GuardName string
	Fn        func(ctx context.Context, update *model.Update, sess *model.Session) model.MiddlewareResult
}

func (g GuardFunc) Name() string { return g.GuardName }

func (g GuardFunc) Check(ctx context.Context, update *model.Update, sess *model.Session) model.MiddlewareResult {
	return g.Fn(ctx, update, sess)
}

// Chain is the ordered guard list evaluated before routing.
type Chain struct {
	guards []Guard
}

func NewChain(guards ...Guard) *Chain {
	return &Chain{guards: guards}
}

// Use appends a guard. Not safe to call once dispatching has started.
func (c *Chain) Use(g Guard) {
	c.guards = append(c.guards, g)
}

// Eval runs the chain. It returns Allow and an empty guard name when every
// guard approved, otherwise the terminating result and the guard that produced
// it.
func (c *Chain) Eval(ctx context.Context, update *model.Update, sess *model.Session) (model.MiddlewareResult, string) {
	for _, g := range c.guards {
		res := g.Check(ctx, update, sess)
		if res.Verdict != model.VerdictAllow {
			return res, g.Name()
		}
	}
	return model.Allow(), ""
}
