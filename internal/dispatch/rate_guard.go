package dispatch

import (
	"context"
	"time"

	"telegram-bot-dispatch/internal/domain/model"
	"telegram-bot-dispatch/internal/infra/metrics"
)

// RateGuard enforces a fixed-window limit using counters stored in the
// session. Window boundaries use wall-clock time; a clock that rewinds resets
// the window instead of ever producing a negative count.
type RateGuard struct {
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateGuard(limit int, window time.Duration, clock func() time.Time) *RateGuard {
	if clock == nil {
		clock = time.Now
	}
	return &RateGuard{limit: limit, window: window, now: clock}
}

func (g *RateGuard) Name() string { return "rate_limit" }

func (g *RateGuard) Check(ctx context.Context, update *model.Update, sess *model.Session) model.MiddlewareResult {
	now := g.now()

	switch {
	case sess.WindowStart.IsZero():
		sess.WindowStart = now
		sess.WindowCount = 0
	case now.Before(sess.WindowStart):
		// Clock rewound past the window start; start over rather than let the
		// counter go negative or the window never close.
		sess.WindowStart = now
		sess.WindowCount = 0
	case now.Sub(sess.WindowStart) >= g.window:
		sess.WindowStart = now
		sess.WindowCount = 0
	}

	if sess.WindowCount >= g.limit {
		metrics.IncRateLimitTriggered()
		return model.Reject(model.ReasonRateLimited)
	}
	sess.WindowCount++
	return model.Allow()
}
