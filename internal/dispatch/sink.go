package dispatch

import (
	"context"

	"telegram-bot-dispatch/internal/domain/model"
	"telegram-bot-dispatch/internal/domain/ports/adapter"
	"telegram-bot-dispatch/internal/infra/logging"
	"telegram-bot-dispatch/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// OutcomeSink receives the terminal outcome of every dispatched update.
// Implementations must not block for long; they run on the lane goroutine.
type OutcomeSink interface {
	Record(ctx context.Context, update *model.Update, outcome model.DispatchOutcome)
}

// SinkFunc adapts a function to OutcomeSink.
type SinkFunc func(ctx context.Context, update *model.Update, outcome model.DispatchOutcome)

func (f SinkFunc) Record(ctx context.Context, update *model.Update, outcome model.DispatchOutcome) {
	f(ctx, update, outcome)
}

// MultiSink fans an outcome out to several sinks in order.
type MultiSink []OutcomeSink

func (m MultiSink) Record(ctx context.Context, update *model.Update, outcome model.DispatchOutcome) {
	for _, s := range m {
		s.Record(ctx, update, outcome)
	}
}

// ReplyTexts are the user-visible messages for each outcome class.
type ReplyTexts struct {
	Unauthorized   string
	RateLimited    string
	UnknownCommand string
	Failure        string
}

// DefaultReplyTexts mirrors the stock bot messages.
func DefaultReplyTexts() ReplyTexts {
	return ReplyTexts{
		Unauthorized:   "You are not authorized to use this bot.",
		RateLimited:    "Rate limit exceeded. Please try again later.",
		UnknownCommand: "Unknown command. Use /help to see available commands.",
		Failure:        "Something went wrong. Please try again.",
	}
}

// ReplySink turns outcomes into outbound replies via the Notifier port.
type ReplySink struct {
	notifier adapter.Notifier
	texts    ReplyTexts
	log      *zerolog.Logger
}

func NewReplySink(notifier adapter.Notifier, texts ReplyTexts, logger *zerolog.Logger) *ReplySink {
	return &ReplySink{notifier: notifier, texts: texts, log: logger}
}

func (s *ReplySink) Record(ctx context.Context, update *model.Update, outcome model.DispatchOutcome) {
	var text string
	switch outcome.Kind {
	case model.OutcomeHandled:
		text = outcome.Reply.Text // empty means no-op
	case model.OutcomeRejected:
		switch outcome.Reason {
		case model.ReasonUnauthorized:
			text = s.texts.Unauthorized
		case model.ReasonRateLimited:
			text = s.texts.RateLimited
		case model.ReasonUnknownCommand:
			text = s.texts.UnknownCommand
		}
	case model.OutcomeFailed:
		text = s.texts.Failure
	}
	if text == "" {
		return
	}
	if err := s.notifier.SendReply(ctx, update.ChatID, text); err != nil {
		logging.With(ctx, s.log).Warn().Err(err).Msg("send reply failed")
	}
}

// LogSink writes one structured line per outcome.
type LogSink struct {
	log *zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{log: logger}
}

func (s *LogSink) Record(ctx context.Context, update *model.Update, outcome model.DispatchOutcome) {
	l := logging.With(ctx, s.log)
	ev := l.Info()
	if outcome.Kind == model.OutcomeFailed {
		ev = l.Error().Err(outcome.Err).Str("failure", string(outcome.Failure))
	}
	ev.Str("outcome", outcome.Kind.String()).
		Str("command", update.Command).
		Str("reason", string(outcome.Reason)).
		Msg("update dispatched")
}

// MetricsSink feeds the prometheus collectors.
type MetricsSink struct{}

func (MetricsSink) Record(_ context.Context, _ *model.Update, outcome model.DispatchOutcome) {
	reason := string(outcome.Reason)
	if outcome.Kind == model.OutcomeFailed {
		reason = string(outcome.Failure)
	}
	metrics.IncOutcome(outcome.Kind.String(), reason)
}
