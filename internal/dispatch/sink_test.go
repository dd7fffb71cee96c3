//go:build !integration

package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"telegram-bot-dispatch/internal/dispatch"
	"telegram-bot-dispatch/internal/domain/model"
)

func TestReplySink(t *testing.T) {
	texts := dispatch.DefaultReplyTexts()

	cases := []struct {
		name    string
		outcome model.DispatchOutcome
		want    string // empty means no reply expected
	}{
		{"handled with reply", model.Handled(model.Response{Text: "hello"}), "hello"},
		{"handled without reply", model.Handled(model.Response{}), ""},
		{"rejected unauthorized", model.Rejected(model.ReasonUnauthorized), texts.Unauthorized},
		{"rejected rate limited", model.Rejected(model.ReasonRateLimited), texts.RateLimited},
		{"rejected unknown command", model.Rejected(model.ReasonUnknownCommand), texts.UnknownCommand},
		{"failed handler", model.Failed(model.FailureHandler, errors.New("x")), texts.Failure},
		{"failed timeout", model.Failed(model.FailureTimeout, errors.New("x")), texts.Failure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notifier := &mockNotifier{}
			sink := dispatch.NewReplySink(notifier, texts, newTestLogger())

			u := textUpdate(5, "hi")
			u.ChatID = 555
			sink.Record(context.Background(), &u, tc.outcome)

			sent := notifier.replies()
			if tc.want == "" {
				if len(sent) != 0 {
					t.Fatalf("sent %v, want nothing", sent)
				}
				return
			}
			if len(sent) != 1 {
				t.Fatalf("sent %d replies, want 1", len(sent))
			}
			if sent[0].ChatID != 555 || sent[0].Text != tc.want {
				t.Errorf("sent %+v, want chat 555 text %q", sent[0], tc.want)
			}
		})
	}

	t.Run("should swallow notifier errors", func(t *testing.T) {
		notifier := &mockNotifier{SendReplyFunc: func(context.Context, int64, string) error {
			return errors.New("telegram unreachable")
		}}
		sink := dispatch.NewReplySink(notifier, texts, newTestLogger())
		u := textUpdate(5, "hi")
		sink.Record(context.Background(), &u, model.Handled(model.Response{Text: "x"})) // must not panic
	})
}

func TestMultiSink(t *testing.T) {
	t.Run("should fan out to every sink in order", func(t *testing.T) {
		var order []string
		mk := func(name string) dispatch.SinkFunc {
			return func(context.Context, *model.Update, model.DispatchOutcome) {
				order = append(order, name)
			}
		}
		sink := dispatch.MultiSink{mk("a"), mk("b"), mk("c")}
		u := textUpdate(5, "hi")
		sink.Record(context.Background(), &u, model.Handled(model.Response{}))

		if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
			t.Fatalf("order = %v, want [a b c]", order)
		}
	})
}
