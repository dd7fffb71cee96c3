//go:build !integration

package dispatch_test

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"telegram-bot-dispatch/internal/dispatch"
	"telegram-bot-dispatch/internal/domain/model"
	"telegram-bot-dispatch/internal/domain/ports/repository"
	"telegram-bot-dispatch/internal/infra/memstore"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Mock SessionStore ----

// mockStore delegates to a real in-memory store but lets individual tests
// override any method to inject failures.
type mockStore struct {
	inner *memstore.Store

	GetFunc            func(ctx context.Context, userID int64) (*model.Session, error)
	UpsertFunc         func(ctx context.Context, sess *model.Session) error
	CompareAndSwapFunc func(ctx context.Context, userID, expectedVersion int64, sess *model.Session) (bool, error)
}

var _ repository.SessionStore = (*mockStore)(nil)

func newMockStore() *mockStore {
	return &mockStore{inner: memstore.New()}
}

func (m *mockStore) Get(ctx context.Context, userID int64) (*model.Session, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID)
	}
	return m.inner.Get(ctx, userID)
}

func (m *mockStore) Upsert(ctx context.Context, sess *model.Session) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, sess)
	}
	return m.inner.Upsert(ctx, sess)
}

func (m *mockStore) CompareAndSwap(ctx context.Context, userID, expectedVersion int64, sess *model.Session) (bool, error) {
	if m.CompareAndSwapFunc != nil {
		return m.CompareAndSwapFunc(ctx, userID, expectedVersion, sess)
	}
	return m.inner.CompareAndSwap(ctx, userID, expectedVersion, sess)
}

// ---- Mock Notifier ----

type sentReply struct {
	ChatID int64
	Text   string
}

type mockNotifier struct {
	mu   sync.Mutex
	Sent []sentReply

	SendReplyFunc func(ctx context.Context, chatID int64, text string) error
}

func (m *mockNotifier) SendReply(ctx context.Context, chatID int64, text string) error {
	if m.SendReplyFunc != nil {
		return m.SendReplyFunc(ctx, chatID, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentReply{ChatID: chatID, Text: text})
	return nil
}

func (m *mockNotifier) replies() []sentReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentReply, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// ---- Mock AuthPolicy ----

type mockPolicy struct {
	AllowedFunc func(ctx context.Context, userID int64) (bool, error)
}

func (m *mockPolicy) Allowed(ctx context.Context, userID int64) (bool, error) {
	if m.AllowedFunc != nil {
		return m.AllowedFunc(ctx, userID)
	}
	return true, nil
}

// ---- Outcome capture sink ----

type recordedOutcome struct {
	Update  model.Update
	Outcome model.DispatchOutcome
}

// captureSink collects every terminal outcome and closes a signal channel per
// recorded entry so tests can wait without polling.
type captureSink struct {
	mu       sync.Mutex
	recorded []recordedOutcome
	signal   chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{signal: make(chan struct{}, 1024)}
}

func (s *captureSink) Record(_ context.Context, update *model.Update, outcome model.DispatchOutcome) {
	s.mu.Lock()
	s.recorded = append(s.recorded, recordedOutcome{Update: *update, Outcome: outcome})
	s.mu.Unlock()
	s.signal <- struct{}{}
}

func (s *captureSink) outcomes() []recordedOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedOutcome, len(s.recorded))
	copy(out, s.recorded)
	return out
}

// waitFor blocks until n outcomes have been recorded or the deadline passes.
func (s *captureSink) waitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-s.signal:
		case <-deadline:
			return false
		}
	}
	return true
}

// ---- Helpers ----

var updateSeq int64

func textUpdate(userID int64, text string) model.Update {
	return model.Update{
		ID:         atomic.AddInt64(&updateSeq, 1),
		UserID:     userID,
		ChatID:     userID,
		Text:       text,
		ReceivedAt: time.Now(),
	}
}

func commandUpdate(userID int64, cmd, args string) model.Update {
	u := textUpdate(userID, "/"+cmd)
	u.Command = cmd
	u.Args = args
	return u
}

func newDispatcher(cfg dispatch.Config, store repository.SessionStore, chain *dispatch.Chain, router *dispatch.Router, sink dispatch.OutcomeSink) *dispatch.Dispatcher {
	if store == nil {
		store = memstore.New()
	}
	if chain == nil {
		chain = dispatch.NewChain()
	}
	if router == nil {
		router = dispatch.NewRouter()
		router.Default(dispatch.HandlerFunc(func(context.Context, *model.Update, *model.Session) (model.Response, error) {
			return model.Response{}, nil
		}))
	}
	return dispatch.New(cfg, store, chain, router, sink, newTestLogger())
}
