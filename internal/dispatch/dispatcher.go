package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"telegram-bot-dispatch/internal/domain"
	"telegram-bot-dispatch/internal/domain/model"
	"telegram-bot-dispatch/internal/domain/ports/adapter"
	"telegram-bot-dispatch/internal/domain/ports/repository"
	"telegram-bot-dispatch/internal/infra/logging"
	"telegram-bot-dispatch/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Config is the immutable dispatcher configuration.
type Config struct {
	QueueSize     int           // per-lane pending capacity
	UpdateTimeout time.Duration // deadline for one update's processing
	IdleTTL       time.Duration // retire lanes idle this long
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.UpdateTimeout <= 0 {
		c.UpdateTimeout = 30 * time.Second
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 5 * time.Minute
	}
}

// lane serializes all updates from one sender. A single goroutine owns the
// queue, which gives per-sender FIFO and race-free session access for free.
type lane struct {
	userID int64
	queue  chan *model.Update
	done   chan struct{}
}

// Dispatcher orchestrates Update Source -> Middleware -> Router -> Handler
// with per-user lanes. Updates from different users run fully in parallel;
// updates from one user never interleave.
type Dispatcher struct {
	cfg    Config
	store  repository.SessionStore
	chain  *Chain
	router *Router
	sink   OutcomeSink
	log    *zerolog.Logger
	now    func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	draining   chan struct{}
	drainOnce  sync.Once

	mu     sync.Mutex
	lanes  map[int64]*lane
	closed bool
	wg     sync.WaitGroup
}

func New(cfg Config, store repository.SessionStore, chain *Chain, router *Router, sink OutcomeSink, logger *zerolog.Logger) *Dispatcher {
	cfg.applyDefaults()
	if sink == nil {
		sink = SinkFunc(func(context.Context, *model.Update, model.DispatchOutcome) {})
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:        cfg,
		store:      store,
		chain:      chain,
		router:     router,
		sink:       sink,
		log:        logger,
		now:        time.Now,
		baseCtx:    ctx,
		baseCancel: cancel,
		draining:   make(chan struct{}),
		lanes:      make(map[int64]*lane),
	}
}

// Submit enqueues an update into its sender's lane, creating the lane lazily.
// It never blocks: a saturated lane returns domain.ErrLaneSaturated and the
// caller decides what to do with the update.
func (d *Dispatcher) Submit(update model.Update) error {
	u := update
	if u.TraceID == "" {
		u.TraceID = ulid.Make().String()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return domain.ErrDispatcherClosed
	}
	ln, ok := d.lanes[u.UserID]
	if !ok {
		ln = &lane{
			userID: u.UserID,
			queue:  make(chan *model.Update, d.cfg.QueueSize),
			done:   make(chan struct{}),
		}
		d.lanes[u.UserID] = ln
		metrics.SetActiveLanes(len(d.lanes))
		d.wg.Add(1)
		go d.runLane(ln)
	}
	metrics.ObserveLaneDepth(len(ln.queue))
	select {
	case ln.queue <- &u:
		d.mu.Unlock()
		return nil
	default:
		d.mu.Unlock()
		return fmt.Errorf("user %d: %w", u.UserID, domain.ErrLaneSaturated)
	}
}

// Run consumes the update source until its channel closes or ctx is done.
// Transport errors belong to the source; they end the stream and the caller
// of Run owns the retry/backoff policy.
func (d *Dispatcher) Run(ctx context.Context, src adapter.UpdateSource) error {
	ch, err := src.Updates(ctx)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-ch:
			if !ok {
				return nil
			}
			if err := d.Submit(u); err != nil {
				if errors.Is(err, domain.ErrDispatcherClosed) {
					return err
				}
				// Saturated lane: the update is refused, not silently dropped.
				d.log.Warn().Err(err).Int64("tg_id", u.UserID).Msg("update refused")
				d.sink.Record(ctx, &u, model.Failed(model.FailureHandler, err))
			}
		}
	}
}

// LaneInfo describes one live lane for the ops surface.
type LaneInfo struct {
	UserID  int64 `json:"user_id"`
	Pending int   `json:"pending"`
}

// Lanes returns a snapshot of live lanes.
func (d *Dispatcher) Lanes() []LaneInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]LaneInfo, 0, len(d.lanes))
	for _, ln := range d.lanes {
		out = append(out, LaneInfo{UserID: ln.userID, Pending: len(ln.queue)})
	}
	return out
}

// DrainReport summarizes a drain: lanes that finished in time and lanes
// abandoned at the deadline.
type DrainReport struct {
	Completed int     `json:"completed"`
	Abandoned []int64 `json:"abandoned"`
}

// Drain stops intake, then waits up to timeout for all lanes to empty their
// queues. When the deadline hits, the base context is cancelled: in-flight
// handlers get a best-effort cancellation signal and every remaining queued
// update is reported as Failed(timeout) through the sink.
func (d *Dispatcher) Drain(timeout time.Duration) DrainReport {
	d.mu.Lock()
	d.closed = true
	lanes := make([]*lane, 0, len(d.lanes))
	for _, ln := range d.lanes {
		lanes = append(lanes, ln)
	}
	d.mu.Unlock()
	d.drainOnce.Do(func() { close(d.draining) })

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var rep DrainReport
	expired := false
	for _, ln := range lanes {
		if expired {
			select {
			case <-ln.done:
				rep.Completed++
			default:
				rep.Abandoned = append(rep.Abandoned, ln.userID)
			}
			continue
		}
		select {
		case <-ln.done:
			rep.Completed++
		case <-timer.C:
			expired = true
			d.baseCancel()
			select {
			case <-ln.done:
				rep.Completed++
			default:
				rep.Abandoned = append(rep.Abandoned, ln.userID)
			}
		}
	}
	// Abandoned lanes fast-fail their remaining queue; wait for the
	// goroutines so every outcome is recorded before shutdown.
	d.wg.Wait()
	return rep
}

func (d *Dispatcher) isDraining() bool {
	select {
	case <-d.draining:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) runLane(ln *lane) {
	defer d.wg.Done()
	defer close(ln.done)

	idle := time.NewTimer(d.cfg.IdleTTL)
	defer idle.Stop()

	for {
		select {
		case u := <-ln.queue:
			d.dispatchOne(u)
			if d.isDraining() && len(ln.queue) == 0 {
				d.removeLane(ln)
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.cfg.IdleTTL)
		case <-d.draining:
			for {
				select {
				case u := <-ln.queue:
					d.dispatchOne(u)
				default:
					d.removeLane(ln)
					return
				}
			}
		case <-idle.C:
			if d.tryRetire(ln) {
				return
			}
			idle.Reset(d.cfg.IdleTTL)
		}
	}
}

// tryRetire removes an idle lane. Submit and retirement both hold the
// dispatcher mutex, so an enqueue can never land on a retired lane.
func (d *Dispatcher) tryRetire(ln *lane) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(ln.queue) > 0 {
		return false
	}
	delete(d.lanes, ln.userID)
	metrics.SetActiveLanes(len(d.lanes))
	return true
}

func (d *Dispatcher) removeLane(ln *lane) {
	d.mu.Lock()
	delete(d.lanes, ln.userID)
	metrics.SetActiveLanes(len(d.lanes))
	d.mu.Unlock()
}

func (d *Dispatcher) dispatchOne(u *model.Update) {
	start := time.Now()
	ctx := logging.WithTraceID(d.baseCtx, u.TraceID)
	ctx = logging.WithTgID(ctx, u.UserID)
	ctx = logging.WithUpdateID(ctx, u.ID)

	outcome := d.process(ctx, u)

	metrics.ObserveDispatchLatency(u.Command, float64(time.Since(start).Milliseconds()))
	d.sink.Record(ctx, u, outcome)
}

// process runs one update through middleware, routing and the handler, and
// persists the session working copy. All errors are converted to an outcome
// here; nothing escapes the lane boundary.
func (d *Dispatcher) process(ctx context.Context, u *model.Update) model.DispatchOutcome {
	if err := d.baseCtx.Err(); err != nil {
		return model.Failed(model.FailureTimeout, domain.ErrUpdateTimeout)
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.UpdateTimeout)
	defer cancel()

	sess, fresh, err := d.loadSession(ctx, u.UserID)
	if err != nil {
		return model.Failed(model.FailureHandler, fmt.Errorf("load session: %w", err))
	}
	// Guards and the handler mutate a working copy; a failed update is rolled
	// back by never persisting it.
	work := sess.Clone()

	res, guardName := d.chain.Eval(ctx, u, work)
	switch res.Verdict {
	case model.VerdictReject:
		d.persistBestEffort(ctx, sess, work, fresh)
		return model.Rejected(res.Reason)
	case model.VerdictShortCircuit:
		logging.With(ctx, d.log).Debug().Str("guard", guardName).Msg("middleware short-circuit")
		work.Touch(d.now())
		d.persistBestEffort(ctx, sess, work, fresh)
		return model.Handled(res.Reply)
	}

	h, ok := d.router.Resolve(u)
	if !ok {
		d.persistBestEffort(ctx, sess, work, fresh)
		return model.Rejected(model.ReasonUnknownCommand)
	}

	reply, err := d.invoke(ctx, h, u, work)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return model.Failed(model.FailureTimeout, domain.ErrUpdateTimeout)
		}
		return model.Failed(model.FailureHandler, err)
	}

	work.Touch(d.now())
	if err := d.persist(ctx, sess, work, fresh); err != nil {
		return model.Failed(model.FailureHandler, fmt.Errorf("persist session: %w", err))
	}
	return model.Handled(reply)
}

// invoke runs the handler with panic recovery. On deadline expiry the handler
// goroutine is abandoned; cancellation via ctx is best-effort.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, u *model.Update, work *model.Session) (model.Response, error) {
	type result struct {
		reply model.Response
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		reply, err := h.Handle(ctx, u, work)
		ch <- result{reply: reply, err: err}
	}()
	select {
	case r := <-ch:
		return r.reply, r.err
	case <-ctx.Done():
		return model.Response{}, ctx.Err()
	}
}

func (d *Dispatcher) loadSession(ctx context.Context, userID int64) (sess *model.Session, fresh bool, err error) {
	sess, err = d.store.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return model.NewSession(userID, d.now()), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return sess, false, nil
}

// persist writes the working copy. Existing sessions go through
// compare-and-swap; a conflict cannot happen inside a lane, so one surfacing
// means another writer touched the key and the update must fail.
func (d *Dispatcher) persist(ctx context.Context, prev, work *model.Session, fresh bool) error {
	if fresh {
		return d.store.Upsert(ctx, work)
	}
	ok, err := d.store.CompareAndSwap(ctx, work.UserID, prev.Version, work)
	if err != nil {
		return err
	}
	if !ok {
		metrics.IncCasConflict()
		return domain.ErrVersionConflict
	}
	return nil
}

// persistBestEffort is used on reject/short-circuit paths where guard counter
// mutations should survive but a storage hiccup must not change the outcome.
func (d *Dispatcher) persistBestEffort(ctx context.Context, prev, work *model.Session, fresh bool) {
	if err := d.persist(ctx, prev, work, fresh); err != nil {
		logging.With(ctx, d.log).Warn().Err(err).Msg("persist session (non-handled outcome) failed")
	}
}
