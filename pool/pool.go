package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/IvanBrykalov/assetcache/internal/util"
)

// ErrNoEndpoints is returned by Submit for a request with an empty
// candidate list.
var ErrNoEndpoints = errors.New("pool: no candidate endpoints")

// Options configures a Pool. Zero values are safe; defaults are
// applied in New():
//   - Parallelism <= 0      => util.DefaultParallelism() (CPU count clamped to [1,4])
//   - HandshakeTimeout <= 0 => 1500ms
//   - TaskTimeout <= 0      => 30m (downloads can be very long-running)
//   - nil Worker            => in-process worker running Fetcher
//   - nil Fetcher           => NewHTTPFetcher(nil)
//   - nil Logger            => slog.Default()
//   - nil Metrics           => NoopMetrics
type Options struct {
	// Parallelism is the maximum number of worker slots.
	Parallelism int

	// HandshakeTimeout bounds the ping→ready exchange performed before
	// each dispatch.
	HandshakeTimeout time.Duration

	// TaskTimeout is the watchdog ceiling covering one task's entire
	// execution after a successful handshake.
	TaskTimeout time.Duration

	// Worker produces the transport to a live worker. The pool creates
	// workers lazily, one per slot, and replaces dead ones the same
	// way.
	Worker WorkerFactory

	// Fetcher is used by the default in-process worker; ignored when
	// Worker is set.
	Fetcher Fetcher

	Logger  *slog.Logger
	Metrics Metrics
}

// Pool is a bounded parallel download executor. A single coordinator
// goroutine owns the task queue and the slot table; workers only talk
// to it through Transport messages, so none of the coordinator state
// needs a lock.
type Pool struct {
	opt    Options
	events chan event
	exited chan struct{}

	closeOnce sync.Once

	// ---- event-loop state (loop goroutine only) ----
	queue  []*task
	slots  map[*slot]struct{}
	nextID int
}

type event any

type (
	evSubmit struct{ t *task }
	evCancel struct{ t *task }
	evClose  struct{}

	evMsg struct {
		s   *slot
		env Envelope
	}
	evFault struct {
		s   *slot
		err error
	}
	evHandshakeTimeout struct {
		s      *slot
		taskID string
	}
	evWatchdog struct {
		s      *slot
		taskID string
	}
)

// New constructs a Pool and starts its coordinator goroutine.
func New(opt Options) *Pool {
	if opt.Parallelism <= 0 {
		opt.Parallelism = util.DefaultParallelism()
	} else {
		opt.Parallelism = util.ClampParallelism(opt.Parallelism)
	}
	if opt.HandshakeTimeout <= 0 {
		opt.HandshakeTimeout = 1500 * time.Millisecond
	}
	if opt.TaskTimeout <= 0 {
		opt.TaskTimeout = 30 * time.Minute
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Worker == nil {
		f := opt.Fetcher
		if f == nil {
			f = NewHTTPFetcher(nil)
		}
		opt.Worker = func() (Transport, error) {
			coord, worker := NewPipeTransport()
			go ServeWorker(worker, f)
			return coord, nil
		}
	}

	p := &Pool{
		opt:    opt,
		events: make(chan event),
		exited: make(chan struct{}),
		slots:  make(map[*slot]struct{}),
	}
	go p.loop()
	return p
}

// Submit enqueues one download and blocks until it settles. Cancelling
// ctx rejects the call immediately with ErrAborted: a queued task is
// dequeued, a running task gets a best-effort abort notice and its
// slot frees up once the worker actually stops.
func (p *Pool) Submit(ctx context.Context, req Request) (Result, error) {
	if len(req.Endpoints) == 0 {
		return Result{}, ErrNoEndpoints
	}

	t := &task{
		id:           uuid.NewString(),
		req:          req,
		ctx:          ctx,
		done:         make(chan struct{}),
		lastProgress: -1,
	}
	if !p.post(evSubmit{t}) {
		return Result{}, ErrPoolClosed
	}
	slogcontext.FromCtx(ctx).Debug("task submitted",
		slog.String("realm", "pool"),
		slog.String("task", t.id),
		slog.Int("endpoints", len(req.Endpoints)))

	select {
	case <-t.done:
		return t.res, t.err
	case <-ctx.Done():
		p.post(evCancel{t})
		return Result{}, ErrAborted
	case <-p.exited:
		return Result{}, ErrPoolClosed
	}
}

// Close rejects all queued and running tasks with ErrPoolClosed,
// discards the workers, and stops the coordinator. Idempotent.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() { p.post(evClose{}) })
	<-p.exited
	return nil
}

// post delivers an event to the coordinator, dropping it if the
// coordinator has already exited. Producers (timers, slot readers,
// callers) must never block on a stopped loop.
func (p *Pool) post(ev event) bool {
	select {
	case p.events <- ev:
		return true
	case <-p.exited:
		return false
	}
}

// -------------------- coordinator --------------------

// loop is the single goroutine that owns queue, slot table, and task
// settlement. Everything below here runs on it.
func (p *Pool) loop() {
	for {
		switch ev := (<-p.events).(type) {
		case evSubmit:
			p.queue = append(p.queue, ev.t)
			p.opt.Metrics.QueueDepth(len(p.queue))
			p.pump()

		case evCancel:
			p.handleCancel(ev.t)

		case evMsg:
			p.handleMsg(ev.s, ev.env)

		case evFault:
			p.handleFault(ev.s, ev.err)

		case evHandshakeTimeout:
			s := ev.s
			if _, ok := p.slots[s]; !ok || s.state != slotHandshaking || s.cur == nil || s.cur.id != ev.taskID {
				break // stale timer
			}
			p.opt.Logger.Warn("worker handshake timed out",
				slog.Int("slot", s.id), slog.String("task", ev.taskID))
			p.settle(s.cur, Result{}, ErrHandshakeTimeout, OutcomeHandshakeTimeout)
			p.killSlot(s)
			p.pump()

		case evWatchdog:
			s := ev.s
			if _, ok := p.slots[s]; !ok || s.state != slotBusy || s.cur == nil || s.cur.id != ev.taskID {
				break // stale timer
			}
			p.opt.Logger.Warn("task watchdog expired",
				slog.Int("slot", s.id), slog.String("task", ev.taskID))
			p.settle(s.cur, Result{}, ErrTaskTimeout, OutcomeTimeout)
			p.killSlot(s)
			p.pump()

		case evClose:
			p.shutdown()
			return
		}
	}
}

// pump assigns queued tasks to idle slots in FIFO order, creating
// slots lazily up to the parallelism bound.
func (p *Pool) pump() {
	for len(p.queue) > 0 {
		s := p.idleSlot()
		if s == nil {
			if len(p.slots) >= p.opt.Parallelism {
				return // all slots occupied; the next completion re-pumps
			}
			tr, err := p.opt.Worker()
			if err != nil {
				// Fail fast: the task never occupies a slot.
				t := p.queue[0]
				p.queue = p.queue[1:]
				p.opt.Metrics.QueueDepth(len(p.queue))
				p.settle(t, Result{}, fmt.Errorf("%w: %v", ErrWorkerUnavailable, err), OutcomeWorkerUnavailable)
				continue
			}
			s = &slot{id: p.nextID, tr: tr, out: make(chan Envelope, 8)}
			p.nextID++
			p.slots[s] = struct{}{}
			go p.readLoop(s)
			go p.writeLoop(s)
		}

		t := p.queue[0]
		p.queue = p.queue[1:]
		p.opt.Metrics.QueueDepth(len(p.queue))
		p.assign(s, t)
	}
}

// assign starts the handshake for t on s: a liveness probe must be
// acknowledged within HandshakeTimeout before the download is sent.
func (p *Pool) assign(s *slot, t *task) {
	s.state = slotHandshaking
	s.cur = t
	t.slot = s
	p.updateBusy()

	s.out <- Envelope{Kind: KindPing}
	taskID := t.id
	s.hsTimer = time.AfterFunc(p.opt.HandshakeTimeout, func() {
		p.post(evHandshakeTimeout{s: s, taskID: taskID})
	})
}

// handleMsg processes one worker message.
func (p *Pool) handleMsg(s *slot, env Envelope) {
	if _, ok := p.slots[s]; !ok {
		return // message from a pruned slot
	}

	switch env.Kind {
	case KindReady:
		if s.state != slotHandshaking {
			return // stray ack
		}
		s.stopTimers()
		t := s.cur
		if t.settled {
			// Aborted while handshaking; nothing to dispatch.
			p.freeSlot(s)
			p.pump()
			return
		}
		s.state = slotBusy
		s.out <- Envelope{Kind: KindDownload, ID: t.id, URLs: t.req.Endpoints}
		taskID := t.id
		s.wdTimer = time.AfterFunc(p.opt.TaskTimeout, func() {
			p.post(evWatchdog{s: s, taskID: taskID})
		})

	case KindProgress:
		t := s.cur
		if t == nil || t.settled || env.ID != t.id {
			return
		}
		if cb := t.req.OnProgress; cb != nil {
			v := env.Value
			if v < 0 {
				v = 0
			}
			if v > 99 {
				v = 99
			}
			if v > t.lastProgress {
				t.lastProgress = v
				cb(v)
			}
		}

	case KindResult:
		t := s.cur
		if t == nil || env.ID != t.id {
			return // terminal for an unknown request; ignore
		}
		s.stopTimers()
		if !t.settled {
			if cb := t.req.OnProgress; cb != nil {
				cb(100)
			}
			p.settle(t, Result{
				Bytes:          env.Data,
				MIMEType:       env.MIMEType,
				Filename:       env.Filename,
				SourceEndpoint: env.URL,
			}, nil, OutcomeOK)
		}
		p.freeSlot(s)
		p.pump()

	case KindError:
		t := s.cur
		if t == nil || env.ID != t.id {
			return
		}
		s.stopTimers()
		if !t.settled {
			p.settle(t, Result{}, &RemoteError{Message: env.Message}, OutcomeRemoteError)
		}
		// A well-formed error report means the worker itself is fine.
		p.freeSlot(s)
		p.pump()
	}
}

// handleFault prunes a slot whose transport broke or produced an
// undecodable message. Only the slot's own task fails; queued and
// other running tasks are untouched.
func (p *Pool) handleFault(s *slot, err error) {
	if _, ok := p.slots[s]; !ok {
		return // already pruned (or closed by us); reader is winding down
	}
	p.opt.Logger.Warn("worker fault", slog.Int("slot", s.id), slog.Any("error", err))
	if s.cur != nil && !s.cur.settled {
		p.settle(s.cur, Result{}, err, OutcomeDecodeError)
	}
	p.killSlot(s)
	p.pump()
}

// handleCancel implements the two cancellation paths: a queued task is
// dequeued outright; a running one gets an advisory abort and keeps
// its slot occupied until the worker reports a terminal message.
func (p *Pool) handleCancel(t *task) {
	if t.settled {
		return
	}
	if t.slot == nil {
		p.queue = dequeue(p.queue, t)
		p.opt.Metrics.QueueDepth(len(p.queue))
		p.settle(t, Result{}, ErrAborted, OutcomeAborted)
		return
	}

	if s := t.slot; s.state == slotBusy {
		// Best-effort: the slot frees only when the worker actually
		// terminates the request.
		s.out <- Envelope{Kind: KindAbort, ID: t.id}
	}
	// A handshaking slot simply drops the task once the ack arrives.
	p.settle(t, Result{}, ErrAborted, OutcomeAborted)
}

// settle publishes a task's terminal outcome and wakes its caller.
func (p *Pool) settle(t *task, res Result, err error, o Outcome) {
	if t.settled {
		return
	}
	t.settled = true
	t.res = res
	t.err = err
	close(t.done)
	p.opt.Metrics.TaskDone(o)
}

// freeSlot returns a live slot to the idle state.
func (p *Pool) freeSlot(s *slot) {
	s.stopTimers()
	s.cur = nil
	s.state = slotIdle
	p.updateBusy()
}

// killSlot prunes a non-alive slot. A replacement is created lazily by
// the next pump that needs one.
func (p *Pool) killSlot(s *slot) {
	s.stopTimers()
	s.cur = nil
	delete(p.slots, s)
	_ = s.tr.Close()
	close(s.out)
	p.opt.Metrics.SlotDied()
	p.updateBusy()
}

// idleSlot returns any idle slot, or nil.
func (p *Pool) idleSlot() *slot {
	for s := range p.slots {
		if s.state == slotIdle {
			return s
		}
	}
	return nil
}

func (p *Pool) updateBusy() {
	busy := 0
	for s := range p.slots {
		if s.state != slotIdle {
			busy++
		}
	}
	p.opt.Metrics.BusySlots(busy)
}

// shutdown rejects everything outstanding and stops the loop.
func (p *Pool) shutdown() {
	for _, t := range p.queue {
		p.settle(t, Result{}, ErrPoolClosed, OutcomeClosed)
	}
	p.queue = nil
	for s := range p.slots {
		if s.cur != nil && !s.cur.settled {
			p.settle(s.cur, Result{}, ErrPoolClosed, OutcomeClosed)
		}
		s.stopTimers()
		_ = s.tr.Close()
		close(s.out)
	}
	p.slots = map[*slot]struct{}{}
	p.opt.Metrics.QueueDepth(0)
	p.opt.Metrics.BusySlots(0)
	close(p.exited)
}

// readLoop pumps one slot's inbound messages into the coordinator.
// It exits on the first transport fault (including our own Close).
func (p *Pool) readLoop(s *slot) {
	for {
		env, err := s.tr.Recv()
		if err != nil {
			p.post(evFault{s: s, err: err})
			return
		}
		if !p.post(evMsg{s: s, env: env}) {
			return
		}
	}
}

// writeLoop forwards coordinator messages to the worker so a wedged
// transport never blocks the coordinator itself. After the first send
// fault it drains silently; the fault event has already pruned the
// slot.
func (p *Pool) writeLoop(s *slot) {
	dead := false
	for env := range s.out {
		if dead {
			continue
		}
		if err := s.tr.Send(env); err != nil {
			dead = true
			p.post(evFault{s: s, err: fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)})
		}
	}
}
