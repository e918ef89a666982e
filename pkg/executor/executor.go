// Package executor runs futures on a single thread, driven entirely by
// that thread's message queue: waking a task posts a message, and the
// task is polled when the message loop dequeues it. Tasks share the loop
// with ordinary window procedures, and a pre-dispatch filter hook keeps
// them running while nested modal pumps own the queue.
package executor

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/petermattis/goid"

	"github.com/timokroeger/winmsg-executor/internal/events"
	"github.com/timokroeger/winmsg-executor/internal/logger"
	"github.com/timokroeger/winmsg-executor/internal/metrics"
	"github.com/timokroeger/winmsg-executor/pkg/future"
	"github.com/timokroeger/winmsg-executor/pkg/msgqueue"
)

// Reserved application-private message ids. Hosts that post their own
// thread messages must stay clear of these two; messages targeting a
// window are never interpreted as executor traffic regardless of id.
const (
	// MsgIDWake identifies wake messages. For the thread-queue backend
	// the payload word carries one task reference.
	MsgIDWake = msgqueue.MsgApp

	// MsgIDSync identifies closures posted through Handle.Post; the
	// payload word carries the closure.
	MsgIDSync = msgqueue.MsgApp + 1
)

// Error definitions
var (
	// ErrQuitRequested is returned by BlockOn when the message loop was
	// quit before the awaited future completed.
	ErrQuitRequested = errors.New("executor: message loop quit requested")
)

// MsgFilter is a user-supplied pre-dispatch filter. Returning true marks
// the message as handled; it is then neither dispatched nor forwarded.
type MsgFilter func(m *msgqueue.Msg) bool

// loopState is the per-thread driver state. It is only ever touched on
// its own thread; the registry lock protects just the map itself.
type loopState struct {
	q *msgqueue.Queue

	// depth counts nested pumps: 0 when idle, 1 for the top-level
	// driver, more while nested BlockOn pumps run.
	depth int

	hook       *msgqueue.MsgFilterHook
	userFilter MsgFilter

	// filterPanic holds a panic captured from the user filter until the
	// driver re-raises it at the next iteration boundary.
	filterPanic any
}

var (
	loopMu sync.Mutex
	loops  = make(map[int64]*loopState)
)

// state returns the calling goroutine's loop state, attaching the
// message queue on first use.
func state() *loopState {
	tid := goid.Get()
	loopMu.Lock()
	ls, ok := loops[tid]
	loopMu.Unlock()
	if ok {
		return ls
	}

	// Attach outside the registry lock; the queue has its own.
	q := msgqueue.Attach()
	loopMu.Lock()
	if existing, ok := loops[tid]; ok {
		loopMu.Unlock()
		return existing
	}
	ls = &loopState{q: q}
	loops[tid] = ls
	loopMu.Unlock()
	return ls
}

// filterMessage is the executor's pre-dispatch filter chain: the wake
// recogniser, the synchronize recogniser, then the user filter. It is
// installed as the thread's message filter for the duration of a run so
// that modal pumps keep delivering wakes.
func (ls *loopState) filterMessage(m *msgqueue.Msg) bool {
	if m.Window == nil && m.ID == MsgIDWake {
		consumeWake(m.LParam)
		return true
	}
	if m.Window == nil && m.ID == MsgIDSync {
		consumeSync(m.LParam)
		return true
	}
	if ls.userFilter != nil {
		return ls.runUserFilter(m)
	}
	return false
}

// runUserFilter shields the loop from panics in the user filter: the
// panic value is parked and the message acknowledged as handled so that
// a modal pump in control keeps running; the driver re-raises the panic
// once it regains control.
func (ls *loopState) runUserFilter(m *msgqueue.Msg) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			ls.filterPanic = r
			handled = true
		}
	}()
	return ls.userFilter(m)
}

// begin installs the filter hook and marks the top-level pump as
// running.
func (ls *loopState) begin(f MsgFilter, kind string) {
	ls.userFilter = f
	hook, err := ls.q.InstallMsgFilter(ls.filterMessage)
	if err != nil {
		panic("executor: filter hook already installed on this thread")
	}
	ls.hook = hook
	ls.depth = 1

	metrics.LoopRuns.WithLabelValues(kind).Inc()
	events.Publish(events.NewEvent(events.EventLoopStarted, events.LoopEventData(ls.q.ThreadID(), kind)))
	logger.WithThread(ls.q.ThreadID()).Debug().Str("kind", kind).Msg("message loop started")
}

// end is the scoped counterpart of begin; it also runs on the unwind
// path so a panicking future leaves the thread reusable.
func (ls *loopState) end() {
	ls.hook.Uninstall()
	ls.hook = nil
	ls.userFilter = nil
	ls.depth = 0

	events.Publish(events.NewEvent(events.EventLoopStopped, events.LoopEventData(ls.q.ThreadID(), "")))
	logger.WithThread(ls.q.ThreadID()).Debug().Msg("message loop stopped")
}

// pump is one message loop: dequeue, recognise the quit sentinel, run
// the filter chain, and hand everything else to the default dispatcher.
// A non-nil done predicate makes this a bounded pump that returns once
// the predicate holds. Returns ErrQuitRequested when the quit sentinel
// was dequeued.
func (ls *loopState) pump(done func() bool) error {
	for {
		if p := ls.filterPanic; p != nil {
			ls.filterPanic = nil
			panic(p)
		}
		if done != nil && done() {
			return nil
		}
		m, ok := ls.q.Get()
		if !ok {
			if ls.depth > 1 {
				// Let every outer pump on this thread observe the
				// sentinel too, the way modal loops re-post a quit.
				ls.q.PostQuit()
			}
			events.Publish(events.NewEvent(events.EventLoopQuit, events.LoopEventData(ls.q.ThreadID(), "")))
			return ErrQuitRequested
		}
		if ls.q.RunMsgFilter(&m) {
			continue
		}
		msgqueue.Dispatch(&m)
	}
}

// RunMessageLoop runs the thread's message loop until a quit sentinel is
// observed. Tasks spawned earlier are polled as their wake messages
// arrive; all other messages go through the default dispatcher to their
// window procedures. Panics if a message loop is already running on this
// thread.
func RunMessageLoop() {
	runLoop(nil)
}

// RunMessageLoopWithFilter is RunMessageLoop with a user filter appended
// to the pre-dispatch chain, behind the executor's own recognisers.
func RunMessageLoopWithFilter(f MsgFilter) {
	runLoop(f)
}

func runLoop(f MsgFilter) {
	ls := state()
	if ls.depth != 0 {
		panic("executor: message loop already running on this thread")
	}
	ls.begin(f, "run")
	defer ls.end()
	_ = ls.pump(nil) // quit observed; return normally
}

// BlockOn spawns f on the current thread and pumps the message loop
// until it completes, returning its output. If a quit sentinel arrives
// first the future is discarded and ErrQuitRequested is returned.
//
// Called while a message loop is already running on this thread, BlockOn
// nests: it pumps the same queue modal-style until its future resolves,
// so tasks spawned earlier keep running throughout.
func BlockOn[T any](f future.Future[T]) (T, error) {
	var zero T
	ls := state()
	h := Spawn(f)
	done := func() bool { return h.t.state != stateRunning }

	var err error
	if ls.depth == 0 {
		ls.begin(nil, "block_on")
		defer ls.end()
		err = ls.pump(done)
	} else {
		err = func() error {
			ls.depth++
			defer func() { ls.depth-- }()
			metrics.LoopRuns.WithLabelValues("nested").Inc()
			return ls.pump(done)
		}()
	}
	if err != nil {
		h.t.discard()
		return zero, ErrQuitRequested
	}

	// The wrapper task just completed; extract its output synchronously.
	v, ready := h.Poll(future.NewContext(future.NopWaker))
	if !ready {
		panic("executor: block_on task not ready after pump")
	}
	return v, nil
}

// QuitMessageLoop posts the quit sentinel on the current thread's queue.
// The loop exits once pending messages have drained; tasks still running
// keep their state and resume on the next RunMessageLoop or BlockOn.
func QuitMessageLoop() {
	state().q.PostQuit()
}

// Spawn binds f to the current thread's wake channel, schedules the
// initial poll, and returns the join handle. It may be called with or
// without a running message loop; the initial wake waits in the queue
// until a loop runs.
func Spawn[T any](f future.Future[T], opts ...SpawnOption) *JoinHandle[T] {
	var cfg spawnConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ls := state()
	t := &task{
		id:    uuid.New().String(),
		tid:   ls.q.ThreadID(),
		state: stateRunning,
	}
	t.poll = func(cx *future.Context) (any, bool) {
		v, ok := f.Poll(cx)
		if !ok {
			return nil, false
		}
		return box[T]{v: v}, true
	}
	t.waker = &taskWaker{t: t}

	if cfg.windowWake {
		target, err := newWindowTarget(t)
		if err != nil {
			// Distinct OS-failure class; Spawn itself has no error
			// return, matching the thread backend which cannot fail.
			panic(err)
		}
		t.target = target
	} else {
		t.target = threadTarget{tid: t.tid}
	}

	metrics.TasksSpawned.WithLabelValues(t.target.backend()).Inc()
	events.Publish(events.NewEvent(events.EventTaskSpawned, events.TaskEventData(t.id, t.target.backend(), nil)))
	logger.WithTask(t.id).Debug().Str("backend", t.target.backend()).Msg("task spawned")

	// Initial poll.
	t.schedule()
	return &JoinHandle[T]{t: t}
}
