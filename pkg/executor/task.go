package executor

import (
	"runtime/cgo"

	"github.com/timokroeger/winmsg-executor/internal/events"
	"github.com/timokroeger/winmsg-executor/internal/logger"
	"github.com/timokroeger/winmsg-executor/internal/metrics"
	"github.com/timokroeger/winmsg-executor/pkg/future"
)

type taskState uint8

const (
	stateRunning taskState = iota
	stateCompleted
	stateClosed
)

func (s taskState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateCompleted:
		return "completed"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// box carries a completed future's output through the type-erased task so
// the join side can recover it without tripping over nil interface
// values.
type box[T any] struct{ v T }

// task owns a spawned future and its state machine. All fields except
// the wake target are touched only on the owning thread; cross-thread
// interaction goes exclusively through wake messages.
type task struct {
	id  string
	tid int64

	// poll drives the type-erased future; nil once the task has left
	// the running state.
	poll func(cx *future.Context) (any, bool)

	state     taskState
	output    any
	joinWaker future.Waker
	detached  bool

	// polling guards against a nested pump re-entering the poll; a wake
	// consumed mid-poll is deferred instead of recursing.
	polling bool
	repoll  bool

	waker  *taskWaker
	target wakeTarget
}

// wakeTarget is one end of the wake channel: it knows how to enqueue a
// wake message that transfers one task reference into the queue.
type wakeTarget interface {
	schedule(t *task)
	backend() string
}

// taskWaker is the cross-thread half of the wake channel. It is a plain
// value handle: cloneable, sendable, and callable from any goroutine.
// Every wake posts a fresh message; the receiving side tolerates
// spurious and duplicate wakes.
type taskWaker struct {
	t *task
}

func (w *taskWaker) Wake() {
	w.t.target.schedule(w.t)
}

// schedule enqueues one wake message for the task.
func (t *task) schedule() {
	t.target.schedule(t)
}

// pollOnce runs on the owning thread when a wake message for the task is
// consumed. A wake that lands while the task is no longer running has
// already released its payload and is a no-op.
func (t *task) pollOnce() {
	if t.state != stateRunning {
		return
	}
	if t.polling {
		// A nested pump (modal loop or nested BlockOn) consumed a wake
		// for the task currently being polled. Re-arm after the poll
		// in progress returns instead of recursing into the future.
		t.repoll = true
		return
	}

	t.polling = true
	completed := false
	defer func() {
		t.polling = false
		if r := recover(); r != nil {
			// Leave the task in a well-defined closed state before the
			// panic escapes so a host that recovers can keep running
			// the message loop.
			t.poll = nil
			t.joinWaker = nil
			t.output = nil
			t.state = stateClosed
			metrics.TasksCompleted.WithLabelValues("panicked").Inc()
			events.Publish(events.NewEvent(events.EventTaskPanicked, events.TaskEventData(t.id, t.target.backend(), nil)))
			panic(r)
		}
		if !completed && t.repoll && t.state == stateRunning {
			t.repoll = false
			t.schedule()
		}
	}()

	metrics.TaskPolls.Inc()
	cx := future.NewContext(t.waker)
	v, ready := t.poll(cx)
	if !ready {
		return
	}

	completed = true
	t.poll = nil
	t.output = v
	t.state = stateCompleted
	metrics.TasksCompleted.WithLabelValues("completed").Inc()
	events.Publish(events.NewEvent(events.EventTaskCompleted, events.TaskEventData(t.id, t.target.backend(), nil)))
	logger.WithTask(t.id).Debug().Msg("task completed")

	if jw := t.joinWaker; jw != nil {
		t.joinWaker = nil
		jw.Wake()
	}
	if t.detached {
		// Nobody can observe the output anymore.
		t.output = nil
		t.state = stateClosed
	}
}

// discard drops a still-running task: the future is released and wake
// messages already in flight degrade to no-ops. Used when BlockOn exits
// on a quit sentinel before its future completed.
func (t *task) discard() {
	if t.state != stateRunning {
		return
	}
	t.poll = nil
	t.joinWaker = nil
	t.state = stateClosed
	metrics.TasksCompleted.WithLabelValues("discarded").Inc()
}

// consumeWake resolves a wake message payload back into its task,
// releasing the reference the message carried, and polls it.
func consumeWake(lparam uintptr) {
	h := cgo.Handle(lparam)
	t := h.Value().(*task)
	h.Delete()
	t.pollOnce()
}
