package executor

import (
	"github.com/timokroeger/winmsg-executor/internal/events"
	"github.com/timokroeger/winmsg-executor/pkg/future"
)

// JoinHandle is the single owner of the right to observe a task's
// output. It is itself a Future, so one task can await another, and
// BlockOn can await its wrapper task.
//
// The handle is pinned to the spawning thread: poll it only from futures
// running on the same executor thread. Only the task's waker may cross
// goroutines.
type JoinHandle[T any] struct {
	t *task
}

// Poll implements future.Future. While the task runs it registers the
// calling task's waker (keeping the stored one when it already wakes the
// same task) and reports pending. The first poll after completion moves
// the output out and closes the task. Polling again after that is a
// contract violation and panics.
func (h *JoinHandle[T]) Poll(cx *future.Context) (T, bool) {
	var zero T
	t := h.t
	if t == nil {
		panic("executor: join handle polled after it returned ready")
	}

	switch t.state {
	case stateRunning:
		w := cx.Waker()
		if stored, ok := t.joinWaker.(*taskWaker); ok {
			if incoming, ok := w.(*taskWaker); ok && stored.t == incoming.t {
				// Same task; the stored waker will already wake it.
				return zero, false
			}
		}
		t.joinWaker = w
		return zero, false

	case stateCompleted:
		b := t.output.(box[T])
		t.output = nil
		t.state = stateClosed
		h.t = nil
		return b.v, true

	default: // stateClosed
		panic("executor: join handle polled after it returned ready")
	}
}

// Detach gives up the right to observe the output: the task keeps
// running and its output is dropped when it completes. Calling Detach
// more than once, or after the handle returned ready, is a no-op.
func (h *JoinHandle[T]) Detach() {
	t := h.t
	if t == nil {
		return
	}
	h.t = nil
	t.joinWaker = nil
	t.detached = true
	if t.state == stateCompleted {
		t.output = nil
		t.state = stateClosed
	}
	events.Publish(events.NewEvent(events.EventTaskDetached, events.TaskEventData(t.id, t.target.backend(), nil)))
}

// TaskID returns the task's id for correlation with logs and events, or
// the empty string once the handle has been consumed or detached.
func (h *JoinHandle[T]) TaskID() string {
	if h.t == nil {
		return ""
	}
	return h.t.id
}
