package executor

import (
	"fmt"

	"github.com/petermattis/goid"

	"github.com/timokroeger/winmsg-executor/internal/metrics"
	"github.com/timokroeger/winmsg-executor/pkg/msgqueue"
)

// windowTarget is the window wake channel: each task owns a message-only
// window, wakes are posted at that window, and delivery runs through the
// default dispatch path into the window procedure below. No filter is
// involved, so this backend keeps tasks alive even under a pump that
// knows nothing about the executor.
type windowTarget struct {
	w   *msgqueue.Window
	tid int64
}

func (wt windowTarget) backend() string { return "window" }

func (wt windowTarget) schedule(t *task) {
	origin := "local"
	if goid.Get() != wt.tid {
		origin = "remote"
	}
	if err := wt.w.Post(MsgIDWake, 0, 0); err != nil {
		// Window already destroyed: the task completed and a stale
		// waker fired. Nothing to release, the post carried no payload.
		metrics.WakesDropped.Inc()
		return
	}
	metrics.WakesPosted.WithLabelValues(origin).Inc()
}

// newWindowTarget creates the per-task window. The task travels in the
// window's user-data slot rather than in message payload words.
func newWindowTarget(t *task) (wakeTarget, error) {
	w, err := msgqueue.NewWindow(taskWndProc)
	if err != nil {
		return nil, fmt.Errorf("create task window: %w", err)
	}
	w.SetUserData(t)
	return windowTarget{w: w, tid: w.ThreadID()}, nil
}

func taskWndProc(w *msgqueue.Window, msg uint32, wparam, lparam uintptr) uintptr {
	switch msg {
	case MsgIDWake:
		t, ok := w.UserData().(*task)
		if !ok {
			return 0
		}
		t.pollOnce()
		if t.state != stateRunning {
			// The window exists solely as the task's wake target.
			w.Destroy()
		}
		return 0
	default:
		return msgqueue.DefWindowProc(w, msg, wparam, lparam)
	}
}
