package msgqueue

import (
	"sync/atomic"

	"github.com/timokroeger/winmsg-executor/internal/logger"
)

// WndProc handles messages dispatched to a window. Returning a value is
// final; handlers that do not care about a message should fall through to
// DefWindowProc.
type WndProc func(w *Window, msg uint32, wparam, lparam uintptr) uintptr

// Window is a message-only window: invisible, excluded from any broadcast
// set, useful purely as a message target. It is bound to the queue of the
// goroutine that created it; all methods except Post and Destroyed are
// owner-only.
type Window struct {
	q         *Queue
	wndproc   WndProc
	userData  any
	destroyed atomic.Bool
}

// NewWindow creates a message-only window on the current goroutine's
// queue, attaching the queue first if necessary. The window procedure
// receives a MsgCreate notification before NewWindow returns.
func NewWindow(wndproc WndProc) (*Window, error) {
	q := Attach()
	w := &Window{q: q, wndproc: wndproc}
	if wndproc != nil {
		wndproc(w, MsgCreate, 0, 0)
	}
	return w, nil
}

// ThreadID returns the id of the thread whose queue owns the window.
func (w *Window) ThreadID() int64 {
	return w.q.tid
}

// Post enqueues a message targeting this window. Callable from any
// goroutine. Fails once the window has been destroyed; the caller owns
// any payload resource in that case.
func (w *Window) Post(id uint32, wparam, lparam uintptr) error {
	if w.destroyed.Load() {
		return ErrWindowDestroyed
	}
	return w.q.post(Msg{Window: w, ID: id, WParam: wparam, LParam: lparam})
}

// SetUserData stores a value in the window's user-data slot. Owner only.
func (w *Window) SetUserData(v any) {
	w.q.assertOwner("SetUserData")
	w.userData = v
}

// UserData returns the value stored with SetUserData. Owner only.
func (w *Window) UserData() any {
	w.q.assertOwner("UserData")
	return w.userData
}

// Destroy tears the window down: the window procedure receives a final
// MsgDestroy notification, after which the user data is released and the
// procedure is never called again. Safe to call more than once; later
// calls are no-ops. Owner only.
func (w *Window) Destroy() {
	w.q.assertOwner("Destroy")
	if !w.destroyed.CompareAndSwap(false, true) {
		return
	}
	if w.wndproc != nil {
		w.wndproc(w, MsgDestroy, 0, 0)
	}
	w.wndproc = nil
	w.userData = nil
}

// Destroyed reports whether Destroy has run.
func (w *Window) Destroyed() bool {
	return w.destroyed.Load()
}

// Dispatch routes a message to its target window procedure. Messages for
// destroyed windows and unconsumed thread messages are dropped, the same
// way the native dispatcher ignores them. Owner goroutine only.
func Dispatch(m *Msg) uintptr {
	if m.Window == nil {
		// Thread message that no filter consumed.
		logger.WithComponent("msgqueue").Debug().
			Uint32("msg_id", m.ID).
			Msg("dropping unfiltered thread message")
		return 0
	}
	w := m.Window
	w.q.assertOwner("Dispatch")
	if w.destroyed.Load() {
		return 0
	}
	if w.wndproc == nil {
		return DefWindowProc(w, m.ID, m.WParam, m.LParam)
	}
	return w.wndproc(w, m.ID, m.WParam, m.LParam)
}

// DefWindowProc is the default message handler. MsgClose destroys the
// window; everything else is ignored.
func DefWindowProc(w *Window, msg uint32, _, _ uintptr) uintptr {
	if msg == MsgClose {
		w.Destroy()
	}
	return 0
}
