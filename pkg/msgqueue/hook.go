package msgqueue

import (
	"github.com/timokroeger/winmsg-executor/internal/metrics"
)

// MsgFilterHook is a per-thread pre-dispatch filter registration. Every
// pump on the thread, including modal ones, runs the installed filter
// before handing a message to Dispatch; a filter that returns true has
// consumed the message.
type MsgFilterHook struct {
	q  *Queue
	fn func(*Msg) bool
}

// InstallMsgFilter registers fn as the thread's message filter. Only a
// single registration may exist at a time; installing over a live hook
// fails with ErrFilterInstalled. Owner only.
func (q *Queue) InstallMsgFilter(fn func(*Msg) bool) (*MsgFilterHook, error) {
	q.assertOwner("InstallMsgFilter")
	if q.filter != nil {
		return nil, ErrFilterInstalled
	}
	h := &MsgFilterHook{q: q, fn: fn}
	q.filter = h
	return h, nil
}

// Uninstall removes the registration and releases the filter closure.
// Safe to call more than once. Owner only.
func (h *MsgFilterHook) Uninstall() {
	h.q.assertOwner("Uninstall")
	if h.q.filter == h {
		h.q.filter = nil
	}
	h.fn = nil
}

// RunMsgFilter offers a message to the installed filter, if any, and
// reports whether the message was consumed. Owner only.
func (q *Queue) RunMsgFilter(m *Msg) bool {
	q.assertOwner("RunMsgFilter")
	if q.filter == nil || q.filter.fn == nil {
		return false
	}
	if q.filter.fn(m) {
		metrics.FilterHits.Inc()
		return true
	}
	return false
}

// RunModal is a nested message pump: it keeps receiving and dispatching
// messages, running the installed filter first, until the given window is
// destroyed. A quit sentinel observed while the modal pump runs is
// re-posted so outer pumps unwind too, and RunModal returns ErrQuit.
// Owner only.
func RunModal(w *Window) error {
	q := w.q
	q.assertOwner("RunModal")
	metrics.ModalPumps.Inc()

	for !w.Destroyed() {
		m, ok := q.Get()
		if !ok {
			q.PostQuit()
			return ErrQuit
		}
		if q.RunMsgFilter(&m) {
			continue
		}
		Dispatch(&m)
	}
	return nil
}
