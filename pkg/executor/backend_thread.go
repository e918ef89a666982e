package executor

import (
	"runtime/cgo"

	"github.com/petermattis/goid"

	"github.com/timokroeger/winmsg-executor/internal/metrics"
	"github.com/timokroeger/winmsg-executor/pkg/msgqueue"
)

// threadTarget is the thread-queue wake channel: wakes are posted as
// thread messages carrying one task reference in the payload word, and
// the executor's pre-dispatch filter is the sole decoder.
type threadTarget struct {
	tid int64
}

func (tt threadTarget) backend() string { return "thread" }

func (tt threadTarget) schedule(t *task) {
	origin := "local"
	if goid.Get() != tt.tid {
		origin = "remote"
	}

	// The handle is the reference transferred into the message; the
	// consumer deletes it exactly once.
	h := cgo.NewHandle(t)
	err := msgqueue.Post(tt.tid, msgqueue.Msg{
		ID:     MsgIDWake,
		LParam: uintptr(h),
	})
	if err != nil {
		// The owning thread is gone. Release the reference; the task
		// itself can no longer be polled but nothing is corrupted.
		h.Delete()
		metrics.WakesDropped.Inc()
		return
	}
	metrics.WakesPosted.WithLabelValues(origin).Inc()
}
