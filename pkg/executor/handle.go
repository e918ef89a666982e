package executor

import (
	"runtime/cgo"

	"github.com/timokroeger/winmsg-executor/internal/metrics"
	"github.com/timokroeger/winmsg-executor/pkg/msgqueue"
)

// Handle addresses an executor thread from other goroutines. Unlike the
// join handle it is a plain sendable value; the only operation it offers
// is posting work at the loop thread.
type Handle struct {
	tid int64
}

// CurrentHandle returns a handle to the calling goroutine's loop thread,
// attaching its message queue if necessary.
func CurrentHandle() Handle {
	return Handle{tid: msgqueue.Attach().ThreadID()}
}

// Post enqueues fn to run on the handle's loop thread, in message-queue
// order with everything else on that thread. Callable from any
// goroutine; returns msgqueue.ErrThreadQueueGone when the loop thread's
// queue no longer exists. The closure runs once a message loop pumps on
// the target thread, so it may freely call Spawn there.
func (h Handle) Post(fn func()) error {
	if fn == nil {
		return nil
	}
	ch := cgo.NewHandle(fn)
	err := msgqueue.Post(h.tid, msgqueue.Msg{
		ID:     MsgIDSync,
		LParam: uintptr(ch),
	})
	if err != nil {
		ch.Delete()
		return err
	}
	metrics.SyncPosts.Inc()
	return nil
}

// consumeSync resolves a synchronize message payload and runs the
// closure on the loop thread.
func consumeSync(lparam uintptr) {
	ch := cgo.Handle(lparam)
	fn := ch.Value().(func())
	ch.Delete()
	fn()
}
