// Package future defines the pull-based asynchronous value model the
// executor drives: a Future makes progress only when polled, and a
// pending Future arranges its own re-poll by arming the Waker it was
// handed through the poll Context.
package future

// A Waker is a handle to request that the task owning a pending Future be
// polled again. Wakers are plain values: cloneable, sendable across
// goroutines, and callable from any of them. Waking is a request, not a
// count; the receiver tolerates spurious wakes.
type Waker interface {
	// Wake signals that the associated task is ready to make progress
	// and should be polled again. Must not block.
	Wake()
}

// The WakerFunc type is an adapter to allow the use of ordinary functions
// as a Waker.
type WakerFunc func()

// Wake implements Waker by calling f.
func (f WakerFunc) Wake() { f() }

type nopWaker struct{}

func (nopWaker) Wake() {}

// NopWaker is a Waker that does nothing. Useful as an initial value and
// for polling a Future whose readiness is already known.
var NopWaker Waker = nopWaker{}

// Context carries the waker of the task performing the current poll.
type Context struct {
	waker Waker
}

// NewContext returns a Context wrapping the given waker. A nil waker is
// replaced with NopWaker.
func NewContext(w Waker) *Context {
	if w == nil {
		w = NopWaker
	}
	return &Context{waker: w}
}

// Waker returns the waker of the task performing the current poll.
func (cx *Context) Waker() Waker { return cx.waker }

// A Future is an asynchronous computation producing a single value of
// type T.
//
// Poll attempts to resolve the Future: it returns (value, true) once the
// value is available and (zero, false) while the computation is still
// pending. A pending poll must arrange for cx.Waker() to be invoked when
// progress becomes possible; only the waker from the most recent poll is
// guaranteed to be honored. Poll must never block, and a Future must not
// be polled again after it has returned ready.
type Future[T any] interface {
	Poll(cx *Context) (T, bool)
}

// The PollFunc type is an adapter to allow the use of ordinary functions
// as a Future.
type PollFunc[T any] func(cx *Context) (T, bool)

// Poll implements Future by calling f.
func (f PollFunc[T]) Poll(cx *Context) (T, bool) { return f(cx) }
