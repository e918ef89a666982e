// Package msgqueue models a per-thread message queue in the style of the
// Win32 thread message queue: a FIFO of messages owned by a single
// goroutine, with non-blocking posts from any goroutine, a blocking
// receive on the owner, a quit sentinel that is delivered once the queue
// has drained, message-only windows, and a per-thread pre-dispatch filter
// hook that every pump on the thread runs before default dispatch.
//
// "Thread" identity is the goroutine id of the owning goroutine. Callers
// that need a real OS thread underneath (for example to interoperate with
// native UI facilities) should pin with runtime.LockOSThread before
// attaching a queue.
package msgqueue

import (
	"errors"
	"strconv"
	"sync"

	"github.com/petermattis/goid"

	"github.com/timokroeger/winmsg-executor/internal/logger"
	"github.com/timokroeger/winmsg-executor/internal/metrics"
)

// Message id constants. Ids at or above MsgApp are application private;
// the executor reserves ids in that range for wake and synchronize
// messages.
const (
	MsgNull    uint32 = 0x0000
	MsgCreate  uint32 = 0x0001
	MsgDestroy uint32 = 0x0002
	MsgClose   uint32 = 0x0010
	MsgUser    uint32 = 0x0400
	MsgApp     uint32 = 0x8000
)

// Error definitions
var (
	ErrThreadQueueGone = errors.New("msgqueue: target thread has no message queue")
	ErrQueueDetached   = errors.New("msgqueue: queue has been detached")
	ErrFilterInstalled = errors.New("msgqueue: a message filter is already installed on this thread")
	ErrWindowDestroyed = errors.New("msgqueue: window has been destroyed")
	ErrQuit            = errors.New("msgqueue: quit sentinel delivered")
)

// Msg is a single queued message. A nil Window marks a thread message;
// those are never routed to a window procedure and are dropped by
// Dispatch unless a filter consumes them first. WParam and LParam are
// opaque payload words whose meaning is private to the poster and the
// consumer.
type Msg struct {
	Window *Window
	ID     uint32
	WParam uintptr
	LParam uintptr
}

var (
	registryMu sync.RWMutex
	registry   = make(map[int64]*Queue)

	depthWarnMu sync.Mutex
	depthWarn   = 10000
)

// SetDepthWarning sets the posted-message depth above which newly attached
// queues log a warning and bump the depth-exceeded metric. Zero disables
// the watermark. Delivery stays best effort either way; the queue itself
// is unbounded.
func SetDepthWarning(n int) {
	depthWarnMu.Lock()
	depthWarn = n
	depthWarnMu.Unlock()
}

// Queue is the per-thread message queue. All receive-side operations must
// run on the owning goroutine; Post and PostQuit may be called from
// anywhere.
type Queue struct {
	tid int64

	mu       sync.Mutex
	cond     *sync.Cond
	msgs     []Msg
	head     int
	quit     bool
	detached bool

	warnDepth int
	warned    bool

	// Receive-side state, touched only by the owner goroutine.
	filter *MsgFilterHook
}

// Attach returns the current goroutine's queue, creating it on first use.
// Creation is lazy in the same way the Win32 queue is: the first post or
// receive related call on a thread brings the queue into existence.
func Attach() *Queue {
	tid := goid.Get()

	registryMu.Lock()
	defer registryMu.Unlock()
	if q, ok := registry[tid]; ok {
		return q
	}

	depthWarnMu.Lock()
	warn := depthWarn
	depthWarnMu.Unlock()

	q := &Queue{tid: tid, warnDepth: warn}
	q.cond = sync.NewCond(&q.mu)
	registry[tid] = q

	logger.WithComponent("msgqueue").Debug().
		Int64("thread_id", tid).
		Msg("message queue attached")
	return q
}

// Current returns the current goroutine's queue without creating one.
func Current() (*Queue, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	q, ok := registry[goid.Get()]
	return q, ok
}

// ThreadID returns the id of the owning goroutine.
func (q *Queue) ThreadID() int64 {
	return q.tid
}

// Detach removes the queue from the thread registry. Owner only. Posts
// targeting the thread fail with ErrThreadQueueGone afterwards; messages
// still queued are released.
func (q *Queue) Detach() {
	q.assertOwner("Detach")

	registryMu.Lock()
	delete(registry, q.tid)
	registryMu.Unlock()

	q.mu.Lock()
	q.msgs = nil
	q.head = 0
	q.quit = false
	q.detached = true
	q.mu.Unlock()

	logger.WithComponent("msgqueue").Debug().
		Int64("thread_id", q.tid).
		Msg("message queue detached")
}

// Post enqueues a message on the queue owned by the given thread.
// Non-blocking and callable from any goroutine. When the target thread
// has no queue (never attached, or detached because the goroutine is
// gone) the message is not enqueued and the caller is responsible for
// releasing any resource carried in the payload words.
func Post(tid int64, m Msg) error {
	registryMu.RLock()
	q, ok := registry[tid]
	registryMu.RUnlock()
	if !ok {
		return ErrThreadQueueGone
	}
	return q.post(m)
}

// PostMsg enqueues a message on this queue. Callable from any goroutine.
func (q *Queue) PostMsg(m Msg) error {
	return q.post(m)
}

func (q *Queue) post(m Msg) error {
	q.mu.Lock()
	if q.detached {
		q.mu.Unlock()
		return ErrQueueDetached
	}
	q.msgs = append(q.msgs, m)
	depth := len(q.msgs) - q.head
	warn := q.warnDepth > 0 && depth > q.warnDepth && !q.warned
	if warn {
		q.warned = true
	}
	q.cond.Signal()
	q.mu.Unlock()

	metrics.QueueDepth.WithLabelValues(strconv.FormatInt(q.tid, 10)).Set(float64(depth))
	if warn {
		metrics.QueueDepthExceeded.Inc()
		logger.WithComponent("msgqueue").Warn().
			Int64("thread_id", q.tid).
			Int("depth", depth).
			Int("watermark", q.warnDepth).
			Msg("message queue depth exceeded watermark")
	}
	return nil
}

// PostQuit raises the quit sentinel. Callable from any goroutine. The
// sentinel is delivered by Get only once all posted messages have been
// consumed, matching the priority of the native quit message.
func (q *Queue) PostQuit() {
	q.mu.Lock()
	q.quit = true
	q.cond.Signal()
	q.mu.Unlock()
}

// Get blocks until a message or the quit sentinel is available. The
// second result is false when the quit sentinel was delivered; the
// sentinel is consumed so a later pump on the same thread starts fresh.
// Owner goroutine only.
func (q *Queue) Get() (Msg, bool) {
	q.assertOwner("Get")

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.head < len(q.msgs) {
			m := q.msgs[q.head]
			q.msgs[q.head] = Msg{}
			q.head++
			if q.head == len(q.msgs) {
				q.msgs = q.msgs[:0]
				q.head = 0
				q.warned = false
			}
			metrics.QueueDepth.WithLabelValues(strconv.FormatInt(q.tid, 10)).Set(float64(len(q.msgs) - q.head))
			return m, true
		}
		if q.quit {
			q.quit = false
			return Msg{}, false
		}
		q.cond.Wait()
	}
}

// Len reports the number of posted messages not yet consumed.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs) - q.head
}

func (q *Queue) assertOwner(op string) {
	if goid.Get() != q.tid {
		panic("msgqueue: " + op + " called from a goroutine that does not own the queue")
	}
}
