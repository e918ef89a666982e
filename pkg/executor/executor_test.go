package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timokroeger/winmsg-executor/pkg/future"
	"github.com/timokroeger/winmsg-executor/pkg/msgqueue"
)

// yieldThen returns a future that wakes itself n times before resolving
// to v, counting every poll through the given counter.
func yieldThen[T any](polls *int, n int, v T) future.Future[T] {
	remaining := n
	return future.PollFunc[T](func(cx *future.Context) (T, bool) {
		*polls++
		if remaining > 0 {
			remaining--
			cx.Waker().Wake()
			var zero T
			return zero, false
		}
		return v, true
	})
}

func TestBlockOnYieldCounter(t *testing.T) {
	// A future that yields 3 times is polled exactly 4 times: the
	// initial schedule plus one poll per self-wake.
	polls := 0
	v, err := BlockOn(yieldThen(&polls, 3, 42))

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 4, polls)
}

func TestBlockOnReady(t *testing.T) {
	v, err := BlockOn(future.Ready("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestJoinBeforeComplete(t *testing.T) {
	// T1 yields twice then resolves; T2 yields once then awaits T1.
	var t1Polls, t2Polls int
	t1 := Spawn(yieldThen(&t1Polls, 2, "hello"))

	yielded := false
	t2 := future.PollFunc[string](func(cx *future.Context) (string, bool) {
		t2Polls++
		if !yielded {
			yielded = true
			cx.Waker().Wake()
			return "", false
		}
		return t1.Poll(cx)
	})

	v, err := BlockOn(t2)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
	assert.Equal(t, 3, t1Polls)
	assert.GreaterOrEqual(t, t2Polls, 2)
}

func TestDetachedTaskRunsToCompletion(t *testing.T) {
	// The task increments a counter on each of its 5 yields; dropping
	// the join handle must not stop it.
	counter := 0
	h := Spawn(future.PollFunc[struct{}](func(cx *future.Context) (struct{}, bool) {
		if counter < 5 {
			counter++
			cx.Waker().Wake()
			return struct{}{}, false
		}
		QuitMessageLoop()
		return struct{}{}, true
	}))
	h.Detach()

	RunMessageLoop()
	assert.Equal(t, 5, counter)
}

func TestNestedBlockOn(t *testing.T) {
	v, err := BlockOn(future.PollFunc[int](func(cx *future.Context) (int, bool) {
		inner, err := BlockOn(future.Ready(7))
		require.NoError(t, err)
		return inner + 1, true
	}))

	require.NoError(t, err)
	assert.Equal(t, 8, v)
}

func TestNestedBlockOnKeepsSiblingsRunning(t *testing.T) {
	// A sibling task spawned before the nested pump must keep making
	// progress while the nested pump owns the queue.
	siblingPolls := 0
	sibling := Spawn(yieldThen(&siblingPolls, 4, struct{}{}))

	v, err := BlockOn(future.PollFunc[int](func(cx *future.Context) (int, bool) {
		// The nested pump drains the sibling's wakes while driving its
		// own future to completion.
		_, err := BlockOn[struct{}](sibling)
		require.NoError(t, err)
		return 1, true
	}))

	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 5, siblingPolls)
}

func TestReservedIDTargetingWindowForwarded(t *testing.T) {
	// A message with the wake id aimed at a real window is not executor
	// traffic; it must reach the window procedure untouched.
	var got []uint32
	w, err := msgqueue.NewWindow(func(w *msgqueue.Window, msg uint32, wparam, lparam uintptr) uintptr {
		if msg >= msgqueue.MsgApp {
			got = append(got, msg)
		}
		return msgqueue.DefWindowProc(w, msg, wparam, lparam)
	})
	require.NoError(t, err)
	defer w.Destroy()

	h := Spawn(future.PollFunc[struct{}](func(cx *future.Context) (struct{}, bool) {
		require.NoError(t, w.Post(MsgIDWake, 0, 0))
		QuitMessageLoop()
		return struct{}{}, true
	}))
	h.Detach()

	RunMessageLoop()
	assert.Equal(t, []uint32{MsgIDWake}, got)
}

func TestWakeFromAnotherGoroutine(t *testing.T) {
	polls := 0
	var once sync.Once
	f := future.PollFunc[int](func(cx *future.Context) (int, bool) {
		polls++
		if polls == 1 {
			w := cx.Waker()
			once.Do(func() {
				go func() {
					time.Sleep(10 * time.Millisecond)
					w.Wake()
				}()
			})
			return 0, false
		}
		return polls, true
	})

	v, err := BlockOn(f)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v, 2)
	assert.GreaterOrEqual(t, polls, 2)
}

func TestBlockOnQuitRequested(t *testing.T) {
	QuitMessageLoop()

	// The future never wakes itself, so the sentinel wins.
	v, err := BlockOn(future.PollFunc[int](func(cx *future.Context) (int, bool) {
		return 0, false
	}))
	assert.ErrorIs(t, err, ErrQuitRequested)
	assert.Zero(t, v)
}

func TestRunMessageLoopWhileRunningPanics(t *testing.T) {
	h := Spawn(future.PollFunc[struct{}](func(cx *future.Context) (struct{}, bool) {
		assert.Panics(t, RunMessageLoop)
		assert.Panics(t, func() { RunMessageLoopWithFilter(nil) })
		QuitMessageLoop()
		return struct{}{}, true
	}))
	h.Detach()
	RunMessageLoop()
}

func TestUserFilter(t *testing.T) {
	const msgCustom = msgqueue.MsgApp + 11
	var filtered []uintptr

	h := Spawn(future.PollFunc[struct{}](func(cx *future.Context) (struct{}, bool) {
		q := msgqueue.Attach()
		require.NoError(t, q.PostMsg(msgqueue.Msg{ID: msgCustom, WParam: 5}))
		require.NoError(t, q.PostMsg(msgqueue.Msg{ID: msgCustom, WParam: 6}))
		QuitMessageLoop()
		return struct{}{}, true
	}))
	h.Detach()

	RunMessageLoopWithFilter(func(m *msgqueue.Msg) bool {
		if m.Window == nil && m.ID == msgCustom {
			filtered = append(filtered, m.WParam)
			return true
		}
		return false
	})

	assert.Equal(t, []uintptr{5, 6}, filtered)
}

func TestFilterPanicRethrownAtLoopBoundary(t *testing.T) {
	const msgBoom = msgqueue.MsgApp + 12
	q := msgqueue.Attach()
	require.NoError(t, q.PostMsg(msgqueue.Msg{ID: msgBoom}))

	assert.PanicsWithValue(t, "filter boom", func() {
		RunMessageLoopWithFilter(func(m *msgqueue.Msg) bool {
			if m.Window == nil && m.ID == msgBoom {
				panic("filter boom")
			}
			return false
		})
	})

	// The unwind path restored the loop state: the thread can run again.
	QuitMessageLoop()
	assert.NotPanics(t, RunMessageLoop)
}

func TestFuturePanicPropagatesAndLoopRecovers(t *testing.T) {
	h := Spawn(future.PollFunc[struct{}](func(cx *future.Context) (struct{}, bool) {
		panic("task boom")
	}))
	h.Detach()

	assert.PanicsWithValue(t, "task boom", RunMessageLoop)

	// Invariants were restored before the panic escaped; the loop is
	// usable and a later quit is honored.
	QuitMessageLoop()
	assert.NotPanics(t, RunMessageLoop)
}

func TestSpawnBeforeLoopRuns(t *testing.T) {
	// The initial wake sits in the queue until a loop runs.
	polls := 0
	h := Spawn(yieldThen(&polls, 1, 9))
	assert.Equal(t, 0, polls)

	v, err := BlockOn[int](h)
	require.NoError(t, err)
	assert.Equal(t, 9, v)
	assert.Equal(t, 2, polls)
}

func TestPollCountBoundedByWakes(t *testing.T) {
	// Property: polls <= wakes + 1. Two extra wakes in one poll must
	// cause at most two further polls, and at least one.
	polls := 0
	woken := false
	h := Spawn(future.PollFunc[struct{}](func(cx *future.Context) (struct{}, bool) {
		polls++
		if !woken {
			woken = true
			cx.Waker().Wake()
			cx.Waker().Wake()
			return struct{}{}, false
		}
		return struct{}{}, true
	}))

	v, err := BlockOn[struct{}](h)
	require.NoError(t, err)
	_ = v
	assert.GreaterOrEqual(t, polls, 2)
	assert.LessOrEqual(t, polls, 3)
}

func TestHandlePost(t *testing.T) {
	ran := false
	h := CurrentHandle()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = h.Post(func() {
			ran = true
			QuitMessageLoop()
		})
	}()

	RunMessageLoop()
	assert.True(t, ran)
}

func TestHandlePostToDeadThread(t *testing.T) {
	var h Handle
	done := make(chan struct{})
	go func() {
		defer close(done)
		h = CurrentHandle()
		q, ok := msgqueue.Current()
		if assert.True(t, ok) {
			q.Detach()
		}
	}()
	<-done

	err := h.Post(func() {})
	assert.ErrorIs(t, err, msgqueue.ErrThreadQueueGone)
}
