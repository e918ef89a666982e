package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timokroeger/winmsg-executor/pkg/future"
)

func TestJoinHandleReadyExactlyOnce(t *testing.T) {
	h := Spawn(future.Ready(5))

	v, err := BlockOn[int](h)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	// The ready value was moved out; polling again is a contract
	// violation.
	assert.Panics(t, func() {
		h.Poll(future.NewContext(future.NopWaker))
	})
}

func TestJoinHandleTaskID(t *testing.T) {
	h := Spawn(future.Ready(1))
	assert.NotEmpty(t, h.TaskID())

	h.Detach()
	assert.Empty(t, h.TaskID())

	// Drain the spawned task so it does not linger into other tests on
	// this goroutine.
	QuitMessageLoop()
	RunMessageLoop()
}

func TestDetachIsIdempotent(t *testing.T) {
	h := Spawn(future.Ready(1))
	h.Detach()
	assert.NotPanics(t, h.Detach)

	QuitMessageLoop()
	RunMessageLoop()
}

func TestDetachAfterCompletionDropsOutput(t *testing.T) {
	h := Spawn(future.Ready("output"))

	// Drive the task to completion without consuming the handle.
	done := false
	_, err := BlockOn(future.PollFunc[struct{}](func(cx *future.Context) (struct{}, bool) {
		if !done {
			done = true
			cx.Waker().Wake()
			return struct{}{}, false
		}
		return struct{}{}, true
	}))
	require.NoError(t, err)

	// Completed but unobserved; detaching discards the stored output.
	h.Detach()
	assert.Panics(t, func() {
		h.Poll(future.NewContext(future.NopWaker))
	})
}

func TestJoinWakerReplaced(t *testing.T) {
	// The most recent waker registered through the join handle is the
	// one woken on completion.
	var t1Polls int
	t1 := Spawn(yieldThen(&t1Polls, 2, 1))

	wakes := 0
	w := future.WakerFunc(func() { wakes++ })

	v, err := BlockOn(future.PollFunc[int](func(cx *future.Context) (int, bool) {
		// First register a throwaway waker, then the real one; only the
		// replacement may fire.
		if t1Polls < 3 {
			if _, ok := t1.Poll(future.NewContext(w)); ok {
				return 0, true
			}
			_, _ = t1.Poll(cx)
			return 0, false
		}
		return t1.Poll(cx)
	}))

	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 3, t1Polls)
	assert.Zero(t, wakes)
}
