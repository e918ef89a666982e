package integration

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timokroeger/winmsg-executor/internal/events"
	"github.com/timokroeger/winmsg-executor/pkg/executor"
	"github.com/timokroeger/winmsg-executor/pkg/future"
	"github.com/timokroeger/winmsg-executor/pkg/msgqueue"
)

// TestModalInterleaving covers the reason the filter hook exists: while
// a modal pump owns the queue, previously spawned tasks keep running.
func TestModalInterleaving(t *testing.T) {
	var modal *msgqueue.Window
	bgPolls := 0
	bg := executor.Spawn(future.PollFunc[struct{}](func(cx *future.Context) (struct{}, bool) {
		bgPolls++
		if bgPolls <= 10 {
			cx.Waker().Wake()
			return struct{}{}, false
		}
		// Close the "dialog" so the modal pump hands control back.
		modal.Destroy()
		return struct{}{}, true
	}))
	bg.Detach()

	v, err := executor.BlockOn(future.PollFunc[int](func(cx *future.Context) (int, bool) {
		w, err := msgqueue.NewWindow(nil)
		require.NoError(t, err)
		modal = w

		// Blocks inside this poll; only the modal pump dequeues until
		// the window is destroyed.
		require.NoError(t, msgqueue.RunModal(w))
		return 99, true
	}))

	require.NoError(t, err)
	assert.Equal(t, 99, v)
	assert.Equal(t, 11, bgPolls)
	assert.True(t, modal.Destroyed())
}

// TestQuitPreservesRunningTasks: a quit stops polling but keeps task
// state; the task resumes on the next loop run.
func TestQuitPreservesRunningTasks(t *testing.T) {
	polls := 0
	var waker future.Waker
	h := executor.Spawn(future.PollFunc[int](func(cx *future.Context) (int, bool) {
		polls++
		if polls == 1 {
			waker = cx.Waker()
			executor.QuitMessageLoop()
			return 0, false
		}
		return 7, true
	}))

	executor.RunMessageLoop()
	assert.Equal(t, 1, polls)

	// Wake the parked task and run a second loop; it picks up where it
	// stopped.
	waker.Wake()
	v, err := executor.BlockOn[int](h)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, polls)
}

// TestCrossThreadWakeStorm hammers one task's waker from many
// goroutines; the owning thread observes at least one poll after the
// last wake and never races.
func TestCrossThreadWakeStorm(t *testing.T) {
	const (
		goroutines    = 8
		wakesPerGoros = 100
	)

	polls := 0
	wakerCh := make(chan future.Waker, 1)
	h := executor.Spawn(future.PollFunc[int](func(cx *future.Context) (int, bool) {
		polls++
		if polls == 1 {
			wakerCh <- cx.Waker()
		}
		return 0, false
	}))
	h.Detach()

	loop := executor.CurrentHandle()
	go func() {
		w := <-wakerCh
		var wg sync.WaitGroup
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < wakesPerGoros; j++ {
					w.Wake()
				}
			}()
		}
		wg.Wait()
		// All wakes posted; stop the loop after they drain.
		_ = loop.Post(executor.QuitMessageLoop)
	}()

	executor.RunMessageLoop()
	assert.GreaterOrEqual(t, polls, 2)
	assert.LessOrEqual(t, polls, 1+goroutines*wakesPerGoros)
}

// TestHandlePostSpawns mirrors the demo control plane: another
// goroutine posts a closure that spawns work on the loop thread.
func TestHandlePostSpawns(t *testing.T) {
	loop := executor.CurrentHandle()
	counter := 0

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = loop.Post(func() {
			h := executor.Spawn(future.PollFunc[struct{}](func(cx *future.Context) (struct{}, bool) {
				if counter < 3 {
					counter++
					cx.Waker().Wake()
					return struct{}{}, false
				}
				executor.QuitMessageLoop()
				return struct{}{}, true
			}))
			h.Detach()
		})
	}()

	executor.RunMessageLoop()
	assert.Equal(t, 3, counter)
}

// TestTaskEventsPublished checks the executor's event feed end to end.
func TestTaskEventsPublished(t *testing.T) {
	ch, cancel := events.Subscribe(events.EventTaskSpawned, events.EventTaskCompleted)
	defer cancel()

	h := executor.Spawn(future.Ready(1))
	taskID := h.TaskID()

	_, err := executor.BlockOn[int](h)
	require.NoError(t, err)

	seen := map[events.EventType]bool{}
	deadline := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-ch:
			if ev.Data["task_id"] == taskID {
				seen[ev.Type] = true
			}
		case <-deadline:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	assert.True(t, seen[events.EventTaskSpawned])
	assert.True(t, seen[events.EventTaskCompleted])
}
