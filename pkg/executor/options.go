package executor

// SpawnOption configures how a task is wired to its wake channel.
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	windowWake bool
}

// WithThreadWake selects the thread-queue wake channel: wakes are thread
// messages with the reserved MsgIDWake id, decoded by the executor's
// pre-dispatch filter. This is the default.
func WithThreadWake() SpawnOption {
	return func(cfg *spawnConfig) { cfg.windowWake = false }
}

// WithWindowWake gives the task a dedicated message-only window as its
// wake target. Wakes then travel the default dispatch path into the
// executor's window procedure instead of the filter chain.
func WithWindowWake() SpawnOption {
	return func(cfg *spawnConfig) { cfg.windowWake = true }
}
