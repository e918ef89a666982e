package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksSpawned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winmsg_tasks_spawned_total",
			Help: "Total number of tasks spawned",
		},
		[]string{"backend"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winmsg_tasks_completed_total",
			Help: "Total number of tasks that left the running state",
		},
		[]string{"status"},
	)

	TaskPolls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "winmsg_task_polls_total",
			Help: "Total number of task future polls",
		},
	)

	// Wake metrics
	WakesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winmsg_wakes_posted_total",
			Help: "Total number of wake messages posted",
		},
		[]string{"origin"},
	)

	WakesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "winmsg_wakes_dropped_total",
			Help: "Wake messages dropped because the target thread queue was gone",
		},
	)

	// Queue metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "winmsg_queue_depth",
			Help: "Current number of posted messages per thread queue",
		},
		[]string{"thread_id"},
	)

	QueueDepthExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "winmsg_queue_depth_exceeded_total",
			Help: "Times a thread queue crossed its depth watermark",
		},
	)

	// Loop metrics
	LoopRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "winmsg_loop_runs_total",
			Help: "Message loop runs by kind",
		},
		[]string{"kind"},
	)

	FilterHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "winmsg_filter_hits_total",
			Help: "Messages consumed by the pre-dispatch filter chain",
		},
	)

	ModalPumps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "winmsg_modal_pumps_total",
			Help: "Nested modal message pumps entered",
		},
	)

	SyncPosts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "winmsg_sync_posts_total",
			Help: "Closures posted to a loop thread via a Handle",
		},
	)
)
