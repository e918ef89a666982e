// The demo binary runs a message-loop executor on the main thread and a
// small HTTP control plane beside it: POST /tasks spawns counter tasks
// onto the loop thread, GET /events streams executor events over a
// WebSocket, DELETE /loop asks the loop to quit, and /metrics serves
// Prometheus gauges and counters.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/timokroeger/winmsg-executor/internal/api"
	"github.com/timokroeger/winmsg-executor/internal/config"
	"github.com/timokroeger/winmsg-executor/internal/events"
	"github.com/timokroeger/winmsg-executor/internal/logger"
	"github.com/timokroeger/winmsg-executor/pkg/executor"
	"github.com/timokroeger/winmsg-executor/pkg/msgqueue"
)

func main() {
	// The executor thread must stay put for the life of the process.
	runtime.LockOSThread()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var file *logger.FileConfig
	if cfg.Log.File != "" {
		file = &logger.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
	}
	logger.InitWithFile(cfg.LogLevel, cfg.Log.Pretty, file)

	log := logger.Get()
	log.Info().Msg("Starting demo executor...")

	msgqueue.SetDepthWarning(cfg.Queue.DepthWarn)

	// Attach the loop thread's queue and hand its address to the server.
	loop := executor.CurrentHandle()

	srv := api.NewServer(cfg, loop, events.Default())
	go func() {
		if err := srv.Listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("control server failed")
		}
	}()

	// Route SIGINT/SIGTERM into a quit sentinel on the loop thread.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("Shutting down...")
		if err := loop.Post(executor.QuitMessageLoop); err != nil {
			log.Error().Err(err).Msg("loop thread already gone")
		}
	}()

	// Run the message loop until a quit sentinel is observed. Every task
	// spawned through the control server is polled here, on this thread.
	executor.RunMessageLoop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("control server shutdown error")
	}

	log.Info().Msg("Demo executor stopped")
}
