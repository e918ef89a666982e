package logger

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logging is off until Init runs; a library must not write to a host
// application's stdout uninvited.
var log = zerolog.Nop()

// FileConfig describes an optional rotating log file sink.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func Init(level string, pretty bool) {
	InitWithFile(level, pretty, nil)
}

// InitWithFile initializes the global logger, optionally teeing output
// into a size/age rotated file.
func InitWithFile(level string, pretty bool, file *FileConfig) {
	// Parse log level
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	var output io.Writer = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	if file != nil && file.Path != "" {
		rotated := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   file.Compress,
		}
		output = zerolog.MultiLevelWriter(output, rotated)
	}

	log = zerolog.New(output).
		With().
		Timestamp().
		Logger()
}

func Get() *zerolog.Logger {
	return &log
}

func WithComponent(component string) *zerolog.Logger {
	l := log.With().Str("component", component).Logger()
	return &l
}

func WithTask(taskID string) *zerolog.Logger {
	l := log.With().Str("task_id", taskID).Logger()
	return &l
}

func WithThread(tid int64) *zerolog.Logger {
	l := log.With().Str("thread_id", strconv.FormatInt(tid, 10)).Logger()
	return &l
}

// Convenience methods
func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}
