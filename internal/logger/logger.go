package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
	mu            sync.RWMutex
)

// Options controls how the process-wide logger is built.
type Options struct {
	Level  string    // zerolog level name, defaults to info
	Format string    // "json" or "console"
	Output io.Writer // defaults to os.Stderr
}

// Init initializes the default logger. Only the first call has an effect;
// use Configure to replace the logger after startup.
func Init(opts ...Options) {
	once.Do(func() {
		var o Options
		if len(opts) > 0 {
			o = opts[0]
		}
		set(New(o))
	})
}

// Configure replaces the default logger, e.g. once config has been loaded.
func Configure(opts Options) {
	once.Do(func() {})
	set(New(opts))
}

// New builds a standalone logger from opts.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(opts.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func set(l zerolog.Logger) {
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

// Get returns the initialized default logger.
func Get() *zerolog.Logger {
	Init()
	mu.RLock()
	defer mu.RUnlock()
	l := defaultLogger
	return &l
}

// With returns a child of the default logger carrying the given key/value fields.
func With(fields ...any) zerolog.Logger {
	return Get().With().Fields(fields).Logger()
}

// Info logs an informational message using the default logger.
func Info(msg string, args ...any) {
	Get().Info().Fields(args).Msg(msg)
}

// Warn logs a warning message using the default logger.
func Warn(msg string, args ...any) {
	Get().Warn().Fields(args).Msg(msg)
}

// Error logs an error message using the default logger.
func Error(msg string, err error, args ...any) {
	Get().Error().Err(err).Fields(args).Msg(msg)
}

// Debug logs a debug message using the default logger.
func Debug(msg string, args ...any) {
	Get().Debug().Fields(args).Msg(msg)
}
