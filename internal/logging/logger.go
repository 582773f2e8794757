// Package logging provides structured logging for go-blkio
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with device and queue fields
type Logger struct {
	zlog zerolog.Logger
	uri  string
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels
type LogLevel int

const (
	LevelDebug LogLevel = LogLevel(zerolog.DebugLevel)
	LevelInfo  LogLevel = LogLevel(zerolog.InfoLevel)
	LevelWarn  LogLevel = LogLevel(zerolog.WarnLevel)
	LevelError LogLevel = LogLevel(zerolog.ErrorLevel)
)

// ParseLevel maps a level name to a LogLevel, falling back to info
func ParseLevel(name string) LogLevel {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return LevelInfo
	}
	return LogLevel(lvl)
}

// Config holds logging configuration
type Config struct {
	Level   LogLevel
	Format  string // "json" or "text"
	Output  io.Writer
	Sync    bool // synchronous writes, used by tests
	NoColor bool
}

// DefaultConfig returns the configuration used by Default
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelWarn,
		Format: "text",
		Output: os.Stderr,
	}
}

// asyncWriter hands log lines to a goroutine so hot paths never block on
// the output. Lines are dropped when the buffer is full.
type asyncWriter struct {
	out    io.Writer
	ch     chan []byte
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func newAsyncWriter(w io.Writer, depth int) *asyncWriter {
	aw := &asyncWriter{
		out:  w,
		ch:   make(chan []byte, depth),
		done: make(chan struct{}),
	}
	go aw.run()
	return aw
}

func (aw *asyncWriter) run() {
	defer close(aw.done)
	for line := range aw.ch {
		_, _ = aw.out.Write(line)
	}
}

func (aw *asyncWriter) Write(p []byte) (int, error) {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	if aw.closed {
		return 0, io.ErrClosedPipe
	}

	line := append([]byte(nil), p...)
	select {
	case aw.ch <- line:
	default:
	}
	return len(p), nil
}

func (aw *asyncWriter) Close() error {
	aw.mu.Lock()
	if !aw.closed {
		aw.closed = true
		close(aw.ch)
	}
	aw.mu.Unlock()
	<-aw.done
	return nil
}

// NewLogger creates a new structured logger
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	if !config.Sync {
		out = newAsyncWriter(out, 1024)
	}

	var zlog zerolog.Logger
	if config.Format == "json" {
		zlog = zerolog.New(out)
	} else {
		zlog = zerolog.New(zerolog.ConsoleWriter{Out: out, NoColor: config.NoColor})
	}

	return &Logger{
		zlog: zlog.With().Timestamp().Logger().Level(zerolog.Level(config.Level)),
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Default returns the default logger, creating it if necessary
func Default() *Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// URI returns the device URI attached by WithDevice, if any
func (l *Logger) URI() string {
	return l.uri
}

// WithDevice returns a logger tagged with a device URI
func (l *Logger) WithDevice(uri string) *Logger {
	return &Logger{
		zlog: l.zlog.With().Str("uri", uri).Logger(),
		uri:  uri,
	}
}

// WithBackend returns a logger tagged with a backend name
func (l *Logger) WithBackend(name string) *Logger {
	return &Logger{
		zlog: l.zlog.With().Str("be", name).Logger(),
		uri:  l.uri,
	}
}

// WithQueue returns a logger tagged with a queue depth
func (l *Logger) WithQueue(depth uint32) *Logger {
	return &Logger{
		zlog: l.zlog.With().Uint32("qdepth", depth).Logger(),
		uri:  l.uri,
	}
}

// WithCmd returns a logger tagged with a command opcode
func (l *Logger) WithCmd(opcode uint8, admin bool) *Logger {
	return &Logger{
		zlog: l.zlog.With().Uint8("opc", opcode).Bool("admin", admin).Logger(),
		uri:  l.uri,
	}
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		zlog: l.zlog.With().Err(err).Logger(),
		uri:  l.uri,
	}
}

func emit(event *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if err, isErr := args[i+1].(error); isErr {
			event = event.AnErr(key, err)
			continue
		}
		event = event.Interface(key, args[i+1])
	}
	event.Msg(msg)
}

func (l *Logger) Debug(msg string, args ...any) { emit(l.zlog.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...any)  { emit(l.zlog.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { emit(l.zlog.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { emit(l.zlog.Error(), msg, args) }

// Printf-style logging
func (l *Logger) Debugf(format string, args ...any) { l.zlog.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.zlog.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.zlog.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.zlog.Error().Msgf(format, args...) }

// Convenience functions for the default logger
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
