package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	return NewLogger(&Config{
		Level:   level,
		Format:  "text",
		Output:  buf,
		Sync:    true,
		NoColor: true,
	})
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json format", config: &Config{Level: LevelInfo, Format: "json", Output: &bytes.Buffer{}}},
		{name: "text format", config: &Config{Level: LevelDebug, Format: "text", Output: &bytes.Buffer{}}},
		{name: "nil output", config: &Config{Level: LevelDebug, Sync: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, NewLogger(tt.config))
		})
	}
}

func TestLoggerContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := syncLogger(&buf, LevelDebug)

	dev := logger.WithDevice("1GB")
	assert.Equal(t, "1GB", dev.URI())
	dev.Info("opened")
	assert.Contains(t, buf.String(), "uri=1GB")

	buf.Reset()
	dev.WithBackend("ramdisk").WithQueue(8).Info("queue ready")
	out := buf.String()
	assert.Contains(t, out, "uri=1GB")
	assert.Contains(t, out, "be=ramdisk")
	assert.Contains(t, out, "qdepth=8")

	buf.Reset()
	dev.WithCmd(0x06, true).Debug("dispatch")
	out = buf.String()
	assert.Contains(t, out, "opc=6")
	assert.Contains(t, out, "admin=true")
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := syncLogger(&buf, LevelDebug)

	logger.WithError(errors.New("test error")).Error("operation failed")
	assert.Contains(t, buf.String(), "test error")

	buf.Reset()
	logger.Warn("backend failed", "err", errors.New("no such device"), "be", "posix")
	assert.Contains(t, buf.String(), "no such device")
	assert.Contains(t, buf.String(), "be=posix")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := syncLogger(&buf, LevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden too")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(syncLogger(&buf, LevelDebug))

	Debug("debug message", "key", "value")
	assert.Contains(t, buf.String(), "debug message")
	assert.Contains(t, buf.String(), "key=value")

	buf.Reset()
	Info("info message")
	assert.Contains(t, buf.String(), "info message")

	buf.Reset()
	Warn("warning message")
	assert.Contains(t, buf.String(), "warning message")

	buf.Reset()
	Error("error message")
	assert.Contains(t, buf.String(), "error message")
}

func TestAsyncWriterClose(t *testing.T) {
	var buf bytes.Buffer
	aw := newAsyncWriter(&buf, 4)

	n, err := aw.Write([]byte("line\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, aw.Close())
	assert.Equal(t, "line\n", buf.String())

	_, err = aw.Write([]byte("late"))
	assert.Error(t, err)
}

func TestNopLogger(t *testing.T) {
	l := Nop()
	l.Error("dropped", "k", 1)
	l.WithDevice("x").WithQueue(1).Info("dropped")
}
