package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type entry struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	entries []entry
}

func (c *captureLogger) add(level string, f map[string]any, msg string) {
	c.entries = append(c.entries, entry{level: level, msg: msg, fields: f})
}

func (c *captureLogger) Info(f map[string]any, msg string)  { c.add("info", f, msg) }
func (c *captureLogger) Error(f map[string]any, msg string) { c.add("error", f, msg) }
func (c *captureLogger) Debug(f map[string]any, msg string) { c.add("debug", f, msg) }
func (c *captureLogger) Warn(f map[string]any, msg string)  { c.add("warn", f, msg) }
func (c *captureLogger) Panic(f map[string]any, msg string) { c.add("panic", f, msg) }
func (c *captureLogger) Fatal(f map[string]any, msg string) { c.add("fatal", f, msg) }

func swapGlobal(t *testing.T, l Logger) {
	t.Helper()
	prev := GetLogger()
	SetLogger(l)
	t.Cleanup(func() { SetLogger(prev) })
}

func TestGlobalHelpersRouteToInstalledLogger(t *testing.T) {
	capture := &captureLogger{}
	swapGlobal(t, capture)

	Debug(nil, "Received DNS query")
	Info(map[string]any{"name": "doubleclick.net"}, "Blocked query")
	Warn(nil, "Blocklist store disabled")
	Error(nil, "Upstream resolution failed")

	levels := make([]string, 0, len(capture.entries))
	for _, e := range capture.entries {
		levels = append(levels, e.level)
	}
	assert.Equal(t, []string{"debug", "info", "warn", "error"}, levels)
	assert.Equal(t, "doubleclick.net", capture.entries[1].fields["name"])
}

func TestConfigure(t *testing.T) {
	swapGlobal(t, GetLogger())

	require.NoError(t, Configure("dev", "debug"))
	require.NoError(t, Configure("prod", "WARN"))
	assert.ErrorContains(t, Configure("prod", "chatty"), "invalid log level")
}

func TestZapLoggerPanics(t *testing.T) {
	swapGlobal(t, newZapLogger(true, zapcore.DebugLevel))
	Info(map[string]any{"feeds": 3, "error": errors.New("timeout")}, "Ingestion finished")
	assert.Panics(t, func() { Panic(nil, "unreachable") })
}

func TestZapFields(t *testing.T) {
	assert.Nil(t, zapFields(map[string]any{}))

	fields := zapFields(map[string]any{
		"upstream": "1.1.1.1:53",
		"attempts": 2,
		"error":    errors.New("i/o timeout"),
	})
	require.Len(t, fields, 3)
	assert.Equal(t, []string{"attempts", "error", "upstream"}, []string{fields[0].Key, fields[1].Key, fields[2].Key})
	assert.Equal(t, zapcore.ErrorType, fields[1].Type)
}

func TestComponent(t *testing.T) {
	capture := &captureLogger{}
	ingest := Component(capture, "ingest")

	ingest.Info(map[string]any{"feed": "adware"}, "Feed ingested")
	ingest.Warn(nil, "Feed skipped")
	ingest.Error(map[string]any{"component": "override"}, "Feed failed")

	require.Len(t, capture.entries, 3)
	assert.Equal(t, map[string]any{"component": "ingest", "feed": "adware"}, capture.entries[0].fields)
	assert.Equal(t, map[string]any{"component": "ingest"}, capture.entries[1].fields)
	assert.Equal(t, "override", capture.entries[2].fields["component"])
}

func TestNoopLogger(t *testing.T) {
	swapGlobal(t, NewNoopLogger())
	assert.NotPanics(t, func() {
		Debug(nil, "x")
		Info(nil, "x")
		Warn(nil, "x")
		Error(nil, "x")
		Panic(nil, "x")
		Fatal(nil, "x")
	})
}
