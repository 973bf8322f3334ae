package logging_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iti/qsim/logging"
)

type testStringer struct{}

func (testStringer) String() string {
	return "stringer-value"
}

func TestFormatValueTypes(t *testing.T) {
	now := time.Date(2026, 1, 16, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input any
		want  string
	}{
		{name: "string", input: "hello", want: "hello"},
		{name: "bool", input: true, want: "true"},
		{name: "int", input: 42, want: "42"},
		{name: "int64", input: int64(-7), want: "-7"},
		{name: "uint", input: uint(9), want: "9"},
		{name: "float32", input: float32(1.5), want: "1.500"},
		{name: "float64", input: 0.088, want: "0.088"},
		{name: "duration", input: 1500 * time.Millisecond, want: "1.5s"},
		{name: "time", input: now, want: now.Format(time.RFC3339Nano)},
		{name: "error", input: errors.New("boom"), want: "boom"},
		{name: "stringer", input: testStringer{}, want: "stringer-value"},
		{name: "fallback", input: []int{1, 2}, want: fmt.Sprintf("%v", []int{1, 2})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logging.FormatValue(tt.input))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	lg := logging.New(&buf, "sim", logging.LevelWarn)

	lg.Debug("hidden")
	lg.Info("hidden")
	lg.Warn("buffer full", logging.F("flow", 2), logging.F("dropped", 5))
	lg.Error("failed", logging.Err(errors.New("disk")))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[sim] [WARN] buffer full flow=2 dropped=5")
	assert.Contains(t, out, "[ERROR] failed error=disk")

	buf.Reset()
	lg.SetLevel(logging.LevelDebug)
	lg.Debug("shown")
	assert.Contains(t, buf.String(), "[DEBUG] shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logging.Level
	}{
		{"debug", logging.LevelDebug},
		{"INFO", logging.LevelInfo},
		{"", logging.LevelInfo},
		{"Warning", logging.LevelWarn},
		{"error", logging.LevelError},
	}
	for _, tt := range tests {
		got, err := logging.ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := logging.ParseLevel("loud")
	require.Error(t, err)
}

func TestNewLoggerInheritsDefaultLevel(t *testing.T) {
	def := logging.GetLogger()
	prev := def.Level()
	def.SetLevel(logging.LevelWarn)
	t.Cleanup(func() { def.SetLevel(prev) })

	lg := logging.NewLogger("store")
	assert.Equal(t, logging.LevelWarn, lg.Level())

	var buf bytes.Buffer
	lg.SetOutput(&buf)
	lg.Info("hidden")
	lg.Warn("trim failed", logging.F("max", 2))
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[store] ")
	assert.Contains(t, buf.String(), "[WARN] trim failed max=2")
}
