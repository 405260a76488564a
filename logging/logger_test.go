package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug": LogLevelDebug,
		"INFO":  LogLevelInfo,
		"":      LogLevelInfo,
		"warn":  LogLevelWarn,
		"error": LogLevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestStructuredLogger_ContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf})

	log.WithComponent("runner").WithRun("thread-1", "run-1").WithContext("pipeline", "onboarding").
		Info("run started", "cloud_service_name", "Azure Storage Account")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "run started", lines[0]["msg"])
	assert.Equal(t, "runner", lines[0]["component"])
	assert.Equal(t, "thread-1", lines[0]["thread_id"])
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "onboarding", lines[0]["pipeline"])
	assert.Equal(t, "Azure Storage Account", lines[0]["cloud_service_name"])
}

func TestStructuredLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&LoggerConfig{Level: LogLevelWarn, Output: &buf})

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestStructuredLogger_DomainHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&LoggerConfig{Level: LogLevelInfo, Output: &buf})

	log.LogAgentCall("cloud-security-agent", "gpt-4o-mini", 42, time.Second, nil)
	log.LogStepExecution("RetrievePublicDocumentation", "Error", time.Second, "timeout")
	log.LogPipelineRun("onboarding", 2, time.Second, "halted", errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "Agent call completed", lines[0]["msg"])
	assert.Equal(t, true, lines[0]["success"])
	assert.Equal(t, float64(42), lines[0]["token_count"])

	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "timeout", lines[1]["error"])

	assert.Equal(t, "ERROR", lines[2]["level"])
	assert.Equal(t, "halted", lines[2]["status"])
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x", "k", "v")
		l.Warn("x")
		l.Error("x")
	})
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.Debug("d")
	l.Warn("w", "step", "WriteTerraform")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "WriteTerraform", lines[1]["step"])
}
