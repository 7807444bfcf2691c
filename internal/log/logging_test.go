package log

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetupSplitsStdoutAndStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, closers, err := setup("debug", "", &stdout, &stderr)
	require.NoError(t, err)
	assert.Empty(t, closers)

	logger.Debug("dbg")
	logger.Info("inf")
	logger.Error("boom")

	assert.Contains(t, stdout.String(), "msg=dbg")
	assert.Contains(t, stdout.String(), "msg=inf")
	assert.NotContains(t, stdout.String(), "boom")
	assert.Contains(t, stderr.String(), "msg=boom")
	assert.NotContains(t, stderr.String(), "inf")
}

func TestTraceLevelName(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, _, err := setup("trace", "", &stdout, &stderr)
	require.NoError(t, err)

	logger.Log(context.Background(), LevelTrace, "sensors", "ax", 1)
	assert.Contains(t, stdout.String(), "level=TRACE")

	logger, _, err = setup("debug", "", &stdout, &stderr)
	require.NoError(t, err)
	stdout.Reset()
	logger.Log(context.Background(), LevelTrace, "hidden")
	assert.Empty(t, stdout.String())
}

func TestSetupWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mg.log")
	var stdout, stderr bytes.Buffer
	logger, closers, err := setup("info", path, &stdout, &stderr)
	require.NoError(t, err)
	require.Len(t, closers, 1)

	logger.Info("to file", "k", "v")
	require.NoError(t, closers[0].Close())

	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "to file")
}

func TestRawLogger(t *testing.T) {
	var buf bytes.Buffer
	raw := NewRaw(&buf)
	raw.Log(true, []byte{0x01, 0xab})
	raw.Log(false, nil)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "RX 2 bytes: 01 ab")

	NewRaw(nil).Log(false, []byte{1})
}
