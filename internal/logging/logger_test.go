package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConsoleLoggerPrefixesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "console", Output: &buf})

	logger.WithComponent("styles").Error(context.Background(), errors.New("boom"), "Styles Task Error", "file", "b.scss")

	out := buf.String()
	assert.Contains(t, out, "[styles] Styles Task Error")
	assert.Contains(t, out, "b.scss")
	assert.Contains(t, out, "boom")
}

func TestConsoleLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Format: "console", Output: &buf})

	logger.Info(context.Background(), "hidden")
	logger.Debug(context.Background(), "hidden too")
	assert.Empty(t, buf.String())

	logger.Warn(context.Background(), nil, "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("images").With("run", 2).Info(context.Background(), "cache hit", "file", "logo.png")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "cache hit", entry["msg"])
	assert.Equal(t, "images", entry["component"])
	assert.Equal(t, "logo.png", entry["file"])
	assert.Equal(t, float64(2), entry["run"])
}

func TestJSONLoggerError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelError, Format: "json", Output: &buf})

	logger.Info(context.Background(), "dropped")
	logger.Error(context.Background(), errors.New("disk full"), "write failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "write failed", entry["msg"])
	assert.Equal(t, "disk full", entry["error"])
}

func TestNop(t *testing.T) {
	logger := Nop()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "ignored")
		logger.WithComponent("x").With("k", "v").Info(context.Background(), "ignored")
	})
}

func TestPerfLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "console", Output: &buf})

	op := StartOperation(logger.WithComponent("build"), "styles")
	op.End(context.Background())

	assert.Contains(t, buf.String(), "Finished 'styles'")
}
