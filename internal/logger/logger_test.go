package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("info"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "warn", Output: &buf})

	l.Info("hidden").Send()
	assert.Zero(t, buf.Len())

	l.Warn("shown").Send()
	assert.Equal(t, "hsplines", lastLine(t, &buf)["service"])
}

func TestLogRefinement(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "info", Output: &buf})

	l.LogRefinement("abc", "refine", 2, 40, 3, 5*time.Millisecond)
	line := lastLine(t, &buf)
	assert.Equal(t, "abc", line["session"])
	assert.Equal(t, "refine", line["operation"])
	assert.EqualValues(t, 40, line["size"])
	assert.Equal(t, "Basis refined", line["message"])
}

func TestLogGrpcRequestError(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "info", Output: &buf})

	l.LogGrpcRequest("/hsplines.HBasis/Refine", time.Millisecond, errors.New("boom"))
	line := lastLine(t, &buf)
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "grpc", line["component"])
	assert.Equal(t, "/hsplines.HBasis/Refine", line["method"])
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "info", Output: &buf})

	jl := l.WithFields(map[string]any{"component": "journal", "path": "/tmp/j"})
	jl.Warn("Journal files ended in damaged entries").Int("files", 2).Send()
	line := lastLine(t, &buf)
	assert.Equal(t, "journal", line["component"])
	assert.Equal(t, "/tmp/j", line["path"])
	assert.EqualValues(t, 2, line["files"])

	l.Info("plain").Send()
	assert.NotContains(t, lastLine(t, &buf), "path")
}

func TestGlobalLogger(t *testing.T) {
	prev, prevLog := globalLogger, log.Logger
	t.Cleanup(func() { globalLogger, log.Logger = prev, prevLog })

	var buf bytes.Buffer
	InitGlobalLogger(Config{Level: "debug", Output: &buf})
	require.Same(t, globalLogger, GetGlobalLogger())

	GetGlobalLogger().Debug("from wrapper").Send()
	assert.Equal(t, "from wrapper", lastLine(t, &buf)["msg"])

	log.Info().Msg("from package logger")
	line := lastLine(t, &buf)
	assert.Equal(t, "from package logger", line["message"])
	assert.Equal(t, "hsplines", line["service"])
}

func TestBasisLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "debug", Output: &buf})

	bl := l.BasisLogger("s1")
	bl.Warn().Msg("no leaves found on side")
	line := lastLine(t, &buf)
	assert.Equal(t, "hbasis", line["component"])
	assert.Equal(t, "s1", line["session"])
}
