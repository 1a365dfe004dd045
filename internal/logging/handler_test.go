package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_FormatsBracketedSingleLine(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(h)

	logger.Info("section scan complete", "module", "pipeline")

	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Contains(t, out, "[pipeline]")
	assert.Contains(t, out, "section scan complete")
	assert.True(t, strings.HasPrefix(out, "["), "expected a leading bracketed timestamp, got %q", out)
}

func TestHandler_RespectsLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(h)

	logger.Info("should be dropped", "module", "pipeline")
	assert.Empty(t, buf.String())

	logger.Warn("should appear", "module", "pipeline")
	assert.Contains(t, buf.String(), "should appear")
}

func TestHandler_WithAttrsSharesMutex(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, nil)
	tagged := h.WithAttrs([]slog.Attr{slog.String("module", "calib")})
	require.Same(t, h.mu, tagged.(*Handler).mu)
	logger := slog.New(tagged)

	logger.Info("loaded chip transforms")
	require.Contains(t, buf.String(), "[calib]")
}
