package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upnp-media/upnp-go/cmd/upnp-mediaserver/config"
)

func TestSubsystemLevels(t *testing.T) {
	var buf bytes.Buffer
	set, err := New(config.Log{
		Level:  "info",
		Format: "json",
		Levels: map[string]string{"ssdp": "error", "soap": "debug"},
	}, &buf)
	require.NoError(t, err)

	set.Loggers.SSDP.Warn("ssdp-warn")
	set.Loggers.SSDP.Error("ssdp-error")
	set.Loggers.SOAP.Debug("soap-debug")
	set.Loggers.GENA.Debug("gena-debug")
	set.Loggers.GENA.Info("gena-info")
	set.Root.Debug("root-debug")
	set.Sync()

	out := buf.String()
	assert.NotContains(t, out, "ssdp-warn")
	assert.Contains(t, out, "ssdp-error")
	assert.Contains(t, out, "soap-debug")
	assert.NotContains(t, out, "gena-debug")
	assert.Contains(t, out, "gena-info")
	assert.NotContains(t, out, "root-debug")
}

func TestComponentAttribute(t *testing.T) {
	var buf bytes.Buffer
	set, err := New(config.Log{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	set.Loggers.CDS.Info("browse", "object", "0")
	set.Sync()

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, `"component":"cds"`)
	assert.Contains(t, line, `"object":"0"`)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(config.Log{Level: "info", Levels: map[string]string{"http": "chatty"}}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestLevelHandlerDerivedKeepsLevel(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	h := NewLevelHandler(slog.LevelWarn, inner)

	derived := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("g")
	assert.False(t, derived.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, derived.Enabled(context.Background(), slog.LevelWarn))

	rewrapped := NewLevelHandler(slog.LevelError, h)
	assert.Same(t, inner, rewrapped.handler)
}
