package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/upnp-media/upnp-go/pkg/ssdp"
)

const sample = `
server:
  name: living-room
  friendly_name: Living Room
  port: 8200
  moderation: 500ms
  metrics: true
log:
  level: debug
  levels:
    ssdp: warn
  protocol: /tmp/upnp.cbor
eventing:
  failure_threshold: 5
  queue_size: 8
ssdp:
  max_age: 30m
  jitter: 0
  search_rate: 2
backends:
  - name: music
    kind: memory
    params:
      title: Music
state_file: /var/lib/upnp/state.json
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "living-room", f.Server.Name)
	assert.Equal(t, 8200, f.Server.Port)
	assert.Equal(t, 500*time.Millisecond, f.Server.Moderation)
	assert.Equal(t, "debug", f.Log.Level)
	assert.Equal(t, "console", f.Log.Format, "default kept")
	assert.Equal(t, "warn", f.Log.Levels["ssdp"])
	require.Len(t, f.Backends, 1)
	assert.Equal(t, "Music", f.Backends[0].Params["title"])

	cfg := f.ServerConfig()
	assert.Equal(t, "Living Room", cfg.FriendlyName)
	assert.Equal(t, 30*time.Minute, cfg.SSDP.MaxAge)
	assert.Zero(t, cfg.SSDP.Jitter, "explicit zero disables jitter")
	assert.Equal(t, rate.Limit(2), cfg.SSDP.SearchRate)
	assert.Equal(t, 5, cfg.Eventing.FailureThreshold)
	assert.Equal(t, 8, cfg.Eventing.QueueSize)
	assert.True(t, cfg.EnableMetrics)
	assert.Equal(t, "/var/lib/upnp/state.json", cfg.StateFile)
}

func TestJitterDefault(t *testing.T) {
	f, err := Parse([]byte("backends: [{name: a, kind: memory}]"))
	require.NoError(t, err)
	assert.Equal(t, ssdp.DefaultJitter, f.ServerConfig().SSDP.Jitter)
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte("server:\n  colour: blue\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestValidateReportsAllProblems(t *testing.T) {
	f := Default()
	f.Server.Port = 70000
	f.Log.Level = "loud"
	f.Log.Levels = map[string]string{"dns": "info"}
	f.Backends = []Backend{{Name: "a", Kind: "memory"}, {Name: "a"}}

	err := f.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	for _, want := range []string{
		"server.port 70000",
		`unknown level "loud"`,
		`unknown subsystem "dns"`,
		`duplicate name "a"`,
		"backends[1]: kind is required",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateRequiresBackend(t *testing.T) {
	err := Default().Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "at least one backend")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "living-room", f.Server.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{"": "INFO", "DEBUG": "DEBUG", "warning": "WARN", "error": "ERROR"} {
		l, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, l.String())
	}
}

func TestExampleConfig(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "mediaserver.yaml"))
	require.NoError(t, err)

	require.Len(t, f.Backends, 2)
	assert.Equal(t, "uploads", f.Backends[1].Name)
	assert.Equal(t, "true", f.Backends[1].Params["writable"])

	cfg := f.ServerConfig()
	assert.Equal(t, 8200, cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.SSDP.MaxAge)
	assert.InDelta(t, 0.1, cfg.SSDP.Jitter, 1e-9)
	assert.Equal(t, rate.Limit(5), cfg.SSDP.SearchRate)
	assert.Equal(t, 3, cfg.Eventing.FailureThreshold)
	assert.Equal(t, time.Second, cfg.Eventing.RetryDelay)
}
