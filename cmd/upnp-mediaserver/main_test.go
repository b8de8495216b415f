package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upnp-media/upnp-go/cmd/upnp-mediaserver/config"
	"github.com/upnp-media/upnp-go/pkg/backend/memory"
	"github.com/upnp-media/upnp-go/pkg/version"
)

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	fixturePath := filepath.Join(t.TempDir(), "lib.yaml")
	require.NoError(t, os.WriteFile(fixturePath, []byte("- {id: a, title: A}\n"), 0o600))

	require.NoError(t, serveCmd.Flags().Set("fixture", fixturePath))
	require.NoError(t, serveCmd.Flags().Set("port", "8200"))
	require.NoError(t, serveCmd.Flags().Set("friendly-name", "Den"))
	t.Cleanup(func() {
		configPath, fixture, port, friendly = "", "", 0, ""
	})

	file, err := loadConfig(serveCmd)
	require.NoError(t, err)
	assert.Equal(t, 8200, file.Server.Port)
	assert.Equal(t, "Den", file.Server.FriendlyName)
	require.Len(t, file.Backends, 1)
	assert.Equal(t, memory.Kind, file.Backends[0].Kind)
	assert.Equal(t, fixturePath, file.Backends[0].Params[memory.ParamFixture])

	handles, err := buildBackends(file.Backends)
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, "library", handles[0].Name)
}

func TestBuildBackendsUnknownKind(t *testing.T) {
	_, err := buildBackends([]config.Backend{{Name: "x", Kind: "tape"}})
	assert.Error(t, err)
}

func TestVersionAndBackendsCommands(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })

	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), version.ProductVersion)

	buf.Reset()
	rootCmd.SetArgs([]string{"backends"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), memory.Kind)
}
