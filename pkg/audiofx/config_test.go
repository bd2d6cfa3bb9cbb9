package audiofx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nik9play/audiofx/pkg/notify"
)

func loadConfig(t *testing.T, contents string) (*CanonicalConfig, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if contents != "" {
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}

	cc, err := NewConfig(zaptest.NewLogger(t).Sugar(), notify.Nop{}, path)
	require.NoError(t, err)

	return cc, cc.Load(nil)
}

func TestConfigDefaultsWithoutFile(t *testing.T) {
	cc, err := loadConfig(t, "")
	require.NoError(t, err)

	require.Equal(t, defaultPreferencesPath, cc.PreferencesPath)
	require.Equal(t, "auto", cc.Language)
	require.Equal(t, defaultBackend, cc.Backend)
	require.Equal(t, defaultQueueWarning, cc.QueueSizeWarning)
	require.Equal(t, PolicySuppressPrivileged, cc.Recording.Policy)
	require.Empty(t, cc.Recording.Processes)
	require.Equal(t, OBSConfig{Host: "localhost", Port: 4455}, cc.Recording.OBS)
	require.True(t, cc.Notifications.DeviceChange)
}

func TestConfigFromFile(t *testing.T) {
	cc, err := loadConfig(t, `
preferences_path: /tmp/fx.toml
force_defaults: true
backend: MemFX
recording:
  policy: suppress_any
  processes: [obs64.exe, ffmpeg]
  obs:
    enabled: true
    port: 4444
notifications:
  device_change: false
`)
	require.NoError(t, err)

	require.Equal(t, "/tmp/fx.toml", cc.PreferencesPath)
	require.True(t, cc.ForceDefaults)
	require.Equal(t, "memfx", cc.Backend)
	require.Equal(t, PolicySuppressAny, cc.Recording.Policy)
	require.Equal(t, []string{"obs64.exe", "ffmpeg"}, cc.Recording.Processes)
	require.True(t, cc.Recording.OBS.Enabled)
	require.Equal(t, "localhost", cc.Recording.OBS.Host)
	require.Equal(t, 4444, cc.Recording.OBS.Port)
	require.False(t, cc.Notifications.DeviceChange)
}

func TestConfigInvalidPolicyFallsBack(t *testing.T) {
	cc, err := loadConfig(t, "recording:\n  policy: sometimes\n")
	require.NoError(t, err)
	require.Equal(t, PolicySuppressPrivileged, cc.Recording.Policy)
}

func TestConfigRejectsBadValues(t *testing.T) {
	_, err := loadConfig(t, "recording:\n  obs:\n    port: 70000\n")
	require.Error(t, err)

	_, err = loadConfig(t, "preferences_path: \"\"\n")
	require.Error(t, err)

	_, err = loadConfig(t, "recording: [unterminated\n")
	require.Error(t, err)
}

func TestConfigReloadFansOut(t *testing.T) {
	cc, err := loadConfig(t, "")
	require.NoError(t, err)

	first := cc.SubscribeToChanges()
	second := cc.SubscribeToChanges()

	go cc.onConfigReloaded()

	require.True(t, <-first)
	require.True(t, <-second)
}
