package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcdev12/facescan/go/internal/models"
)

func TestLoadRelayDefaults(t *testing.T) {
	cfg, err := LoadRelay()
	require.NoError(t, err)
	require.Equal(t, "4000", cfg.Port)
	require.Equal(t, 30*time.Second, cfg.PingInterval)
	require.Empty(t, cfg.NATSURL)
	require.Equal(t, "facescan.state", cfg.NATSSubjectPrefix)
}

func TestLoadRelayFromEnv(t *testing.T) {
	t.Setenv("RELAY_PORT", "5000")
	t.Setenv("RELAY_NATS_URL", "nats://nats:4222")
	t.Setenv("RELAY_PING_INTERVAL", "5s")

	cfg, err := LoadRelay()
	require.NoError(t, err)
	require.Equal(t, "5000", cfg.Port)
	require.Equal(t, "nats://nats:4222", cfg.NATSURL)
	require.Equal(t, 5*time.Second, cfg.PingInterval)
}

func TestLoadKiosk(t *testing.T) {
	t.Setenv("KIOSK_RECOGNIZER", "http")
	t.Setenv("KIOSK_FACE_SKIP", "true")

	cfg, err := LoadKiosk()
	require.NoError(t, err)
	require.Equal(t, "http", cfg.Recognizer)
	require.True(t, cfg.FaceSkip)
	require.Equal(t, "ws://localhost:4000/ws", cfg.RelayURL)

	t.Setenv("KIOSK_RECOGNIZER", "opencv")
	_, err = LoadKiosk()
	require.Error(t, err)
}

func TestLoadAdmin(t *testing.T) {
	t.Setenv("ADMIN_RELAY_URL", "ws://relay:4000/ws")

	cfg, err := LoadAdmin()
	require.NoError(t, err)
	require.Equal(t, "ws://relay:4000/ws", cfg.RelayURL)
	require.Equal(t, 3, cfg.CaptureSamples)
}

func TestKioskLocation(t *testing.T) {
	loc, err := KioskConfig{Timezone: "UTC"}.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)

	_, err = KioskConfig{Timezone: "Mars/Olympus"}.Location()
	require.Error(t, err)
}

func TestLoadWorkSettings(t *testing.T) {
	dir := t.TempDir()

	settings, err := LoadWorkSettings(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, models.DefaultWorkSettings(), settings)

	path := filepath.Join(dir, "work-settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("start_time: \"08:00\"\nlate_threshold: 5\n"), 0o600))

	settings, err = LoadWorkSettings(path)
	require.NoError(t, err)
	require.Equal(t, "08:00", settings.StartTime)
	require.Equal(t, 5, settings.LateThreshold)
	require.Equal(t, "18:00", settings.EndTime)
	require.Equal(t, 30, settings.EarlyThreshold)
}

func TestLoadWorkSettingsRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad time":     "start_time: \"9am\"\n",
		"end first":    "start_time: \"18:00\"\nend_time: \"09:00\"\n",
		"negative":     "late_threshold: -1\n",
		"invalid yaml": "start_time: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := LoadWorkSettings(path)
			require.Error(t, err)
		})
	}
}
