package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/konkon3660/graduationP/internal/actuator"
	"github.com/konkon3660/graduationP/internal/autoplay"
	"github.com/konkon3660/graduationP/internal/feed"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "DATABASE_PATH", "DEBUG", "LOG_LEVEL", "PETBOT_CONFIG",
		"PETBOT_CONTROL_SECRET", "PETBOT_AUTOPLAY_DELAY", "PETBOT_DRIVE_SPEED", "MQTT_BROKER",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "petbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, ":8000", cfg.Server.Addr)
	require.Equal(t, autoplay.DefaultDebounceDelay, cfg.Autoplay.Delay)
	require.Equal(t, autoplay.DefaultDriveSpeed, cfg.Autoplay.DriveSpeed)
	require.Equal(t, feed.DefaultSettings(), cfg.Feed)
	require.Equal(t, actuator.DefaultDriveTable(), cfg.Drive)
	require.Equal(t, BackendSim, cfg.Actuator.Backend)
	require.False(t, cfg.MQTT.Enabled())
	require.Empty(t, cfg.Path)
}

func TestLoadFileEnvAndOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROBOT_SECRET", "s3cret")
	t.Setenv("PETBOT_DRIVE_SPEED", "45")

	path := writeFile(t, t.TempDir(), `
server:
  addr: ":9000"
auth:
  control_secret: ${ROBOT_SECRET}
autoplay:
  delay: 90s
  drive_speed: 30
  routines: [circle, heart, combo]
feed:
  mode: auto
  interval: 120
  amount: 2
mqtt:
  broker: localhost:1883
  topic_prefix: cat
`)
	addr := ":7000"
	debug := true
	cfg, err := Load(Overrides{ConfigPath: &path, Addr: &addr, Debug: &debug})
	require.NoError(t, err)

	require.Equal(t, path, cfg.Path)
	require.Equal(t, ":7000", cfg.Server.Addr)
	require.True(t, cfg.Debug)
	require.Equal(t, "s3cret", cfg.Auth.ControlSecret)
	require.Equal(t, 90*time.Second, cfg.Autoplay.Delay)
	require.Equal(t, 45, cfg.Autoplay.DriveSpeed)
	require.Equal(t, []string{"circle", "heart", "combo"}, cfg.Autoplay.Routines)
	require.Equal(t, feed.Settings{Mode: feed.ModeAuto, Interval: 120, Amount: 2}, cfg.Feed)
	require.Equal(t, "cat/status", cfg.MQTT.StatusTopic())
	require.Equal(t, "cat/actuator", cfg.MQTT.ActuatorTopic())
	require.Equal(t, 5*time.Second, cfg.MQTT.StatusInterval)
	require.Equal(t, actuator.DefaultDriveTable(), cfg.Drive)
}

func TestLoadEnvDelayForms(t *testing.T) {
	clearEnv(t)

	t.Setenv("PETBOT_AUTOPLAY_DELAY", "2.5")
	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, 2500*time.Millisecond, cfg.Autoplay.Delay)

	t.Setenv("PETBOT_AUTOPLAY_DELAY", "3m")
	cfg, err = Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, 3*time.Minute, cfg.Autoplay.Delay)

	t.Setenv("PETBOT_AUTOPLAY_DELAY", "soon")
	_, err = Load(Overrides{})
	require.ErrorContains(t, err, "PETBOT_AUTOPLAY_DELAY")
}

func TestLoadCustomDriveTable(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), `
drive:
  forward:  {left: -1, right: -1}
  backward: {left: 1, right: 1}
  left:     {left: 1, right: -1}
  right:    {left: -1, right: 1}
  stop:     {left: 0, right: 0}
`)
	cfg, err := Load(Overrides{ConfigPath: &path})
	require.NoError(t, err)
	require.Equal(t, actuator.WheelPair{Left: -1, Right: -1}, cfg.Drive[actuator.Forward])
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"negative delay":       func(c *Config) { c.Autoplay.Delay = -time.Second },
		"speed too high":       func(c *Config) { c.Autoplay.DriveSpeed = 101 },
		"unknown routine":      func(c *Config) { c.Autoplay.Routines = []string{"moonwalk"} },
		"bad feed interval":    func(c *Config) { c.Feed.Interval = 0 },
		"incomplete drive":     func(c *Config) { delete(c.Drive, actuator.Left) },
		"bad log level":        func(c *Config) { c.Log.Level = "loud" },
		"mqtt backend no host": func(c *Config) { c.Actuator.Backend = BackendMQTT },
		"unknown backend":      func(c *Config) { c.Actuator.Backend = "gpio" },
		"tls missing key":      func(c *Config) { c.Server.TLS = &TLSConfig{CertFile: "cert.pem"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Drive = actuator.DefaultDriveTable()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Defaults().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "absent.yaml")
	_, err := Load(Overrides{ConfigPath: &path})
	require.ErrorContains(t, err, "config: load")
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PETBOT_TEST_DOTENV=yes\n"), 0o600))
	t.Setenv("PETBOT_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("PETBOT_TEST_DOTENV"))
	require.NoError(t, LoadDotEnv(path))
	require.Equal(t, "yes", os.Getenv("PETBOT_TEST_DOTENV"))
}

func TestWatchReloadsValidChanges(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "autoplay:\n  delay: 10s\n")

	var last atomic.Pointer[Config]
	var calls atomic.Int32
	w, err := watch(path, Overrides{}, func(c *Config) {
		last.Store(c)
		calls.Add(1)
	}, clockwork.NewRealClock(), 20*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(path, []byte("autoplay:\n  delay: 15s\n  drive_speed: 20\n"), 0o600))
	require.Eventually(t, func() bool {
		c := last.Load()
		return c != nil && c.Autoplay.Delay == 15*time.Second && c.Autoplay.DriveSpeed == 20
	}, 3*time.Second, 10*time.Millisecond)

	before := calls.Load()
	require.NoError(t, os.WriteFile(path, []byte("autoplay:\n  drive_speed: 500\n"), 0o600))
	require.Never(t, func() bool { return last.Load().Autoplay.DriveSpeed == 500 }, 300*time.Millisecond, 20*time.Millisecond)
	require.Equal(t, before, calls.Load())
}

func TestWatchNeedsPath(t *testing.T) {
	_, err := Watch("", Overrides{}, func(*Config) {})
	require.Error(t, err)
}
