package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/konkon3660/graduationP/internal/actuator"
	"github.com/konkon3660/graduationP/internal/autoplay"
	"github.com/konkon3660/graduationP/internal/feed"
	"github.com/konkon3660/graduationP/internal/logger"
	"github.com/konkon3660/graduationP/internal/patterns"
)

// Actuator backends.
const (
	BackendSim  = "sim"
	BackendMQTT = "mqtt"
)

// Config holds server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Autoplay AutoplayConfig `yaml:"autoplay"`
	Feed     feed.Settings  `yaml:"feed"`
	Actuator ActuatorConfig `yaml:"actuator"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	// Drive maps each direction to wheel polarity. Missing means the default
	// wiring.
	Drive actuator.DriveTable `yaml:"drive"`

	// Path is the YAML file this config was read from, if any.
	Path string `yaml:"-"`
	// Debug enables gin debug mode and debug logging.
	Debug bool `yaml:"debug"`
}

type ServerConfig struct {
	// Addr is the listen address for the HTTP(S) server.
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// TLS holds HTTPS configuration. If nil, the server runs in plain HTTP mode.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds file paths for serving HTTPS directly from the server.
type TLSConfig struct {
	// CertFile is a PEM-encoded certificate chain.
	CertFile string `yaml:"cert_file"`
	// KeyFile is a PEM-encoded private key.
	KeyFile string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig enables bearer-token auth on the control surfaces when
// ControlSecret is set.
type AuthConfig struct {
	ControlSecret string        `yaml:"control_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AutoplayConfig struct {
	Delay      time.Duration `yaml:"delay"`
	DriveSpeed int           `yaml:"drive_speed"`
	// Routines restricts the repertoire; empty enables all of them.
	Routines []string `yaml:"routines"`
	Seed     uint64   `yaml:"seed"`
}

type ActuatorConfig struct {
	Backend string `yaml:"backend"`
}

type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// StatusTopic is where telemetry is published.
func (m MQTTConfig) StatusTopic() string { return m.TopicPrefix + "/status" }

// ActuatorTopic is where actuator commands are published.
func (m MQTTConfig) ActuatorTopic() string { return m.TopicPrefix + "/actuator" }

// Overrides optionally overrides values from the file and environment.
//
// A nil pointer means "use the file/environment/default value".
type Overrides struct {
	ConfigPath   *string
	Addr         *string
	DatabasePath *string
	Debug        *bool
	LogLevel     *string
	TLS          *TLSConfig
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"*"}, // the robot's own app is served from anywhere on the LAN
		},
		Database: DatabaseConfig{Path: "./petbot.db"},
		Auth:     AuthConfig{TokenTTL: 30 * 24 * time.Hour},
		Log:      LogConfig{Level: "info", Format: string(logger.FormatConsole)},
		Autoplay: AutoplayConfig{
			Delay:      autoplay.DefaultDebounceDelay,
			DriveSpeed: autoplay.DefaultDriveSpeed,
		},
		Feed:     feed.DefaultSettings(),
		Actuator: ActuatorConfig{Backend: BackendSim},
		MQTT: MQTTConfig{
			ClientID:       "petbot",
			TopicPrefix:    "petbot",
			StatusInterval: 5 * time.Second,
		},
		Drive: actuator.DefaultDriveTable(),
	}
}

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Load builds the server configuration: defaults, then the YAML file (from
// overrides or PETBOT_CONFIG), then environment variables, then explicit
// overrides. The result is validated.
func Load(overrides Overrides) (*Config, error) {
	cfg := Defaults()

	path := os.Getenv("PETBOT_CONFIG")
	if overrides.ConfigPath != nil {
		path = *overrides.ConfigPath
	}
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return nil, err
		}
		cfg.Path = path
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if overrides.Addr != nil {
		cfg.Server.Addr = *overrides.Addr
	}
	if overrides.DatabasePath != nil {
		cfg.Database.Path = *overrides.DatabasePath
	}
	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}
	if overrides.LogLevel != nil {
		cfg.Log.Level = *overrides.LogLevel
	}
	if overrides.TLS != nil {
		cfg.Server.TLS = overrides.TLS
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readFile decodes path over cfg. ${VAR} references are expanded first so
// secrets can stay in the environment.
func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator configuration
	if err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	// A drive section replaces the default table rather than merging into it.
	cfg.Drive = nil
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(cfg.Drive) == 0 {
		cfg.Drive = actuator.DefaultDriveTable()
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("config: PORT: %w", err)
		}
		cfg.Server.Addr = fmt.Sprintf(":%d", p)
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PETBOT_CONTROL_SECRET"); v != "" {
		cfg.Auth.ControlSecret = v
	}
	if v := os.Getenv("PETBOT_AUTOPLAY_DELAY"); v != "" {
		d, err := parseDelay(v)
		if err != nil {
			return fmt.Errorf("config: PETBOT_AUTOPLAY_DELAY: %w", err)
		}
		cfg.Autoplay.Delay = d
	}
	if v := os.Getenv("PETBOT_DRIVE_SPEED"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PETBOT_DRIVE_SPEED: %w", err)
		}
		cfg.Autoplay.DriveSpeed = n
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	return nil
}

// parseDelay accepts a Go duration ("90s") or a bare number of seconds.
func parseDelay(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path is required")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if _, err := logger.ParseFormat(c.Log.Format); err != nil {
		return fmt.Errorf("config: log.format: %w", err)
	}
	if c.Autoplay.Delay < 0 {
		return fmt.Errorf("config: autoplay.delay: %w", autoplay.ErrInvalidDelay)
	}
	if err := actuator.ValidateSpeed(c.Autoplay.DriveSpeed); err != nil {
		return fmt.Errorf("config: autoplay.drive_speed: %w", autoplay.ErrInvalidSpeed)
	}
	if _, err := patterns.Build(c.Autoplay.Routines); err != nil {
		return fmt.Errorf("config: autoplay.routines: %w", err)
	}
	if err := c.Feed.Validate(); err != nil {
		return fmt.Errorf("config: feed: %w", err)
	}
	if err := c.Drive.Validate(); err != nil {
		return fmt.Errorf("config: drive: %w", err)
	}
	switch c.Actuator.Backend {
	case BackendSim:
	case BackendMQTT:
		if !c.MQTT.Enabled() {
			return fmt.Errorf("config: actuator.backend %q requires mqtt.broker", BackendMQTT)
		}
	default:
		return fmt.Errorf("config: unknown actuator.backend %q", c.Actuator.Backend)
	}
	if c.MQTT.Enabled() && c.MQTT.StatusInterval <= 0 {
		return fmt.Errorf("config: mqtt.status_interval must be positive")
	}
	if c.Server.TLS != nil && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("config: server.tls needs both cert_file and key_file")
	}
	return nil
}
