package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rpggio/lullaby/internal/domain/action"
	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	Actions   ActionsConfig   `yaml:"actions"`
	Sync      SyncConfig      `yaml:"sync"`
	Reminders RemindersConfig `yaml:"reminders"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"` // stdio or http
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type ActionsConfig struct {
	ExclusiveCategories []string      `yaml:"exclusive_categories"`
	ReloadDebounce      time.Duration `yaml:"reload_debounce"`
	WatchFile           bool          `yaml:"watch_file"`
}

type SyncConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Backend      string        `yaml:"backend"` // http or postgres
	BaseURL      string        `yaml:"base_url"`
	Token        string        `yaml:"token"`
	PostgresDSN  string        `yaml:"postgres_dsn"`
	WebsocketURL string        `yaml:"websocket_url"`
	Interval     time.Duration `yaml:"interval"`
	Jitter       float64       `yaml:"jitter"`
	Timeout      time.Duration `yaml:"timeout"`
}

type RemindersConfig struct {
	FeedingInterval time.Duration `yaml:"feeding_interval"`
	DiaperInterval  time.Duration `yaml:"diaper_interval"`
}

type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server:    ServerConfig{Host: "127.0.0.1", Port: 8080},
		Transport: TransportConfig{Mode: "stdio"},
		DB:        DBConfig{Path: "lullaby.db"},
		Log:       LogConfig{Level: "info"},
		Actions: ActionsConfig{
			ExclusiveCategories: []string{string(action.CategorySleep), string(action.CategoryFeeding)},
			ReloadDebounce:      250 * time.Millisecond,
			WatchFile:           true,
		},
		Sync: SyncConfig{
			Backend:  "http",
			Interval: 5 * time.Minute,
			Jitter:   0.2,
			Timeout:  30 * time.Second,
		},
		Reminders: RemindersConfig{
			FeedingInterval: 3 * time.Hour,
			DiaperInterval:  4 * time.Hour,
		},
		Telemetry: TelemetryConfig{ServiceName: "lullaby"},
	}
}

// Load reads configuration from an optional .env file, an optional YAML
// file, and environment variables, in that order of increasing precedence.
func Load() (Config, error) {
	// a missing .env is normal
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("LULLABY_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setStr(&cfg.Server.Host, "LULLABY_SERVER_HOST")
	setStr(&cfg.Transport.Mode, "LULLABY_TRANSPORT")
	setStr(&cfg.DB.Path, "LULLABY_DB_PATH")
	setStr(&cfg.Log.Level, "LULLABY_LOG_LEVEL")
	setStr(&cfg.Log.Path, "LULLABY_LOG_PATH")
	setStr(&cfg.Sync.Backend, "LULLABY_SYNC_BACKEND")
	setStr(&cfg.Sync.BaseURL, "LULLABY_SYNC_URL")
	setStr(&cfg.Sync.Token, "LULLABY_SYNC_TOKEN")
	setStr(&cfg.Sync.PostgresDSN, "LULLABY_SYNC_POSTGRES_DSN")
	setStr(&cfg.Sync.WebsocketURL, "LULLABY_SYNC_WEBSOCKET_URL")
	setStr(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setStr(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")

	if raw := os.Getenv("LULLABY_EXCLUSIVE_CATEGORIES"); raw != "" {
		cfg.Actions.ExclusiveCategories = splitList(raw)
	}

	var errs []error
	if v, ok, err := envInt("LULLABY_SERVER_PORT"); ok {
		cfg.Server.Port = v
	} else if err != nil {
		errs = append(errs, err)
	}
	for name, dst := range map[string]*bool{
		"LULLABY_AUTH_ENABLED":        &cfg.Auth.Enabled,
		"LULLABY_SYNC_ENABLED":        &cfg.Sync.Enabled,
		"LULLABY_WATCH_FILE":          &cfg.Actions.WatchFile,
		"OTEL_EXPORTER_OTLP_INSECURE": &cfg.Telemetry.Insecure,
	} {
		if v, ok, err := envBool(name); ok {
			*dst = v
		} else if err != nil {
			errs = append(errs, err)
		}
	}
	for name, dst := range map[string]*time.Duration{
		"LULLABY_RELOAD_DEBOUNCE":  &cfg.Actions.ReloadDebounce,
		"LULLABY_SYNC_INTERVAL":    &cfg.Sync.Interval,
		"LULLABY_SYNC_TIMEOUT":     &cfg.Sync.Timeout,
		"LULLABY_FEEDING_INTERVAL": &cfg.Reminders.FeedingInterval,
		"LULLABY_DIAPER_INTERVAL":  &cfg.Reminders.DiaperInterval,
	} {
		if v, ok, err := envDuration(name); ok {
			*dst = v
		} else if err != nil {
			errs = append(errs, err)
		}
	}
	if raw := os.Getenv("LULLABY_SYNC_JITTER"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid LULLABY_SYNC_JITTER: %w", err))
		} else {
			cfg.Sync.Jitter = v
		}
	}
	return errors.Join(errs...)
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Transport.Mode != "stdio" && c.Transport.Mode != "http" {
		errs = append(errs, fmt.Errorf("transport.mode must be stdio or http, got %q", c.Transport.Mode))
	}
	if c.Transport.Mode == "http" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if _, err := c.ExclusiveCategories(); err != nil {
		errs = append(errs, err)
	}
	if c.Actions.ReloadDebounce < 0 {
		errs = append(errs, errors.New("actions.reload_debounce must not be negative"))
	}
	if c.Reminders.FeedingInterval <= 0 || c.Reminders.DiaperInterval <= 0 {
		errs = append(errs, errors.New("reminder intervals must be positive"))
	}
	if c.Sync.Enabled {
		switch c.Sync.Backend {
		case "http":
			if c.Sync.BaseURL == "" {
				errs = append(errs, errors.New("sync.base_url is required for the http backend"))
			}
		case "postgres":
			if c.Sync.PostgresDSN == "" {
				errs = append(errs, errors.New("sync.postgres_dsn is required for the postgres backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown sync backend %q", c.Sync.Backend))
		}
		if c.Sync.Interval <= 0 || c.Sync.Timeout <= 0 {
			errs = append(errs, errors.New("sync interval and timeout must be positive"))
		}
		if c.Sync.Jitter < 0 || c.Sync.Jitter > 1 {
			errs = append(errs, errors.New("sync.jitter must be between 0 and 1"))
		}
	}
	return errors.Join(errs...)
}

// ExclusiveCategories parses the configured exclusive set.
func (c Config) ExclusiveCategories() ([]action.Category, error) {
	out := make([]action.Category, 0, len(c.Actions.ExclusiveCategories))
	for _, raw := range c.Actions.ExclusiveCategories {
		cat, err := action.ParseCategory(raw)
		if err != nil {
			return nil, fmt.Errorf("actions.exclusive_categories: %w", err)
		}
		if cat.IsInstant() {
			return nil, fmt.Errorf("actions.exclusive_categories: %s is an instant category", cat)
		}
		out = append(out, cat)
	}
	return out, nil
}

func setStr(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func envInt(name string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, true, nil
}

func envBool(name string) (bool, bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, true, nil
}

func envDuration(name string) (time.Duration, bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, true, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
