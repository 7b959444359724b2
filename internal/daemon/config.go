package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ─── Configuration ──────────────────────────────────────────────────────────
// Loaded from <home>/config.toml. A missing file means defaults.

// ConfigFileName is the config file inside the idlemine home directory.
const ConfigFileName = "config.toml"

// Config is the daemon configuration.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Mining  MiningConfig  `toml:"mining"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
}

// APIConfig is the HTTP listener.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig selects the store backend.
type StorageConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "postgres"
	Dir    string `toml:"dir"`    // sqlite directory, defaults to the home dir
	DSN    string `toml:"dsn"`    // postgres connection string
}

// MiningConfig tunes the session engines.
type MiningConfig struct {
	TickInterval string `toml:"tick_interval"` // e.g. "1s"; "0s" disables owned tickers
	PersistEvery int    `toml:"persist_every"` // ticks between session saves
	TickTimeout  string `toml:"tick_timeout"`
}

// LogConfig sets the logrus level.
type LogConfig struct {
	Level string `toml:"level"`
}

// MetricsConfig toggles /metrics.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 11480,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Mining: MiningConfig{
			TickInterval: "1s",
			PersistEvery: 30,
			TickTimeout:  "5s",
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Home returns the idlemine home directory: $IDLEMINE_HOME or ~/.idlemine.
func Home() (string, error) {
	if h := os.Getenv("IDLEMINE_HOME"); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".idlemine"), nil
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as TOML, creating the directory if needed.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

// Validate checks value ranges and the storage selection.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q (want sqlite or postgres)", c.Storage.Driver)
	}
	if _, err := c.TickInterval(); err != nil {
		return err
	}
	if _, err := c.TickTimeout(); err != nil {
		return err
	}
	if c.Mining.PersistEvery < 0 {
		return fmt.Errorf("mining.persist_every must not be negative")
	}
	return nil
}

// TickInterval parses mining.tick_interval.
func (c Config) TickInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Mining.TickInterval)
	if err != nil {
		return 0, fmt.Errorf("mining.tick_interval: %w", err)
	}
	return d, nil
}

// TickTimeout parses mining.tick_timeout. Empty means the engine default.
func (c Config) TickTimeout() (time.Duration, error) {
	if c.Mining.TickTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Mining.TickTimeout)
	if err != nil {
		return 0, fmt.Errorf("mining.tick_timeout: %w", err)
	}
	return d, nil
}
