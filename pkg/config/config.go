package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is keyper's complete runtime configuration.
type Config struct {
	Profile      string             `mapstructure:"profile"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Server       ServerConfig       `mapstructure:"server"`
	SQLiteSource SQLiteSourceConfig `mapstructure:"sqlite_source"`
	RESTSource   RESTSourceConfig   `mapstructure:"rest_source"`
	Defaults     DefaultsConfig     `mapstructure:"defaults"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
	Output string `mapstructure:"output"` // stderr, stdout, or a file path
}

// ServerConfig configures cmd/keyperd's HTTP front end.
type ServerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	CORS      bool   `mapstructure:"cors"`
	RateRPS   int    `mapstructure:"rate_rps"`
	RateBurst int    `mapstructure:"rate_burst"`
}

// SQLiteSourceConfig configures internal/sqlitesource when it backs a
// collection.
type SQLiteSourceConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// RESTSourceConfig configures internal/restsource when it backs a
// collection.
type RESTSourceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultsConfig holds process-wide collection defaults. They are loaded
// and carried here only; creating a collection does not read them.
type DefaultsConfig struct {
	EagerLoadDepth int `mapstructure:"eager_load_depth"`
}

// DefaultConfig returns Config populated with keyper's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Profile: "default",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Server: ServerConfig{
			Enabled:   true,
			Host:      "localhost",
			Port:      8088,
			CORS:      true,
			RateRPS:   20,
			RateBurst: 40,
		},
		SQLiteSource: SQLiteSourceConfig{
			Path:        filepath.Join(ConfigPath(), "keyper.db"),
			BusyTimeout: 5 * time.Second,
		},
		RESTSource: RESTSourceConfig{
			BaseURL: "http://localhost:3000",
			Timeout: 10 * time.Second,
		},
		Defaults: DefaultsConfig{
			EagerLoadDepth: 1,
		},
	}
}

// Load loads configuration from a config.yaml found on the search path
// (./, ~/.keyper, /etc/keyper), falling back to DefaultConfig if none is
// found, then validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath(ConfigPath())
	v.AddConfigPath("/etc/keyper")

	v.SetEnvPrefix("KEYPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("profile", d.Profile)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors", d.Server.CORS)
	v.SetDefault("server.rate_rps", d.Server.RateRPS)
	v.SetDefault("server.rate_burst", d.Server.RateBurst)
	v.SetDefault("sqlite_source.path", d.SQLiteSource.Path)
	v.SetDefault("sqlite_source.busy_timeout", d.SQLiteSource.BusyTimeout.String())
	v.SetDefault("rest_source.base_url", d.RESTSource.BaseURL)
	v.SetDefault("rest_source.timeout", d.RESTSource.Timeout.String())
	v.SetDefault("defaults.eager_load_depth", d.Defaults.EagerLoadDepth)
}

// Validate checks the configuration for internally-consistent values.
func (c *Config) Validate() error {
	if c.Server.Enabled {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return fmt.Errorf("server.port must be between 1 and 65535")
		}
		if c.Server.Host == "" {
			return fmt.Errorf("server.host is required when the server is enabled")
		}
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}
	if c.SQLiteSource.Path == "" {
		return fmt.Errorf("sqlite_source.path is required")
	}
	return nil
}

// EnsureConfigDir creates the SQLite source's parent directory.
func (c *Config) EnsureConfigDir() error {
	dir := filepath.Dir(c.SQLiteSource.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// ConfigPath returns keyper's default config directory (~/.keyper).
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".keyper")
}
