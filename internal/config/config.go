// Package config loads the combat server configuration from a YAML file with
// MAGE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MAGE_LOGGING_LEVEL.
const EnvPrefix = "MAGE"

// Config is the complete server configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Combat   CombatConfig   `mapstructure:"combat"`
	Database DatabaseConfig `mapstructure:"database"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	HTTPAddress       string        `mapstructure:"http_address"`
	GRPCHealthAddress string        `mapstructure:"grpc_health_address"`
	SpectatorBuffer   int           `mapstructure:"spectator_buffer"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// CombatConfig configures the combat engine.
type CombatConfig struct {
	VerifyBlockerIndex bool   `mapstructure:"verify_blocker_index"`
	RecordReplays      bool   `mapstructure:"record_replays"`
	ReplayDir          string `mapstructure:"replay_dir"`
}

// DatabaseConfig configures the damage log database. An empty DSN disables it.
type DatabaseConfig struct {
	DSN            string        `mapstructure:"dsn"`
	MaxConns       int32         `mapstructure:"max_conns"`
	MinConns       int32         `mapstructure:"min_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.DSN != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.grpc_health_address", ":9090")
	v.SetDefault("server.spectator_buffer", 64)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("combat.verify_blocker_index", false)
	v.SetDefault("combat.record_replays", false)
	v.SetDefault("combat.replay_dir", "replays")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.connect_timeout", 5*time.Second)
}

// Load reads the configuration at path. An empty path uses the defaults.
// Environment variables override both, MAGE_SERVER_HTTP_ADDRESS for
// server.http_address and so on.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration. Errors name the offending key.
func (c *Config) Validate() error {
	var errs []error

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	if c.Server.HTTPAddress == "" {
		errs = append(errs, errors.New("server.http_address: required"))
	}
	if c.Server.SpectatorBuffer <= 0 {
		errs = append(errs, fmt.Errorf("server.spectator_buffer: must be positive, got %d", c.Server.SpectatorBuffer))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout: negative %s", c.Server.ShutdownTimeout))
	}

	if c.Combat.RecordReplays && c.Combat.ReplayDir == "" {
		errs = append(errs, errors.New("combat.replay_dir: required when combat.record_replays is set"))
	}

	if c.Database.Enabled() {
		if c.Database.MaxConns < 1 {
			errs = append(errs, fmt.Errorf("database.max_conns: must be at least 1, got %d", c.Database.MaxConns))
		}
		if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
			errs = append(errs, fmt.Errorf("database.min_conns: must be between 0 and %d, got %d", c.Database.MaxConns, c.Database.MinConns))
		}
	}

	return errors.Join(errs...)
}
