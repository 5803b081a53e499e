// Package config loads layered configuration (YAML file, then environment
// variable overrides) for the backtest CLI and HTTP control surface.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Replay   ReplayConfig   `mapstructure:"replay"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP control-plane server configuration.
type ServerConfig struct {
	Host               string          `mapstructure:"host"`
	Port               int             `mapstructure:"port"`
	ReadTimeout        time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration   `mapstructure:"idle_timeout"`
	CORSAllowedOrigins string          `mapstructure:"cors_allowed_origins"`
	RateLimit          RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds request throughput on the HTTP control surface,
// per-client with tighter limits on the snapshot stream and token endpoints.
type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	StreamRPS         float64       `mapstructure:"stream_rps"`
	TokenRPS          float64       `mapstructure:"token_rps"`
}

// AuthConfig holds bearer-token authentication configuration for the HTTP
// control surface.
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// DatabaseConfig holds the results-store Postgres connection settings.
type DatabaseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"database"`
	MaxConns       int           `mapstructure:"max_conns"`
	MinConns       int           `mapstructure:"min_conns"`
	MaxConnLife    time.Duration `mapstructure:"max_conn_life"`
	MigrationsPath string        `mapstructure:"migrations_path"`
}

// ReplayConfig holds the parameters of a single replay run.
type ReplayConfig struct {
	InitialCash   float64 `mapstructure:"initial_cash"`
	EventLogPath  string  `mapstructure:"event_log_path"`
	OutputDir     string  `mapstructure:"output_dir"`
	SnapshotEvery int     `mapstructure:"snapshot_every"`
	Persist       bool    `mapstructure:"persist"`
}

// BrokerConfig holds the broker's pricing and liquidity parameters.
type BrokerConfig struct {
	CommissionRate float64 `mapstructure:"commission_rate"`
	BaseSlippage   float64 `mapstructure:"base_slippage"`
	LiquidityCap   bool    `mapstructure:"liquidity_cap"`
	EMADecay       float64 `mapstructure:"ema_decay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "console"
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables. Environment
// variables are prefixed PMBT_, e.g. PMBT_BROKER_COMMISSION_RATE.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	v.SetEnvPrefix("PMBT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if v.IsSet("JWT_SECRET") {
		cfg.Auth.JWTSecret = v.GetString("JWT_SECRET")
	}
	if v.IsSet("DB_HOST") {
		cfg.Database.Host = v.GetString("DB_HOST")
	}
	if v.IsSet("DB_PASSWORD") {
		cfg.Database.Password = v.GetString("DB_PASSWORD")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field invariants the core itself does not enforce
// (per the core's no-recoverable-errors design, validation lives entirely
// at this ambient boundary).
func (c *Config) Validate() error {
	if c.Replay.InitialCash <= 0 {
		return fmt.Errorf("config: replay.initial_cash must be positive")
	}
	if c.Broker.EMADecay <= 0 || c.Broker.EMADecay > 1 {
		return fmt.Errorf("config: broker.ema_decay must be in (0, 1]")
	}
	if c.Broker.CommissionRate < 0 {
		return fmt.Errorf("config: broker.commission_rate must be non-negative")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.cors_allowed_origins", "*")
	v.SetDefault("server.rate_limit.requests_per_second", 10.0)
	v.SetDefault("server.rate_limit.burst", 20)
	v.SetDefault("server.rate_limit.cleanup_interval", time.Minute)
	v.SetDefault("server.rate_limit.stream_rps", 2.0)
	v.SetDefault("server.rate_limit.token_rps", 1.0)

	v.SetDefault("auth.access_token_ttl", 24*time.Hour)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pmbacktest")
	v.SetDefault("database.database", "pmbacktest")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_life", 5*time.Minute)
	v.SetDefault("database.migrations_path", "internal/store/migrations")

	v.SetDefault("replay.initial_cash", 10000.0)
	v.SetDefault("replay.output_dir", "./backtest_results")
	v.SetDefault("replay.snapshot_every", 100)
	v.SetDefault("replay.persist", false)

	v.SetDefault("broker.commission_rate", 0.0)
	v.SetDefault("broker.base_slippage", 0.0)
	v.SetDefault("broker.liquidity_cap", true)
	v.SetDefault("broker.ema_decay", 0.1)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.time_format", time.RFC3339)
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}
