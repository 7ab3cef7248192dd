// Package config provides configuration management using viper.
// It supports loading from YAML files, a .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/yogev77/tophuman-sub001/internal/game"
)

// Config holds all application configuration.
type Config struct {
	Log        LogConfig              `mapstructure:"log"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Redis      RedisConfig            `mapstructure:"redis"`
	HTTP       HTTPConfig             `mapstructure:"http"`
	Ops        OpsConfig              `mapstructure:"ops"`
	Bot        BotConfig              `mapstructure:"bot"`
	Admin      AdminConfig            `mapstructure:"admin"`
	Whitelist  WhitelistConfig        `mapstructure:"whitelist"`
	Auth       AuthConfig             `mapstructure:"auth"`
	Turns      TurnsConfig            `mapstructure:"turns"`
	Settlement SettlementConfig       `mapstructure:"settlement"`
	Daily      DailyConfig            `mapstructure:"daily"`
	Games      map[string]game.Tuning `mapstructure:"games"`
}

// LogConfig selects the zerolog level and output format ("console" or "json").
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the burst rate limiter backend. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPConfig holds the public API listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BurstLimit      int           `mapstructure:"burst_limit"`
	BurstWindow     time.Duration `mapstructure:"burst_window"`
}

// OpsConfig holds the operator listener (health, metrics, manual settlement).
type OpsConfig struct {
	Addr     string `mapstructure:"addr"`
	AdminKey string `mapstructure:"admin_key"`
}

// BotConfig holds Telegram bot configuration. An empty token disables the bot.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// AuthConfig holds token signing configuration.
type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// TurnsConfig holds turn lifecycle limits.
type TurnsConfig struct {
	Cost        int64         `mapstructure:"cost"`
	StartWindow time.Duration `mapstructure:"start_window"`
	Grace       time.Duration `mapstructure:"grace"`
	MaxEvents   int           `mapstructure:"max_events"`
	RateWindow  time.Duration `mapstructure:"rate_window"`
	RateLimit   int           `mapstructure:"rate_limit"`
	Kinds       []string      `mapstructure:"kinds"`
}

// SettlementConfig holds pool distribution parameters. Shares are decimal
// strings so that they are exact.
type SettlementConfig struct {
	WinnerShare     string        `mapstructure:"winner_share"`
	RebateShare     string        `mapstructure:"rebate_share"`
	WeightCap       int           `mapstructure:"weight_cap"`
	TreasuryAccount int64         `mapstructure:"treasury_account"`
	Interval        time.Duration `mapstructure:"interval"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

// DailyConfig holds daily grant configuration.
type DailyConfig struct {
	Grant int64 `mapstructure:"grant"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode,
	)
}

// Shares parses the winner and rebate shares.
func (s *SettlementConfig) Shares() (winner, rebate decimal.Decimal, err error) {
	winner, err = decimal.NewFromString(s.WinnerShare)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid winner share %q: %w", s.WinnerShare, err)
	}
	rebate, err = decimal.NewFromString(s.RebateShare)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid rebate share %q: %w", s.RebateShare, err)
	}
	return winner, rebate, nil
}

// Load reads configuration from a .env file, config.yaml and environment
// variables, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. DATABASE_HOST, AUTH_SECRET, SETTLEMENT_WINNER_SHARE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	winner, rebate, err := c.Settlement.Shares()
	if err != nil {
		return err
	}
	if winner.IsNegative() || rebate.IsNegative() || winner.Add(rebate).GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("settlement shares must be non-negative and sum to at most 1, got %s + %s", winner, rebate)
	}
	if c.Settlement.WeightCap < 1 {
		return fmt.Errorf("settlement weight cap must be positive, got %d", c.Settlement.WeightCap)
	}
	if c.Turns.Cost < 1 {
		return fmt.Errorf("turn cost must be positive, got %d", c.Turns.Cost)
	}
	if c.Turns.MaxEvents < 2 {
		return fmt.Errorf("turn event cap must be at least 2, got %d", c.Turns.MaxEvents)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tophuman")
	v.SetDefault("database.name", "tophuman")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("bot.token", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.mode", "release")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.shutdown_timeout", "15s")
	v.SetDefault("http.burst_limit", 120)
	v.SetDefault("http.burst_window", "1m")

	v.SetDefault("ops.addr", ":9090")
	v.SetDefault("ops.admin_key", "")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "tophuman")
	v.SetDefault("auth.token_ttl", "720h")

	v.SetDefault("turns.cost", 1)
	v.SetDefault("turns.start_window", "2m")
	v.SetDefault("turns.grace", "5s")
	v.SetDefault("turns.max_events", 500)
	v.SetDefault("turns.rate_window", "1m")
	v.SetDefault("turns.rate_limit", 10)

	v.SetDefault("settlement.winner_share", "0.5")
	v.SetDefault("settlement.rebate_share", "0.3")
	v.SetDefault("settlement.weight_cap", 10)
	v.SetDefault("settlement.treasury_account", 0)
	v.SetDefault("settlement.interval", "1h")
	v.SetDefault("settlement.sweep_interval", "1m")

	v.SetDefault("daily.grant", 5)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
// An empty whitelist allows every chat.
func (c *Config) IsChatAllowed(chatID int64) bool {
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
