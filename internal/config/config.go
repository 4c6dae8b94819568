// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CHATRELAY"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	AllowList  AllowListConfig  `mapstructure:"allowlist"`
	Backoff    BackoffConfig    `mapstructure:"backoff"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	AutoReply  AutoReplyConfig  `mapstructure:"autoreply"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Events     EventsConfig     `mapstructure:"events"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
	// Seed is loaded into the in-memory store when database.driver is memory.
	Seed SeedConfig `mapstructure:"seed"`
}

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	DBName         string `mapstructure:"dbname"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxOpenConns   int    `mapstructure:"max_open_conns"`
	MaxIdleConns   int    `mapstructure:"max_idle_conns"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type GatewayConfig struct {
	BaseURL        string               `mapstructure:"base_url"`
	Timeout        int                  `mapstructure:"timeout"`
	SendRate       float64              `mapstructure:"send_rate"`
	SendBurst      int                  `mapstructure:"send_burst"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"`
	Timeout          int     `mapstructure:"timeout"`
	FailureRatio     float64 `mapstructure:"failure_ratio"`
	ConsecutiveFails uint32  `mapstructure:"consecutive_fails"`
}

type AllowListConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	RefreshInterval int  `mapstructure:"refresh_interval"`
	MaxStale        int  `mapstructure:"max_stale"`
}

type BackoffConfig struct {
	Base     int     `mapstructure:"base"`
	Max      int     `mapstructure:"max"`
	MaxLevel int     `mapstructure:"max_level"`
	Jitter   float64 `mapstructure:"jitter"`
}

type QueueConfig struct {
	MaxRetries          int `mapstructure:"max_retries"`
	ClaimTimeout        int `mapstructure:"claim_timeout"`
	SweepInterval       int `mapstructure:"sweep_interval"`
	TransientRetryDelay int `mapstructure:"transient_retry_delay"`
}

type DispatcherConfig struct {
	PollMinMillis     int `mapstructure:"poll_min_ms"`
	PollMaxMillis     int `mapstructure:"poll_max_ms"`
	SyncInterval      int `mapstructure:"sync_interval"`
	StatePollInterval int `mapstructure:"state_poll_interval"`
	LeaseTTL          int `mapstructure:"lease_ttl"`
}

type AutoReplyConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ReplyPriority  int    `mapstructure:"reply_priority"`
	SenderCooldown int    `mapstructure:"sender_cooldown"`
	Timezone       string `mapstructure:"timezone"`
}

type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
}

type SeedConfig struct {
	Instances []SeedInstance `mapstructure:"instances"`
	Rules     []SeedRule     `mapstructure:"rules"`
}

type SeedInstance struct {
	ID       string `mapstructure:"id"`
	APIToken string `mapstructure:"api_token"`
	BaseURL  string `mapstructure:"base_url"`
	Enabled  bool   `mapstructure:"enabled"`
}

type SeedRule struct {
	InstanceID    string `mapstructure:"instance_id"`
	Trigger       string `mapstructure:"trigger"`
	Response      string `mapstructure:"response"`
	CaseSensitive bool   `mapstructure:"case_sensitive"`
	ExactMatch    bool   `mapstructure:"exact_match"`
	Priority      int    `mapstructure:"priority"`
	MaxUsesPerDay int    `mapstructure:"max_uses_per_day"`
}

type MiddlewareConfig struct {
	RateLimit      int `mapstructure:"rate_limit"`
	RateLimitBurst int `mapstructure:"rate_limit_burst"`
	RequestTimeout int `mapstructure:"request_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "chatrelay")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "chatrelay")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.migrations_path", "./migrations")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("gateway.base_url", "https://api.green-api.com")
	v.SetDefault("gateway.timeout", 30)
	v.SetDefault("gateway.send_rate", 1.0)
	v.SetDefault("gateway.send_burst", 1)
	v.SetDefault("gateway.circuit_breaker.max_requests", 3)
	v.SetDefault("gateway.circuit_breaker.interval", 60)
	v.SetDefault("gateway.circuit_breaker.timeout", 60)
	v.SetDefault("gateway.circuit_breaker.failure_ratio", 0.6)
	v.SetDefault("gateway.circuit_breaker.consecutive_fails", 5)
	v.SetDefault("allowlist.enabled", true)
	v.SetDefault("allowlist.refresh_interval", 600)
	v.SetDefault("allowlist.max_stale", 3600)
	v.SetDefault("backoff.base", 30)
	v.SetDefault("backoff.max", 1800)
	v.SetDefault("backoff.max_level", 6)
	v.SetDefault("backoff.jitter", 0.2)
	v.SetDefault("queue.max_retries", 5)
	v.SetDefault("queue.claim_timeout", 120)
	v.SetDefault("queue.sweep_interval", 30)
	v.SetDefault("queue.transient_retry_delay", 15)
	v.SetDefault("dispatcher.poll_min_ms", 1000)
	v.SetDefault("dispatcher.poll_max_ms", 5000)
	v.SetDefault("dispatcher.sync_interval", 30)
	v.SetDefault("dispatcher.state_poll_interval", 300)
	v.SetDefault("dispatcher.lease_ttl", 90)
	v.SetDefault("autoreply.enabled", true)
	v.SetDefault("autoreply.reply_priority", 0)
	v.SetDefault("autoreply.sender_cooldown", 0)
	v.SetDefault("autoreply.timezone", "UTC")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "chatrelay.events")
	v.SetDefault("middleware.rate_limit", 100)
	v.SetDefault("middleware.rate_limit_burst", 1000)
	v.SetDefault("middleware.request_timeout", 30)
}

// LoadConfig reads configPath (yaml), then applies CHATRELAY_* environment
// overrides. A .env file next to the binary is loaded first when present.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid database.driver %q: expected postgres or memory", c.Database.Driver)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("invalid queue.max_retries %d", c.Queue.MaxRetries)
	}
	if c.Backoff.Base <= 0 || c.Backoff.Max < c.Backoff.Base {
		return fmt.Errorf("invalid backoff window: base=%d max=%d", c.Backoff.Base, c.Backoff.Max)
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter >= 1 {
		return fmt.Errorf("invalid backoff.jitter %v: expected [0, 1)", c.Backoff.Jitter)
	}
	if c.Dispatcher.PollMinMillis <= 0 || c.Dispatcher.PollMaxMillis < c.Dispatcher.PollMinMillis {
		return fmt.Errorf("invalid dispatcher poll window: min=%d max=%d",
			c.Dispatcher.PollMinMillis, c.Dispatcher.PollMaxMillis)
	}
	if _, err := time.LoadLocation(c.AutoReply.Timezone); err != nil {
		return fmt.Errorf("invalid autoreply.timezone %q: %w", c.AutoReply.Timezone, err)
	}
	return nil
}

// GetDSN returns PostgreSQL connection string.
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// GetAddr returns the redis host:port pair.
func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (g *GatewayConfig) TimeoutDuration() time.Duration { return seconds(g.Timeout) }

func (a *AllowListConfig) RefreshDuration() time.Duration  { return seconds(a.RefreshInterval) }
func (a *AllowListConfig) MaxStaleDuration() time.Duration { return seconds(a.MaxStale) }

func (b *BackoffConfig) BaseDuration() time.Duration { return seconds(b.Base) }
func (b *BackoffConfig) MaxDuration() time.Duration  { return seconds(b.Max) }

func (q *QueueConfig) ClaimTimeoutDuration() time.Duration   { return seconds(q.ClaimTimeout) }
func (q *QueueConfig) SweepDuration() time.Duration          { return seconds(q.SweepInterval) }
func (q *QueueConfig) TransientRetryDuration() time.Duration { return seconds(q.TransientRetryDelay) }

func (d *DispatcherConfig) PollMin() time.Duration {
	return time.Duration(d.PollMinMillis) * time.Millisecond
}

func (d *DispatcherConfig) PollMax() time.Duration {
	return time.Duration(d.PollMaxMillis) * time.Millisecond
}

func (d *DispatcherConfig) SyncDuration() time.Duration      { return seconds(d.SyncInterval) }
func (d *DispatcherConfig) StatePollDuration() time.Duration { return seconds(d.StatePollInterval) }
func (d *DispatcherConfig) LeaseDuration() time.Duration     { return seconds(d.LeaseTTL) }

func (a *AutoReplyConfig) CooldownDuration() time.Duration { return seconds(a.SenderCooldown) }

// Location returns the timezone used to reset daily rule counters.
func (a *AutoReplyConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (m *MiddlewareConfig) RequestTimeoutDuration() time.Duration { return seconds(m.RequestTimeout) }
