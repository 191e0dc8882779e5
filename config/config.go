package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Task event scopes for the realtime channel.
const (
	ScopeBroadcast    = "broadcast"
	ScopeParticipants = "participants"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	AllowedOrigins  []string      `yaml:"allowed_origins"  env:"SERVER_ALLOWED_ORIGINS"  env-default:"http://localhost:5173" env-separator:","`
}

// DatabaseConfig selects the sqlite driver. "sqlite" is the pure Go driver,
// "sqlite3" needs a cgo build.
type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DATABASE_DRIVER" env-default:"sqlite"`
	DSN    string `yaml:"dsn"    env:"DATABASE_DSN"    env-default:"data.db"`
}

type AuthConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"    env:"AUTH_JWT_SECRET"    env-required:"true"`
	JWTIssuer    string        `yaml:"jwt_issuer"    env:"AUTH_JWT_ISSUER"    env-default:"task-collab"`
	TokenTTL     time.Duration `yaml:"token_ttl"     env:"AUTH_TOKEN_TTL"     env-default:"168h"`
	CookieName   string        `yaml:"cookie_name"   env:"AUTH_COOKIE_NAME"   env-default:"session"`
	CookieSecure bool          `yaml:"cookie_secure" env:"AUTH_COOKIE_SECURE" env-default:"false"`
}

// RedisConfig leaves the cache and rate limiter disabled when Addr is empty.
type RedisConfig struct {
	Addr     string        `yaml:"addr"     env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"       env:"REDIS_DB"       env-default:"0"`
	TaskTTL  time.Duration `yaml:"task_ttl" env:"REDIS_TASK_TTL" env-default:"5m"`
}

type RateLimitConfig struct {
	Limit  int           `yaml:"limit"  env:"RATE_LIMIT"        env-default:"100"`
	Window time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"1m"`
}

type RealtimeConfig struct {
	Workers        int           `yaml:"workers"          env:"REALTIME_WORKERS"          env-default:"4"`
	QueueSize      int           `yaml:"queue_size"       env:"REALTIME_QUEUE_SIZE"       env-default:"256"`
	SendBuffer     int           `yaml:"send_buffer"      env:"REALTIME_SEND_BUFFER"      env-default:"64"`
	WriteTimeout   time.Duration `yaml:"write_timeout"    env:"REALTIME_WRITE_TIMEOUT"    env-default:"10s"`
	PingPeriod     time.Duration `yaml:"ping_period"      env:"REALTIME_PING_PERIOD"      env-default:"30s"`
	TaskEventScope string        `yaml:"task_event_scope" env:"REALTIME_TASK_EVENT_SCOPE" env-default:"broadcast"`
}

type LogConfig struct {
	Level      string `yaml:"level"       env:"LOG_LEVEL"       env-default:"info"`
	File       string `yaml:"file"        env:"LOG_FILE"        env-default:"logs/app.log"`
	MaxSize    int    `yaml:"max_size"    env:"LOG_MAX_SIZE"    env-default:"10"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"3"`
	MaxAge     int    `yaml:"max_age"     env:"LOG_MAX_AGE"     env-default:"28"`
}

// Load reads the yaml file at path when it exists, then applies environment
// overrides. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return &cfg, cfg.Validate()
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver)
	}
	switch c.Realtime.TaskEventScope {
	case ScopeBroadcast, ScopeParticipants:
	default:
		return fmt.Errorf("realtime.task_event_scope: must be %q or %q", ScopeBroadcast, ScopeParticipants)
	}
	if c.Realtime.Workers < 1 {
		return fmt.Errorf("realtime.workers: must be at least 1")
	}
	if c.RateLimit.Limit < 1 {
		return fmt.Errorf("rate_limit.limit: must be at least 1")
	}
	return nil
}
