package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DBURL  string `env:"DB_URL,required,notEmpty"`
	DBName string `env:"DB_NAME" envDefault:"postfeed"`

	JWTSecret string        `env:"JWT_SECRET,required,notEmpty"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"1h"`

	Port      string `env:"PORT" envDefault:"8080"`
	Env       string `env:"APP_ENV" envDefault:"local"` // "local" ou "prod"
	UploadDir string `env:"UPLOAD_DIR" envDefault:"."`

	NatsURL   string `env:"NATS_URL"`
	RedisAddr string `env:"REDIS_ADDR"`

	AuthRPS   float64 `env:"RATELIMIT_AUTH_RPS" envDefault:"1"`
	AuthBurst int     `env:"RATELIMIT_AUTH_BURST" envDefault:"5"`

	OtelEndpoint string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	CORSOrigins  []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load parses the environment and normalises the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.DBURL = strings.TrimSpace(c.DBURL)
	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Port = strings.TrimPrefix(strings.TrimSpace(c.Port), ":")

	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = append(origins, "*")
	}
	c.CORSOrigins = origins

	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is blank")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("config: JWT_TTL must be positive, got %s", c.JWTTTL)
	}
	if c.AuthRPS <= 0 || c.AuthBurst <= 0 {
		return errors.New("config: RATELIMIT_AUTH_RPS and RATELIMIT_AUTH_BURST must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// LogValue keeps the JWT secret and database credentials out of the startup log.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("port", c.Port),
		slog.String("env", c.Env),
		slog.String("db", redactURL(c.DBURL)),
		slog.String("db_name", c.DBName),
		slog.Duration("jwt_ttl", c.JWTTTL),
		slog.String("upload_dir", c.UploadDir),
		slog.String("nats", c.NatsURL),
		slog.String("redis", c.RedisAddr),
		slog.String("otel", c.OtelEndpoint),
		slog.Any("cors_origins", c.CORSOrigins),
	)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid"
	}
	return u.Redacted()
}
