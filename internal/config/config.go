package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the server.
type Config struct {
	Addr              string        `env:"ADDR,default=:8080"`
	Env               string        `env:"ENV,default=development"`
	DSN               string        `env:"DB_DSN,required=true"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	TokenTTL          time.Duration `env:"TOKEN_TTL,default=24h"`
	RedisAddr         string        `env:"REDIS_ADDR"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS,default=http://localhost:5173"`
	SessionSendBuffer int           `env:"SESSION_SEND_BUFFER,default=256"`
	PersistTimeout    time.Duration `env:"PERSIST_TIMEOUT,default=5s"`
	MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE,default=8192"`
}

// Load reads the environment, after loading a .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DSN == "" {
		return fmt.Errorf("config: DB_DSN is not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is not set")
	}
	if c.SessionSendBuffer <= 0 {
		return fmt.Errorf("config: SESSION_SEND_BUFFER must be positive, got %d", c.SessionSendBuffer)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("config: TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.MaxMessageSize < 512 {
		return fmt.Errorf("config: MAX_MESSAGE_SIZE must be at least 512, got %d", c.MaxMessageSize)
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
