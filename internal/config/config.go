package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Env           string `env:"ENVIRONMENT" envDefault:"development"`
	Port          int    `env:"PORT" envDefault:"8080"`
	EncryptionKey string `env:"PUSH_ENCRYPTION_KEY"`
	Backend       string `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	SessionSecret string `env:"SESSION_SECRET"`
	SessionName   string `env:"SESSION_NAME" envDefault:"session"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	Redis RedisConfig
	VAPID VAPIDConfig
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// VAPIDConfig holds the application server keys used to sign push requests.
// Empty keys are generated at startup.
type VAPIDConfig struct {
	PublicKey  string `env:"VAPID_PUBLIC_KEY"`
	PrivateKey string `env:"VAPID_PRIVATE_KEY"`
	Subscriber string `env:"VAPID_SUBSCRIBER" envDefault:"mailto:admin@example.com"`
	TTL        int    `env:"PUSH_TTL" envDefault:"30"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) IsProduction() bool {
	return cfg.Env == EnvProduction
}

func (cfg *Config) validate() error {
	switch cfg.Backend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL environment variable is required for the postgres backend")
		}
	case BackendRedis:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q (use postgres or redis)", cfg.Backend)
	}

	if cfg.SessionSecret == "" {
		if cfg.IsProduction() {
			return errors.New("SESSION_SECRET environment variable is required in production")
		}
		cfg.SessionSecret = "secret-key-change-in-production"
	}
	return nil
}
