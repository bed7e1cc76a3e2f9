package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"zerosaver/internal/catalog"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Catalog  CatalogConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
	MigrationsDir  string
}

// IsDevelopment reports whether the server runs outside production.
func (s ServerConfig) IsDevelopment() bool {
	return s.Env != "production"
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
}

type RedisConfig struct {
	Enabled           bool
	Host              string
	Port              string
	Password          string
	DB                int
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// RabbitMQConfig is optional; an empty URL disables event publishing.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type CatalogConfig struct {
	SweepInterval  time.Duration
	Policy         string
	BackendTimeout time.Duration
}

// Load reads configuration from .env in the working directory and the process
// environment.
func Load() *Config {
	return LoadFrom(".env")
}

// LoadFrom reads configuration from the env file at path, then the process
// environment. Variables already set in the environment win.
func LoadFrom(path string) *Config {
	if err := godotenv.Load(path); err != nil {
		log.Printf("Warning: Could not load %s: %v", path, err)
	}

	v := viper.New()
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("DB_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("RATE_LIMIT_REQUESTS", 30)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("RABBITMQ_EXCHANGE", "zerosaver.events")
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 10)
	v.SetDefault("RESERVATION_POLICY", string(catalog.PolicyCap))
	v.SetDefault("BACKEND_TIMEOUT_SECONDS", 3)

	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			MigrationsDir:  v.GetString("MIGRATIONS_DIR"),
		},
		Database: DatabaseConfig{
			Enabled:  v.GetBool("DB_ENABLED"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Database: v.GetString("DB_DATABASE"),
			Schema:   v.GetString("DB_SCHEMA"),
		},
		Redis: RedisConfig{
			Enabled:           v.GetBool("REDIS_ENABLED"),
			Host:              v.GetString("REDIS_HOST"),
			Port:              v.GetString("REDIS_PORT"),
			Password:          v.GetString("REDIS_PASSWORD"),
			DB:                v.GetInt("REDIS_DB"),
			RateLimitRequests: v.GetInt("RATE_LIMIT_REQUESTS"),
			RateLimitWindow:   seconds(v.GetInt("RATE_LIMIT_WINDOW_SECONDS")),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      v.GetString("RABBITMQ_URL"),
			Exchange: v.GetString("RABBITMQ_EXCHANGE"),
		},
		Catalog: CatalogConfig{
			SweepInterval:  seconds(v.GetInt("SWEEP_INTERVAL_SECONDS")),
			Policy:         v.GetString("RESERVATION_POLICY"),
			BackendTimeout: seconds(v.GetInt("BACKEND_TIMEOUT_SECONDS")),
		},
	}
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if _, err := catalog.ParsePolicy(c.Catalog.Policy); err != nil {
		return err
	}
	if c.Catalog.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}
	if c.Redis.Enabled && (c.Redis.RateLimitRequests <= 0 || c.Redis.RateLimitWindow <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive")
	}
	if c.Database.Enabled && c.Database.Database == "" {
		return fmt.Errorf("DB_DATABASE is required when DB_ENABLED is set")
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
