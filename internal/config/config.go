// Package config loads application configuration from environment
// variables, after merging an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers accepted in DB_DRIVER.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env             string         // APP_ENV (dev, test, prod)
	Port            string         // APP_PORT
	DBDriver        string         // DB_DRIVER: mysql, postgres or memory
	DBUser          string         // DB_USER (mysql)
	DBPass          string         // DB_PASS (mysql, may be empty)
	DBHost          string         // DB_HOST (mysql)
	DBPort          string         // DB_PORT (mysql)
	DBName          string         // DB_NAME (mysql)
	DatabaseURL     string         // DATABASE_URL (postgres)
	DBMaxConns      int            // DB_MAX_CONNS (postgres pool size)
	JWTSecret       string         // JWT_SECRET used to verify access tokens
	Location        *time.Location // RESTAURANT_TIMEZONE, day and slot boundaries
	BrokerURL       string         // RABBITMQ_URL or AMQP_URL, empty disables notifications
	LogLevel        string         // LOG_LEVEL
	LogFormat       string         // LOG_FORMAT: text or json
	ShutdownTimeout time.Duration  // SHUTDOWN_TIMEOUT
}

// Load merges .env (when present) into the environment and reads the
// configuration.  Invalid or missing required values halt the program.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env ignored: %v", err)
	}
	cfg, err := FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// FromEnv reads the configuration from the current environment.  All
// problems are reported together.
func FromEnv() (Config, error) {
	var errs []error
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", key))
		}
		return v
	}

	cfg := Config{
		Env:             getenv("APP_ENV", "dev"),
		Port:            getenv("APP_PORT", "8080"),
		DBDriver:        strings.ToLower(getenv("DB_DRIVER", DriverMySQL)),
		DBPass:          os.Getenv("DB_PASS"),
		DBMaxConns:      envInt("DB_MAX_CONNS", 16),
		JWTSecret:       must("JWT_SECRET"),
		BrokerURL:       brokerURL(),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFormat:       getenv("LOG_FORMAT", "text"),
		ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	switch cfg.DBDriver {
	case DriverMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case DriverPostgres:
		cfg.DatabaseURL = must("DATABASE_URL")
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver))
	}

	tz := getenv("RESTAURANT_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid RESTAURANT_TIMEZONE %q: %w", tz, err))
	}
	cfg.Location = loc

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		errs = append(errs, fmt.Errorf("invalid APP_PORT %q", cfg.Port))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// AccessTokenTTL is the lifetime of tokens minted by cmd/devtoken, read
// from ACCESS_TOKEN_TTL_MIN.  The server only verifies tokens and never
// needs it.
func AccessTokenTTL() time.Duration {
	minutes := envInt("ACCESS_TOKEN_TTL_MIN", 15)
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}

func brokerURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}
