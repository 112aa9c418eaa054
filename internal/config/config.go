package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host string
	Port int
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns DATABASE_URL when set, otherwise a key/value DSN built from the
// individual fields.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Config is the complete application configuration
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	JWTSecret      string
	AllowedOrigins []string
	Debug          bool
	// StrictFloor serializes all boosts on a subject, not just one member's.
	StrictFloor bool
}

// envFiles are tried in order; the first one that loads wins.
var envFiles = []string{".env", "../.env", "../../.env"}

// Load reads an optional .env file, then applies environment overrides on top
// of the defaults.
func Load() (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err == nil {
			break
		}
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only. It
// rejects malformed values; required settings are checked by the Validate
// methods, since each command needs a different subset.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnvOrDefault("HOST", "0.0.0.0"),
			Port: 8080,
		},
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     5432,
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnvOrDefault("DB_NAME", "whisper"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		},
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AllowedOrigins: []string{"*"},
	}

	var err error
	if cfg.Server.Port, err = getIntOrDefault("PORT", cfg.Server.Port); err != nil {
		return nil, err
	}
	if cfg.Database.Port, err = getIntOrDefault("DB_PORT", cfg.Database.Port); err != nil {
		return nil, err
	}
	if cfg.Debug, err = getBoolOrDefault("WHISPER_DEBUG", false); err != nil {
		return nil, err
	}
	if cfg.StrictFloor, err = getBoolOrDefault("WHISPER_STRICT_FLOOR", false); err != nil {
		return nil, err
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	return cfg, nil
}

// Validate reports every setting missing for running the server.
func (c *Config) Validate() error {
	return errors.Join(c.ValidateAuth(), c.Database.Validate())
}

// ValidateAuth checks what signing and verifying tokens needs.
func (c *Config) ValidateAuth() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	return nil
}

// Validate checks that a connection can be attempted.
func (d DatabaseConfig) Validate() error {
	if d.URL == "" && d.User == "" {
		return errors.New("DB_USER environment variable is required when DATABASE_URL is not set")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return value, nil
}

func getBoolOrDefault(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return value, nil
}
