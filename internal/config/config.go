// Package config provides configuration for the application
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultAPIBaseURL is used when API_BASE_URL is not set
const DefaultAPIBaseURL = "http://localhost:3001"

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	API      APIConfig
	Session  SessionConfig
	Logging  LoggingConfig
	CORS     CORSConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	WebPort int
	APIPort int
}

// APIConfig holds settings of the users API consumed by the web frontend
type APIConfig struct {
	BaseURL string
}

// SessionConfig holds settings of browser sessions of the web frontend
type SessionConfig struct {
	TTL time.Duration
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads configuration from environment variables.
//
// A .env file in the working directory is loaded first when present.
// Database settings are optional here; binaries that need a database must call ValidateDatabase.
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database configuration
	cfg.Database.Host = os.Getenv("DB_HOST")
	cfg.Database.User = os.Getenv("DB_USER")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.DBName = os.Getenv("DB_NAME")
	if dbPortStr := os.Getenv("DB_PORT"); dbPortStr != "" {
		dbPort, err := strconv.Atoi(dbPortStr)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.Database.Port = dbPort
	}

	// Server configuration
	webPort, err := intFromEnv("WEB_SERVER_PORT", 3000)
	if err != nil {
		return nil, err
	}
	cfg.Server.WebPort = webPort

	apiPort, err := intFromEnv("API_SERVER_PORT", 3001)
	if err != nil {
		return nil, err
	}
	cfg.Server.APIPort = apiPort

	// Users API configuration
	baseURL := strings.TrimSpace(os.Getenv("API_BASE_URL"))
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API_BASE_URL: %w", err)
	}
	cfg.API.BaseURL = strings.TrimRight(baseURL, "/")

	// Session configuration
	cfg.Session.TTL = 30 * time.Minute
	if ttlStr := os.Getenv("SESSION_TTL"); ttlStr != "" {
		ttl, err := time.ParseDuration(ttlStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("SESSION_TTL must be positive")
		}
		cfg.Session.TTL = ttl
	}

	// Logging configuration
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info" // default level
	}
	cfg.Logging.Level = logLevel

	// CORS configuration
	cfg.CORS.AllowedOrigins = parseOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"))

	return cfg, nil
}

// ValidateDatabase checks that all database settings are present
func (c *Config) ValidateDatabase() error {
	switch {
	case c.Database.Host == "":
		return fmt.Errorf("DB_HOST is required")
	case c.Database.Port == 0:
		return fmt.Errorf("DB_PORT is required")
	case c.Database.User == "":
		return fmt.Errorf("DB_USER is required")
	case c.Database.Password == "":
		return fmt.Errorf("DB_PASSWORD is required")
	case c.Database.DBName == "":
		return fmt.Errorf("DB_NAME is required")
	}
	return nil
}

// DSN returns the database connection string, or an empty string when no host is configured
func (c *Config) DSN() string {
	if c.Database.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}

func intFromEnv(key string, def int) (int, error) {
	str := os.Getenv(key)
	if str == "" {
		return def, nil
	}
	v, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// parseOrigins parses comma-separated origins, defaulting to allow all
func parseOrigins(raw string) []string {
	if raw == "" {
		// Default to allow all origins if not specified (for development)
		return []string{"*"}
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, origin := range parts {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
