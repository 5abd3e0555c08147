// Package config loads the matchmaker's configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every recognized option with its default applied.
type Config struct {
	// Ports
	HTTPPort           int
	MatchmakerPort     int
	AdminDashboardPort int

	// Transport
	UseHTTPS    bool
	TLSCertFile string
	TLSKeyFile  string

	// Feature toggles
	EnableWebserver bool
	LogToFile       bool
	LogFilePath     string
	LogLevel        string
	LogPretty       bool

	// Auth
	JWTSecret   string
	Environment string

	// Rate limiting
	RateLimitWindow      time.Duration
	RateLimitMaxRequests int

	// Engine timing
	SessionTimeout      time.Duration
	HealthCheckInterval time.Duration

	// Optional integrations, unused by the core when empty
	RedisURL    string
	DatabaseURL string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		HTTPPort:           getEnvInt("HTTP_PORT", 80),
		MatchmakerPort:     getEnvInt("MATCHMAKER_PORT", 9999),
		AdminDashboardPort: getEnvInt("ADMIN_DASHBOARD_PORT", 3001),

		UseHTTPS:    getEnvBool("USE_HTTPS", false),
		TLSCertFile: os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:  os.Getenv("TLS_KEY_FILE"),

		EnableWebserver: getEnvBool("ENABLE_WEBSERVER", true),
		LogToFile:       getEnvBool("LOG_TO_FILE", true),
		LogFilePath:     getEnv("LOG_FILE_PATH", "matchmaker.log"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvBool("LOG_PRETTY", false),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		Environment: getEnv("ENVIRONMENT", "development"),

		RateLimitWindow:      getEnvMillis("RATE_LIMIT_WINDOW_MS", 900_000),
		RateLimitMaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 100),

		SessionTimeout:      getEnvMillis("SESSION_TIMEOUT_MS", 1_800_000),
		HealthCheckInterval: getEnvMillis("HEALTH_CHECK_INTERVAL_MS", 30_000),

		RedisURL:    os.Getenv("REDIS_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
}

// Validate rejects configurations that must not reach production.
func (c *Config) Validate() error {
	if c.Environment == "production" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d", c.HTTPPort)
	}
	if c.MatchmakerPort <= 0 || c.MatchmakerPort > 65535 {
		return fmt.Errorf("invalid MATCHMAKER_PORT %d", c.MatchmakerPort)
	}
	if c.AdminDashboardPort <= 0 || c.AdminDashboardPort > 65535 {
		return fmt.Errorf("invalid ADMIN_DASHBOARD_PORT %d", c.AdminDashboardPort)
	}
	if c.UseHTTPS && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		return fmt.Errorf("USE_HTTPS requires TLS_CERT_FILE and TLS_KEY_FILE")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvMillis reads a millisecond count into a duration.
func getEnvMillis(key string, defaultMillis int64) time.Duration {
	millis := defaultMillis
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			millis = parsed
		}
	}
	return time.Duration(millis) * time.Millisecond
}
