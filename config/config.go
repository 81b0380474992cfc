// Package config loads application configuration from the environment.
package config

import (
	"os"
)

// Config holds application configuration.
type Config struct {
	Port         string
	DBPath       string
	LogLevel     string
	RedisAddr    string // empty = in-memory catalog cache
	OverdueCron  string // cron spec for the overdue sweep
	CORSOrigins  string // comma-separated allowed origins
	SweepEnabled bool
}

// NewConfig loads configuration from environment variables with defaults
// suitable for local development.
func NewConfig() *Config {
	return &Config{
		Port:         getEnv("PORT", "8080"),
		DBPath:       getEnv("DB_PATH", "finance.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		OverdueCron:  getEnv("OVERDUE_CRON", "0 1 * * *"), // 01:00 daily
		CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080"),
		SweepEnabled: getEnv("OVERDUE_SWEEP", "true") == "true",
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
