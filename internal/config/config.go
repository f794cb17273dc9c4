package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the settings shared by the CLI and the API server
type Config struct {
	DBPath      string
	Addr        string
	QuietPeriod time.Duration
	LogLevel    string
	LogFormat   string
}

// Load reads the configuration from FOLIO_* environment variables
func Load() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DBPath:      getenv("FOLIO_DB", filepath.Join(home, ".folio", "folio.db")),
		Addr:        getenv("FOLIO_ADDR", ":8080"),
		QuietPeriod: time.Duration(getenvInt("FOLIO_DEBOUNCE_MS", 500)) * time.Millisecond,
		LogLevel:    getenv("FOLIO_LOG_LEVEL", "info"),
		LogFormat:   getenv("FOLIO_LOG_FORMAT", "json"),
	}
}

// Logger builds the process logger. Defaults to info level and json format.
func (c Config) Logger() *logrus.Logger {
	logger := logrus.New()
	if c.LogFormat != "text" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
