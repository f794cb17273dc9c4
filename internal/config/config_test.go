package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FOLIO_DB", "")
	t.Setenv("FOLIO_DEBOUNCE_MS", "")

	cfg := Load()
	assert.Contains(t, cfg.DBPath, "folio.db")
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.QuietPeriod)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FOLIO_DB", "/tmp/x.db")
	t.Setenv("FOLIO_ADDR", ":9999")
	t.Setenv("FOLIO_DEBOUNCE_MS", "250")
	t.Setenv("FOLIO_LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.QuietPeriod)
	assert.Equal(t, logrus.DebugLevel, cfg.Logger().GetLevel())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("FOLIO_DEBOUNCE_MS", "soon")
	t.Setenv("FOLIO_LOG_LEVEL", "loud")

	cfg := Load()
	assert.Equal(t, 500*time.Millisecond, cfg.QuietPeriod)
	assert.Equal(t, logrus.InfoLevel, cfg.Logger().GetLevel())
}
