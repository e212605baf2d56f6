package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	// Test with default values
	config := LoadConfig()
	assert.Equal(t, ":8080", config.ListenAddr)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 1.5, config.BackoffFactor)
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
	assert.Equal(t, 25, config.ItemsPerSource)
	assert.Equal(t, 300*time.Second, config.RateLimitBlockTime)
	assert.Len(t, config.Sources, 3)
	assert.Equal(t, "daily_offers", config.Sources[0].Tag)
	assert.Equal(t, "", config.RedisAddr)
	assert.Equal(t, "", config.MemcacheAddr)

	// Test with environment variables
	os.Setenv("PG_DSN", "postgres://collector@db.example.com/promozone")
	os.Setenv("MAX_RETRIES", "5")
	os.Setenv("BACKOFF_FACTOR", "2.0")
	os.Setenv("REQUEST_TIMEOUT_SECONDS", "10")
	os.Setenv("ITEMS_PER_SOURCE", "50")
	os.Setenv("DAILY_OFFERS_URL", "https://example.com/offers")

	config = LoadConfig()
	assert.Equal(t, "postgres://collector@db.example.com/promozone", config.PostgresDSN)
	assert.Equal(t, 5, config.MaxRetries)
	assert.Equal(t, 2.0, config.BackoffFactor)
	assert.Equal(t, 10*time.Second, config.RequestTimeout)
	assert.Equal(t, 50, config.ItemsPerSource)
	assert.Equal(t, "https://example.com/offers", config.Sources[0].URL)

	// Clean up
	os.Unsetenv("PG_DSN")
	os.Unsetenv("MAX_RETRIES")
	os.Unsetenv("BACKOFF_FACTOR")
	os.Unsetenv("REQUEST_TIMEOUT_SECONDS")
	os.Unsetenv("ITEMS_PER_SOURCE")
	os.Unsetenv("DAILY_OFFERS_URL")
}

func TestValidate(t *testing.T) {
	valid := Config{
		PostgresDSN:    "postgres://localhost/promozone",
		MaxRetries:     3,
		BackoffFactor:  1.5,
		RequestTimeout: 30 * time.Second,
		ItemsPerSource: 25,
		Sources:        []Source{{Tag: "daily_offers", URL: "https://example.com"}},
	}
	assert.NoError(t, valid.Validate())

	missingDSN := valid
	missingDSN.PostgresDSN = ""
	assert.Error(t, missingDSN.Validate())

	badRetries := valid
	badRetries.MaxRetries = 0
	assert.Error(t, badRetries.Validate())

	badBackoff := valid
	badBackoff.BackoffFactor = 1.0
	assert.Error(t, badBackoff.Validate())

	badCap := valid
	badCap.ItemsPerSource = 0
	assert.Error(t, badCap.Validate())

	noSources := valid
	noSources.Sources = nil
	assert.Error(t, noSources.Validate())
}
