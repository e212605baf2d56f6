package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Source maps a source tag to the offers page it is collected from.
type Source struct {
	Tag string
	URL string
}

// Config represents the application configuration
type Config struct {
	// Warehouse configuration
	PostgresDSN string
	PgMaxConns  int

	// HTTP trigger server
	ListenAddr string

	// Redis configuration (optional; empty addr disables publishing)
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration (optional; empty addr disables the rate-limit guard)
	MemcacheAddr string

	// Fetcher configuration
	MaxRetries         int
	BackoffFactor      float64
	RequestTimeout     time.Duration
	ItemsPerSource     int
	RateLimitBlockTime time.Duration

	// Collection sources
	Sources []Source

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	streamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))
	pgMaxConns, _ := strconv.Atoi(getEnv("PG_MAX_CONNS", "4"))
	maxRetries, _ := strconv.Atoi(getEnv("MAX_RETRIES", "3"))
	backoffFactor, _ := strconv.ParseFloat(getEnv("BACKOFF_FACTOR", "1.5"), 64)
	requestTimeout, _ := strconv.Atoi(getEnv("REQUEST_TIMEOUT_SECONDS", "30"))
	itemsPerSource, _ := strconv.Atoi(getEnv("ITEMS_PER_SOURCE", "25"))
	blockSeconds, _ := strconv.Atoi(getEnv("RATE_LIMIT_BLOCK_SECONDS", "300"))

	return Config{
		PostgresDSN:          getEnv("PG_DSN", ""),
		PgMaxConns:           pgMaxConns,
		ListenAddr:           getEnv("LISTEN_ADDR", ":8080"),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "promotions"),
		RedisStreamCount:     streamCount,
		RedisStreamMaxLength: streamMaxLen,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		MaxRetries:           maxRetries,
		BackoffFactor:        backoffFactor,
		RequestTimeout:       time.Duration(requestTimeout) * time.Second,
		ItemsPerSource:       itemsPerSource,
		RateLimitBlockTime:   time.Duration(blockSeconds) * time.Second,
		Sources: []Source{
			{Tag: "daily_offers", URL: getEnv("DAILY_OFFERS_URL", "https://www.mercadolivre.com.br/ofertas#menu_container")},
			{Tag: "technology", URL: getEnv("TECHNOLOGY_URL", "https://www.mercadolivre.com.br/ofertas?category=MLB1051#menu_container")},
			{Tag: "electronics", URL: getEnv("ELECTRONICS_URL", "https://www.mercadolivre.com.br/ofertas?container_id=MLB271545-1")},
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("PG_DSN is required")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries)
	}
	if c.BackoffFactor <= 1 {
		return fmt.Errorf("BACKOFF_FACTOR must be greater than 1, got %v", c.BackoffFactor)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if c.ItemsPerSource < 1 {
		return fmt.Errorf("ITEMS_PER_SOURCE must be at least 1, got %d", c.ItemsPerSource)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one collection source is required")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
