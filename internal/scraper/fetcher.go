package scraper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"joaogchv/promocollector/helpers"
	"joaogchv/promocollector/logger"
	errs "joaogchv/promocollector/pkg/errors"
	"joaogchv/promocollector/services/cache"
)

const backoffBase = 1 * time.Second

// SleepFunc suspends for the given duration or until the context is done.
// Injected in tests to keep retry timing deterministic.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fetcher retrieves source pages with bounded retries and exponential
// backoff. The http.Client connection pool is the only state shared between
// concurrent fetches.
type Fetcher struct {
	client        *http.Client
	maxRetries    int
	backoffFactor float64
	cacheSvc      cache.CacheService
	blockTime     time.Duration
	sleep         SleepFunc
	log           *logger.Logger
}

// NewFetcher creates a fetcher. cacheSvc may be nil, which disables the
// shared rate-limit guard.
func NewFetcher(client *http.Client, maxRetries int, backoffFactor float64, cacheSvc cache.CacheService, blockTime time.Duration) *Fetcher {
	return &Fetcher{
		client:        client,
		maxRetries:    maxRetries,
		backoffFactor: backoffFactor,
		cacheSvc:      cacheSvc,
		blockTime:     blockTime,
		sleep:         defaultSleep,
		log:           logger.ForFetcher(),
	}
}

// WithSleep overrides the backoff suspension, for tests
func (f *Fetcher) WithSleep(sleep SleepFunc) *Fetcher {
	f.sleep = sleep
	return f
}

func (f *Fetcher) blockKey(sourceTag string) string {
	return "ratelimit:" + sourceTag
}

// Fetch retrieves the page body for one source, retrying transient failures
// with a 1s * backoffFactor^attempt delay between attempts. A rate-limiting
// response blocks the source for the configured time instead of retrying.
func (f *Fetcher) Fetch(ctx context.Context, sourceTag, url string) ([]byte, error) {
	// A previously rate-limited source stays blocked until the key expires
	if f.cacheSvc != nil {
		if _, err := f.cacheSvc.Get(f.blockKey(sourceTag)); err == nil {
			return nil, errs.NewRateLimit(sourceTag, f.blockTime)
		}
	}

	var lastErr error
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		body, err := helpers.FetchPage(f.client, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if errors.Is(err, helpers.ErrRateLimited) {
			if f.cacheSvc != nil {
				blockValue := []byte(fmt.Sprintf("%d", int(f.blockTime.Seconds())))
				if cacheErr := f.cacheSvc.Set(f.blockKey(sourceTag), blockValue, f.blockTime); cacheErr != nil {
					f.log.Warn().Err(cacheErr).Str("source", sourceTag).Msg("Failed to set rate-limit block key")
				}
			}
			return nil, errs.NewRateLimit(sourceTag, f.blockTime)
		}

		f.log.Warn().
			Err(err).
			Str("source", sourceTag).
			Int("attempt", attempt+1).
			Int("max_retries", f.maxRetries).
			Msg("Fetch attempt failed")

		if attempt < f.maxRetries-1 {
			delay := time.Duration(float64(backoffBase) * math.Pow(f.backoffFactor, float64(attempt)))
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, errs.NewFetch(sourceTag, fmt.Sprintf("exhausted %d attempts for %s", f.maxRetries, url), lastErr)
}
