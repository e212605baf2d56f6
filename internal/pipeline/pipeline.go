package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"joaogchv/promocollector/config"
	"joaogchv/promocollector/internal/metrics"
	"joaogchv/promocollector/internal/normalizer"
	"joaogchv/promocollector/internal/scraper"
	"joaogchv/promocollector/internal/warehouse"
	"joaogchv/promocollector/logger"
	"joaogchv/promocollector/services/publisher"
)

// Fetcher retrieves one source page
type Fetcher interface {
	Fetch(ctx context.Context, sourceTag, url string) ([]byte, error)
}

// Extractor parses a page body into raw listings
type Extractor interface {
	Extract(body []byte, sourceTag string) []scraper.RawListing
}

// Reconciler is the warehouse surface the pipeline drives
type Reconciler interface {
	Reconcile(ctx context.Context, batch []normalizer.Promotion, executionID string) (int, int, error)
	LogOutcome(ctx context.Context, entry warehouse.ExecutionLog) error
}

// RunResult is what one collection run reports back to the caller
type RunResult struct {
	ExecutionID       string    `json:"execution_id"`
	Status            string    `json:"status"`
	ItemsCollected    int       `json:"items_collected"`
	ItemsNormalized   int       `json:"items_normalized"`
	ItemsInserted     int       `json:"items_inserted"`
	ItemsDeduplicated int       `json:"items_deduplicated"`
	DurationSeconds   float64   `json:"duration_seconds"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
}

// Runner orchestrates one collection run: fetch all sources, extract,
// normalize, reconcile, log the outcome
type Runner struct {
	sources    []config.Source
	fetcher    Fetcher
	extractor  Extractor
	normalizer *normalizer.Normalizer
	warehouse  Reconciler
	publisher  publisher.Publisher // optional
	metrics    *metrics.Registry   // optional
	log        *logger.Logger
	now        func() time.Time
}

// NewRunner creates a runner. publisher and reg may be nil.
func NewRunner(
	sources []config.Source,
	fetcher Fetcher,
	extractor Extractor,
	norm *normalizer.Normalizer,
	wh Reconciler,
	pub publisher.Publisher,
	reg *metrics.Registry,
) *Runner {
	return &Runner{
		sources:    sources,
		fetcher:    fetcher,
		extractor:  extractor,
		normalizer: norm,
		warehouse:  wh,
		publisher:  pub,
		metrics:    reg,
		log:        logger.ForPipeline(),
		now:        time.Now,
	}
}

// WithNow overrides the clock, for tests
func (r *Runner) WithNow(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run executes one end-to-end collection. A source that fails to fetch
// contributes zero items; only reconciliation failures are fatal.
func (r *Runner) Run(ctx context.Context) (RunResult, error) {
	executionID := uuid.NewString()
	startTime := r.now().UTC()

	r.log.Info().Str("execution_id", executionID).Msg("Starting collection run")

	raws := r.collectSources(ctx)

	collectedAt := r.now().UTC()
	promotions := r.normalizer.NormalizeAll(raws, executionID, collectedAt)

	r.publish(promotions)

	inserted, duplicates, err := r.warehouse.Reconcile(ctx, promotions, executionID)

	endTime := r.now().UTC()
	result := RunResult{
		ExecutionID:       executionID,
		ItemsCollected:    len(raws),
		ItemsNormalized:   len(promotions),
		ItemsInserted:     inserted,
		ItemsDeduplicated: duplicates,
		DurationSeconds:   endTime.Sub(startTime).Seconds(),
		StartTime:         startTime,
		EndTime:           endTime,
	}

	entry := warehouse.ExecutionLog{
		ExecutionID:       executionID,
		StartTime:         startTime,
		EndTime:           endTime,
		ItemsCollected:    len(raws),
		ItemsInserted:     inserted,
		ItemsDeduplicated: duplicates,
	}

	if err != nil {
		result.Status = "error"
		entry.Status = "error"
		entry.ItemsCollected = 0
		entry.ItemsInserted = 0
		entry.ItemsDeduplicated = 0
		entry.ErrorMessage = err.Error()
		r.logOutcome(ctx, entry)
		if r.metrics != nil {
			r.metrics.RunsFailed.Inc()
			r.metrics.RunDurationSec.Observe(result.DurationSeconds)
		}
		r.log.Error().Err(err).Str("execution_id", executionID).Msg("Collection run failed")
		return result, err
	}

	result.Status = "success"
	entry.Status = "success"
	r.logOutcome(ctx, entry)

	if r.metrics != nil {
		r.metrics.RunsSucceeded.Inc()
		r.metrics.ItemsCollected.Add(float64(len(raws)))
		r.metrics.ItemsInserted.Add(float64(inserted))
		r.metrics.ItemsDeduplicated.Add(float64(duplicates))
		r.metrics.RunDurationSec.Observe(result.DurationSeconds)
	}

	r.log.Info().
		Str("execution_id", executionID).
		Int("collected", len(raws)).
		Int("inserted", inserted).
		Int("duplicates", duplicates).
		Float64("duration_seconds", result.DurationSeconds).
		Msg("Collection run finished")

	return result, nil
}

// collectSources fetches all configured sources concurrently and returns
// the concatenated raw listings. Per-source failures are absorbed here.
func (r *Runner) collectSources(ctx context.Context) []scraper.RawListing {
	perSource := make([][]scraper.RawListing, len(r.sources))

	var wg sync.WaitGroup
	for i, source := range r.sources {
		wg.Add(1)
		go func(i int, source config.Source) {
			defer wg.Done()
			log := logger.ForSource(source.Tag)

			body, err := r.fetcher.Fetch(ctx, source.Tag, source.URL)
			if err != nil {
				if r.metrics != nil {
					r.metrics.FetchFailures.Inc()
				}
				log.Error().Err(err).Msg("Source fetch failed; contributing zero items")
				return
			}

			perSource[i] = r.extractor.Extract(body, source.Tag)
			log.Info().Int("count", len(perSource[i])).Msg("Collected source")
		}(i, source)
	}
	wg.Wait()

	var all []scraper.RawListing
	for _, listings := range perSource {
		all = append(all, listings...)
	}
	return all
}

// publish fans accepted promotions out to the stream, best-effort
func (r *Runner) publish(promotions []normalizer.Promotion) {
	if r.publisher == nil {
		return
	}
	for _, p := range promotions {
		data, err := json.Marshal(p)
		if err != nil {
			r.log.Warn().Err(err).Str("dedupe_key", p.DedupeKey).Msg("Failed to marshal promotion for publishing")
			continue
		}
		if err := r.publisher.Publish(p.Marketplace, data); err != nil {
			r.log.Warn().Err(err).Str("dedupe_key", p.DedupeKey).Msg("Failed to publish promotion")
		}
	}
	if err := r.publisher.TrimStreams(); err != nil {
		r.log.Warn().Err(err).Msg("Failed to trim streams")
	}
}

// logOutcome writes the run's outcome row; a failure here is reported but
// never overrides the run result it describes
func (r *Runner) logOutcome(ctx context.Context, entry warehouse.ExecutionLog) {
	if err := r.warehouse.LogOutcome(context.WithoutCancel(ctx), entry); err != nil {
		r.log.Error().Err(err).Str("execution_id", entry.ExecutionID).Msg("Failed to write execution log")
	}
}
