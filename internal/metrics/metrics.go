package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	RunsSucceeded     prometheus.Counter
	RunsFailed        prometheus.Counter
	ItemsCollected    prometheus.Counter
	ItemsInserted     prometheus.Counter
	ItemsDeduplicated prometheus.Counter
	FetchFailures     prometheus.Counter
	RunDurationSec    prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	runsSucceeded := prometheus.NewCounter(prometheus.CounterOpts{Name: "collector_runs_succeeded_total"})
	runsFailed := prometheus.NewCounter(prometheus.CounterOpts{Name: "collector_runs_failed_total"})
	itemsCollected := prometheus.NewCounter(prometheus.CounterOpts{Name: "collector_items_collected_total"})
	itemsInserted := prometheus.NewCounter(prometheus.CounterOpts{Name: "collector_items_inserted_total"})
	itemsDeduplicated := prometheus.NewCounter(prometheus.CounterOpts{Name: "collector_items_deduplicated_total"})
	fetchFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "collector_fetch_failures_total"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "collector_run_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(runsSucceeded, runsFailed, itemsCollected, itemsInserted, itemsDeduplicated, fetchFailures, runDuration)
	return &Registry{
		reg:               r,
		RunsSucceeded:     runsSucceeded,
		RunsFailed:        runsFailed,
		ItemsCollected:    itemsCollected,
		ItemsInserted:     itemsInserted,
		ItemsDeduplicated: itemsDeduplicated,
		FetchFailures:     fetchFailures,
		RunDurationSec:    runDuration,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
