package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"joaogchv/promocollector/internal/metrics"
	"joaogchv/promocollector/internal/pipeline"
	"joaogchv/promocollector/internal/warehouse"
)

type fakeRunner struct {
	result pipeline.RunResult
	err    error
}

func (f *fakeRunner) Run(ctx context.Context) (pipeline.RunResult, error) {
	return f.result, f.err
}

type fakeStats struct {
	stats  warehouse.Stats
	window time.Duration
	err    error
}

func (f *fakeStats) QueryStats(ctx context.Context, window time.Duration) (warehouse.Stats, error) {
	f.window = window
	return f.stats, f.err
}

func TestHandleHealth(t *testing.T) {
	server := NewServer(&fakeRunner{}, &fakeStats{}, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleCollectSuccess(t *testing.T) {
	runner := &fakeRunner{result: pipeline.RunResult{
		ExecutionID:       "exec-1",
		Status:            "success",
		ItemsCollected:    10,
		ItemsInserted:     7,
		ItemsDeduplicated: 3,
		DurationSeconds:   1.25,
	}}
	server := NewServer(runner, &fakeStats{}, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/collect", "application/json", nil)
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body pipeline.RunResult
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "exec-1", body.ExecutionID)
	assert.Equal(t, 7, body.ItemsInserted)
}

func TestHandleCollectError(t *testing.T) {
	runner := &fakeRunner{
		result: pipeline.RunResult{ExecutionID: "exec-2", Status: "error", DurationSeconds: 0.5},
		err:    errors.New("conditional insert failed"),
	}
	server := NewServer(runner, &fakeStats{}, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/collect", "application/json", nil)
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	// The caller can correlate the failure with the persisted log row
	assert.Equal(t, "exec-2", body["execution_id"])
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "conditional insert failed")
	assert.Equal(t, 0.5, body["duration_seconds"])
}

func TestHandleCollectMethodNotAllowed(t *testing.T) {
	server := NewServer(&fakeRunner{}, &fakeStats{}, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/collect")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleStats(t *testing.T) {
	stats := &fakeStats{stats: warehouse.Stats{
		Executions:  2,
		TotalItems:  40,
		UniqueItems: 35,
		BySource:    map[string]int{"daily_offers": 20, "technology": 10, "electronics": 10},
	}}
	server := NewServer(&fakeRunner{}, stats, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 24*time.Hour, stats.window)

	var body warehouse.Stats
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 40, body.TotalItems)

	// Window override
	resp2, err := http.Get(ts.URL + "/stats?hours=48")
	assert.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, 48*time.Hour, stats.window)

	// Invalid window
	resp3, err := http.Get(ts.URL + "/stats?hours=zero")
	assert.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	server := NewServer(&fakeRunner{}, &fakeStats{}, metrics.NewRegistry())
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
