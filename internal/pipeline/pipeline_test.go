package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"joaogchv/promocollector/config"
	"joaogchv/promocollector/internal/normalizer"
	"joaogchv/promocollector/internal/scraper"
	"joaogchv/promocollector/internal/warehouse"
)

// fakeReconciler records reconcile calls and outcome-log writes
type fakeReconciler struct {
	batches       [][]normalizer.Promotion
	outcomes      []warehouse.ExecutionLog
	reconcileErr  error
	logOutcomeErr error
}

func (f *fakeReconciler) Reconcile(ctx context.Context, batch []normalizer.Promotion, executionID string) (int, int, error) {
	f.batches = append(f.batches, batch)
	if f.reconcileErr != nil {
		return 0, 0, f.reconcileErr
	}
	return len(batch), 0, nil
}

func (f *fakeReconciler) LogOutcome(ctx context.Context, entry warehouse.ExecutionLog) error {
	f.outcomes = append(f.outcomes, entry)
	return f.logOutcomeErr
}

// fakePublisher records published messages
type fakePublisher struct {
	published [][]byte
	trimmed   int
}

func (f *fakePublisher) Publish(key string, message []byte) error {
	f.published = append(f.published, message)
	return nil
}
func (f *fakePublisher) TrimStreams() error { f.trimmed++; return nil }
func (f *fakePublisher) Close() error       { return nil }

func offersPage(n int) string {
	page := "<html><body>"
	for i := 0; i < n; i++ {
		page += fmt.Sprintf(`<div class="poly-card">
			<a class="poly-component__title" href="https://www.mercadolivre.com.br/p/MLB%d">Produto %d</a>
			<div class="poly-price__current"><span class="andes-money-amount__fraction">%d</span></div>
		</div>`, 1000+i, i, 100+i)
	}
	return page + "</body></html>"
}

func newTestRunner(sources []config.Source, wh Reconciler, pub *fakePublisher) *Runner {
	marketplace := scraper.MercadoLivre()
	fetcher := scraper.NewFetcher(http.DefaultClient, 1, 1.5, nil, time.Minute).
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil })
	extractor := scraper.NewExtractor(marketplace, 25)
	norm := normalizer.New(marketplace.IDPattern)

	if pub != nil {
		return NewRunner(sources, fetcher, extractor, norm, wh, pub, nil)
	}
	return NewRunner(sources, fetcher, extractor, norm, wh, nil, nil)
}

func TestRunHappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, offersPage(3))
	}))
	defer server.Close()

	wh := &fakeReconciler{}
	pub := &fakePublisher{}
	runner := newTestRunner([]config.Source{{Tag: "daily_offers", URL: server.URL}}, wh, pub)

	result, err := runner.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.NotEmpty(t, result.ExecutionID)
	assert.Equal(t, 3, result.ItemsCollected)
	assert.Equal(t, 3, result.ItemsNormalized)
	assert.Equal(t, 3, result.ItemsInserted)
	assert.Equal(t, 0, result.ItemsDeduplicated)
	assert.False(t, result.EndTime.Before(result.StartTime))

	// One outcome row, matching the run
	assert.Len(t, wh.outcomes, 1)
	assert.Equal(t, result.ExecutionID, wh.outcomes[0].ExecutionID)
	assert.Equal(t, "success", wh.outcomes[0].Status)
	assert.Equal(t, 3, wh.outcomes[0].ItemsCollected)

	// Every accepted promotion was fanned out
	assert.Len(t, pub.published, 3)
	assert.Equal(t, 1, pub.trimmed)

	// The batch carried the execution ID into every record
	assert.Len(t, wh.batches, 1)
	for _, p := range wh.batches[0] {
		assert.Equal(t, result.ExecutionID, p.ExecutionID)
	}
}

func TestRunPartialSourceFailure(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, offersPage(2))
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	sources := []config.Source{
		{Tag: "daily_offers", URL: good.URL},
		{Tag: "technology", URL: bad.URL},
		{Tag: "electronics", URL: good.URL},
	}

	wh := &fakeReconciler{}
	runner := newTestRunner(sources, wh, nil)

	result, err := runner.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "success", result.Status)

	// The failing source contributes zero items; the other two proceed
	assert.Equal(t, 4, result.ItemsCollected)
	assert.Equal(t, 4, result.ItemsInserted)
}

func TestRunReconciliationFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, offersPage(2))
	}))
	defer server.Close()

	wh := &fakeReconciler{reconcileErr: errors.New("staging load failed")}
	runner := newTestRunner([]config.Source{{Tag: "daily_offers", URL: server.URL}}, wh, nil)

	result, err := runner.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "error", result.Status)
	assert.NotEmpty(t, result.ExecutionID)

	// The outcome row still lands, with the captured error text
	assert.Len(t, wh.outcomes, 1)
	assert.Equal(t, "error", wh.outcomes[0].Status)
	assert.Contains(t, wh.outcomes[0].ErrorMessage, "staging load failed")
	assert.Equal(t, result.ExecutionID, wh.outcomes[0].ExecutionID)
}

func TestRunOutcomeLogFailureNeverMasksResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, offersPage(1))
	}))
	defer server.Close()

	wh := &fakeReconciler{logOutcomeErr: errors.New("log table unavailable")}
	runner := newTestRunner([]config.Source{{Tag: "daily_offers", URL: server.URL}}, wh, nil)

	result, err := runner.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "success", result.Status)
}

func TestRunAllSourcesFailing(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	wh := &fakeReconciler{}
	runner := newTestRunner([]config.Source{{Tag: "daily_offers", URL: bad.URL}}, wh, nil)

	result, err := runner.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 0, result.ItemsCollected)

	// Empty batch still reaches the reconciler, which short-circuits
	assert.Len(t, wh.batches, 1)
	assert.Empty(t, wh.batches[0])
}
