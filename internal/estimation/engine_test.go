// internal/estimation/engine_test.go
package estimation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carprice-estimator/internal/common/config"
	"carprice-estimator/internal/common/errors"
	"carprice-estimator/internal/common/logger"
	"carprice-estimator/internal/estimation/model"
)

// stubSearcher counts upstream calls and optionally blocks inside Search
// until released, so tests can line up concurrent requests.
type stubSearcher struct {
	calls    int32
	listings []model.Listing
	err      error
	entered  chan struct{}
	release  chan struct{}
}

func (s *stubSearcher) Search(ctx context.Context, spec model.SearchSpec) ([]model.Listing, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.release != nil {
		<-s.release
	}
	return s.listings, s.err
}

func (s *stubSearcher) Calls() int32 {
	return atomic.LoadInt32(&s.calls)
}

type memStore struct {
	mu      sync.Mutex
	entries map[string]model.Estimate
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]model.Estimate)}
}

func (m *memStore) Get(ctx context.Context, stockID string) (model.Estimate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	est, ok := m.entries[stockID]
	return est, ok, nil
}

func (m *memStore) Put(ctx context.Context, stockID string, est model.Estimate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[stockID] = est
	return nil
}

func (m *memStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func testEngineConfig() config.EstimationConfig {
	return config.EstimationConfig{
		ThrottleInterval: 0,
		PriceFloor:       500,
		MaxResults:       10,
	}
}

func testRawVehicle(stock string) model.RawVehicle {
	return model.RawVehicle{
		Brand:   "OPEL",
		Model:   "Astra",
		Year:    "2019",
		Km:      "60000",
		CarData: stock,
	}
}

func testListing(id int64, priceCents int64) model.Listing {
	return model.Listing{
		ID:         id,
		Subject:    "Opel Astra",
		Body:       "Très bon état, entretien à jour",
		PriceCents: priceCents,
		Attributes: []model.Attribute{
			{Key: "doors", Value: "5"},
			{Key: "seats", Value: "5"},
			{Key: "vehicle_type", Value: "berline"},
		},
	}
}

func testListings(n int) []model.Listing {
	out := make([]model.Listing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, testListing(int64(i+1), int64(1000000+i*10000)))
	}
	return out
}

func newTestEngine(t *testing.T, cfg config.EstimationConfig, store EstimateStore, search *stubSearcher) *Engine {
	t.Helper()
	return NewEngine(cfg, store, search, nil, nil, nil, logger.NewTestLogger(t))
}

func TestEngineEstimateHappyPath(t *testing.T) {
	search := &stubSearcher{listings: testListings(7)}
	store := newMemStore()
	eng := newTestEngine(t, testEngineConfig(), store, search)

	result, err := eng.Estimate(context.Background(), testRawVehicle("stock-1"))
	require.NoError(t, err)

	assert.Equal(t, 7, result.Estimate.SampleCount)
	require.NotNil(t, result.Estimate.EstimatedPrice)
	assert.Positive(t, *result.Estimate.EstimatedPrice)
	assert.False(t, result.FromCache)
	assert.Len(t, result.Listings, 7)
	assert.EqualValues(t, 1, search.Calls())
}

func TestEngineConcurrentSameStockSharesOneUpstreamCall(t *testing.T) {
	search := &stubSearcher{
		listings: testListings(5),
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	eng := newTestEngine(t, testEngineConfig(), newMemStore(), search)

	results := make([]*Result, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = eng.Estimate(context.Background(), testRawVehicle("stock-42"))
	}()

	// Wait until the leader is inside the upstream call, then attach the
	// second request to the same flight.
	select {
	case <-search.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("leader never reached the searcher")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = eng.Estimate(context.Background(), testRawVehicle("stock-42"))
	}()

	// Give the joiner a moment to attach before releasing the leader.
	time.Sleep(50 * time.Millisecond)
	close(search.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.EqualValues(t, 1, search.Calls())
	assert.Equal(t, results[0].Estimate, results[1].Estimate)
}

func TestEngineCacheHitSkipsUpstream(t *testing.T) {
	search := &stubSearcher{listings: testListings(5)}
	store := newMemStore()
	eng := newTestEngine(t, testEngineConfig(), store, search)

	first, err := eng.Estimate(context.Background(), testRawVehicle("stock-7"))
	require.NoError(t, err)
	eng.writes.Wait()
	require.Equal(t, 1, store.Len())

	second, err := eng.Estimate(context.Background(), testRawVehicle("stock-7"))
	require.NoError(t, err)

	assert.True(t, second.FromCache)
	assert.Equal(t, first.Estimate, second.Estimate)
	assert.EqualValues(t, 1, search.Calls())
}

func TestEngineThrottleFailsFast(t *testing.T) {
	search := &stubSearcher{listings: testListings(3)}
	cfg := testEngineConfig()
	cfg.ThrottleInterval = 60000
	eng := newTestEngine(t, cfg, newMemStore(), search)

	_, err := eng.Estimate(context.Background(), testRawVehicle("stock-a"))
	require.NoError(t, err)

	_, err = eng.Estimate(context.Background(), testRawVehicle("stock-b"))
	require.Error(t, err)

	ee, ok := errors.AsEstimationError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeRateLimited, ee.Code)
	assert.Greater(t, ee.RetryAfter, time.Duration(0))
	assert.EqualValues(t, 1, search.Calls())
}

func TestEngineEmptyResultNotCached(t *testing.T) {
	search := &stubSearcher{}
	store := newMemStore()
	eng := newTestEngine(t, testEngineConfig(), store, search)

	result, err := eng.Estimate(context.Background(), testRawVehicle("stock-empty"))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Estimate.SampleCount)
	assert.Nil(t, result.Estimate.EstimatedPrice)

	eng.writes.Wait()
	assert.Equal(t, 0, store.Len())

	// A second identical request goes upstream again.
	_, err = eng.Estimate(context.Background(), testRawVehicle("stock-empty"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, search.Calls())
}

func TestEngineValidationErrorSkipsUpstream(t *testing.T) {
	search := &stubSearcher{listings: testListings(3)}
	eng := newTestEngine(t, testEngineConfig(), newMemStore(), search)

	raw := testRawVehicle("stock-x")
	raw.Brand = ""

	_, err := eng.Estimate(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
	assert.EqualValues(t, 0, search.Calls())
}

func TestEngineBadMinPriceRejected(t *testing.T) {
	search := &stubSearcher{listings: testListings(3)}
	eng := newTestEngine(t, testEngineConfig(), newMemStore(), search)

	raw := testRawVehicle("stock-y")
	raw.MinPrice = "cheap"

	_, err := eng.Estimate(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
	assert.EqualValues(t, 0, search.Calls())
}

func TestEngineTrimsListingsToMaxResults(t *testing.T) {
	search := &stubSearcher{listings: testListings(15)}
	eng := newTestEngine(t, testEngineConfig(), newMemStore(), search)

	result, err := eng.Estimate(context.Background(), testRawVehicle("stock-many"))
	require.NoError(t, err)

	assert.Equal(t, 15, result.Estimate.SampleCount)
	assert.Len(t, result.Listings, 10)
}

func TestEngineSearchErrorPropagates(t *testing.T) {
	search := &stubSearcher{err: errors.NewUpstreamError(502, "bad gateway")}
	store := newMemStore()
	eng := newTestEngine(t, testEngineConfig(), store, search)

	_, err := eng.Estimate(context.Background(), testRawVehicle("stock-err"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUpstreamFailed))

	eng.writes.Wait()
	assert.Equal(t, 0, store.Len())
}
