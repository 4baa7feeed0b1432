// internal/estimation/engine.go

// Package estimation wires the full price-estimation pipeline: cache lookup,
// normalization, option detection, query building, the throttled marketplace
// search, filtering and aggregation. One Engine per process owns the throttle
// gate, the single-flight map and the cache; handlers hold a reference.
package estimation

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"carprice-estimator/internal/common/config"
	"carprice-estimator/internal/common/errors"
	"carprice-estimator/internal/common/logger"
	"carprice-estimator/internal/common/metrics"
	"carprice-estimator/internal/common/observability"
	"carprice-estimator/internal/estimation/aggregate"
	"carprice-estimator/internal/estimation/filter"
	"carprice-estimator/internal/estimation/marketplace"
	"carprice-estimator/internal/estimation/model"
	"carprice-estimator/internal/estimation/normalize"
	"carprice-estimator/internal/estimation/query"
	"carprice-estimator/internal/observation"
)

// asyncWriteTimeout bounds the fire-and-forget cache and observation writes,
// which run detached from the request's own context.
const asyncWriteTimeout = 10 * time.Second

// EstimateStore is the cache the engine reads through and writes behind.
type EstimateStore interface {
	Get(ctx context.Context, stockID string) (model.Estimate, bool, error)
	Put(ctx context.Context, stockID string, est model.Estimate) error
}

// Detector flags premium options. May be nil; detection is optional.
type Detector interface {
	Detect(ctx context.Context, carText, brand string) model.Detection
}

// Result is one completed estimation.
type Result struct {
	Estimate  model.Estimate
	Listings  []model.Listing
	Detection model.Detection
	FromCache bool
}

type flight struct {
	done   chan struct{}
	result *Result
	err    error
}

type Engine struct {
	config   config.EstimationConfig
	store    EstimateStore
	search   marketplace.Searcher
	detector Detector
	sink     observation.Recorder
	obs      *observability.Observability
	logger   logger.Logger

	// Throttle gate: one last-request timestamp for the whole process.
	gateMu      sync.Mutex
	lastRequest time.Time

	// Single-flight: concurrent requests for the same stock id share one
	// in-flight pipeline run.
	flightMu sync.Mutex
	flights  map[string]*flight

	writes sync.WaitGroup
}

func NewEngine(
	cfg config.EstimationConfig,
	store EstimateStore,
	search marketplace.Searcher,
	detector Detector,
	sink observation.Recorder,
	obs *observability.Observability,
	log logger.Logger,
) *Engine {
	return &Engine{
		config:   cfg,
		store:    store,
		search:   search,
		detector: detector,
		sink:     sink,
		obs:      obs,
		logger: log.With(map[string]interface{}{
			"component": "estimation-engine",
		}),
		flights: make(map[string]*flight),
	}
}

// Estimate runs one estimation request end to end.
func (e *Engine) Estimate(ctx context.Context, raw model.RawVehicle) (*Result, error) {
	start := time.Now()
	result, err := e.estimate(ctx, raw)
	e.record(ctx, time.Since(start), err)
	return result, err
}

func (e *Engine) estimate(ctx context.Context, raw model.RawVehicle) (*Result, error) {
	q, err := normalize.Normalize(raw)
	if err != nil {
		return nil, err
	}

	priceFloor, err := parsePriceFloor(raw.MinPrice, e.config.PriceFloor)
	if err != nil {
		return nil, err
	}

	if est, hit := e.cacheGet(ctx, q.StockID); hit {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return &Result{Estimate: est, FromCache: true}, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	f, leader := e.claimFlight(q.StockID)
	if !leader {
		metrics.SingleFlightJoins.Inc()
		select {
		case <-f.done:
			return f.result, f.err
		case <-ctx.Done():
			// The shared flight keeps running for the other joiners; only
			// this caller gives up.
			return nil, errors.NewTransportError(ctx.Err())
		}
	}

	result, err := e.runPipeline(ctx, raw, q, priceFloor)
	f.result, f.err = result, err
	e.releaseFlight(q.StockID, f)
	return result, err
}

func (e *Engine) runPipeline(ctx context.Context, raw model.RawVehicle, q model.VehicleQuery, priceFloor int) (*Result, error) {
	detection := e.detect(ctx, q)
	q.Keywords = enrichKeywords(q.Keywords, detection)

	spec := query.Build(q, priceFloor)

	if err := e.acquireGate(); err != nil {
		return nil, err
	}

	listings, err := e.search.Search(ctx, spec)
	if err != nil {
		return nil, err
	}

	kept := filter.Apply(listings, spec)
	est := aggregate.Aggregate(kept)

	e.logger.Info("estimation completed", map[string]interface{}{
		"stockId":     q.StockID,
		"brand":       q.Brand,
		"rawCount":    len(listings),
		"sampleCount": est.SampleCount,
	})

	if est.Valid() {
		e.asyncCachePut(q.StockID, est)
	}
	e.asyncObserve(raw, q, est, detection)

	maxResults := e.config.MaxResults
	if maxResults <= 0 || maxResults > len(kept) {
		maxResults = len(kept)
	}

	return &Result{
		Estimate:  est,
		Listings:  kept[:maxResults],
		Detection: detection,
	}, nil
}

// acquireGate enforces the process-wide minimum interval between upstream
// calls. Requests arriving early fail fast with a retry-after hint rather
// than queueing: the upstream blocks clients that burst.
func (e *Engine) acquireGate() error {
	interval := time.Duration(e.config.ThrottleInterval) * time.Millisecond
	if interval <= 0 {
		return nil
	}

	e.gateMu.Lock()
	defer e.gateMu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(e.lastRequest); elapsed < interval {
		metrics.ThrottleRejections.Inc()
		return errors.NewRateLimitedError("local inter-request gate tripped", interval-elapsed)
	}
	e.lastRequest = now
	return nil
}

func (e *Engine) claimFlight(stockID string) (*flight, bool) {
	e.flightMu.Lock()
	defer e.flightMu.Unlock()

	if f, ok := e.flights[stockID]; ok {
		return f, false
	}
	f := &flight{done: make(chan struct{})}
	e.flights[stockID] = f
	return f, true
}

func (e *Engine) releaseFlight(stockID string, f *flight) {
	e.flightMu.Lock()
	delete(e.flights, stockID)
	e.flightMu.Unlock()
	close(f.done)
}

func (e *Engine) cacheGet(ctx context.Context, stockID string) (model.Estimate, bool) {
	if e.store == nil {
		return model.Estimate{}, false
	}
	est, hit, err := e.store.Get(ctx, stockID)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		e.logger.WithError(err).Warn("cache lookup failed", map[string]interface{}{
			"stockId": stockID,
		})
		return model.Estimate{}, false
	}
	return est, hit
}

// asyncCachePut stores a successful estimate without making the caller wait.
// Write failures are logged, never surfaced.
func (e *Engine) asyncCachePut(stockID string, est model.Estimate) {
	if e.store == nil {
		return
	}
	e.writes.Add(1)
	go func() {
		defer e.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		defer cancel()
		if err := e.store.Put(ctx, stockID, est); err != nil {
			e.logger.WithError(err).Warn("cache write failed", map[string]interface{}{
				"stockId": stockID,
			})
		}
	}()
}

func (e *Engine) asyncObserve(raw model.RawVehicle, q model.VehicleQuery, est model.Estimate, detection model.Detection) {
	if e.sink == nil {
		return
	}
	e.writes.Add(1)
	go func() {
		defer e.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		defer cancel()
		err := e.sink.Record(ctx, observation.Record{
			StockID:   q.StockID,
			Query:     q,
			Estimate:  est,
			Options:   detection.Options,
			RawParams: raw,
		})
		if err != nil {
			e.logger.WithError(err).Warn("observation insert failed", map[string]interface{}{
				"stockId": q.StockID,
			})
		}
	}()
}

func (e *Engine) detect(ctx context.Context, q model.VehicleQuery) model.Detection {
	if e.detector == nil {
		return model.Detection{}
	}
	return e.detector.Detect(ctx, q.Model, q.Brand)
}

func (e *Engine) record(ctx context.Context, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if ee, ok := errors.AsEstimationError(err); ok {
			outcome = strings.ToLower(string(ee.Code))
		}
	}
	metrics.EstimationRequests.WithLabelValues(outcome).Inc()
	metrics.EstimationDuration.Observe(elapsed.Seconds())
	if e.obs != nil {
		e.obs.RecordEstimation(ctx, outcome)
		e.obs.RecordEstimationDuration(ctx, elapsed, outcome)
	}
}

// enrichKeywords swaps in the detector's first suggested search phrase when
// one exists; detected option names are already part of the vehicle text.
func enrichKeywords(keywords string, detection model.Detection) string {
	if len(detection.EnhancedKeywords) > 0 && strings.TrimSpace(detection.EnhancedKeywords[0]) != "" {
		return detection.EnhancedKeywords[0]
	}
	return keywords
}

func parsePriceFloor(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if fallback > 0 {
			return fallback, nil
		}
		return query.DefaultPriceFloor, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.NewValidationError("min_price must be a non-negative integer")
	}
	return v, nil
}
