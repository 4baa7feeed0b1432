// internal/estimation/marketplace/client.go

// Package marketplace talks to the external classified-ads search API.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"carprice-estimator/internal/common/config"
	"carprice-estimator/internal/common/errors"
	"carprice-estimator/internal/common/logger"
	"carprice-estimator/internal/common/metrics"
	"carprice-estimator/internal/estimation/model"
)

// carCategoryID is the marketplace's category for cars.
const carCategoryID = "2"

// retryBackoff is the pause before the single permitted retry when the
// upstream gave no retry-after hint.
const retryBackoff = 2 * time.Second

// Searcher is the engine-facing interface, so tests can count calls.
type Searcher interface {
	Search(ctx context.Context, spec model.SearchSpec) ([]model.Listing, error)
}

type Client struct {
	config config.MarketplaceConfig
	client *http.Client
	logger logger.Logger
}

func NewClient(cfg config.MarketplaceConfig, log logger.Logger) *Client {
	return &Client{
		config: cfg,
		// No client-level timeout: every call carries a context deadline.
		client: &http.Client{},
		logger: log.With(map[string]interface{}{
			"component": "marketplace",
		}),
	}
}

// searchPayload mirrors the finder/search request body.
type searchPayload struct {
	Extend        bool          `json:"extend"`
	Filters       searchFilters `json:"filters"`
	ListingSource string        `json:"listing_source"`
	Offset        int           `json:"offset"`
	Limit         int           `json:"limit"`
	LimitAlu      int           `json:"limit_alu"`
	SortBy        string        `json:"sort_by"`
	SortOrder     string        `json:"sort_order"`
}

type searchFilters struct {
	Category searchCategory         `json:"category"`
	Enums    map[string][]string    `json:"enums"`
	Keywords searchKeywords         `json:"keywords"`
	Ranges   map[string]model.Range `json:"ranges"`
}

type searchCategory struct {
	ID string `json:"id"`
}

type searchKeywords struct {
	Text string `json:"text"`
}

type searchResponse struct {
	Ads []model.Listing `json:"ads"`
}

// Search issues one search against the marketplace, retrying at most once
// for an upstream 429 or a transport failure. All other failure classes
// surface immediately. An empty result set is not an error.
func (c *Client) Search(ctx context.Context, spec model.SearchSpec) ([]model.Listing, error) {
	timeout := time.Duration(c.config.Timeout) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(c.buildPayload(spec))
	if err != nil {
		return nil, errors.NewTransportError(fmt.Errorf("marshal payload: %w", err))
	}

	listings, err := c.doSearch(ctx, body)
	if err == nil {
		metrics.MarketplaceRequests.WithLabelValues("ok").Inc()
		return listings, nil
	}

	ee, ok := errors.AsEstimationError(err)
	if !ok || !ee.Retryable {
		metrics.MarketplaceRequests.WithLabelValues("upstream_error").Inc()
		return nil, err
	}

	// One retry, honoring the server's retry-after hint when it gave one.
	wait := retryBackoff
	if ee.RetryAfter > 0 {
		wait = ee.RetryAfter
	}
	c.logger.Warn("retrying marketplace search", map[string]interface{}{
		"wait":  wait.String(),
		"cause": ee.Code,
	})
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		metrics.MarketplaceRequests.WithLabelValues("timeout").Inc()
		return nil, errors.NewTransportError(ctx.Err())
	}

	listings, err = c.doSearch(ctx, body)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeRateLimited) {
			metrics.MarketplaceRequests.WithLabelValues("rate_limited").Inc()
		} else {
			metrics.MarketplaceRequests.WithLabelValues("transport_error").Inc()
		}
		return nil, err
	}
	metrics.MarketplaceRequests.WithLabelValues("ok").Inc()
	return listings, nil
}

func (c *Client) doSearch(ctx context.Context, body []byte) ([]model.Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/finder/search", bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewTransportError(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" {
		req.Header.Set("api_key", c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.NewRateLimitedError("marketplace returned 429", parseRetryAfter(resp))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, errors.NewUpstreamError(resp.StatusCode, string(snippet))
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransportError(err)
	}
	// A truncated body usually means the API started blocking the client.
	if len(text) < 10 {
		return nil, errors.NewTransportError(fmt.Errorf("empty or truncated response body (%d bytes)", len(text)))
	}

	var parsed searchResponse
	if err := json.Unmarshal(text, &parsed); err != nil {
		return nil, errors.NewTransportError(fmt.Errorf("decode response: %w", err))
	}
	return parsed.Ads, nil
}

func (c *Client) buildPayload(spec model.SearchSpec) searchPayload {
	enums := map[string][]string{
		"ad_type": {"offer"},
	}
	if len(spec.BrandFilter) > 0 {
		enums["u_car_brand"] = spec.BrandFilter
	}
	if len(spec.ModelFilter) > 0 {
		enums["u_car_model"] = spec.ModelFilter
	}
	if len(spec.FuelFilter) > 0 {
		enums["fuel"] = spec.FuelFilter
	}
	if len(spec.GearboxFilter) > 0 {
		enums["gearbox"] = spec.GearboxFilter
	}
	if len(spec.DoorsFilter) > 0 {
		enums["doors"] = spec.DoorsFilter
	}

	limit := spec.Limit
	if c.config.Limit > 0 {
		limit = c.config.Limit
	}

	return searchPayload{
		Extend: true,
		Filters: searchFilters{
			Category: searchCategory{ID: carCategoryID},
			Enums:    enums,
			Keywords: searchKeywords{Text: spec.Keywords},
			Ranges: map[string]model.Range{
				"regdate": spec.YearRange,
				"mileage": spec.MileageRange,
				"price":   {Min: spec.PriceFloor},
			},
		},
		ListingSource: "direct-search",
		Offset:        0,
		Limit:         limit,
		LimitAlu:      3,
		SortBy:        "price",
		SortOrder:     "asc",
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
