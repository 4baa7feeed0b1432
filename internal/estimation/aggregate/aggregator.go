// internal/estimation/aggregate/aggregator.go

// Package aggregate reduces a filtered price list to a robust point estimate
// with bounds.
package aggregate

import (
	"sort"

	"carprice-estimator/internal/estimation/model"
)

const (
	// ReliabilityThreshold is the sample size under which the estimate gets a
	// low-confidence warning. The estimate itself is never suppressed.
	ReliabilityThreshold = 3

	// marginFraction is the share of the low/high spread reported as
	// "potential plus-value". A rough resale-spread signal, not a price
	// prediction; kept separate from the primary estimate.
	marginFraction = 0.20
)

// LowSampleWarning is the non-fatal warning attached to thin samples.
const LowSampleWarning = "low sample size, estimate may be unreliable"

// Aggregate reduces listings to an Estimate. The median is used rather than
// the mean: mispriced and scam listings that survive filtering land at the
// extremes and must not drag the estimate.
func Aggregate(listings []model.Listing) model.Estimate {
	prices := make([]int, 0, len(listings))
	for _, l := range listings {
		if l.PriceCents < 0 {
			continue
		}
		prices = append(prices, int(l.PriceCents/100))
	}
	sort.Ints(prices)

	if len(prices) == 0 {
		return model.Estimate{SampleCount: 0}
	}

	med := median(prices)
	low := prices[0]
	high := prices[len(prices)-1]
	margin := int(float64(high-low) * marginFraction)

	est := model.Estimate{
		EstimatedPrice:     &med,
		LowPrice:           &low,
		HighPrice:          &high,
		PotentialPlusValue: &margin,
		SampleCount:        len(prices),
	}
	if est.SampleCount < ReliabilityThreshold {
		est.Warning = LowSampleWarning
	}
	return est
}

// median of a sorted, non-empty slice; mean of the two middles when even.
func median(sorted []int) int {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
