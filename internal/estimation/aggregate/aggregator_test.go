// internal/estimation/aggregate/aggregator_test.go
package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carprice-estimator/internal/estimation/model"
)

func listingsFromUnits(units ...int) []model.Listing {
	out := make([]model.Listing, 0, len(units))
	for i, u := range units {
		out = append(out, model.Listing{ID: int64(i + 1), PriceCents: int64(u) * 100})
	}
	return out
}

func TestAggregate_EmptyInput(t *testing.T) {
	est := Aggregate(nil)

	assert.Nil(t, est.EstimatedPrice)
	assert.Nil(t, est.LowPrice)
	assert.Nil(t, est.HighPrice)
	assert.Nil(t, est.PotentialPlusValue)
	assert.Zero(t, est.SampleCount)
}

func TestAggregate_OddCountMedian(t *testing.T) {
	est := Aggregate(listingsFromUnits(10, 12, 15, 20, 22, 25, 30))

	require.NotNil(t, est.EstimatedPrice)
	assert.Equal(t, 20, *est.EstimatedPrice)
	assert.Equal(t, 10, *est.LowPrice)
	assert.Equal(t, 30, *est.HighPrice)
	assert.Equal(t, 7, est.SampleCount)
	assert.Empty(t, est.Warning)
}

func TestAggregate_EvenCountAveragesMiddles(t *testing.T) {
	est := Aggregate(listingsFromUnits(10, 20, 30, 40))

	require.NotNil(t, est.EstimatedPrice)
	assert.Equal(t, 25, *est.EstimatedPrice)
}

func TestAggregate_UnsortedInput(t *testing.T) {
	est := Aggregate(listingsFromUnits(30, 10, 25, 12, 22, 15, 20))

	require.NotNil(t, est.EstimatedPrice)
	assert.Equal(t, 20, *est.EstimatedPrice)
	assert.Equal(t, 10, *est.LowPrice)
	assert.Equal(t, 30, *est.HighPrice)
}

func TestAggregate_CentsTruncateToUnits(t *testing.T) {
	est := Aggregate([]model.Listing{{ID: 1, PriceCents: 12345}})

	require.NotNil(t, est.EstimatedPrice)
	assert.Equal(t, 123, *est.EstimatedPrice)
	assert.Equal(t, 1, est.SampleCount)
}

func TestAggregate_BoundsOrdering(t *testing.T) {
	samples := [][]int{
		{5000},
		{5000, 9000},
		{3000, 4500, 9900, 12000, 15000},
	}
	for _, units := range samples {
		est := Aggregate(listingsFromUnits(units...))
		require.NotNil(t, est.EstimatedPrice)
		assert.LessOrEqual(t, *est.LowPrice, *est.EstimatedPrice)
		assert.LessOrEqual(t, *est.EstimatedPrice, *est.HighPrice)
	}
}

func TestAggregate_LowSampleWarning(t *testing.T) {
	est := Aggregate(listingsFromUnits(8000, 9000))

	require.NotNil(t, est.EstimatedPrice, "the estimate is never suppressed")
	assert.Equal(t, LowSampleWarning, est.Warning)

	est = Aggregate(listingsFromUnits(8000, 9000, 10000))
	assert.Empty(t, est.Warning)
}

func TestAggregate_PotentialPlusValueIsSpreadFraction(t *testing.T) {
	est := Aggregate(listingsFromUnits(10000, 12000, 20000))

	require.NotNil(t, est.PotentialPlusValue)
	assert.Equal(t, 2000, *est.PotentialPlusValue) // 20% of (20000-10000)
}
