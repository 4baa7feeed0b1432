// internal/estimation/query/builder.go

// Package query derives the marketplace-facing search specification from a
// normalized vehicle record. Deterministic and pure.
package query

import (
	"carprice-estimator/internal/estimation/model"
	"carprice-estimator/internal/estimation/normalize"
)

const (
	// YearWindowBelow widens the registration-year window downwards. The
	// window has no upper bound: a newer vehicle with matching mileage is a
	// comparable, usually cheaper, data point and must not be excluded.
	YearWindowBelow = 3

	// MileageWindowBelow / MileageWindowAbove bound the mileage window
	// asymmetrically: only the upper side is capped, and the lower side is
	// clamped so it never goes negative.
	MileageWindowBelow = 30000
	MileageWindowAbove = 50000

	// DefaultPriceFloor excludes 1-euro scam and placeholder listings.
	DefaultPriceFloor = 500

	// DefaultLimit is the number of ads requested per search.
	DefaultLimit = 35
)

// fuelCodes and gearboxCodes are the marketplace's enum encodings.
var fuelCodes = map[model.Fuel]string{
	model.FuelPetrol:   "1",
	model.FuelDiesel:   "2",
	model.FuelElectric: "3",
	model.FuelHybrid:   "4",
}

var gearboxCodes = map[model.Gearbox]string{
	model.GearboxManual:    "1",
	model.GearboxAutomatic: "2",
}

// Build constructs the bounded search specification for a vehicle. A
// priceFloor of 0 or less falls back to DefaultPriceFloor.
func Build(q model.VehicleQuery, priceFloor int) model.SearchSpec {
	if priceFloor <= 0 {
		priceFloor = DefaultPriceFloor
	}

	spec := model.SearchSpec{
		Keywords:    q.Keywords,
		BrandFilter: []string{normalize.BrandKey(q.Brand)},
		ModelFilter: q.ModelKeys,
		DoorsFilter: q.Doors,
		YearRange: model.Range{
			Min: q.Year - YearWindowBelow,
			// Max left zero: unbounded above.
		},
		MileageRange: model.Range{
			Min: maxInt(0, q.Mileage-MileageWindowBelow),
			Max: q.Mileage + MileageWindowAbove,
		},
		PriceFloor: priceFloor,
		Limit:      DefaultLimit,
	}

	if code, ok := fuelCodes[q.Fuel]; ok {
		spec.FuelFilter = []string{code}
	}
	if code, ok := gearboxCodes[q.Gearbox]; ok {
		spec.GearboxFilter = []string{code}
	}

	return spec
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
