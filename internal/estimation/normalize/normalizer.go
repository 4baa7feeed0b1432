// internal/estimation/normalize/normalizer.go

// Package normalize maps the auction site's vehicle vocabulary into the
// marketplace's controlled vocabulary. Pure, side-effect-free.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"carprice-estimator/internal/common/errors"
	"carprice-estimator/internal/estimation/model"
)

// brandAliases maps source-site brand spellings to the marketplace's
// canonical form. Additive: new sources bring new spellings.
var brandAliases = map[string]string{
	"LAND ROVER":    "LAND-ROVER",
	"MERCEDES BENZ": "MERCEDES-BENZ",
	"MERCEDES":      "MERCEDES-BENZ",
	"ROLLS ROYCE":   "ROLLS-ROYCE",
	"ASTON MARTIN":  "ASTON-MARTIN",
}

// spacePreservingBrands lists brands whose categorical key keeps the internal
// space. Everything else gets spaces replaced by a hyphen.
var spacePreservingBrands = map[string]bool{
	"ALFA ROMEO": true,
}

// modelRule rewrites a brand's model naming into the marketplace's. Rules are
// a table so exceptions stay additive rather than cascading conditionals.
type modelRule struct {
	brand string
	apply func(q *model.VehicleQuery, brandKey, modelClean string) bool
}

var modelRules = []modelRule{
	// The marketplace names Mercedes model lines "Classe X" where the source
	// uses the "-Klasse" suffix; listings appear under both, so both
	// categorical alternatives are searched.
	{
		brand: "MERCEDES-BENZ",
		apply: func(q *model.VehicleQuery, brandKey, modelClean string) bool {
			if !strings.HasSuffix(modelClean, "-Klasse") {
				return false
			}
			base := strings.TrimSuffix(modelClean, "-Klasse")
			base = strings.ReplaceAll(base, "_", " ")
			baseKey := strings.ReplaceAll(base, " ", "_")
			q.ModelKeys = []string{
				brandKey + "_" + baseKey,
				brandKey + "_Classe_" + baseKey,
			}
			q.Keywords = q.Brand + " " + base
			return true
		},
	},
	// Volkswagen files every Golf variant under the umbrella "Golf" model;
	// a more specific categorical filter returns zero results, so the variant
	// detail stays in the free-text keywords.
	{
		brand: "VOLKSWAGEN",
		apply: func(q *model.VehicleQuery, brandKey, modelClean string) bool {
			if !strings.HasPrefix(modelClean, "Golf") {
				return false
			}
			q.ModelKeys = []string{brandKey + "_Golf"}
			return true
		},
	},
}

// Normalize validates and translates a raw vehicle record into a
// VehicleQuery. Brand, model, year and mileage are mandatory; a missing or
// unparseable one is a validation error, never a silent default.
func Normalize(raw model.RawVehicle) (model.VehicleQuery, error) {
	var q model.VehicleQuery

	brand := strings.TrimSpace(raw.Brand)
	modelText := strings.TrimSpace(raw.Model)
	if brand == "" || modelText == "" || strings.TrimSpace(raw.Year) == "" || strings.TrimSpace(raw.Km) == "" {
		return q, errors.NewValidationError("model, brand, year and km are required")
	}

	year, err := parseNonNegativeInt("year", raw.Year)
	if err != nil {
		return q, err
	}
	km, err := parseNonNegativeInt("km", raw.Km)
	if err != nil {
		return q, err
	}

	q.Brand = CanonicalBrand(brand)
	q.Model = modelText
	q.Keywords = modelText
	q.Year = year
	q.Mileage = km
	q.Fuel = parseFuel(raw.Fuel)
	q.Gearbox = parseGearbox(raw.Gearbox)
	q.Doors = normalizeDoors(raw.Doors)
	q.StockID = stockID(raw, q)

	// Categorical model key. CarModel carries the bare model name when the
	// source provides it separately from the display text.
	carModel := strings.TrimSpace(raw.CarModel)
	if carModel == "" {
		carModel = modelText
	}
	brandKey := BrandKey(q.Brand)
	modelClean := strings.ReplaceAll(carModel, " ", "_")

	applied := false
	for _, rule := range modelRules {
		if rule.brand == q.Brand && rule.apply(&q, brandKey, modelClean) {
			applied = true
			break
		}
	}
	if !applied {
		q.ModelKeys = []string{brandKey + "_" + modelClean}
	}

	return q, nil
}

// CanonicalBrand returns the marketplace's canonical uppercase brand name.
func CanonicalBrand(brand string) string {
	upper := strings.ToUpper(strings.TrimSpace(brand))
	if alias, ok := brandAliases[upper]; ok {
		return alias
	}
	return upper
}

// BrandKey forms the categorical brand key: spaces become hyphens except for
// the table-driven list of brands whose name genuinely contains a space.
func BrandKey(canonical string) string {
	if spacePreservingBrands[canonical] {
		return canonical
	}
	return strings.ReplaceAll(canonical, " ", "-")
}

// normalizeDoors widens a 4-door query to 4 and 5: wagon and shooting-brake
// variants are classified as 5-door on the marketplace.
func normalizeDoors(doors string) []string {
	doors = strings.TrimSpace(doors)
	switch doors {
	case "":
		return nil
	case "4":
		return []string{"4", "5"}
	default:
		return []string{doors}
	}
}

func parseFuel(s string) model.Fuel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "petrol":
		return model.FuelPetrol
	case "diesel":
		return model.FuelDiesel
	case "electric":
		return model.FuelElectric
	case "hybrid":
		return model.FuelHybrid
	default:
		return model.FuelUnknown
	}
}

func parseGearbox(s string) model.Gearbox {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual":
		return model.GearboxManual
	case "automatic", "duplex":
		return model.GearboxAutomatic
	default:
		return model.GearboxUnknown
	}
}

func parseNonNegativeInt(field, s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.NewValidationError(fmt.Sprintf("%s must be an integer, got %q", field, s))
	}
	if v < 0 {
		return 0, errors.NewValidationError(fmt.Sprintf("%s must not be negative, got %d", field, v))
	}
	return v, nil
}

// stockID derives the cache key. The caller-supplied identity blob wins;
// otherwise the key is built from the fields that identify the vehicle.
func stockID(raw model.RawVehicle, q model.VehicleQuery) string {
	if blob := strings.TrimSpace(raw.CarData); blob != "" {
		return blob
	}
	return fmt.Sprintf("%s|%s|%d|%d", q.Brand, strings.ReplaceAll(q.Model, " ", "_"), q.Year, q.Mileage)
}
