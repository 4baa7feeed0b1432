// internal/estimation/filter/filter.go

// Package filter removes parts listings, scams and malformed ads from raw
// marketplace results. All predicates are independent and commutative.
package filter

import (
	"strings"

	"carprice-estimator/internal/estimation/model"
)

// blacklistKeywords flags parts, scrap and dismantled-vehicle listings. The
// marketplace is French-language but mixed-language ads do appear, so both
// vocabularies are listed. Matched case-insensitively as substrings.
var blacklistKeywords = []string{
	"moteur", "boite", "turbo", "injecteur", "piece", "pieces",
	"épave", "pour pieces", "démonté", "casse", "moteurs",
	"engine", "gearbox", "injector", "for parts", "scrapped", "dismantled",
}

// attrsRequired are the attributes a real, well-formed car listing carries.
// Ads missing any of them are non-vehicle or malformed listings that slipped
// past the category filter.
var attrsRequired = []string{"doors", "seats", "vehicle_type"}

// Apply returns the listings that pass every predicate: not-junk text,
// car-shaped attributes, and price at or above the search's floor. The floor
// is re-checked here because the upstream does not always honor it.
func Apply(listings []model.Listing, spec model.SearchSpec) []model.Listing {
	kept := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		if !NotJunk(l) {
			continue
		}
		if !CarShaped(l) {
			continue
		}
		if l.PriceCents < int64(spec.PriceFloor)*100 {
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

// NotJunk reports whether the listing's text is free of parts/scrap markers.
func NotJunk(l model.Listing) bool {
	text := strings.ToLower(l.Subject + " " + l.Body)
	for _, kw := range blacklistKeywords {
		if strings.Contains(text, kw) {
			return false
		}
	}
	return true
}

// CarShaped reports whether the listing carries the attributes every real
// vehicle ad has.
func CarShaped(l model.Listing) bool {
	for _, key := range attrsRequired {
		if strings.TrimSpace(l.Attr(key)) == "" {
			return false
		}
	}
	return true
}
