// internal/estimation/model/models.go
package model

import "time"

// Fuel is the normalized fuel type of a vehicle.
type Fuel string

const (
	FuelPetrol   Fuel = "petrol"
	FuelDiesel   Fuel = "diesel"
	FuelElectric Fuel = "electric"
	FuelHybrid   Fuel = "hybrid"
	FuelUnknown  Fuel = "unknown"
)

// Gearbox is the normalized transmission type of a vehicle.
type Gearbox string

const (
	GearboxManual    Gearbox = "manual"
	GearboxAutomatic Gearbox = "automatic"
	GearboxUnknown   Gearbox = "unknown"
)

// RawVehicle is the untrusted input of an estimation request, straight from
// the query string. Everything is a string until the normalizer has seen it.
type RawVehicle struct {
	Brand       string `json:"brand"`
	Model       string `json:"model"`
	CarModel    string `json:"carModel,omitempty"` // categorical model key, falls back to Model
	Year        string `json:"year"`
	Km          string `json:"km"`
	Fuel        string `json:"fuel,omitempty"`
	Gearbox     string `json:"gearbox,omitempty"`
	Doors       string `json:"doors,omitempty"`
	VehicleType string `json:"vehicle_type,omitempty"`
	Colour      string `json:"colour,omitempty"`
	Critair     string `json:"critair,omitempty"`
	MinPrice    string `json:"min_price,omitempty"`
	CarData     string `json:"carData,omitempty"` // opaque identity blob, cache key only
}

// VehicleQuery is the normalized input to the estimation pipeline.
// Brand, Model, Year and Mileage are mandatory.
type VehicleQuery struct {
	Brand     string  // canonical uppercase, e.g. "MERCEDES-BENZ"
	Model     string  // free text used for keywords
	ModelKeys []string // categorical model alternatives, e.g. {"MERCEDES-BENZ_CLA", "MERCEDES-BENZ_Classe_CLA"}
	Keywords  string  // free-text search keywords
	Year      int
	Mileage   int // km
	Fuel      Fuel
	Gearbox   Gearbox
	Doors     []string // door-count alternatives, empty means no filter
	StockID   string   // opaque external identifier, used as cache key
}

// Range is a numeric filter window. Max == 0 means unbounded above.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max,omitempty"`
}

// SearchSpec is the marketplace-facing search specification derived from a
// VehicleQuery.
type SearchSpec struct {
	Keywords     string
	BrandFilter  []string
	ModelFilter  []string
	FuelFilter   []string
	GearboxFilter []string
	DoorsFilter  []string
	YearRange    Range
	MileageRange Range
	PriceFloor   int // currency units
	Limit        int
}

// Attribute is a single key/value pair carried by a marketplace ad.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Listing is a single marketplace ad. Transient, consumed during one
// estimation and never persisted.
type Listing struct {
	ID         int64       `json:"list_id"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
	PriceCents int64       `json:"price_cents"`
	Attributes []Attribute `json:"attributes"`
}

// Attr returns the value of the named attribute, or "" when absent.
func (l Listing) Attr(key string) string {
	for _, a := range l.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// Estimate is the output of the price aggregator. Price fields are nil
// exactly when SampleCount is 0.
type Estimate struct {
	EstimatedPrice     *int   `json:"estimatedPrice"`
	LowPrice           *int   `json:"lowPrice"`
	HighPrice          *int   `json:"highPrice"`
	PotentialPlusValue *int   `json:"potentialPlusValue"`
	SampleCount        int    `json:"sampleCount"`
	Warning            string `json:"warning,omitempty"`
}

// Valid reports whether the estimate is worth caching: a present, strictly
// positive price.
func (e Estimate) Valid() bool {
	return e.EstimatedPrice != nil && *e.EstimatedPrice > 0
}

// CacheEntry is the stored form of a successful estimation.
type CacheEntry struct {
	Estimate  Estimate  `json:"estimate"`
	CreatedAt time.Time `json:"createdAt"`
}

// EstimateResponse is the JSON answer of GET /api/estimation.
type EstimateResponse struct {
	OK                 bool      `json:"ok"`
	EstimatedPrice     *int      `json:"estimatedPrice"`
	LowPrice           *int      `json:"lowPrice"`
	HighPrice          *int      `json:"highPrice"`
	PotentialPlusValue *int      `json:"potentialPlusValue"`
	Count              int       `json:"count"`
	Results            []Listing `json:"results"`
	Warning            *string   `json:"warning"`
	Error              string    `json:"error,omitempty"`
}

// DetectedOption is one premium marker found in a vehicle's text.
type DetectedOption struct {
	Name        string  `json:"name"`
	ValueImpact float64 `json:"valueImpact"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"` // "rule-based" or "ai"
}

// Detection is the option detector's result. A zero Detection is a valid
// "nothing found" answer.
type Detection struct {
	Options          []DetectedOption `json:"options"`
	TotalValueImpact float64          `json:"totalValueImpact"`
	EnhancedKeywords []string         `json:"enhancedKeywords"`
	Confidence       float64          `json:"confidence"`
}
