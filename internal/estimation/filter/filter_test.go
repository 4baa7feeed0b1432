// internal/estimation/filter/filter_test.go
package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carprice-estimator/internal/estimation/model"
)

func carListing(id int64, priceCents int64) model.Listing {
	return model.Listing{
		ID:         id,
		Subject:    "Opel Astra 1.2 Turbo Elegance",
		Body:       "Très bon état, entretien à jour, non fumeur.",
		PriceCents: priceCents,
		Attributes: []model.Attribute{
			{Key: "doors", Value: "5"},
			{Key: "seats", Value: "5"},
			{Key: "vehicle_type", Value: "berline"},
		},
	}
}

func testSpec() model.SearchSpec {
	return model.SearchSpec{PriceFloor: 500}
}

func TestApply_KeepsCleanListings(t *testing.T) {
	in := []model.Listing{carListing(1, 650000), carListing(2, 720000)}
	out := Apply(in, testSpec())
	assert.Len(t, out, 2)
}

func TestApply_DropsBlacklistedText(t *testing.T) {
	cases := map[string]model.Listing{
		"french parts term in subject": func() model.Listing {
			l := carListing(1, 650000)
			l.Subject = "Moteur Opel Astra 1.2"
			return l
		}(),
		"scrap term in body": func() model.Listing {
			l := carListing(2, 650000)
			l.Body = "Vendu pour pieces, véhicule épave"
			return l
		}(),
		"english parts term": func() model.Listing {
			l := carListing(3, 650000)
			l.Body = "Selling for parts only, engine damaged"
			return l
		}(),
		"case insensitive": func() model.Listing {
			l := carListing(4, 650000)
			l.Subject = "TURBO neuf Astra"
			return l
		}(),
	}

	for name, l := range cases {
		t.Run(name, func(t *testing.T) {
			out := Apply([]model.Listing{l}, testSpec())
			assert.Empty(t, out)
		})
	}
}

func TestApply_DropsNonCarShapedListings(t *testing.T) {
	missingSeats := carListing(1, 650000)
	missingSeats.Attributes = []model.Attribute{
		{Key: "doors", Value: "5"},
		{Key: "vehicle_type", Value: "berline"},
	}

	emptyType := carListing(2, 650000)
	emptyType.Attributes = []model.Attribute{
		{Key: "doors", Value: "5"},
		{Key: "seats", Value: "5"},
		{Key: "vehicle_type", Value: "  "},
	}

	noAttrs := carListing(3, 650000)
	noAttrs.Attributes = nil

	out := Apply([]model.Listing{missingSeats, emptyType, noAttrs, carListing(4, 650000)}, testSpec())
	require.Len(t, out, 1)
	assert.Equal(t, int64(4), out[0].ID)
}

func TestApply_EnforcesPriceFloor(t *testing.T) {
	// 1 euro placeholder and a sub-floor listing both go, even though the
	// query already asked the upstream for a minimum price.
	in := []model.Listing{
		carListing(1, 100),
		carListing(2, 49900),
		carListing(3, 50000),
	}
	out := Apply(in, testSpec())
	require.Len(t, out, 1)
	assert.Equal(t, int64(3), out[0].ID)
}

func TestApply_EmptyInput(t *testing.T) {
	assert.Empty(t, Apply(nil, testSpec()))
}
