// internal/observation/sink_test.go
package observation

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carprice-estimator/internal/common/errors"
	"carprice-estimator/internal/common/logger"
	"carprice-estimator/internal/estimation/model"
)

func testRecord() Record {
	price, low, high := 9500, 8000, 12000
	return Record{
		StockID: "STK-42",
		Query: model.VehicleQuery{
			Brand:   "OPEL",
			Model:   "Astra",
			Year:    2019,
			Mileage: 85000,
			Fuel:    model.FuelPetrol,
			Gearbox: model.GearboxManual,
			Doors:   []string{"4", "5"},
		},
		Estimate: model.Estimate{
			EstimatedPrice: &price,
			LowPrice:       &low,
			HighPrice:      &high,
			SampleCount:    7,
		},
		Options: []model.DetectedOption{
			{Name: "Executive", ValueImpact: 0.05, Confidence: 0.8, Source: "rule-based"},
		},
	}
}

func TestRecord_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO price_observations").
		WithArgs(
			sqlmock.AnyArg(), // uuid
			"STK-42", "OPEL", "Astra", 2019, 85000, "petrol", "manual", "4",
			9500, 8000, 12000, 7,
			sqlmock.AnyArg(), // options json
			sqlmock.AnyArg(), // raw params json
			sqlmock.AnyArg(), // created_at
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sink := NewSink(db, logger.NewTestLogger(t))
	require.NoError(t, sink.Record(context.Background(), testRecord()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_NullPricesForEmptyEstimate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO price_observations").
		WithArgs(
			sqlmock.AnyArg(),
			"STK-42", "OPEL", "Astra", 2019, 85000, "petrol", "manual", "4",
			nil, nil, nil, 0,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := testRecord()
	rec.Estimate = model.Estimate{SampleCount: 0}

	sink := NewSink(db, logger.NewTestLogger(t))
	require.NoError(t, sink.Record(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_InsertFailureWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO price_observations").
		WillReturnError(assertableErr{})

	sink := NewSink(db, logger.NewTestLogger(t))
	err = sink.Record(context.Background(), testRecord())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeObservationFailed))
}

type assertableErr struct{}

func (assertableErr) Error() string { return "connection reset" }
