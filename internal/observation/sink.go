// internal/observation/sink.go

// Package observation appends every completed estimation to the
// price_observations table. One-way sink: the engine writes, downstream
// alerting and analytics read, nothing here ever reads back.
package observation

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"carprice-estimator/internal/common/errors"
	"carprice-estimator/internal/common/logger"
	"carprice-estimator/internal/estimation/model"
)

const insertSQL = `INSERT INTO price_observations
	(id, stock_number, brand, model, year, km, fuel, gearbox, doors,
	 estimated_price, low_price, high_price, sample_count, options, raw_params, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

// Record is one observation row: the inputs of an estimation and what came
// out of it.
type Record struct {
	StockID   string
	Query     model.VehicleQuery
	Estimate  model.Estimate
	Options   []model.DetectedOption
	RawParams model.RawVehicle
}

// Recorder is the engine-facing interface.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

type Sink struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewSink(db *sql.DB, log logger.Logger) *Sink {
	return &Sink{
		db: db,
		logger: log.With(map[string]interface{}{
			"component": "observation-sink",
		}),
		now: time.Now,
	}
}

// Record inserts one observation. Callers treat failures as non-fatal; the
// returned error exists for logging and tests.
func (s *Sink) Record(ctx context.Context, rec Record) error {
	optionsJSON, err := json.Marshal(rec.Options)
	if err != nil {
		return errors.NewObservationError(err)
	}
	paramsJSON, err := json.Marshal(rec.RawParams)
	if err != nil {
		return errors.NewObservationError(err)
	}

	doors := ""
	if len(rec.Query.Doors) > 0 {
		doors = rec.Query.Doors[0]
	}

	_, err = s.db.ExecContext(ctx, insertSQL,
		uuid.New().String(),
		rec.StockID,
		rec.Query.Brand,
		rec.Query.Model,
		rec.Query.Year,
		rec.Query.Mileage,
		string(rec.Query.Fuel),
		string(rec.Query.Gearbox),
		doors,
		nullableInt(rec.Estimate.EstimatedPrice),
		nullableInt(rec.Estimate.LowPrice),
		nullableInt(rec.Estimate.HighPrice),
		rec.Estimate.SampleCount,
		string(optionsJSON),
		string(paramsJSON),
		s.now().UTC(),
	)
	if err != nil {
		return errors.NewObservationError(err)
	}
	return nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
