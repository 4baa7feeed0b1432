package server

import (
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"carprice-estimator/internal/common/errors"
	"carprice-estimator/internal/estimation/model"
)

var validate = validator.New()

// estimationParams mirrors the query string of GET /api/estimation. Numeric
// fields stay strings here; the normalizer owns parsing.
type estimationParams struct {
	Brand       string `validate:"required"`
	Model       string `validate:"required"`
	CarModel    string
	Year        string `validate:"required,numeric"`
	Km          string `validate:"required,numeric"`
	Fuel        string
	Gearbox     string
	Doors       string `validate:"omitempty,numeric"`
	VehicleType string
	Colour      string
	Critair     string
	MinPrice    string `validate:"omitempty,numeric"`
	CarData     string
}

func paramsFromQuery(r *http.Request) estimationParams {
	q := r.URL.Query()
	return estimationParams{
		Brand:       strings.TrimSpace(q.Get("brand")),
		Model:       strings.TrimSpace(q.Get("model")),
		CarModel:    strings.TrimSpace(q.Get("carModel")),
		Year:        strings.TrimSpace(q.Get("year")),
		Km:          strings.TrimSpace(q.Get("km")),
		Fuel:        strings.TrimSpace(q.Get("fuel")),
		Gearbox:     strings.TrimSpace(q.Get("gearbox")),
		Doors:       strings.TrimSpace(q.Get("doors")),
		VehicleType: strings.TrimSpace(q.Get("vehicle_type")),
		Colour:      strings.TrimSpace(q.Get("colour")),
		Critair:     strings.TrimSpace(q.Get("critair")),
		MinPrice:    strings.TrimSpace(q.Get("min_price")),
		CarData:     strings.TrimSpace(q.Get("carData")),
	}
}

func (p estimationParams) toRawVehicle() model.RawVehicle {
	return model.RawVehicle{
		Brand:       p.Brand,
		Model:       p.Model,
		CarModel:    p.CarModel,
		Year:        p.Year,
		Km:          p.Km,
		Fuel:        p.Fuel,
		Gearbox:     p.Gearbox,
		Doors:       p.Doors,
		VehicleType: p.VehicleType,
		Colour:      p.Colour,
		Critair:     p.Critair,
		MinPrice:    p.MinPrice,
		CarData:     p.CarData,
	}
}

func (s *Server) handleEstimation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, model.EstimateResponse{
			Error: "method not allowed",
		})
		return
	}

	params := paramsFromQuery(r)
	if err := validate.Struct(params); err != nil {
		writeJSON(w, http.StatusBadRequest, model.EstimateResponse{
			Error: validationMessage(err),
		})
		return
	}

	result, err := s.engine.Estimate(r.Context(), params.toRawVehicle())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	est := result.Estimate
	resp := model.EstimateResponse{
		OK:                 true,
		EstimatedPrice:     est.EstimatedPrice,
		LowPrice:           est.LowPrice,
		HighPrice:          est.HighPrice,
		PotentialPlusValue: est.PotentialPlusValue,
		Count:              est.SampleCount,
		Results:            result.Listings,
	}
	if resp.Results == nil {
		resp.Results = []model.Listing{}
	}
	if est.Warning != "" {
		resp.Warning = &est.Warning
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	message := "internal error"

	if ee, ok := errors.AsEstimationError(err); ok {
		message = ee.Message
		if ee.Details != "" {
			message = fmt.Sprintf("%s: %s", ee.Message, ee.Details)
		}
		if ee.RetryAfter > 0 {
			seconds := int(math.Ceil(ee.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("estimation request failed", map[string]interface{}{
			"path":  r.URL.Path,
			"query": r.URL.RawQuery,
		})
	}

	writeJSON(w, status, model.EstimateResponse{Error: message})
}

// validationMessage turns validator output into something a caller can act
// on, naming the first offending parameter.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request parameters"
	}
	fe := verrs[0]
	name := queryName(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("missing required parameter %q", name)
	case "numeric":
		return fmt.Sprintf("parameter %q must be numeric", name)
	default:
		return fmt.Sprintf("parameter %q is invalid", name)
	}
}

func queryName(field string) string {
	switch field {
	case "CarModel":
		return "carModel"
	case "VehicleType":
		return "vehicle_type"
	case "MinPrice":
		return "min_price"
	case "CarData":
		return "carData"
	default:
		return strings.ToLower(field)
	}
}
