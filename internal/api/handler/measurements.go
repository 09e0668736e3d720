package handler

import (
	"net/http"
	"time"

	"github.com/smogwatch/smogwatch/internal/airquality"
	"github.com/smogwatch/smogwatch/internal/api/models"
	"github.com/smogwatch/smogwatch/internal/api/response"
)

// MeasurementsHandler handles sensor measurement endpoints.
type MeasurementsHandler struct {
	service *airquality.Service
}

// NewMeasurementsHandler creates a new MeasurementsHandler.
func NewMeasurementsHandler(service *airquality.Service) *MeasurementsHandler {
	return &MeasurementsHandler{service: service}
}

// GetMeasurements handles GET /v1/sensors/{sensorId}/measurements.
// Optional ?from= and ?to= (RFC3339) restrict the returned range.
func (h *MeasurementsHandler) GetMeasurements(w http.ResponseWriter, r *http.Request) {
	sensorID, ok := parseIntParam(w, r, "sensorId")
	if !ok {
		return
	}

	from, to, ok := parseTimeRange(w, r)
	if !ok {
		return
	}

	result, err := h.service.Series(r.Context(), sensorID, from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.ToSeriesResponse(result))
}

// GetStats handles GET /v1/sensors/{sensorId}/stats - min/max/mean and
// trend over the sensor's series, optionally restricted by ?from=/?to=.
func (h *MeasurementsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	sensorID, ok := parseIntParam(w, r, "sensorId")
	if !ok {
		return
	}

	from, to, ok := parseTimeRange(w, r)
	if !ok {
		return
	}

	stats, result, err := h.service.Stats(r.Context(), sensorID, from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := models.StatsResponse{
		SensorID:   sensorID,
		Min:        stats.Min,
		Max:        stats.Max,
		Mean:       stats.Mean,
		Trend:      string(stats.Trend),
		ValidCount: stats.ValidCount,
		TotalCount: stats.TotalCount,
		FromCache:  result.FromCache,
		FetchedAt:  models.Timestamp(result.Series.FetchedAt),
	}
	response.JSON(w, r, http.StatusOK, out)
}

// parseTimeRange parses optional from/to query parameters as RFC3339.
// Writes a 400 response itself on failure.
func parseTimeRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	q := r.URL.Query()

	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(w, r, "from must be an RFC3339 timestamp", []models.FieldError{
				{Field: "from", Message: "must be an RFC3339 timestamp", Code: "invalid"},
			})
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(w, r, "to must be an RFC3339 timestamp", []models.FieldError{
				{Field: "to", Message: "must be an RFC3339 timestamp", Code: "invalid"},
			})
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		response.BadRequest(w, r, "to must not be before from", nil)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
