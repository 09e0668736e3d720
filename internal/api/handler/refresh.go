package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/smogwatch/smogwatch/internal/airquality"
	"github.com/smogwatch/smogwatch/internal/api/models"
	"github.com/smogwatch/smogwatch/internal/api/response"
)

// RefreshHandler handles the manual cache refresh endpoint.
type RefreshHandler struct {
	service *airquality.Service
}

// NewRefreshHandler creates a new RefreshHandler.
func NewRefreshHandler(service *airquality.Service) *RefreshHandler {
	return &RefreshHandler{service: service}
}

// Refresh handles POST /v1/refresh - refetch from the provider and replace
// the cached copy. The scope narrows with the query: ?sensor_id= refreshes
// one measurement series, ?station_id= one station's sensors, and no
// parameter the full station list.
func (h *RefreshHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if raw := q.Get("sensor_id"); raw != "" {
		sensorID, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, r, "sensor_id must be a number", []models.FieldError{
				{Field: "sensor_id", Message: "must be a number", Code: "invalid"},
			})
			return
		}
		series, err := h.service.RefreshSeries(r.Context(), sensorID)
		if err != nil {
			// A forced refresh bypasses the cache fallback, so any provider
			// failure here means no fresh data.
			if errors.Is(err, airquality.ErrNoMeasurements) {
				writeServiceError(w, r, err)
			} else {
				response.ServiceUnavailable(w, r, "air quality data is unavailable")
			}
			return
		}
		response.JSON(w, r, http.StatusOK, models.RefreshResponse{Samples: len(series.Samples)})
		return
	}

	if raw := q.Get("station_id"); raw != "" {
		stationID, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, r, "station_id must be a number", []models.FieldError{
				{Field: "station_id", Message: "must be a number", Code: "invalid"},
			})
			return
		}
		sensors, err := h.service.RefreshSensors(r.Context(), stationID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, r, http.StatusOK, models.RefreshResponse{Sensors: len(sensors)})
		return
	}

	stations, err := h.service.RefreshStations(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.RefreshResponse{Stations: len(stations)})
}
