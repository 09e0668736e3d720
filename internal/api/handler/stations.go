// Package handler provides HTTP handlers for the SmogWatch API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/smogwatch/smogwatch/internal/airquality"
	"github.com/smogwatch/smogwatch/internal/api/models"
	"github.com/smogwatch/smogwatch/internal/api/response"
	"github.com/smogwatch/smogwatch/internal/geo"
	"github.com/smogwatch/smogwatch/internal/geocode/nominatim"
)

const defaultRadiusKm = 10.0

// Geocoder resolves a free-form address to a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Point, error)
}

// StationsHandler handles station endpoints.
type StationsHandler struct {
	service  *airquality.Service
	geocoder Geocoder
}

// NewStationsHandler creates a new StationsHandler.
func NewStationsHandler(service *airquality.Service, geocoder Geocoder) *StationsHandler {
	return &StationsHandler{service: service, geocoder: geocoder}
}

// ListStations handles GET /v1/stations - list stations, optionally
// filtered by name with ?q= and truncated with ?limit=.
func (h *StationsHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.BadRequest(w, r, "limit must be a positive number", []models.FieldError{
				{Field: "limit", Message: "must be a positive number", Code: "invalid"},
			})
			return
		}
		limit = parsed
	}

	stations, err := h.service.SearchStations(r.Context(), q.Get("q"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if limit > 0 && len(stations) > limit {
		stations = stations[:limit]
	}

	out := models.StationListResponse{
		Stations: make([]models.StationResponse, 0, len(stations)),
		Count:    len(stations),
	}
	for _, station := range stations {
		out.Stations = append(out.Stations, models.ToStationResponse(station))
	}
	response.JSON(w, r, http.StatusOK, out)
}

// GetStation handles GET /v1/stations/{stationId}.
func (h *StationsHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	stationID, ok := parseIntParam(w, r, "stationId")
	if !ok {
		return
	}

	station, err := h.service.Station(r.Context(), stationID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.ToStationResponse(*station))
}

// NearbyStations handles GET /v1/stations/nearby - find stations around an
// address (?address=) or an explicit coordinate (?lat=&lon=), within
// ?radius_km= kilometres.
func (h *StationsHandler) NearbyStations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	radiusKm := defaultRadiusKm
	if raw := q.Get("radius_km"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			response.BadRequest(w, r, "radius_km must be a positive number", []models.FieldError{
				{Field: "radius_km", Message: "must be a positive number", Code: "invalid"},
			})
			return
		}
		radiusKm = parsed
	}

	center, ok := h.resolveCenter(w, r)
	if !ok {
		return
	}

	nearby, err := h.service.StationsWithinRadius(r.Context(), center, radiusKm)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Closest first
	sort.Slice(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})

	out := models.NearbyStationsResponse{
		Center:   models.Point{Lat: center.Lat, Lon: center.Lon},
		RadiusKm: radiusKm,
		Stations: make([]models.NearbyStationResponse, 0, len(nearby)),
		Count:    len(nearby),
	}
	for _, sd := range nearby {
		out.Stations = append(out.Stations, models.NearbyStationResponse{
			StationResponse: models.ToStationResponse(sd.Station),
			DistanceKm:      sd.DistanceKm,
		})
	}
	response.JSON(w, r, http.StatusOK, out)
}

// ListSensors handles GET /v1/stations/{stationId}/sensors.
func (h *StationsHandler) ListSensors(w http.ResponseWriter, r *http.Request) {
	stationID, ok := parseIntParam(w, r, "stationId")
	if !ok {
		return
	}

	sensors, err := h.service.Sensors(r.Context(), stationID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := models.SensorListResponse{
		StationID: stationID,
		Sensors:   make([]models.SensorResponse, 0, len(sensors)),
		Count:     len(sensors),
	}
	for _, sensor := range sensors {
		out.Sensors = append(out.Sensors, models.ToSensorResponse(sensor))
	}
	response.JSON(w, r, http.StatusOK, out)
}

// resolveCenter extracts the search center from lat/lon params or geocodes
// the address param. Writes the error response itself on failure.
func (h *StationsHandler) resolveCenter(w http.ResponseWriter, r *http.Request) (geo.Point, bool) {
	q := r.URL.Query()

	latRaw, lonRaw := q.Get("lat"), q.Get("lon")
	if latRaw != "" || lonRaw != "" {
		lat, latErr := strconv.ParseFloat(latRaw, 64)
		lon, lonErr := strconv.ParseFloat(lonRaw, 64)
		if latErr != nil || lonErr != nil {
			response.BadRequest(w, r, "lat and lon must both be valid coordinates", nil)
			return geo.Point{}, false
		}
		return geo.Point{Lat: lat, Lon: lon}, true
	}

	address := q.Get("address")
	if address == "" {
		response.BadRequest(w, r, "either address or lat/lon is required", nil)
		return geo.Point{}, false
	}

	point, err := h.geocoder.Geocode(r.Context(), address)
	if err != nil {
		if errors.Is(err, nominatim.ErrNoResults) {
			response.NotFound(w, r, "no location found for the given address")
			return geo.Point{}, false
		}
		response.ServiceUnavailable(w, r, "geocoding service unavailable")
		return geo.Point{}, false
	}
	return point, true
}

// parseIntParam parses a numeric chi URL parameter, writing a 400 on failure.
func parseIntParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	value, err := strconv.Atoi(raw)
	if err != nil {
		response.BadRequest(w, r, name+" must be a number", []models.FieldError{
			{Field: name, Message: "must be a number", Code: "invalid"},
		})
		return 0, false
	}
	return value, true
}

// writeServiceError maps domain errors to problem responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, airquality.ErrStationNotFound):
		response.NotFound(w, r, "station not found")
	case errors.Is(err, airquality.ErrSensorNotFound):
		response.NotFound(w, r, "sensor not found")
	case errors.Is(err, airquality.ErrNoMeasurements):
		response.NotFound(w, r, "no measurements available for this sensor")
	case errors.Is(err, airquality.ErrUnavailable):
		response.ServiceUnavailable(w, r, "air quality data is unavailable and no cached copy exists")
	default:
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
