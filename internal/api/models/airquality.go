package models

import (
	"github.com/smogwatch/smogwatch/internal/airquality"
)

// StationResponse is one monitoring station.
type StationResponse struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	City   string  `json:"city,omitempty"`
	Street string  `json:"street,omitempty"`
}

// StationListResponse is the response for station list and search endpoints.
type StationListResponse struct {
	Stations []StationResponse `json:"stations"`
	Count    int               `json:"count"`
}

// NearbyStationResponse is a station with its distance from the query point.
type NearbyStationResponse struct {
	StationResponse
	DistanceKm float64 `json:"distanceKm"`
}

// NearbyStationsResponse is the response for the nearby-stations endpoint.
type NearbyStationsResponse struct {
	Center   Point                   `json:"center"`
	RadiusKm float64                 `json:"radiusKm"`
	Stations []NearbyStationResponse `json:"stations"`
	Count    int                     `json:"count"`
}

// SensorResponse is one measurement sensor of a station.
type SensorResponse struct {
	ID        int    `json:"id"`
	StationID int    `json:"stationId"`
	ParamName string `json:"paramName"`
	ParamCode string `json:"paramCode"`
}

// SensorListResponse is the response for the station sensors endpoint.
type SensorListResponse struct {
	StationID int              `json:"stationId"`
	Sensors   []SensorResponse `json:"sensors"`
	Count     int              `json:"count"`
}

// SampleResponse is one timestamped reading. Value is null when the
// upstream network reported no reading for that hour.
type SampleResponse struct {
	Date  Timestamp `json:"date"`
	Value *float64  `json:"value"`
}

// SeriesResponse is the response for the sensor measurements endpoint.
type SeriesResponse struct {
	SensorID  int              `json:"sensorId"`
	Samples   []SampleResponse `json:"samples"`
	Count     int              `json:"count"`
	FromCache bool             `json:"fromCache"`
	FetchedAt Timestamp        `json:"fetchedAt"`
}

// StatsResponse is the response for the sensor stats endpoint.
type StatsResponse struct {
	SensorID   int       `json:"sensorId"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Mean       float64   `json:"mean"`
	Trend      string    `json:"trend"`
	ValidCount int       `json:"validCount"`
	TotalCount int       `json:"totalCount"`
	FromCache  bool      `json:"fromCache"`
	FetchedAt  Timestamp `json:"fetchedAt"`
}

// RefreshResponse is the response for the cache refresh endpoint. Exactly one
// counter is set, matching the scope that was refreshed.
type RefreshResponse struct {
	Stations int `json:"stations,omitempty"`
	Sensors  int `json:"sensors,omitempty"`
	Samples  int `json:"samples,omitempty"`
}

// ToStationResponse maps a domain station to its API shape.
func ToStationResponse(s airquality.Station) StationResponse {
	return StationResponse{
		ID:     s.ID,
		Name:   s.Name,
		Lat:    s.Lat,
		Lon:    s.Lon,
		City:   s.City,
		Street: s.Street,
	}
}

// ToSensorResponse maps a domain sensor to its API shape.
func ToSensorResponse(s airquality.Sensor) SensorResponse {
	return SensorResponse{
		ID:        s.ID,
		StationID: s.StationID,
		ParamName: s.ParamName,
		ParamCode: s.ParamCode,
	}
}

// ToSeriesResponse maps a series result to its API shape.
func ToSeriesResponse(result *airquality.SeriesResult) SeriesResponse {
	samples := make([]SampleResponse, 0, len(result.Series.Samples))
	for _, sample := range result.Series.Samples {
		samples = append(samples, SampleResponse{
			Date:  Timestamp(sample.Date),
			Value: sample.Value,
		})
	}
	return SeriesResponse{
		SensorID:  result.Series.SensorID,
		Samples:   samples,
		Count:     len(samples),
		FromCache: result.FromCache,
		FetchedAt: Timestamp(result.Series.FetchedAt),
	}
}
