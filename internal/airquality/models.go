// Package airquality provides air quality station, sensor and measurement
// data access with a durable file cache and offline fallback.
package airquality

import (
	"encoding/json"
	"errors"
	"time"
)

// Service errors.
var (
	ErrStationNotFound = errors.New("station not found")
	ErrSensorNotFound  = errors.New("sensor not found")
	ErrNoMeasurements  = errors.New("no measurements available")
	ErrUnavailable     = errors.New("provider unavailable and no cached data")
)

// SampleTimeLayout is the timestamp layout used by the GIOS measurement feed.
const SampleTimeLayout = "2006-01-02 15:04:05"

// Station represents an air quality monitoring station.
type Station struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	City   string  `json:"city,omitempty"`
	Street string  `json:"street,omitempty"`
}

// Sensor represents a single measuring instrument at a station.
type Sensor struct {
	ID        int    `json:"id"`
	StationID int    `json:"stationId"`
	ParamName string `json:"paramName"`
	ParamCode string `json:"paramCode"`
}

// Sample is one timestamped reading. A nil Value marks a gap in the series.
type Sample struct {
	Date  time.Time
	Value *float64
}

// sampleJSON is the wire/file representation of a Sample.
type sampleJSON struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// MarshalJSON implements json.Marshaler using the GIOS timestamp layout.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{
		Date:  s.Date.Format(SampleTimeLayout),
		Value: s.Value,
	})
}

// UnmarshalJSON implements json.Unmarshaler using the GIOS timestamp layout.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw sampleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.Parse(SampleTimeLayout, raw.Date)
	if err != nil {
		return err
	}
	s.Date = parsed
	s.Value = raw.Value
	return nil
}

// Series is a measurement series for one sensor.
type Series struct {
	SensorID int      `json:"id"`
	Samples  []Sample `json:"values"`

	// FetchedAt records when the series was last retrieved from the provider.
	FetchedAt time.Time `json:"lastUpdated"`
}

// HasValues reports whether the series contains at least one non-nil reading.
func (s *Series) HasValues() bool {
	for _, sample := range s.Samples {
		if sample.Value != nil {
			return true
		}
	}
	return false
}

// FilterRange returns a copy of the series restricted to samples within
// [from, to]. Zero bounds are open-ended.
func (s *Series) FilterRange(from, to time.Time) *Series {
	filtered := &Series{
		SensorID:  s.SensorID,
		FetchedAt: s.FetchedAt,
	}
	for _, sample := range s.Samples {
		if !from.IsZero() && sample.Date.Before(from) {
			continue
		}
		if !to.IsZero() && sample.Date.After(to) {
			continue
		}
		filtered.Samples = append(filtered.Samples, sample)
	}
	return filtered
}
