// Package gios provides a client for the Polish GIOS air quality REST API.
package gios

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smogwatch/smogwatch/internal/airquality"
	"github.com/smogwatch/smogwatch/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the GIOS API.
	DefaultBaseURL = "https://api.gios.gov.pl/pjp-api/rest"

	// ProviderName identifies this provider.
	ProviderName = "gios"

	// pingTimeout bounds the connectivity probe.
	pingTimeout = 5 * time.Second
)

// ClientConfig holds configuration for the GIOS client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (must implement HTTPDoer).
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 10s).
	Timeout time.Duration
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a GIOS API client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a new GIOS client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		rc := resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Timeout:         timeout,
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		})
		resilience.GlobalRegistry.Register(ProviderName, rc)
		httpClient = rc
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// API response types (from the GIOS API). Coordinates arrive as strings.

type stationData struct {
	ID            int    `json:"id"`
	StationName   string `json:"stationName"`
	GegrLat       string `json:"gegrLat"`
	GegrLon       string `json:"gegrLon"`
	AddressStreet string `json:"addressStreet"`
	City          *struct {
		Name string `json:"name"`
	} `json:"city"`
}

type sensorData struct {
	ID        int `json:"id"`
	StationID int `json:"stationId"`
	Param     struct {
		ParamName string `json:"paramName"`
		ParamCode string `json:"paramCode"`
	} `json:"param"`
}

type seriesData struct {
	Key    string `json:"key"`
	Values []struct {
		Date  string   `json:"date"`
		Value *float64 `json:"value"`
	} `json:"values"`
}

// FetchStations retrieves all monitoring stations. Stations with
// unparsable coordinates are skipped.
func (c *Client) FetchStations(ctx context.Context) ([]airquality.Station, error) {
	url := c.baseURL + "/station/findAll"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch stations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from station endpoint", resp.StatusCode)
	}

	var result []stationData
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode stations response: %w", err)
	}

	stations := make([]airquality.Station, 0, len(result))
	for i := range result {
		station, ok := toStation(&result[i])
		if !ok {
			continue
		}
		stations = append(stations, station)
	}

	return stations, nil
}

// FetchSensors retrieves the sensors installed at one station.
func (c *Client) FetchSensors(ctx context.Context, stationID int) ([]airquality.Sensor, error) {
	url := fmt.Sprintf("%s/station/sensors/%d", c.baseURL, stationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sensors: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from sensors endpoint", resp.StatusCode)
	}

	var result []sensorData
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode sensors response: %w", err)
	}

	sensors := make([]airquality.Sensor, 0, len(result))
	for _, s := range result {
		sensors = append(sensors, airquality.Sensor{
			ID:        s.ID,
			StationID: stationID,
			ParamName: s.Param.ParamName,
			ParamCode: s.Param.ParamCode,
		})
	}

	return sensors, nil
}

// FetchSeries retrieves the measurement series of one sensor. Null readings
// are preserved as gaps.
func (c *Client) FetchSeries(ctx context.Context, sensorID int) (*airquality.Series, error) {
	url := fmt.Sprintf("%s/data/getData/%d", c.baseURL, sensorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch measurements: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from data endpoint", resp.StatusCode)
	}

	var result seriesData
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode measurements response: %w", err)
	}

	series := &airquality.Series{
		SensorID:  sensorID,
		FetchedAt: time.Now(),
		Samples:   make([]airquality.Sample, 0, len(result.Values)),
	}
	for _, v := range result.Values {
		date, err := time.Parse(airquality.SampleTimeLayout, v.Date)
		if err != nil {
			continue
		}
		series.Samples = append(series.Samples, airquality.Sample{
			Date:  date,
			Value: v.Value,
		})
	}

	return series, nil
}

// Ping probes the station endpoint with a short timeout. It reports whether
// the provider is reachable, mirroring the connectivity check the service
// uses before trusting the cache fallback.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/station/findAll", http.NoBody)
	if err != nil {
		return false
	}

	resp, err := c.do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// do executes the request and records the outcome in the provider
// registry so the ops status endpoint can report last success times.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		resilience.GlobalRegistry.RecordFailure(ProviderName, err)
		return nil, err
	}
	resilience.GlobalRegistry.RecordSuccess(ProviderName)
	return resp, nil
}

// toStation converts API station data to a domain Station. The second
// return value is false when the coordinates cannot be parsed.
func toStation(s *stationData) (airquality.Station, bool) {
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(s.GegrLat), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(s.GegrLon), 64)
	if errLat != nil || errLon != nil {
		return airquality.Station{}, false
	}

	station := airquality.Station{
		ID:     s.ID,
		Name:   s.StationName,
		Lat:    lat,
		Lon:    lon,
		Street: s.AddressStreet,
	}
	if s.City != nil {
		station.City = s.City.Name
	}
	return station, true
}
