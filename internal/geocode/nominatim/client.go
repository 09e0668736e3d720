// Package nominatim provides a client for the OpenStreetMap Nominatim
// geocoding API.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smogwatch/smogwatch/internal/geo"
	"github.com/smogwatch/smogwatch/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the Nominatim API.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// ProviderName identifies this provider.
	ProviderName = "nominatim"

	// userAgent identifies this application. Nominatim rejects requests
	// without a User-Agent.
	userAgent = "smogwatch"
)

// ErrNoResults is returned when the query matches no location.
var ErrNoResults = errors.New("no geocoding results")

// ClientConfig holds configuration for the Nominatim client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use. If nil, a default resilient
	// client will be created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 10s).
	Timeout time.Duration
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a Nominatim geocoding client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a new Nominatim client.
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
			MaxRetries:      2,
			InitialInterval: 500 * time.Millisecond,
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

// searchResult is one entry of the Nominatim search response. Coordinates
// arrive as strings.
type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves a free-form address to a coordinate, taking the best
// match. Returns ErrNoResults when nothing matches.
func (c *Client) Geocode(ctx context.Context, address string) (geo.Point, error) {
	query := url.Values{}
	query.Set("q", address)
	query.Set("format", "json")
	query.Set("limit", "1")

	reqURL := c.baseURL + "/search?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return geo.Point{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.do(req)
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Point{}, fmt.Errorf("unexpected status %d from geocoding endpoint", resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return geo.Point{}, fmt.Errorf("decode geocoding response: %w", err)
	}

	if len(results) == 0 {
		return geo.Point{}, ErrNoResults
	}

	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(results[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return geo.Point{}, fmt.Errorf("invalid coordinates in geocoding response")
	}

	return geo.Point{Lat: lat, Lon: lon}, nil
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
