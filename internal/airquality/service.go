package airquality

import (
	"context"
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/smogwatch/smogwatch/internal/geo"
)

// Provider defines the interface for the upstream air quality data source.
type Provider interface {
	// FetchStations fetches all station metadata.
	FetchStations(ctx context.Context) ([]Station, error)

	// FetchSensors fetches the sensors of one station.
	FetchSensors(ctx context.Context, stationID int) ([]Sensor, error)

	// FetchSeries fetches the measurement series of one sensor.
	FetchSeries(ctx context.Context, sensorID int) (*Series, error)

	// Ping reports whether the provider is currently reachable.
	Ping(ctx context.Context) bool
}

// Cache defines the durable cache the service falls back to when the
// provider is unreachable, and keeps up to date when it is not.
type Cache interface {
	SaveStations(stations []Station) error
	LoadStations() ([]Station, error)
	HasStations() bool
	UpsertSensors(stationID int, sensors []Sensor) error
	LoadSensors(stationID int) ([]Sensor, error)
	UpsertSeries(series *Series) error
	LoadSeries(sensorID int) (*Series, error)
	BackupAll() error
}

// ProviderMetrics records provider call outcomes and cache hits for
// observability. Implementations must be safe for concurrent use.
type ProviderMetrics interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// ServiceConfig holds configuration for the air quality service.
type ServiceConfig struct {
	// Provider is the upstream data source.
	Provider Provider

	// ProviderName labels provider metrics (default: "gios").
	ProviderName string

	// Cache is the durable file cache.
	Cache Cache

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics records provider and cache metrics. Optional.
	Metrics ProviderMetrics

	// SeriesLRUSize is the size of the in-memory series cache (default: 256).
	SeriesLRUSize int

	// SeriesTTL is how long an in-memory series entry stays fresh
	// (default: 10 minutes).
	SeriesTTL time.Duration
}

// seriesEntry wraps a cached series with its expiry.
type seriesEntry struct {
	series    *Series
	expiresAt time.Time
}

// Service coordinates the provider, the durable file cache, and an
// in-memory LRU of recently served series.
//
// Station metadata is served cache-first: the file cache is authoritative
// until explicitly refreshed. Measurement series are served provider-first
// with fallback to the cache, marking results as cached so callers can show
// how stale the data is.
type Service struct {
	provider     Provider
	providerName string
	cache        Cache
	logger       zerolog.Logger
	metrics      ProviderMetrics
	seriesLRU    *lru.Cache[int, seriesEntry]
	seriesTTL    time.Duration
}

// SeriesResult is a measurement series with its origin.
type SeriesResult struct {
	Series *Series

	// FromCache is true when the series was served from the durable cache
	// instead of the provider.
	FromCache bool
}

// NewService creates a new air quality service.
func NewService(cfg ServiceConfig) (*Service, error) {
	size := cfg.SeriesLRUSize
	if size <= 0 {
		size = 256
	}
	ttl := cfg.SeriesTTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}

	providerName := cfg.ProviderName
	if providerName == "" {
		providerName = "gios"
	}

	seriesLRU, err := lru.New[int, seriesEntry](size)
	if err != nil {
		return nil, err
	}

	return &Service{
		provider:     cfg.Provider,
		providerName: providerName,
		cache:        cfg.Cache,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		seriesLRU:    seriesLRU,
		seriesTTL:    ttl,
	}, nil
}

// recordRequest records one provider call if metrics are configured.
func (s *Service) recordRequest(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordRequest(s.providerName, operation, time.Since(start), err)
	}
}

func (s *Service) recordCacheHit(operation string) {
	if s.metrics != nil {
		s.metrics.RecordCacheHit(s.providerName, operation)
	}
}

func (s *Service) recordCacheMiss(operation string) {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(s.providerName, operation)
	}
}

// Stations returns all monitoring stations, loading the file cache first
// and fetching from the provider only when no cache exists yet.
func (s *Service) Stations(ctx context.Context) ([]Station, error) {
	if s.cache.HasStations() {
		stations, err := s.cache.LoadStations()
		if err == nil {
			return stations, nil
		}
		s.logger.Warn().Err(err).Msg("station cache unreadable, refetching")
	}

	return s.RefreshStations(ctx)
}

// RefreshStations fetches the station list from the provider and replaces
// the cache. On provider failure the existing cache is served if present.
func (s *Service) RefreshStations(ctx context.Context) ([]Station, error) {
	start := time.Now()
	stations, err := s.provider.FetchStations(ctx)
	s.recordRequest("stations", start, err)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch stations")
		cached, cacheErr := s.cache.LoadStations()
		if cacheErr != nil {
			return nil, ErrUnavailable
		}
		s.logger.Warn().Int("stations", len(cached)).Msg("serving cached stations after provider error")
		return cached, nil
	}

	if err := s.cache.SaveStations(stations); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist stations")
	}

	s.logger.Info().Int("stations", len(stations)).Msg("station list refreshed")
	return stations, nil
}

// SearchStations returns stations whose name contains the query,
// case-insensitively. An empty query matches everything.
func (s *Service) SearchStations(ctx context.Context, query string) ([]Station, error) {
	stations, err := s.Stations(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return stations, nil
	}

	query = strings.ToLower(query)
	matched := make([]Station, 0, len(stations))
	for _, station := range stations {
		if strings.Contains(strings.ToLower(station.Name), query) {
			matched = append(matched, station)
		}
	}
	return matched, nil
}

// Station returns a single station by ID.
func (s *Service) Station(ctx context.Context, stationID int) (*Station, error) {
	stations, err := s.Stations(ctx)
	if err != nil {
		return nil, err
	}
	for i := range stations {
		if stations[i].ID == stationID {
			return &stations[i], nil
		}
	}
	return nil, ErrStationNotFound
}

// StationsWithinRadius returns the stations within radiusKm of the center,
// each paired with its distance.
func (s *Service) StationsWithinRadius(ctx context.Context, center geo.Point, radiusKm float64) ([]StationDistance, error) {
	stations, err := s.Stations(ctx)
	if err != nil {
		return nil, err
	}

	var nearby []StationDistance
	for _, station := range stations {
		d := geo.Distance(center, geo.Point{Lat: station.Lat, Lon: station.Lon})
		if d <= radiusKm {
			nearby = append(nearby, StationDistance{Station: station, DistanceKm: d})
		}
	}
	return nearby, nil
}

// StationDistance pairs a station with its distance from a query point.
type StationDistance struct {
	Station    Station
	DistanceKm float64
}

// Sensors returns the sensors of one station, cache-first. When the station
// has no cached sensors the provider is queried and the result persisted.
func (s *Service) Sensors(ctx context.Context, stationID int) ([]Sensor, error) {
	if _, err := s.Station(ctx, stationID); err != nil {
		return nil, err
	}

	cached, err := s.cache.LoadSensors(stationID)
	if err == nil && len(cached) > 0 {
		return cached, nil
	}

	return s.RefreshSensors(ctx, stationID)
}

// RefreshSensors fetches the sensors of one station from the provider and
// upserts them into the cache, replacing the station's previous entries.
// On provider failure the cached entries are served if present.
func (s *Service) RefreshSensors(ctx context.Context, stationID int) ([]Sensor, error) {
	start := time.Now()
	sensors, err := s.provider.FetchSensors(ctx, stationID)
	s.recordRequest("sensors", start, err)
	if err != nil {
		s.logger.Error().Err(err).Int("station_id", stationID).Msg("failed to fetch sensors")
		cached, cacheErr := s.cache.LoadSensors(stationID)
		if cacheErr != nil || len(cached) == 0 {
			return nil, ErrUnavailable
		}
		s.logger.Warn().Int("station_id", stationID).Msg("serving cached sensors after provider error")
		return cached, nil
	}

	if err := s.cache.UpsertSensors(stationID, sensors); err != nil {
		s.logger.Error().Err(err).Int("station_id", stationID).Msg("failed to persist sensors")
	}

	return sensors, nil
}

// Series returns the measurement series of one sensor, optionally
// restricted to [from, to]. The lookup order is in-memory LRU, provider,
// then durable cache. A provider response with no valid readings is treated
// like a provider failure so stale cached readings beat an empty payload.
func (s *Service) Series(ctx context.Context, sensorID int, from, to time.Time) (*SeriesResult, error) {
	result, err := s.fullSeries(ctx, sensorID)
	if err != nil {
		return nil, err
	}

	if !from.IsZero() || !to.IsZero() {
		result.Series = result.Series.FilterRange(from, to)
	}
	return result, nil
}

// Stats computes summary statistics over a sensor's series within the
// optional [from, to] range.
func (s *Service) Stats(ctx context.Context, sensorID int, from, to time.Time) (*SeriesStats, *SeriesResult, error) {
	result, err := s.Series(ctx, sensorID, from, to)
	if err != nil {
		return nil, nil, err
	}

	stats, err := ComputeStats(result.Series.Samples)
	if err != nil {
		return nil, nil, err
	}
	return stats, result, nil
}

// RefreshSeries fetches a sensor's series from the provider and persists
// it, bypassing the in-memory cache.
func (s *Service) RefreshSeries(ctx context.Context, sensorID int) (*Series, error) {
	start := time.Now()
	series, err := s.provider.FetchSeries(ctx, sensorID)
	s.recordRequest("measurements", start, err)
	if err != nil {
		return nil, err
	}
	if !series.HasValues() {
		return nil, ErrNoMeasurements
	}

	if err := s.cache.UpsertSeries(series); err != nil {
		s.logger.Error().Err(err).Int("sensor_id", sensorID).Msg("failed to persist measurements")
	}
	s.seriesLRU.Add(sensorID, seriesEntry{series: series, expiresAt: time.Now().Add(s.seriesTTL)})

	return series, nil
}

// fullSeries resolves the unfiltered series for a sensor.
func (s *Service) fullSeries(ctx context.Context, sensorID int) (*SeriesResult, error) {
	if entry, ok := s.seriesLRU.Get(sensorID); ok {
		if time.Now().Before(entry.expiresAt) {
			s.recordCacheHit("measurements")
			return &SeriesResult{Series: entry.series}, nil
		}
		s.seriesLRU.Remove(sensorID)
	}
	s.recordCacheMiss("measurements")

	series, err := s.RefreshSeries(ctx, sensorID)
	if err == nil {
		return &SeriesResult{Series: series}, nil
	}

	s.logger.Warn().Err(err).Int("sensor_id", sensorID).Msg("falling back to cached measurements")

	cached, cacheErr := s.cache.LoadSeries(sensorID)
	if cacheErr != nil {
		if errors.Is(err, ErrNoMeasurements) {
			return nil, ErrNoMeasurements
		}
		return nil, ErrUnavailable
	}

	s.logger.Info().
		Int("sensor_id", sensorID).
		Time("fetched_at", cached.FetchedAt).
		Msg("serving cached measurements")
	return &SeriesResult{Series: cached, FromCache: true}, nil
}

// BackupCache snapshots the current cache files before a bulk refresh.
func (s *Service) BackupCache() error {
	return s.cache.BackupAll()
}

// ProviderReachable probes the upstream provider.
func (s *Service) ProviderReachable(ctx context.Context) bool {
	return s.provider.Ping(ctx)
}

// CacheStatus describes the durable cache for the ops endpoints.
type CacheStatus struct {
	HasStations  bool
	StationCount int
}

// Status reports the current cache state.
func (s *Service) Status() CacheStatus {
	status := CacheStatus{HasStations: s.cache.HasStations()}
	if status.HasStations {
		if stations, err := s.cache.LoadStations(); err == nil {
			status.StationCount = len(stations)
		}
	}
	return status
}
