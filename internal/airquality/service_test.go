package airquality

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smogwatch/smogwatch/internal/geo"
)

// fakeProvider is a scriptable Provider for service tests.
type fakeProvider struct {
	stations    []Station
	sensors     map[int][]Sensor
	series      map[int]*Series
	err         error
	reachable   bool
	fetchCounts map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		sensors:     make(map[int][]Sensor),
		series:      make(map[int]*Series),
		reachable:   true,
		fetchCounts: make(map[string]int),
	}
}

func (p *fakeProvider) FetchStations(_ context.Context) ([]Station, error) {
	p.fetchCounts["stations"]++
	if p.err != nil {
		return nil, p.err
	}
	return p.stations, nil
}

func (p *fakeProvider) FetchSensors(_ context.Context, stationID int) ([]Sensor, error) {
	p.fetchCounts["sensors"]++
	if p.err != nil {
		return nil, p.err
	}
	return p.sensors[stationID], nil
}

func (p *fakeProvider) FetchSeries(_ context.Context, sensorID int) (*Series, error) {
	p.fetchCounts["series"]++
	if p.err != nil {
		return nil, p.err
	}
	series, ok := p.series[sensorID]
	if !ok {
		return &Series{SensorID: sensorID, FetchedAt: time.Now()}, nil
	}
	return series, nil
}

func (p *fakeProvider) Ping(_ context.Context) bool {
	return p.reachable
}

// memoryCache is an in-memory Cache for service tests.
type memoryCache struct {
	stations []Station
	sensors  map[int][]Sensor
	series   map[int]*Series
	backups  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		sensors: make(map[int][]Sensor),
		series:  make(map[int]*Series),
	}
}

var errNotCached = errors.New("not cached")

func (c *memoryCache) SaveStations(stations []Station) error {
	c.stations = stations
	return nil
}

func (c *memoryCache) LoadStations() ([]Station, error) {
	if c.stations == nil {
		return nil, errNotCached
	}
	return c.stations, nil
}

func (c *memoryCache) HasStations() bool {
	return c.stations != nil
}

func (c *memoryCache) UpsertSensors(stationID int, sensors []Sensor) error {
	c.sensors[stationID] = sensors
	return nil
}

func (c *memoryCache) LoadSensors(stationID int) ([]Sensor, error) {
	sensors, ok := c.sensors[stationID]
	if !ok {
		return nil, errNotCached
	}
	return sensors, nil
}

func (c *memoryCache) UpsertSeries(series *Series) error {
	c.series[series.SensorID] = series
	return nil
}

func (c *memoryCache) LoadSeries(sensorID int) (*Series, error) {
	series, ok := c.series[sensorID]
	if !ok {
		return nil, errNotCached
	}
	return series, nil
}

func (c *memoryCache) BackupAll() error {
	c.backups++
	return nil
}

func newTestService(t *testing.T, provider Provider, cache Cache) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Provider: provider,
		Cache:    cache,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return service
}

func testStations() []Station {
	return []Station{
		{ID: 1, Name: "Warszawa-Targówek", Lat: 52.290, Lon: 21.042, City: "Warszawa"},
		{ID: 2, Name: "Kraków-Kurdwanów", Lat: 50.011, Lon: 19.949, City: "Kraków"},
		{ID: 3, Name: "Gdańsk-Wrzeszcz", Lat: 54.380, Lon: 18.620, City: "Gdańsk"},
	}
}

func TestService_Stations_FetchesAndPersistsWhenCacheEmpty(t *testing.T) {
	provider := newFakeProvider()
	provider.stations = testStations()
	cache := newMemoryCache()
	service := newTestService(t, provider, cache)

	stations, err := service.Stations(context.Background())
	require.NoError(t, err)
	assert.Len(t, stations, 3)
	assert.True(t, cache.HasStations(), "stations should be persisted")
	assert.Equal(t, 1, provider.fetchCounts["stations"])
}

func TestService_Stations_CacheFirst(t *testing.T) {
	provider := newFakeProvider()
	cache := newMemoryCache()
	cache.stations = testStations()
	service := newTestService(t, provider, cache)

	stations, err := service.Stations(context.Background())
	require.NoError(t, err)
	assert.Len(t, stations, 3)
	assert.Zero(t, provider.fetchCounts["stations"], "cached stations should not hit the provider")
}

func TestService_RefreshStations_FallsBackToCacheOnError(t *testing.T) {
	provider := newFakeProvider()
	provider.err = errors.New("connection refused")
	cache := newMemoryCache()
	cache.stations = testStations()
	service := newTestService(t, provider, cache)

	stations, err := service.RefreshStations(context.Background())
	require.NoError(t, err)
	assert.Len(t, stations, 3)
}

func TestService_RefreshStations_UnavailableWhenNoCache(t *testing.T) {
	provider := newFakeProvider()
	provider.err = errors.New("connection refused")
	service := newTestService(t, provider, newMemoryCache())

	_, err := service.RefreshStations(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestService_SearchStations_CaseInsensitive(t *testing.T) {
	provider := newFakeProvider()
	provider.stations = testStations()
	service := newTestService(t, provider, newMemoryCache())

	matched, err := service.SearchStations(context.Background(), "kraków")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, 2, matched[0].ID)

	all, err := service.SearchStations(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := service.SearchStations(context.Background(), "poznań")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestService_Station_NotFound(t *testing.T) {
	provider := newFakeProvider()
	provider.stations = testStations()
	service := newTestService(t, provider, newMemoryCache())

	_, err := service.Station(context.Background(), 999)
	assert.ErrorIs(t, err, ErrStationNotFound)
}

func TestService_StationsWithinRadius(t *testing.T) {
	provider := newFakeProvider()
	provider.stations = testStations()
	service := newTestService(t, provider, newMemoryCache())

	// Center on Warsaw, 50 km radius: only the Warsaw station qualifies.
	center := geo.Point{Lat: 52.2297, Lon: 21.0122}
	nearby, err := service.StationsWithinRadius(context.Background(), center, 50)
	require.NoError(t, err)
	require.Len(t, nearby, 1)
	assert.Equal(t, 1, nearby[0].Station.ID)
	assert.Greater(t, nearby[0].DistanceKm, 0.0)
	assert.Less(t, nearby[0].DistanceKm, 50.0)
}

func TestService_Sensors_UnknownStation(t *testing.T) {
	provider := newFakeProvider()
	provider.stations = testStations()
	service := newTestService(t, provider, newMemoryCache())

	_, err := service.Sensors(context.Background(), 999)
	assert.ErrorIs(t, err, ErrStationNotFound)
}

func TestService_Sensors_CacheFirstThenProvider(t *testing.T) {
	provider := newFakeProvider()
	provider.stations = testStations()
	provider.sensors[1] = []Sensor{
		{ID: 10, StationID: 1, ParamName: "pył zawieszony PM10", ParamCode: "PM10"},
	}
	cache := newMemoryCache()
	service := newTestService(t, provider, cache)

	sensors, err := service.Sensors(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	assert.Equal(t, 1, provider.fetchCounts["sensors"])

	// Second call is served from the cache.
	sensors, err = service.Sensors(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	assert.Equal(t, 1, provider.fetchCounts["sensors"])
}

func TestService_Series_ProviderFirst(t *testing.T) {
	provider := newFakeProvider()
	provider.series[10] = &Series{
		SensorID:  10,
		Samples:   []Sample{sampleAt(0, fv(21.3))},
		FetchedAt: time.Now(),
	}
	cache := newMemoryCache()
	service := newTestService(t, provider, cache)

	result, err := service.Series(context.Background(), 10, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	require.Len(t, result.Series.Samples, 1)

	// The fresh series is persisted for offline use.
	_, err = cache.LoadSeries(10)
	assert.NoError(t, err)
}

func TestService_Series_FallsBackToCacheOnProviderError(t *testing.T) {
	provider := newFakeProvider()
	provider.err = errors.New("timeout")
	cache := newMemoryCache()
	fetchedAt := time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC)
	cache.series[10] = &Series{
		SensorID:  10,
		Samples:   []Sample{sampleAt(0, fv(33.0))},
		FetchedAt: fetchedAt,
	}
	service := newTestService(t, provider, cache)

	result, err := service.Series(context.Background(), 10, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.True(t, result.Series.FetchedAt.Equal(fetchedAt))
}

func TestService_Series_AllNullPayloadFallsBackToCache(t *testing.T) {
	provider := newFakeProvider()
	provider.series[10] = &Series{
		SensorID:  10,
		Samples:   []Sample{sampleAt(0, nil), sampleAt(1, nil)},
		FetchedAt: time.Now(),
	}
	cache := newMemoryCache()
	cache.series[10] = &Series{
		SensorID:  10,
		Samples:   []Sample{sampleAt(0, fv(12.0))},
		FetchedAt: time.Now().Add(-time.Hour),
	}
	service := newTestService(t, provider, cache)

	result, err := service.Series(context.Background(), 10, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.True(t, result.FromCache, "empty payload should not replace cached readings")
}

func TestService_Series_NoMeasurementsAnywhere(t *testing.T) {
	provider := newFakeProvider()
	service := newTestService(t, provider, newMemoryCache())

	_, err := service.Series(context.Background(), 10, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrNoMeasurements)
}

func TestService_Series_UnavailableWhenProviderDownAndNoCache(t *testing.T) {
	provider := newFakeProvider()
	provider.err = errors.New("timeout")
	service := newTestService(t, provider, newMemoryCache())

	_, err := service.Series(context.Background(), 10, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestService_Series_ServedFromLRUWithinTTL(t *testing.T) {
	provider := newFakeProvider()
	provider.series[10] = &Series{
		SensorID:  10,
		Samples:   []Sample{sampleAt(0, fv(21.3))},
		FetchedAt: time.Now(),
	}
	service := newTestService(t, provider, newMemoryCache())

	_, err := service.Series(context.Background(), 10, time.Time{}, time.Time{})
	require.NoError(t, err)
	_, err = service.Series(context.Background(), 10, time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 1, provider.fetchCounts["series"], "second lookup should hit the in-memory cache")
}

func TestService_Series_RangeFilter(t *testing.T) {
	provider := newFakeProvider()
	provider.series[10] = &Series{
		SensorID: 10,
		Samples: []Sample{
			sampleAt(1, fv(1)),
			sampleAt(8, fv(2)),
			sampleAt(16, fv(3)),
		},
		FetchedAt: time.Now(),
	}
	service := newTestService(t, provider, newMemoryCache())

	from := time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	result, err := service.Series(context.Background(), 10, from, to)
	require.NoError(t, err)
	require.Len(t, result.Series.Samples, 1)
	assert.Equal(t, 8, result.Series.Samples[0].Date.Hour())
}

func TestService_Stats(t *testing.T) {
	provider := newFakeProvider()
	provider.series[10] = &Series{
		SensorID: 10,
		Samples: []Sample{
			sampleAt(0, fv(10)),
			sampleAt(1, fv(30)),
		},
		FetchedAt: time.Now(),
	}
	service := newTestService(t, provider, newMemoryCache())

	stats, result, err := service.Stats(context.Background(), 10, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 20, stats.Mean, 0.001)
	assert.Equal(t, TrendRising, stats.Trend)
	assert.False(t, result.FromCache)
}

func TestService_Status(t *testing.T) {
	provider := newFakeProvider()
	cache := newMemoryCache()
	service := newTestService(t, provider, cache)

	status := service.Status()
	assert.False(t, status.HasStations)

	cache.stations = testStations()
	status = service.Status()
	assert.True(t, status.HasStations)
	assert.Equal(t, 3, status.StationCount)
}

func TestService_BackupCache(t *testing.T) {
	cache := newMemoryCache()
	service := newTestService(t, newFakeProvider(), cache)

	require.NoError(t, service.BackupCache())
	assert.Equal(t, 1, cache.backups)
}

type recordingMetrics struct {
	requests   map[string]int
	cacheHits  map[string]int
	cacheMiss  map[string]int
	lastFailed bool
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		requests:  map[string]int{},
		cacheHits: map[string]int{},
		cacheMiss: map[string]int{},
	}
}

func (m *recordingMetrics) RecordRequest(_, operation string, _ time.Duration, err error) {
	m.requests[operation]++
	m.lastFailed = err != nil
}

func (m *recordingMetrics) RecordCacheHit(_, operation string) { m.cacheHits[operation]++ }

func (m *recordingMetrics) RecordCacheMiss(_, operation string) { m.cacheMiss[operation]++ }

func TestService_RecordsProviderMetrics(t *testing.T) {
	provider := newFakeProvider()
	provider.stations = testStations()
	provider.series[10] = &Series{
		SensorID:  10,
		Samples:   []Sample{sampleAt(0, fv(21.3))},
		FetchedAt: time.Now(),
	}
	metrics := newRecordingMetrics()

	service, err := NewService(ServiceConfig{
		Provider: provider,
		Cache:    newMemoryCache(),
		Logger:   zerolog.Nop(),
		Metrics:  metrics,
	})
	require.NoError(t, err)

	_, err = service.RefreshStations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.requests["stations"])
	assert.False(t, metrics.lastFailed)

	_, err = service.Series(context.Background(), 10, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.cacheMiss["measurements"])
	assert.Equal(t, 1, metrics.requests["measurements"])

	_, err = service.Series(context.Background(), 10, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.cacheHits["measurements"])
}
