package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/smogwatch/smogwatch/internal/airquality"
)

// RefreshJob walks the station list and refreshes the file cache: the
// station list itself, then each station's sensors, then each sensor's
// measurement series.
type RefreshJob struct {
	config  RefreshConfig
	logger  zerolog.Logger
	service *airquality.Service

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns         int64
	StationsRefreshed int64
	StationsFailed    int64
	SensorsRefreshed  int64
	SeriesRefreshed   int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config  RefreshConfig
	Logger  zerolog.Logger
	Service *airquality.Service
}

// NewRefreshJob creates a new refresh job processor.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:  cfg.Config.normalized(),
		logger:  cfg.Logger,
		service: cfg.Service,
		metrics: &RefreshMetrics{},
	}
}

// RefreshResult contains the result of one refresh run.
type RefreshResult struct {
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	TotalStations int
	Successful    int
	Failed        int
	Sensors       int
	Series        int
	Errors        []RefreshError
}

// RefreshError records a failure for one station.
type RefreshError struct {
	StationID int
	Error     string
}

// Run executes the refresh job.
func (j *RefreshJob) Run(ctx context.Context) (*RefreshResult, error) {
	startTime := time.Now()

	if err := j.service.BackupCache(); err != nil {
		j.logger.Warn().Err(err).Msg("cache backup failed, continuing refresh")
	}

	stations, err := j.service.RefreshStations(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("station list refresh failed")
		return nil, err
	}

	targets := j.selectTargets(stations)
	result := &RefreshResult{
		StartTime:     startTime,
		TotalStations: len(targets),
	}

	j.logger.Info().
		Int("total_stations", len(targets)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting cache refresh job")

	stationsChan := make(chan airquality.Station, len(targets))
	resultsChan := make(chan stationResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.refreshWorker(ctx, stationsChan, resultsChan)
		}()
	}

	for _, station := range targets {
		stationsChan <- station
	}
	close(stationsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for sr := range resultsChan {
		if sr.success {
			result.Successful++
		} else {
			result.Failed++
		}
		result.Sensors += sr.sensors
		result.Series += sr.series
		result.Errors = append(result.Errors, sr.errors...)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("sensors", result.Sensors).
		Int("series", result.Series).
		Msg("cache refresh job completed")

	return result, nil
}

// selectTargets filters the station list down to the configured IDs,
// or returns all stations when no filter is set.
func (j *RefreshJob) selectTargets(stations []airquality.Station) []airquality.Station {
	if len(j.config.StationIDs) == 0 {
		return stations
	}

	wanted := make(map[int]bool, len(j.config.StationIDs))
	for _, id := range j.config.StationIDs {
		wanted[id] = true
	}

	var targets []airquality.Station
	for _, station := range stations {
		if wanted[station.ID] {
			targets = append(targets, station)
		}
	}
	return targets
}

type stationResult struct {
	stationID int
	success   bool
	sensors   int
	series    int
	errors    []RefreshError
}

func (j *RefreshJob) refreshWorker(ctx context.Context, stations <-chan airquality.Station, results chan<- stationResult) {
	for station := range stations {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.refreshStation(ctx, station)
		}
	}
}

func (j *RefreshJob) refreshStation(ctx context.Context, station airquality.Station) stationResult {
	result := stationResult{
		stationID: station.ID,
		success:   true,
	}

	stationCtx, cancel := context.WithTimeout(ctx, j.config.StationTimeout)
	defer cancel()

	sensors, err := j.service.RefreshSensors(stationCtx, station.ID)
	if err != nil {
		result.success = false
		result.errors = append(result.errors, RefreshError{
			StationID: station.ID,
			Error:     err.Error(),
		})
		return result
	}
	result.sensors = len(sensors)
	atomic.AddInt64(&j.metrics.SensorsRefreshed, int64(len(sensors)))

	if !j.config.RefreshSeries {
		return result
	}

	for _, sensor := range sensors {
		if _, err := j.service.RefreshSeries(stationCtx, sensor.ID); err != nil {
			// Sensors without current readings are routine, only real
			// failures count against the station.
			if errors.Is(err, airquality.ErrNoMeasurements) {
				continue
			}
			result.success = false
			result.errors = append(result.errors, RefreshError{
				StationID: station.ID,
				Error:     err.Error(),
			})
			continue
		}
		result.series++
		atomic.AddInt64(&j.metrics.SeriesRefreshed, 1)
	}

	return result
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.StationsRefreshed += int64(result.Successful)
	j.metrics.StationsFailed += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:         j.metrics.TotalRuns,
		StationsRefreshed: j.metrics.StationsRefreshed,
		StationsFailed:    j.metrics.StationsFailed,
		SensorsRefreshed:  atomic.LoadInt64(&j.metrics.SensorsRefreshed),
		SeriesRefreshed:   atomic.LoadInt64(&j.metrics.SeriesRefreshed),
		LastRunAt:         j.metrics.LastRunAt,
		LastRunDuration:   j.metrics.LastRunDuration,
		TotalDuration:     j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":         m.TotalRuns,
		"stations_refreshed": m.StationsRefreshed,
		"stations_failed":    m.StationsFailed,
		"sensors_refreshed":  m.SensorsRefreshed,
		"series_refreshed":   m.SeriesRefreshed,
		"last_run_at":        m.LastRunAt,
		"last_run_duration":  m.LastRunDuration.String(),
		"total_duration":     m.TotalDuration.String(),
	}
}
