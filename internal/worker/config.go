// Package worker provides background cache refresh processing for SmogWatch.
package worker

import (
	"time"
)

// RefreshConfig holds configuration for the cache refresh job.
type RefreshConfig struct {
	// Concurrency is the number of stations refreshed in parallel.
	// Default: 3
	Concurrency int

	// StationTimeout is the timeout for refreshing one station and all
	// of its sensors. Default: 30 seconds
	StationTimeout time.Duration

	// StationIDs restricts the refresh to specific stations. Empty means
	// every station in the cached station list.
	StationIDs []int

	// RefreshSeries enables refreshing measurement series alongside
	// sensor metadata. Default: true
	RefreshSeries bool
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Concurrency:    3,
		StationTimeout: 30 * time.Second,
		RefreshSeries:  true,
	}
}

// normalized returns the config with defaults applied to zero fields.
func (c RefreshConfig) normalized() RefreshConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.StationTimeout <= 0 {
		c.StationTimeout = 30 * time.Second
	}
	return c
}
