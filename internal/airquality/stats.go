package airquality

// Trend describes the direction of a measurement series, determined by
// comparing the mean of the first half of the valid readings against the
// mean of the second half.
type Trend string

const (
	TrendRising  Trend = "RISING"
	TrendFalling Trend = "FALLING"
	TrendStable  Trend = "STABLE"
	TrendUnknown Trend = "UNKNOWN"
)

// SeriesStats holds summary statistics over the valid readings of a series.
type SeriesStats struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Mean       float64 `json:"mean"`
	Trend      Trend   `json:"trend"`
	ValidCount int     `json:"validCount"`
	TotalCount int     `json:"totalCount"`
}

// ComputeStats calculates min, max, mean and trend over the non-nil readings
// of a series. Nil readings count toward TotalCount only. A series with no
// valid readings returns ErrNoMeasurements.
func ComputeStats(samples []Sample) (*SeriesStats, error) {
	stats := &SeriesStats{
		TotalCount: len(samples),
		Trend:      TrendUnknown,
	}

	var sum float64
	var values []float64
	for _, sample := range samples {
		if sample.Value == nil {
			continue
		}
		v := *sample.Value
		if len(values) == 0 || v < stats.Min {
			stats.Min = v
		}
		if len(values) == 0 || v > stats.Max {
			stats.Max = v
		}
		sum += v
		values = append(values, v)
	}

	if len(values) == 0 {
		return nil, ErrNoMeasurements
	}

	stats.ValidCount = len(values)
	stats.Mean = sum / float64(len(values))
	stats.Trend = computeTrend(values)
	return stats, nil
}

// computeTrend compares the mean of the first half against the mean of the
// second half. With integer halving the second half may be one reading
// longer; fewer than two readings give no trend.
func computeTrend(values []float64) Trend {
	size := len(values)
	if size < 2 {
		return TrendUnknown
	}

	half := size / 2
	var sumFirst, sumLast float64
	for i := 0; i < half; i++ {
		sumFirst += values[i]
	}
	for i := half; i < size; i++ {
		sumLast += values[i]
	}

	avgFirst := sumFirst / float64(half)
	avgLast := sumLast / float64(size-half)

	switch {
	case avgLast > avgFirst:
		return TrendRising
	case avgLast < avgFirst:
		return TrendFalling
	default:
		return TrendStable
	}
}
