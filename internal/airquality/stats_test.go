package airquality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fv(v float64) *float64 {
	return &v
}

func sampleAt(hour int, value *float64) Sample {
	return Sample{
		Date:  time.Date(2024, 3, 10, hour, 0, 0, 0, time.UTC),
		Value: value,
	}
}

func TestComputeStats_MinMaxMean(t *testing.T) {
	samples := []Sample{
		sampleAt(0, fv(10)),
		sampleAt(1, fv(20)),
		sampleAt(2, fv(30)),
		sampleAt(3, fv(40)),
	}

	stats, err := ComputeStats(samples)
	require.NoError(t, err)

	assert.InDelta(t, 10, stats.Min, 0.001)
	assert.InDelta(t, 40, stats.Max, 0.001)
	assert.InDelta(t, 25, stats.Mean, 0.001)
	assert.Equal(t, 4, stats.ValidCount)
	assert.Equal(t, 4, stats.TotalCount)
}

func TestComputeStats_IgnoresNullReadings(t *testing.T) {
	samples := []Sample{
		sampleAt(0, nil),
		sampleAt(1, fv(12)),
		sampleAt(2, nil),
		sampleAt(3, fv(18)),
	}

	stats, err := ComputeStats(samples)
	require.NoError(t, err)

	assert.InDelta(t, 12, stats.Min, 0.001)
	assert.InDelta(t, 18, stats.Max, 0.001)
	assert.InDelta(t, 15, stats.Mean, 0.001)
	assert.Equal(t, 2, stats.ValidCount)
	assert.Equal(t, 4, stats.TotalCount)
}

func TestComputeStats_AllNull(t *testing.T) {
	samples := []Sample{
		sampleAt(0, nil),
		sampleAt(1, nil),
	}

	_, err := ComputeStats(samples)
	assert.ErrorIs(t, err, ErrNoMeasurements)
}

func TestComputeStats_Empty(t *testing.T) {
	_, err := ComputeStats(nil)
	assert.ErrorIs(t, err, ErrNoMeasurements)
}

func TestComputeStats_SingleValue(t *testing.T) {
	stats, err := ComputeStats([]Sample{sampleAt(0, fv(42))})
	require.NoError(t, err)

	assert.InDelta(t, 42, stats.Min, 0.001)
	assert.InDelta(t, 42, stats.Max, 0.001)
	assert.InDelta(t, 42, stats.Mean, 0.001)
	assert.Equal(t, TrendUnknown, stats.Trend)
}

func TestComputeStats_Trend(t *testing.T) {
	tests := []struct {
		name   string
		values []*float64
		want   Trend
	}{
		{
			name:   "rising",
			values: []*float64{fv(10), fv(12), fv(30), fv(35)},
			want:   TrendRising,
		},
		{
			name:   "falling",
			values: []*float64{fv(50), fv(45), fv(10), fv(8)},
			want:   TrendFalling,
		},
		{
			name:   "stable",
			values: []*float64{fv(20), fv(20), fv(20), fv(20)},
			want:   TrendStable,
		},
		{
			name:   "odd count puts extra sample in second half",
			values: []*float64{fv(10), fv(10), fv(30), fv(30), fv(30)},
			want:   TrendRising,
		},
		{
			name:   "nulls excluded from halves",
			values: []*float64{fv(10), nil, fv(12), nil, fv(40), fv(44)},
			want:   TrendRising,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([]Sample, 0, len(tt.values))
			for i, v := range tt.values {
				samples = append(samples, sampleAt(i, v))
			}

			stats, err := ComputeStats(samples)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stats.Trend)
		})
	}
}
