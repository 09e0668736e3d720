package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smogwatch/smogwatch/internal/airquality"
)

// countingProvider counts station fetches so tests can observe runs.
type countingProvider struct {
	stubProvider
	mu      sync.Mutex
	fetches int
}

func (p *countingProvider) FetchStations(ctx context.Context) ([]airquality.Station, error) {
	p.mu.Lock()
	p.fetches++
	p.mu.Unlock()
	return p.stubProvider.FetchStations(ctx)
}

func (p *countingProvider) fetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

func TestScheduler_RunsImmediatelyAndOnTick(t *testing.T) {
	provider := &countingProvider{stubProvider: *newStubProvider()}
	provider.stations = []airquality.Station{{ID: 1, Name: "one"}}

	service, err := airquality.NewService(airquality.ServiceConfig{
		Provider: provider,
		Cache:    newStubCache(),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	job := NewRefreshJob(RefreshJobConfig{
		Config:  RefreshConfig{Concurrency: 1},
		Logger:  zerolog.Nop(),
		Service: service,
	})

	clock := clockwork.NewFakeClock()
	scheduler := NewScheduler(SchedulerConfig{
		Interval: time.Minute,
		Job:      job,
		Clock:    clock,
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- scheduler.Run(ctx)
	}()

	// The first run happens before the ticker starts.
	require.Eventually(t, func() bool {
		return provider.fetchCount() == 1
	}, time.Second, 10*time.Millisecond)

	// Advancing the clock by one interval triggers the next run.
	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return provider.fetchCount() == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	err = <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScheduler_Defaults(t *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{Logger: zerolog.Nop()})
	assert.Equal(t, 15*time.Minute, scheduler.interval)
	assert.NotNil(t, scheduler.clock)
}
