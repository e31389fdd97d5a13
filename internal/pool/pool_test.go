package pool

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := New("bad", size)
		assert.ErrorIs(t, err, ErrInvalidSize)
	}
}

// more jobs than workers all complete, and never more than size run at once
func TestPoolRunsEveryJob(t *testing.T) {
	p, err := New("test", 4)
	require.NoError(t, err)
	defer p.Stop()

	const numJobs = 32
	var (
		wg       sync.WaitGroup
		running  atomic.Int32
		peak     atomic.Int32
		finished atomic.Int32
	)

	wg.Add(numJobs)
	for range numJobs {
		require.NoError(t, p.Submit(func() error {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			finished.Add(1)
			return nil
		}))
	}

	wg.Wait()
	assert.Equal(t, int32(numJobs), finished.Load())
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.Equal(t, 4, p.Size())
}

func TestPoolSingleWorkerIsFIFO(t *testing.T) {
	p, err := New("fifo", 1)
	require.NoError(t, err)

	var order []int
	for i := range 10 {
		require.NoError(t, p.Submit(func() error {
			order = append(order, i)
			return nil
		}))
	}

	p.Stop()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestPoolRecoversPanics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	// a single worker: if the panic killed it nothing else would run
	p, err := New("panicky", 1, WithLogger(logger), WithMeter(mp.Meter("test")))
	require.NoError(t, err)

	done := make(chan struct{})
	require.NoError(t, p.Submit(func() error { panic("boom") }))
	require.NoError(t, p.Submit(func() error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
	p.Stop()

	assert.Contains(t, logs.String(), "job panicked")
	assert.Contains(t, logs.String(), "boom")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), sums["filedrop.pool.panics"])
	assert.Equal(t, int64(0), sums["filedrop.pool.queued"])
}

func TestPoolLogsJobErrors(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	p, err := New("errors", 2, WithLogger(logger))
	require.NoError(t, err)

	require.NoError(t, p.Submit(func() error { return errors.New("write: broken pipe") }))
	p.Stop()

	assert.Contains(t, logs.String(), "job failed")
	assert.Contains(t, logs.String(), "broken pipe")
	assert.Contains(t, logs.String(), "pool=errors")
}

func TestPoolSaturatedQueueWaits(t *testing.T) {
	p, err := New("saturated", 1, WithQueueSize(0))
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func() error {
		close(started)
		<-release
		return nil
	}))
	<-started

	var ran atomic.Bool
	submitted := make(chan error, 1)
	go func() {
		submitted <- p.Submit(func() error {
			ran.Store(true)
			return nil
		})
	}()

	// the only worker is busy and the queue has no room
	select {
	case <-submitted:
		t.Fatal("submit should wait while the pool is saturated")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-submitted)
	p.Stop()
	assert.True(t, ran.Load())
}

func TestPoolSubmitAfterStop(t *testing.T) {
	p, err := New("stopped", 2)
	require.NoError(t, err)

	p.Stop()
	p.Stop()

	assert.ErrorIs(t, p.Submit(func() error { return nil }), ErrClosed)
}
