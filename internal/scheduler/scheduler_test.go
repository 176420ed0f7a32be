package scheduler_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/medscriba/medscriba/internal/observe"
	"github.com/medscriba/medscriba/internal/scheduler"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestRunExecutesJobImmediately(t *testing.T) {
	s := scheduler.New(testMetrics(t))

	ran := make(chan struct{})
	var once sync.Once
	s.Add(scheduler.Job{
		Name:     "immediate",
		Interval: time.Hour,
		Run: func(context.Context) error {
			once.Do(func() { close(ran) })
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run within 5s of scheduler start")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunTicksOnInterval(t *testing.T) {
	s := scheduler.New(testMetrics(t))

	var runs atomic.Int64
	s.Add(scheduler.Job{
		Name:     "ticker",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	if got := runs.Load(); got < 2 {
		t.Errorf("job ran %d time(s) in 200ms at a 10ms interval, want at least 2", got)
	}
}

func TestJobErrorDoesNotStopScheduler(t *testing.T) {
	s := scheduler.New(testMetrics(t))

	var runs atomic.Int64
	s.Add(scheduler.Job{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("boom")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	if got := runs.Load(); got < 2 {
		t.Errorf("failing job ran %d time(s), want at least 2 (errors must not stop the loop)", got)
	}
}

func TestTriggerJoinsInFlightRun(t *testing.T) {
	s := scheduler.New(testMetrics(t))

	var active, maxActive atomic.Int64
	block := make(chan struct{})
	s.Add(scheduler.Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(context.Context) error {
			n := active.Add(1)
			defer active.Add(-1)
			for {
				old := maxActive.Load()
				if n <= old || maxActive.CompareAndSwap(old, n) {
					break
				}
			}
			<-block
			return nil
		},
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Trigger(ctx, "slow")
		}()
	}

	// Give the triggers time to pile up, then release the single run.
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	if got := maxActive.Load(); got != 1 {
		t.Errorf("max concurrent runs = %d, want 1 (runs must be single-flighted)", got)
	}
}

func TestTriggerUnknownJob(t *testing.T) {
	s := scheduler.New(testMetrics(t))
	err := s.Trigger(context.Background(), "nope")
	if err == nil {
		t.Fatal("Trigger accepted an unknown job name")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error %q does not name the job", err)
	}
}

func TestTriggerPropagatesJobError(t *testing.T) {
	s := scheduler.New(testMetrics(t))
	sentinel := errors.New("job blew up")
	s.Add(scheduler.Job{
		Name:     "broken",
		Interval: time.Hour,
		Run:      func(context.Context) error { return sentinel },
	})

	err := s.Trigger(context.Background(), "broken")
	if !errors.Is(err, sentinel) {
		t.Errorf("Trigger returned %v, want wrapped sentinel", err)
	}
}
