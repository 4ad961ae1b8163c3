package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestClampInterval(t *testing.T) {
	if got := ClampInterval(time.Second, SweepMinInterval, SweepMaxInterval); got != 15*time.Second {
		t.Fatalf("expected lower bound, got %v", got)
	}
	if got := ClampInterval(time.Hour, SweepMinInterval, SweepMaxInterval); got != 300*time.Second {
		t.Fatalf("expected upper bound, got %v", got)
	}
	if got := ClampInterval(time.Minute, SweepMinInterval, SweepMaxInterval); got != time.Minute {
		t.Fatalf("expected unchanged, got %v", got)
	}
}

func TestNewSweepLoop_Bounds(t *testing.T) {
	l := NewSweepLoop(2*time.Second, func(context.Context) error { return nil })
	if l.Interval != 15*time.Second {
		t.Fatalf("interval = %v", l.Interval)
	}
	if l.ErrorBackoff != 15*time.Second {
		t.Fatalf("error backoff = %v", l.ErrorBackoff)
	}

	l = NewSweepLoop(10*time.Minute, func(context.Context) error { return nil })
	if l.Interval != 300*time.Second || l.ErrorBackoff != 60*time.Second {
		t.Fatalf("unexpected bounds: %v / %v", l.Interval, l.ErrorBackoff)
	}
}

func TestLoop_SurvivesErrorsAndPanics(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := &Loop{
		Name:           "test",
		Interval:       time.Millisecond,
		ErrorBackoff:   time.Millisecond,
		RunImmediately: true,
		Tick: func(context.Context) error {
			n := calls.Add(1)
			switch n {
			case 1:
				return errors.New("store unavailable")
			case 2:
				panic("boom")
			case 4:
				cancel()
			}
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}
	if calls.Load() < 4 {
		t.Fatalf("expected loop to keep ticking after failures, got %d calls", calls.Load())
	}
}
