package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Leganyst/visit-scheduler/internal/logging"
	"github.com/Leganyst/visit-scheduler/internal/observability"
)

// Границы интервалов фоновых задач.
const (
	SweepMinInterval  = 15 * time.Second
	SweepMaxInterval  = 300 * time.Second
	OutboxMinInterval = 5 * time.Second
	OutboxMaxInterval = 300 * time.Second

	minErrorBackoff = 10 * time.Second
	maxErrorBackoff = 60 * time.Second
)

// ClampInterval ограничивает d отрезком [lo, hi].
func ClampInterval(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// TickFunc: одна итерация фоновой задачи.
type TickFunc func(ctx context.Context) error

// Loop периодически вызывает Tick. Ошибка или паника тика логируется,
// следующий тик выполняется после ErrorBackoff; цикл завершается только по ctx.
type Loop struct {
	Name         string
	Interval     time.Duration
	ErrorBackoff time.Duration
	Tick         TickFunc

	// RunImmediately: выполнить первый тик сразу, не дожидаясь интервала.
	RunImmediately bool
}

// NewSweepLoop: цикл очистки просроченных удержаний.
func NewSweepLoop(interval time.Duration, tick TickFunc) *Loop {
	interval = ClampInterval(interval, SweepMinInterval, SweepMaxInterval)
	return &Loop{
		Name:           "hold_expiry",
		Interval:       interval,
		ErrorBackoff:   ClampInterval(interval, minErrorBackoff, maxErrorBackoff),
		Tick:           tick,
		RunImmediately: true,
	}
}

// NewOutboxLoop: цикл диспетчера уведомлений.
func NewOutboxLoop(interval time.Duration, tick TickFunc) *Loop {
	interval = ClampInterval(interval, OutboxMinInterval, OutboxMaxInterval)
	return &Loop{
		Name:           "outbox_dispatch",
		Interval:       interval,
		ErrorBackoff:   ClampInterval(interval, minErrorBackoff, maxErrorBackoff),
		Tick:           tick,
		RunImmediately: true,
	}
}

func (l *Loop) Run(ctx context.Context) {
	log := logging.From(ctx).With("loop", l.Name)
	log.Info("loop started", slog.Duration("interval", l.Interval))
	defer log.Info("loop stopped")

	wait := l.Interval
	if l.RunImmediately {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := l.Interval
		if err := l.runTick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			observability.SweepRuns.WithLabelValues(l.Name, "error").Inc()
			log.Error("loop tick failed", slog.Any("err", err), slog.Duration("retry_in", l.ErrorBackoff))
			next = l.ErrorBackoff
		} else {
			observability.SweepRuns.WithLabelValues(l.Name, "ok").Inc()
		}
		timer.Reset(next)
	}
}

func (l *Loop) runTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s tick: %v", l.Name, r)
		}
	}()
	return l.Tick(ctx)
}
