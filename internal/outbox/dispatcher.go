package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/Leganyst/visit-scheduler/internal/logging"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/observability"
)

const (
	defaultLease   = 2 * time.Minute
	limiterWait    = 2 * time.Second
	sendTimeout    = 10 * time.Second
	releaseBackoff = 5 * time.Second
)

// Dispatcher забирает созревшие строки outbox и передаёт их транспорту.
type Dispatcher struct {
	Store       Store
	Sender      Sender
	Limiter     *rate.Limiter
	Breaker     *gobreaker.CircuitBreaker
	BatchSize   int
	MaxAttempts int
	Lease       time.Duration
	Now         func() time.Time
}

// RunResult: итог одного прохода.
type RunResult struct {
	Claimed  int
	Sent     int
	Retried  int
	Failed   int
	Released int
}

func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
	})
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) RunOnce(ctx context.Context) (RunResult, error) {
	var res RunResult
	lease := d.Lease
	if lease <= 0 {
		lease = defaultLease
	}

	rows, err := d.Store.Claim(ctx, d.now(), ClampBatchSize(d.BatchSize), lease)
	if err != nil {
		return res, err
	}
	res.Claimed = len(rows)

	for i := range rows {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		outcome, err := d.dispatch(ctx, &rows[i])
		if err != nil {
			return res, err
		}
		switch outcome {
		case model.OutboxStatusSent:
			res.Sent++
		case model.OutboxStatusRetry:
			res.Retried++
		case model.OutboxStatusFailed:
			res.Failed++
		default:
			res.Released++
		}
	}
	return res, nil
}

// dispatch возвращает статус строки после попытки; пустой статус означает, что строка отпущена без расхода попытки.
func (d *Dispatcher) dispatch(ctx context.Context, row *model.NotificationOutbox) (model.OutboxStatus, error) {
	log := logging.From(ctx).With("outbox_id", row.ID.String(), "channel", string(row.Channel), "attempt", row.AttemptCount)
	maxAttempts := ClampMaxAttempts(d.MaxAttempts)

	payload, err := DecodePayload(row.Channel, row.Payload)
	if err != nil {
		observability.OutboxDispatch.WithLabelValues(string(row.Channel), "invalid").Inc()
		log.Warn("outbox payload rejected", slog.Any("err", err))
		return model.OutboxStatusFailed, d.Store.MarkFailed(ctx, row.ID, err.Error())
	}

	if d.Limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, limiterWait)
		err := d.Limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			observability.OutboxDispatch.WithLabelValues(string(row.Channel), "rate_limited").Inc()
			return "", d.Store.Release(ctx, row.ID, d.now().Add(releaseBackoff))
		}
	}

	msg := Message{
		ID:          logging.NewID("msg_", d.now()),
		OutboxID:    row.ID,
		EntityType:  row.EntityType,
		EntityID:    row.EntityID,
		TemplateKey: row.TemplateKey,
		DedupeKey:   row.DedupeKey,
		Attempt:     row.AttemptCount,
		Payload:     payload,
	}

	start := time.Now()
	err = d.send(ctx, msg)
	observability.OutboxSendLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		observability.OutboxDispatch.WithLabelValues(string(row.Channel), "sent").Inc()
		return model.OutboxStatusSent, d.Store.MarkSent(ctx, row.ID, d.now())

	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		// транспорт под защитой breaker'а: попытку не тратим
		observability.OutboxDispatch.WithLabelValues(string(row.Channel), "cb_open").Inc()
		return "", d.Store.Release(ctx, row.ID, d.now().Add(releaseBackoff))

	case IsPermanent(err) || row.AttemptCount >= maxAttempts:
		observability.OutboxDispatch.WithLabelValues(string(row.Channel), "failed").Inc()
		log.Warn("outbox delivery failed", slog.Any("err", err))
		return model.OutboxStatusFailed, d.Store.MarkFailed(ctx, row.ID, err.Error())

	default:
		next := d.now().Add(Backoff(row.AttemptCount))
		observability.OutboxDispatch.WithLabelValues(string(row.Channel), "retry").Inc()
		log.Info("outbox delivery deferred", slog.Any("err", err), slog.Time("next_attempt_at", next))
		return model.OutboxStatusRetry, d.Store.MarkRetry(ctx, row.ID, next, err.Error())
	}
}

func (d *Dispatcher) send(ctx context.Context, m Message) error {
	if d.Sender == nil {
		return Permanent(errors.New("dispatcher has no sender"))
	}
	call := func() (any, error) {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		return nil, d.Sender.Send(sendCtx, m)
	}
	if d.Breaker == nil {
		_, err := call()
		return err
	}
	_, err := d.Breaker.Execute(call)
	return err
}
