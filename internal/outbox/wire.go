package outbox

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/Leganyst/visit-scheduler/internal/awsutil"
	"github.com/Leganyst/visit-scheduler/internal/config"
)

// NewSender выбирает транспорт: SQS при заданной очереди, иначе лог.
func NewSender(ctx context.Context, cfg config.OutboxConfig, aws config.AWSConfig, logger *slog.Logger) (Sender, error) {
	if cfg.SQSQueueURL == "" {
		s := &LogSender{Logger: logger}
		return &Router{Email: s, SMS: s, WhatsApp: s}, nil
	}
	client, err := awsutil.NewSQSClient(ctx, aws.Region, aws.LocalstackEndpoint)
	if err != nil {
		return nil, fmt.Errorf("sqs client: %w", err)
	}
	s := &SQSSender{SQS: client, QueueURL: cfg.SQSQueueURL}
	return &Router{Email: s, SMS: s, WhatsApp: s}, nil
}

func NewDispatcher(store Store, sender Sender, cfg config.OutboxConfig) *Dispatcher {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Dispatcher{
		Store:       store,
		Sender:      sender,
		Limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		Breaker:     NewBreaker("outbox-sender"),
		BatchSize:   cfg.BatchSize,
		MaxAttempts: cfg.MaxAttempts,
	}
}
