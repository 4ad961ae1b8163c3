package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

// Store: хранилище, из которого диспетчер забирает строки.
// Claim атомарно увеличивает attempt_count и сдвигает next_attempt_at на lease,
// поэтому строку, взятую упавшим диспетчером, позже подберёт другой.
type Store interface {
	Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]model.NotificationOutbox, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkRetry(ctx context.Context, id uuid.UUID, nextAt time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastErr string) error
	// Release возвращает строку в очередь без расхода попытки (лимитер, открытый breaker).
	Release(ctx context.Context, id uuid.UUID, nextAt time.Time) error
}

const maxErrorLen = 1000

func truncateError(s string) string {
	if len(s) <= maxErrorLen {
		return s
	}
	return s[:maxErrorLen]
}
