package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

var dueStatuses = []model.OutboxStatus{model.OutboxStatusPending, model.OutboxStatusRetry}

// GormStore: реализация Store на GORM (SQLite в разработке, Postgres при запуске внутри API).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]model.NotificationOutbox, error) {
	now = now.UTC()
	var claimed []model.NotificationOutbox

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status IN ? AND next_attempt_at <= ?", dueStatuses, now).
			Order("next_attempt_at ASC").
			Limit(ClampBatchSize(limit))
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var due []model.NotificationOutbox
		if err := q.Find(&due).Error; err != nil {
			return err
		}

		for _, row := range due {
			res := tx.Model(&model.NotificationOutbox{}).
				Where("id = ? AND attempt_count = ?", row.ID, row.AttemptCount).
				Updates(map[string]any{
					"attempt_count":   gorm.Expr("attempt_count + 1"),
					"next_attempt_at": now.Add(lease),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				row.AttemptCount++
				row.NextAttemptAt = now.Add(lease)
				claimed = append(claimed, row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("outbox claim: %w", err)
	}
	return claimed, nil
}

func (s *GormStore) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.update(ctx, id, map[string]any{
		"status":     model.OutboxStatusSent,
		"sent_at":    at.UTC(),
		"last_error": "",
	})
}

func (s *GormStore) MarkRetry(ctx context.Context, id uuid.UUID, nextAt time.Time, lastErr string) error {
	return s.update(ctx, id, map[string]any{
		"status":          model.OutboxStatusRetry,
		"next_attempt_at": nextAt.UTC(),
		"last_error":      truncateError(lastErr),
	})
}

func (s *GormStore) MarkFailed(ctx context.Context, id uuid.UUID, lastErr string) error {
	return s.update(ctx, id, map[string]any{
		"status":     model.OutboxStatusFailed,
		"last_error": truncateError(lastErr),
	})
}

func (s *GormStore) Release(ctx context.Context, id uuid.UUID, nextAt time.Time) error {
	return s.update(ctx, id, map[string]any{
		"attempt_count":   gorm.Expr("CASE WHEN attempt_count > 0 THEN attempt_count - 1 ELSE 0 END"),
		"next_attempt_at": nextAt.UTC(),
	})
}

func (s *GormStore) update(ctx context.Context, id uuid.UUID, set map[string]any) error {
	err := s.db.WithContext(ctx).
		Model(&model.NotificationOutbox{}).
		Where("id = ?", id).
		Updates(set).Error
	if err != nil {
		return fmt.Errorf("outbox update %s: %w", id, err)
	}
	return nil
}
