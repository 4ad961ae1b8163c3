package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

type SchedulePreviewRepository interface {
	Create(ctx context.Context, p *model.SchedulePreview) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.SchedulePreview, error)
	// Отметить план использованным; false, если он уже был использован.
	MarkConsumed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

var _ SchedulePreviewRepository = (*GormSchedulePreviewRepository)(nil)

type GormSchedulePreviewRepository struct {
	db *gorm.DB
}

func NewGormSchedulePreviewRepository(db *gorm.DB) *GormSchedulePreviewRepository {
	return &GormSchedulePreviewRepository{db: db}
}

func (r *GormSchedulePreviewRepository) Create(ctx context.Context, p *model.SchedulePreview) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *GormSchedulePreviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.SchedulePreview, error) {
	var p model.SchedulePreview
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormSchedulePreviewRepository) MarkConsumed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.SchedulePreview{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", at.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
