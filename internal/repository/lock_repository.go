package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

type ConversationLockRepository interface {
	// Лок по ключу (channel, conversation_id).
	GetByConversation(ctx context.Context, channel model.Channel, conversationID string) (*model.ConversationLock, error)
	// Живые локи той же личности в других разговорах.
	ListLiveByIdentity(ctx context.Context, identityKey string, now time.Time, exceptChannel model.Channel, exceptConversationID string) ([]model.ConversationLock, error)
	Create(ctx context.Context, l *model.ConversationLock) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Удалить лок, привязанный к визиту (визит вышел из HELD).
	DeleteByAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error)
	// Удалить все локи с истёкшим сроком.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

var _ ConversationLockRepository = (*GormConversationLockRepository)(nil)

type GormConversationLockRepository struct {
	db *gorm.DB
}

func NewGormConversationLockRepository(db *gorm.DB) *GormConversationLockRepository {
	return &GormConversationLockRepository{db: db}
}

func (r *GormConversationLockRepository) GetByConversation(
	ctx context.Context,
	channel model.Channel,
	conversationID string,
) (*model.ConversationLock, error) {
	var l model.ConversationLock
	err := r.db.WithContext(ctx).
		Where("channel = ? AND conversation_id = ?", channel, conversationID).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *GormConversationLockRepository) ListLiveByIdentity(
	ctx context.Context,
	identityKey string,
	now time.Time,
	exceptChannel model.Channel,
	exceptConversationID string,
) ([]model.ConversationLock, error) {
	var out []model.ConversationLock
	if identityKey == "" {
		return out, nil
	}
	err := r.db.WithContext(ctx).
		Where("identity_key = ? AND hold_expires_at > ?", identityKey, now.UTC()).
		Where("NOT (channel = ? AND conversation_id = ?)", exceptChannel, exceptConversationID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *GormConversationLockRepository) Create(ctx context.Context, l *model.ConversationLock) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *GormConversationLockRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.ConversationLock{}, "id = ?", id).Error
}

func (r *GormConversationLockRepository) DeleteByAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("appointment_id = ?", appointmentID).Delete(&model.ConversationLock{})
	return res.RowsAffected, res.Error
}

func (r *GormConversationLockRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("hold_expires_at < ?", now.UTC()).Delete(&model.ConversationLock{})
	return res.RowsAffected, res.Error
}
