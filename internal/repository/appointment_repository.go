package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

// AppointmentFilter: фильтр списка визитов для админки.
type AppointmentFilter struct {
	ResourceID *uuid.UUID
	Statuses   []model.AppointmentStatus
	From, To   *time.Time
}

type AppointmentRepository interface {
	// Создать визит.
	Create(ctx context.Context, a *model.Appointment) error
	// Получить визит по ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	// Получить несколько визитов по ID.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Appointment, error)
	// Есть ли HELD/CONFIRMED визит ресурса, пересекающий [start, end).
	HasOverlap(ctx context.Context, resourceID uuid.UUID, start, end time.Time, exclude ...uuid.UUID) (bool, error)
	// Занятые окна ресурса, пересекающие [from, to).
	ListOccupying(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]model.Appointment, error)
	// Подтверждённые визиты ресурса, начинающиеся в [from, to).
	ListConfirmedStarting(ctx context.Context, resourceID *uuid.UUID, from, to time.Time) ([]model.Appointment, error)
	// Compare-and-swap по row_version и допустимым исходным статусам; row_version увеличивается.
	CompareAndUpdate(ctx context.Context, id uuid.UUID, expectedVersion int, from []model.AppointmentStatus, updates map[string]any) (bool, error)
	// Перевести просроченные удержания в CANCELLED/HOLD_EXPIRED.
	ExpireHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	// Список визитов с пагинацией.
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]model.Appointment, int64, error)
}

// Реализация на GORM. db может быть транзакцией.
var _ AppointmentRepository = (*GormAppointmentRepository)(nil)

type GormAppointmentRepository struct {
	db *gorm.DB
}

func NewGormAppointmentRepository(db *gorm.DB) *GormAppointmentRepository {
	return &GormAppointmentRepository{db: db}
}

func (r *GormAppointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *GormAppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAppointmentRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Appointment, error) {
	var out []model.Appointment
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("starts_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormAppointmentRepository) HasOverlap(
	ctx context.Context,
	resourceID uuid.UUID,
	start, end time.Time,
	exclude ...uuid.UUID,
) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("resource_id = ?", resourceID).
		Where("status IN ?", model.OccupyingStatuses).
		Where("starts_at < ? AND ends_at > ?", end.UTC(), start.UTC())
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *GormAppointmentRepository) ListOccupying(
	ctx context.Context,
	resourceID uuid.UUID,
	from, to time.Time,
) ([]model.Appointment, error) {
	var out []model.Appointment
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Where("status IN ?", model.OccupyingStatuses).
		Where("starts_at < ? AND ends_at > ?", to.UTC(), from.UTC()).
		Order("starts_at ASC").
		Find(&out).Error
	return out, err
}

func (r *GormAppointmentRepository) ListConfirmedStarting(
	ctx context.Context,
	resourceID *uuid.UUID,
	from, to time.Time,
) ([]model.Appointment, error) {
	q := r.db.WithContext(ctx).
		Where("status = ?", model.AppointmentStatusConfirmed).
		Where("starts_at >= ? AND starts_at < ?", from.UTC(), to.UTC())
	if resourceID != nil {
		q = q.Where("resource_id = ?", *resourceID)
	}

	var out []model.Appointment
	if err := q.Order("starts_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormAppointmentRepository) CompareAndUpdate(
	ctx context.Context,
	id uuid.UUID,
	expectedVersion int,
	from []model.AppointmentStatus,
	updates map[string]any,
) (bool, error) {
	set := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		set[k] = v
	}
	set["row_version"] = gorm.Expr("row_version + 1")

	q := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("id = ? AND row_version = ?", id, expectedVersion)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}

	res := q.Updates(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormAppointmentRepository) ExpireHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	now = now.UTC()

	var candidates []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("status = ? AND hold_expires_at IS NOT NULL AND hold_expires_at < ?", model.AppointmentStatusHeld, now).
		Order("hold_expires_at ASC").
		Pluck("id", &candidates).Error; err != nil {
		return nil, err
	}

	// Статус и срок перепроверяются в каждом UPDATE: параллельное подтверждение
	// или второй экземпляр sweeper'а не приведут к повторному изменению строки.
	var expired []uuid.UUID
	for _, id := range candidates {
		res := r.db.WithContext(ctx).
			Model(&model.Appointment{}).
			Where("id = ? AND status = ? AND hold_expires_at < ?", id, model.AppointmentStatusHeld, now).
			Updates(map[string]any{
				"status":          model.AppointmentStatusCancelled,
				"cancel_reason":   model.CancelReasonHoldExpired,
				"cancelled_at":    now,
				"hold_expires_at": nil,
				"row_version":     gorm.Expr("row_version + 1"),
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			expired = append(expired, id)
		}
	}
	return expired, nil
}

func (r *GormAppointmentRepository) List(
	ctx context.Context,
	f AppointmentFilter,
	limit, offset int,
) ([]model.Appointment, int64, error) {
	var (
		items []model.Appointment
		total int64
	)

	q := r.db.WithContext(ctx).Model(&model.Appointment{})
	if f.ResourceID != nil {
		q = q.Where("resource_id = ?", *f.ResourceID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.From != nil {
		q = q.Where("starts_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("starts_at < ?", f.To.UTC())
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("starts_at ASC").Find(&items).Error; err != nil {
		return nil, 0, err
	}

	return items, total, nil
}
