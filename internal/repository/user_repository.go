package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// Самый ранний активный ADMIN/SUBCONTRACTOR.
	FirstActiveResource(ctx context.Context) (*model.User, error)
	// Активные ресурсы, способные работать в плохую погоду.
	ListWeatherResistant(ctx context.Context) ([]model.User, error)
	Create(ctx context.Context, u *model.User) error
}

var _ UserRepository = (*GormUserRepository)(nil)

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// NormalizePhone оставляет только цифры; используется и как ключ личности разговора.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	b := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		c := phone[i]
		if c >= '0' && c <= '9' {
			b = append(b, c)
		}
	}
	return string(b)
}

func (r *GormUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) FirstActiveResource(ctx context.Context) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND role IN ?", true, []model.UserRole{model.UserRoleAdmin, model.UserRoleSubcontractor}).
		Order("created_at ASC").
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) ListWeatherResistant(ctx context.Context) ([]model.User, error) {
	var out []model.User
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND weather_resistant = ? AND role IN ?", true, true,
			[]model.UserRole{model.UserRoleAdmin, model.UserRoleSubcontractor}).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *GormUserRepository) Create(ctx context.Context, u *model.User) error {
	u.Phone = NormalizePhone(u.Phone)
	return r.db.WithContext(ctx).Create(u).Error
}
