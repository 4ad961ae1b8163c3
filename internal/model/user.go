package model

import "time"

type UserRole string

const (
	UserRoleAdmin         UserRole = "ADMIN"
	UserRoleSubcontractor UserRole = "SUBCONTRACTOR"
	UserRoleClient        UserRole = "CLIENT"
)

// IsResource: может ли пользователь с этой ролью получать визиты в календарь.
func (r UserRole) IsResource() bool {
	switch r {
	case UserRoleAdmin, UserRoleSubcontractor:
		return true
	default:
		return false
	}
}

// users — сотрудники и подрядчики; активные ADMIN/SUBCONTRACTOR являются ресурсами календаря.
type User struct {
	Base

	DisplayName string   `gorm:"type:varchar(255)" json:"display_name"`
	Phone       string   `gorm:"type:varchar(32);index" json:"phone"`
	Email       string   `gorm:"type:varchar(255);index" json:"email"`
	Role        UserRole `gorm:"type:varchar(32);not null;index" json:"role"`
	IsActive    bool     `gorm:"not null" json:"is_active"`

	// Может работать в плохую погоду (крытые/технические работы).
	WeatherResistant bool `gorm:"not null;default:false" json:"weather_resistant"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}
