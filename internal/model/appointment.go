package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AppointmentStatus string

const (
	AppointmentStatusHeld      AppointmentStatus = "HELD"
	AppointmentStatusConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
)

// CanTransitionTo описывает допустимые переходы статусов визита.
// CANCELLED терминален: отменённый визит не воскрешается, а заменяется новым.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case AppointmentStatusHeld:
		return next == AppointmentStatusConfirmed || next == AppointmentStatusCancelled
	case AppointmentStatusConfirmed:
		return next == AppointmentStatusCancelled
	case AppointmentStatusCancelled:
		return false
	default:
		return false
	}
}

// Occupies: занимает ли визит окно в календаре ресурса.
func (s AppointmentStatus) Occupies() bool {
	return s == AppointmentStatusHeld || s == AppointmentStatusConfirmed
}

// OccupyingStatuses используется в запросах на пересечение.
var OccupyingStatuses = []AppointmentStatus{AppointmentStatusHeld, AppointmentStatusConfirmed}

type VisitType string

const (
	VisitTypePrimary      VisitType = "PRIMARY"
	VisitTypeInstallation VisitType = "INSTALLATION"
	VisitTypeMaintenance  VisitType = "MAINTENANCE"
	VisitTypeOther        VisitType = "OTHER"
)

func (v VisitType) Valid() bool {
	switch v {
	case VisitTypePrimary, VisitTypeInstallation, VisitTypeMaintenance, VisitTypeOther:
		return true
	default:
		return false
	}
}

type WeatherClass string

const (
	WeatherClassAny       WeatherClass = "ANY"
	WeatherClassSensitive WeatherClass = "WEATHER_SENSITIVE"
)

// Уровни фиксации визита. Перенос не трогает визиты с уровнем >= preserve_locked_level.
const (
	LockLevelNone      = 0
	LockLevelConfirmed = 1
	LockLevelApproved  = 2
	LockLevelManual    = 3
)

// Причины отмены и фиксации.
const (
	CancelReasonHoldExpired   = "HOLD_EXPIRED"
	CancelReasonHoldCancelled = "HOLD_CANCELLED"
	CancelReasonSuperseded    = "SUPERSEDED"
	CancelReasonClientReject  = "CLIENT_REJECT"
	CancelReasonAdmin         = "ADMIN_CANCEL"

	LockReasonHoldConfirm        = "HOLD_CONFIRM"
	LockReasonEmailOfferAccepted = "EMAIL_OFFER_ACCEPTED"
	LockReasonAdminConfirm       = "ADMIN_CONFIRM"
	LockReasonDailyBatchApprove  = "DAILY_BATCH_APPROVE"
	LockReasonReschedule         = "RESCHEDULE"
)

// appointments — визиты на ресурсе (осмотр, монтаж, обслуживание).
type Appointment struct {
	Base

	ResourceID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_appointments_resource_window,priority:1" json:"resource_id"`
	ProjectID     *uuid.UUID `gorm:"type:uuid;index" json:"project_id,omitempty"`
	CallRequestID *uuid.UUID `gorm:"type:uuid;index" json:"call_request_id,omitempty"`

	VisitType VisitType `gorm:"type:varchar(32);not null" json:"visit_type"`

	StartsAt  time.Time      `gorm:"not null;index:idx_appointments_resource_window,priority:2" json:"starts_at"`
	EndsAt    time.Time      `gorm:"not null" json:"ends_at"`
	RouteDate datatypes.Date `gorm:"index" json:"route_date"`

	Status        AppointmentStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	HoldExpiresAt *time.Time        `gorm:"index" json:"hold_expires_at,omitempty"`

	LockLevel  int        `gorm:"not null;default:0" json:"lock_level"`
	LockedAt   *time.Time `json:"locked_at,omitempty"`
	LockedBy   *uuid.UUID `gorm:"type:uuid" json:"locked_by,omitempty"`
	LockReason string     `gorm:"type:varchar(64)" json:"lock_reason,omitempty"`

	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy  *uuid.UUID `gorm:"type:uuid" json:"cancelled_by,omitempty"`
	CancelReason string     `gorm:"type:varchar(128)" json:"cancel_reason,omitempty"`

	WeatherClass   WeatherClass `gorm:"type:varchar(32);not null;default:'ANY'" json:"weather_class"`
	SupersededByID *uuid.UUID   `gorm:"type:uuid" json:"superseded_by_id,omitempty"`
	Notes          string       `gorm:"type:text" json:"notes,omitempty"`

	RowVersion int `gorm:"not null;default:1" json:"row_version"`
}

// Window возвращает интервал визита [StartsAt, EndsAt).
func (a *Appointment) Window() (time.Time, time.Time) {
	return a.StartsAt, a.EndsAt
}

// HoldLive: удержание ещё действует на момент now.
func (a *Appointment) HoldLive(now time.Time) bool {
	return a.Status == AppointmentStatusHeld && a.HoldExpiresAt != nil && a.HoldExpiresAt.After(now)
}
