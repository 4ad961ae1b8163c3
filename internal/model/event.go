package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Действия аудита.
const (
	ActionAppointmentHeld      = "APPOINTMENT_HELD"
	ActionAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	ActionAppointmentCancelled = "APPOINTMENT_CANCELLED"
	ActionAppointmentExpired   = "APPOINTMENT_EXPIRED"
	ActionAppointmentApproved  = "APPOINTMENT_DAILY_APPROVED"
	ActionScheduleDayApproved  = "SCHEDULE_DAY_APPROVED"
	ActionScheduleRescheduled  = "SCHEDULE_RESCHEDULED"
	ActionConversationTakeover = "CONVERSATION_TAKEOVER"
	ActionIntakeUpdated        = "INTAKE_UPDATED"
	ActionOfferPrepared        = "OFFER_PREPARED"
	ActionOfferSent            = "OFFER_SENT"
	ActionOfferAccepted        = "OFFER_ACCEPTED"
	ActionOfferRejected        = "OFFER_REJECTED"
	ActionAutoReplySent        = "EMAIL_AUTO_REPLY_SENT"
)

type ActorType string

const (
	ActorAdmin         ActorType = "ADMIN"
	ActorSubcontractor ActorType = "SUBCONTRACTOR"
	ActorSystem        ActorType = "SYSTEM"
	ActorSystemEmail   ActorType = "SYSTEM_EMAIL"
	ActorSystemVoice   ActorType = "SYSTEM_VOICE"
	ActorPublic        ActorType = "PUBLIC"
)

// audit_events — журнал аудита, только добавление.
type Event struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	EntityType string    `gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:1" json:"entity_type"`
	EntityID   uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_entity,priority:2" json:"entity_id"`
	Action     string    `gorm:"type:varchar(64);not null;index" json:"action"`

	OldValue datatypes.JSON `json:"old_value,omitempty"`
	NewValue datatypes.JSON `json:"new_value,omitempty"`

	ActorType ActorType  `gorm:"type:varchar(32);not null" json:"actor_type"`
	ActorID   *uuid.UUID `gorm:"type:uuid" json:"actor_id,omitempty"`
	IPAddress string     `gorm:"type:varchar(64)" json:"ip_address,omitempty"`
	UserAgent string     `gorm:"type:varchar(255)" json:"user_agent,omitempty"`

	Metadata datatypes.JSON `json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Event) TableName() string { return "audit_events" }

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
