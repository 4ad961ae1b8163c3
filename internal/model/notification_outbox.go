package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type OutboxChannel string

const (
	OutboxChannelEmail    OutboxChannel = "EMAIL"
	OutboxChannelSMS      OutboxChannel = "SMS"
	OutboxChannelWhatsApp OutboxChannel = "WHATSAPP"
)

type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	OutboxStatusRetry   OutboxStatus = "RETRY"
	OutboxStatusSent    OutboxStatus = "SENT"
	OutboxStatusFailed  OutboxStatus = "FAILED"
)

// notification_outbox — очередь уведомлений; ядро только вставляет строки.
type NotificationOutbox struct {
	Base

	EntityType  string         `gorm:"type:varchar(64);not null;index:idx_outbox_entity,priority:1" json:"entity_type"`
	EntityID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_outbox_entity,priority:2" json:"entity_id"`
	Channel     OutboxChannel  `gorm:"type:varchar(16);not null" json:"channel"`
	TemplateKey string         `gorm:"type:varchar(64);not null" json:"template_key"`
	Payload     datatypes.JSON `json:"payload"`
	DedupeKey   string         `gorm:"type:varchar(255);not null;uniqueIndex" json:"dedupe_key"`

	Status        OutboxStatus `gorm:"type:varchar(16);not null;index:idx_outbox_due,priority:1" json:"status"`
	AttemptCount  int          `gorm:"not null;default:0" json:"attempt_count"`
	NextAttemptAt time.Time    `gorm:"not null;index:idx_outbox_due,priority:2" json:"next_attempt_at"`
	LastError     string       `gorm:"type:text" json:"last_error,omitempty"`
	SentAt        *time.Time   `json:"sent_at,omitempty"`
}

func (NotificationOutbox) TableName() string { return "notification_outbox" }
