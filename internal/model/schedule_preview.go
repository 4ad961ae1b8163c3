package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// schedule_previews — сохранённые планы переноса, подтверждаются по хэшу.
type SchedulePreview struct {
	Base

	RouteDate   datatypes.Date `gorm:"not null;index" json:"route_date"`
	ResourceID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"resource_id"`
	PreviewHash string         `gorm:"type:varchar(64);not null" json:"preview_hash"`
	Payload     datatypes.JSON `json:"payload"`
	ExpiresAt   time.Time      `gorm:"not null" json:"expires_at"`
	ConsumedAt  *time.Time     `json:"consumed_at,omitempty"`
	CreatedBy   *uuid.UUID     `gorm:"type:uuid" json:"created_by,omitempty"`
}
