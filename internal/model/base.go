package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base содержит общие колонки: UUID-ключ и метки времени.
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// BeforeCreate выставляет UUID, если он не задан вызывающим кодом.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
