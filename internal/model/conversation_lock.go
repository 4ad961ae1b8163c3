package model

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelVoice Channel = "VOICE"
	ChannelChat  Channel = "CHAT"
	ChannelEmail Channel = "EMAIL"
	ChannelWeb   Channel = "WEB"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelVoice, ChannelChat, ChannelEmail, ChannelWeb:
		return true
	default:
		return false
	}
}

// conversation_locks — связывает внешний разговор (звонок, чат) с единственным живым удержанием.
type ConversationLock struct {
	Base

	Channel        Channel `gorm:"type:varchar(16);not null;uniqueIndex:uniq_conversation_lock,priority:1" json:"channel"`
	ConversationID string  `gorm:"type:varchar(128);not null;uniqueIndex:uniq_conversation_lock,priority:2" json:"conversation_id"`
	IdentityKey    string  `gorm:"type:varchar(255);index" json:"identity_key"`

	AppointmentID uuid.UUID `gorm:"type:uuid;not null;index" json:"appointment_id"`
	VisitType     VisitType `gorm:"type:varchar(32);not null" json:"visit_type"`
	HoldExpiresAt time.Time `gorm:"not null;index" json:"hold_expires_at"`
}

func (l *ConversationLock) Live(now time.Time) bool {
	return l.HoldExpiresAt.After(now)
}
