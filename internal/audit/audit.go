package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

// Actor: кто выполнил действие. ID пуст для системных и публичных действий.
type Actor struct {
	Type      model.ActorType
	ID        *uuid.UUID
	IP        string
	UserAgent string
}

func System() Actor      { return Actor{Type: model.ActorSystem} }
func SystemEmail() Actor { return Actor{Type: model.ActorSystemEmail} }
func SystemVoice() Actor { return Actor{Type: model.ActorSystemVoice} }

func Public(ip, userAgent string) Actor {
	return Actor{Type: model.ActorPublic, IP: ip, UserAgent: userAgent}
}

// IsAdmin: может ли актор трогать визиты с lock_level >= 2.
func (a Actor) IsAdmin() bool { return a.Type == model.ActorAdmin }

// Entry: событие аудита до сериализации.
type Entry struct {
	EntityType string
	EntityID   uuid.UUID
	Action     string
	Old        any
	New        any
	Actor      Actor
	Metadata   map[string]any
}

var ErrInvalidEntry = errors.New("audit: invalid entry")

// Sink принимает события аудита. tx это текущая транзакция операции:
// событие пишется вместе с изменением или не пишется вовсе.
type Sink interface {
	Append(ctx context.Context, tx *gorm.DB, e Entry) error
}

// GormSink пишет события в audit_events в той же транзакции.
type GormSink struct {
	clock func() time.Time
}

func NewGormSink() *GormSink {
	return &GormSink{clock: time.Now}
}

func (s *GormSink) Append(ctx context.Context, tx *gorm.DB, e Entry) error {
	ev, err := s.toEvent(e)
	if err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

func (s *GormSink) toEvent(e Entry) (*model.Event, error) {
	if e.EntityType == "" || e.Action == "" || e.EntityID == uuid.Nil {
		return nil, ErrInvalidEntry
	}
	actorType := e.Actor.Type
	if actorType == "" {
		actorType = model.ActorSystem
	}

	oldV, err := marshalOptional(e.Old)
	if err != nil {
		return nil, err
	}
	newV, err := marshalOptional(e.New)
	if err != nil {
		return nil, err
	}
	var meta datatypes.JSON
	if len(e.Metadata) > 0 {
		if meta, err = marshalOptional(e.Metadata); err != nil {
			return nil, err
		}
	}

	return &model.Event{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		OldValue:   oldV,
		NewValue:   newV,
		ActorType:  actorType,
		ActorID:    e.Actor.ID,
		IPAddress:  e.Actor.IP,
		UserAgent:  truncate(e.Actor.UserAgent, 255),
		Metadata:   meta,
		CreatedAt:  s.clock().UTC(),
	}, nil
}

func marshalOptional(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("audit marshal: %w", err)
	}
	return datatypes.JSON(b), nil
}

// truncate обрезает s до n байт, не разрывая многобайтовую руну.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
