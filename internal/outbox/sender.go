package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

// Message: строка outbox, подготовленная к отправке в транспорт.
type Message struct {
	ID          string
	OutboxID    uuid.UUID
	EntityType  string
	EntityID    uuid.UUID
	TemplateKey string
	DedupeKey   string
	Attempt     int
	Payload     Payload
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SenderFunc позволяет использовать функцию как Sender.
type SenderFunc func(ctx context.Context, m Message) error

func (f SenderFunc) Send(ctx context.Context, m Message) error { return f(ctx, m) }

// PermanentError: ошибка, после которой повторять отправку бессмысленно.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Router выбирает транспорт по типу содержимого.
type Router struct {
	Email    Sender
	SMS      Sender
	WhatsApp Sender
}

func (r *Router) Send(ctx context.Context, m Message) error {
	var s Sender
	switch m.Payload.(type) {
	case EmailPayload:
		s = r.Email
	case SMSPayload:
		s = r.SMS
	case WhatsAppPayload:
		s = r.WhatsApp
	default:
		return Permanent(fmt.Errorf("%w: %T", ErrUnknownChannel, m.Payload))
	}
	if s == nil {
		return Permanent(fmt.Errorf("no sender configured for %s", channelOf(m.Payload)))
	}
	return s.Send(ctx, m)
}

func channelOf(p Payload) model.OutboxChannel {
	if p == nil {
		return ""
	}
	return p.Channel()
}
