package outbox

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Leganyst/visit-scheduler/internal/model"
)

var ErrUnknownChannel = errors.New("outbox: unknown channel")

// Payload: закрытое множество типов содержимого уведомления.
// Новый канал добавляется новым типом и веткой в Router.Send.
type Payload interface {
	Channel() model.OutboxChannel
	isPayload()
}

type EmailPayload struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	BodyText string            `json:"body_text"`
	ReplyTo  string            `json:"reply_to,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	// Приглашение text/calendar, если письмо его несёт.
	ICS string `json:"ics,omitempty"`
}

type SMSPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type WhatsAppPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (EmailPayload) Channel() model.OutboxChannel    { return model.OutboxChannelEmail }
func (SMSPayload) Channel() model.OutboxChannel      { return model.OutboxChannelSMS }
func (WhatsAppPayload) Channel() model.OutboxChannel { return model.OutboxChannelWhatsApp }

func (EmailPayload) isPayload()    {}
func (SMSPayload) isPayload()      {}
func (WhatsAppPayload) isPayload() {}

// DecodePayload восстанавливает типизированное содержимое строки outbox.
func DecodePayload(ch model.OutboxChannel, raw []byte) (Payload, error) {
	switch ch {
	case model.OutboxChannelEmail:
		var p EmailPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode email payload: %w", err)
		}
		return p, nil
	case model.OutboxChannelSMS:
		var p SMSPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode sms payload: %w", err)
		}
		return p, nil
	case model.OutboxChannelWhatsApp:
		var p WhatsAppPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode whatsapp payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
}
