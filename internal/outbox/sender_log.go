package outbox

import (
	"context"
	"log/slog"
)

// LogSender пишет уведомление в лог вместо отправки (локальная разработка).
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, m Message) error {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	attrs := []any{
		"outbox_id", m.OutboxID.String(),
		"channel", string(channelOf(m.Payload)),
		"template", m.TemplateKey,
		"entity", m.EntityType + ":" + m.EntityID.String(),
		"attempt", m.Attempt,
	}
	switch p := m.Payload.(type) {
	case EmailPayload:
		attrs = append(attrs, "to", p.To, "subject", p.Subject, "has_ics", p.ICS != "")
	case SMSPayload:
		attrs = append(attrs, "to", p.To)
	case WhatsAppPayload:
		attrs = append(attrs, "to", p.To)
	}
	l.InfoContext(ctx, "notification delivered to log", attrs...)
	return nil
}
