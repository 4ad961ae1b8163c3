package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSAPI: часть клиента SQS, нужная отправителю.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSender публикует уведомления в очередь, которую читают шлюзы email/SMS/WhatsApp.
type SQSSender struct {
	SQS      SQSAPI
	QueueURL string
}

type envelope struct {
	ID          string  `json:"id"`
	OutboxID    string  `json:"outboxId"`
	Channel     string  `json:"channel"`
	TemplateKey string  `json:"templateKey"`
	EntityType  string  `json:"entityType"`
	EntityID    string  `json:"entityId"`
	Attempt     int     `json:"attempt"`
	Payload     Payload `json:"payload"`
}

func (s *SQSSender) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(envelope{
		ID:          m.ID,
		OutboxID:    m.OutboxID.String(),
		Channel:     string(channelOf(m.Payload)),
		TemplateKey: m.TemplateKey,
		EntityType:  m.EntityType,
		EntityID:    m.EntityID.String(),
		Attempt:     m.Attempt,
		Payload:     m.Payload,
	})
	if err != nil {
		return Permanent(fmt.Errorf("marshal envelope: %w", err))
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    &s.QueueURL,
		MessageBody: str(string(body)),
	}
	// FIFO: порядок в пределах сущности, дедупликация по ключу outbox
	if strings.HasSuffix(s.QueueURL, ".fifo") {
		in.MessageGroupId = str(m.EntityType + ":" + m.EntityID.String())
		in.MessageDeduplicationId = str(dedupeID(m.DedupeKey))
	}

	if _, err := s.SQS.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

// SQS ограничивает MessageDeduplicationId 128 символами.
func dedupeID(key string) string {
	if len(key) <= 128 {
		return key
	}
	return key[len(key)-128:]
}

func str(s string) *string { return &s }
