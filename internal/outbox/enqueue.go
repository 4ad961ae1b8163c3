package outbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/observability"
)

// Notification: логическое уведомление до вставки в outbox.
type Notification struct {
	EntityType  string
	EntityID    uuid.UUID
	TemplateKey string
	Payload     Payload
}

var ErrInvalidNotification = errors.New("outbox: invalid notification")

func (n Notification) validate() error {
	if n.EntityType == "" || n.EntityID == uuid.Nil || n.TemplateKey == "" || n.Payload == nil {
		return ErrInvalidNotification
	}
	return nil
}

// DedupeKey детерминированно выводится из канала, шаблона, сущности и содержимого.
// json.Marshal стабилен: поля структур в порядке объявления, ключи map отсортированы.
func DedupeKey(n Notification) (string, error) {
	if err := n.validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(n.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		n.Payload.Channel(), n.TemplateKey, n.EntityType, n.EntityID, hex.EncodeToString(sum[:])[:16]), nil
}

// Enqueue вставляет уведомление в outbox в переданной транзакции.
// Повторная вставка того же уведомления ничего не меняет: created=false и возвращается существующая строка.
func Enqueue(ctx context.Context, tx *gorm.DB, n Notification, now time.Time) (*model.NotificationOutbox, bool, error) {
	key, err := DedupeKey(n)
	if err != nil {
		return nil, false, err
	}
	raw, err := json.Marshal(n.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("marshal payload: %w", err)
	}

	row := &model.NotificationOutbox{
		EntityType:    n.EntityType,
		EntityID:      n.EntityID,
		Channel:       n.Payload.Channel(),
		TemplateKey:   n.TemplateKey,
		Payload:       datatypes.JSON(raw),
		DedupeKey:     key,
		Status:        model.OutboxStatusPending,
		NextAttemptAt: now.UTC(),
	}

	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return nil, false, fmt.Errorf("outbox insert: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		observability.OutboxEnqueue.WithLabelValues(string(row.Channel), "created").Inc()
		return row, true, nil
	}

	var existing model.NotificationOutbox
	if err := tx.WithContext(ctx).First(&existing, "dedupe_key = ?", key).Error; err != nil {
		return nil, false, fmt.Errorf("outbox lookup %s: %w", key, err)
	}
	observability.OutboxEnqueue.WithLabelValues(string(row.Channel), "duplicate").Inc()
	return &existing, false, nil
}
