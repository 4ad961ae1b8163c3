package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/testutil"
)

func emailNotification(entityID uuid.UUID) Notification {
	return Notification{
		EntityType:  "call_request",
		EntityID:    entityID,
		TemplateKey: "OFFER_EMAIL",
		Payload: EmailPayload{
			To:       "client@example.lt",
			Subject:  "Apziuros pasiulymas",
			BodyText: "body",
		},
	}
}

func TestEnqueue_SameNotificationInsertsOnce(t *testing.T) {
	db := testutil.NewSQLite(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	n := emailNotification(uuid.New())

	first, created, err := Enqueue(ctx, db, n, now)
	if err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if !created {
		t.Fatalf("expected first enqueue to create a row")
	}

	second, created, err := Enqueue(ctx, db, n, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate enqueue to be a no-op")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing row %s, got %s", first.ID, second.ID)
	}

	var count int64
	if err := db.Model(&model.NotificationOutbox{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 row, got %d", count)
	}
}

func TestDedupeKey_DependsOnPayload(t *testing.T) {
	id := uuid.New()
	a := emailNotification(id)
	b := emailNotification(id)
	b.Payload = EmailPayload{To: "client@example.lt", Subject: "Apziuros pasiulymas", BodyText: "other"}

	ka, err := DedupeKey(a)
	if err != nil {
		t.Fatalf("key a: %v", err)
	}
	kb, err := DedupeKey(b)
	if err != nil {
		t.Fatalf("key b: %v", err)
	}
	if ka == kb {
		t.Fatalf("expected different keys for different payloads")
	}
	ka2, _ := DedupeKey(a)
	if ka != ka2 {
		t.Fatalf("dedupe key not deterministic: %q vs %q", ka, ka2)
	}
}

func TestDedupeKey_RejectsIncomplete(t *testing.T) {
	_, err := DedupeKey(Notification{TemplateKey: "X", Payload: SMSPayload{To: "1"}})
	if !errors.Is(err, ErrInvalidNotification) {
		t.Fatalf("expected ErrInvalidNotification, got %v", err)
	}
}

func TestBackoff_Ladder(t *testing.T) {
	cases := map[int]time.Duration{
		0:  60 * time.Second,
		1:  60 * time.Second,
		2:  120 * time.Second,
		3:  240 * time.Second,
		6:  1920 * time.Second,
		7:  3600 * time.Second,
		30: 3600 * time.Second,
	}
	for attempt, want := range cases {
		if got := Backoff(attempt); got != want {
			t.Fatalf("Backoff(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestClampers(t *testing.T) {
	if ClampBatchSize(0) != 50 || ClampBatchSize(500) != 200 || ClampBatchSize(7) != 7 {
		t.Fatalf("unexpected batch size clamp")
	}
	if ClampMaxAttempts(-1) != 5 || ClampMaxAttempts(99) != 20 || ClampMaxAttempts(3) != 3 {
		t.Fatalf("unexpected max attempts clamp")
	}
}

func TestDecodePayload_UnknownChannel(t *testing.T) {
	_, err := DecodePayload(model.OutboxChannel("FAX"), []byte(`{}`))
	if !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestRouter_RoutesByPayloadType(t *testing.T) {
	var got []string
	rec := func(name string) Sender {
		return SenderFunc(func(_ context.Context, _ Message) error {
			got = append(got, name)
			return nil
		})
	}
	r := &Router{Email: rec("email"), SMS: rec("sms"), WhatsApp: rec("wa")}

	for _, p := range []Payload{EmailPayload{}, SMSPayload{}, WhatsAppPayload{}} {
		if err := r.Send(context.Background(), Message{Payload: p}); err != nil {
			t.Fatalf("send %T: %v", p, err)
		}
	}
	if len(got) != 3 || got[0] != "email" || got[1] != "sms" || got[2] != "wa" {
		t.Fatalf("unexpected routing: %v", got)
	}

	err := (&Router{}).Send(context.Background(), Message{Payload: SMSPayload{}})
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error for missing sender, got %v", err)
	}
}
