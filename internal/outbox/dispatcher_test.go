package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/testutil"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []Message
}

func (f *fakeSender) Send(_ context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func loadRow(t *testing.T, db *gorm.DB, id uuid.UUID) model.NotificationOutbox {
	t.Helper()
	var row model.NotificationOutbox
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		t.Fatalf("load outbox row: %v", err)
	}
	return row
}

func TestDispatcher_SendsDueRows(t *testing.T) {
	db := testutil.NewSQLite(t)
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	row, _, err := Enqueue(ctx, db, emailNotification(uuid.New()), clock.Now())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	sender := &fakeSender{}
	d := &Dispatcher{Store: NewGormStore(db), Sender: sender, Now: clock.Now}

	res, err := d.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Claimed != 1 || res.Sent != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.DedupeKey != row.DedupeKey || msg.Attempt != 1 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if _, ok := msg.Payload.(EmailPayload); !ok {
		t.Fatalf("expected EmailPayload, got %T", msg.Payload)
	}

	got := loadRow(t, db, row.ID)
	if got.Status != model.OutboxStatusSent || got.SentAt == nil {
		t.Fatalf("expected SENT with sent_at, got %s", got.Status)
	}

	res, err = d.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Claimed != 0 {
		t.Fatalf("sent row claimed again: %+v", res)
	}
}

func TestDispatcher_RetryThenFail(t *testing.T) {
	db := testutil.NewSQLite(t)
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	row, _, err := Enqueue(ctx, db, emailNotification(uuid.New()), clock.Now())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	sender := &fakeSender{err: errors.New("gateway unavailable")}
	d := &Dispatcher{Store: NewGormStore(db), Sender: sender, MaxAttempts: 2, Now: clock.Now}

	res, err := d.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Retried != 1 {
		t.Fatalf("expected retry, got %+v", res)
	}
	got := loadRow(t, db, row.ID)
	if got.Status != model.OutboxStatusRetry || got.AttemptCount != 1 {
		t.Fatalf("expected RETRY after 1 attempt, got %s/%d", got.Status, got.AttemptCount)
	}
	if want := clock.Now().Add(60 * time.Second); !got.NextAttemptAt.Equal(want) {
		t.Fatalf("next_attempt_at = %v, want %v", got.NextAttemptAt, want)
	}

	// до срока строка не берётся
	if res, _ := d.RunOnce(ctx); res.Claimed != 0 {
		t.Fatalf("row claimed before backoff elapsed: %+v", res)
	}

	clock.Advance(61 * time.Second)
	res, err = d.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("expected failure on last attempt, got %+v", res)
	}
	got = loadRow(t, db, row.ID)
	if got.Status != model.OutboxStatusFailed || got.LastError == "" {
		t.Fatalf("expected FAILED with last_error, got %s %q", got.Status, got.LastError)
	}
}

func TestDispatcher_PermanentErrorFailsImmediately(t *testing.T) {
	db := testutil.NewSQLite(t)
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	row, _, err := Enqueue(ctx, db, emailNotification(uuid.New()), clock.Now())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	d := &Dispatcher{
		Store:  NewGormStore(db),
		Sender: &fakeSender{err: Permanent(errors.New("bad address"))},
		Now:    clock.Now,
	}
	if _, err := d.RunOnce(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := loadRow(t, db, row.ID); got.Status != model.OutboxStatusFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
}
