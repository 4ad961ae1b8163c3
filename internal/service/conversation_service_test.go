package service

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/model"
)

func acquire(t *testing.T, e *testEnv, convID, identity string) *AcquireResult {
	t.Helper()
	cr, err := e.intake.CreateCallRequest(context.Background(), CallRequestInput{Phone: identity, Source: model.CallRequestSourceVoice})
	if err != nil {
		t.Fatalf("create call request: %v", err)
	}
	res, err := e.conv.AcquireOrReprompt(context.Background(), AcquireRequest{
		Channel:        model.ChannelVoice,
		ConversationID: convID,
		IdentityKey:    IdentityKey(identity, ""),
		CallRequestID:  &cr.ID,
		Actor:          audit.SystemVoice(),
	})
	if err != nil {
		t.Fatalf("acquire %s: %v", convID, err)
	}
	return res
}

func TestAcquireOrReprompt_RepromptsSameHold(t *testing.T) {
	e := newTestEnv(t)

	first := acquire(t, e, "CA1", "+37060000001")
	if !first.IsNew {
		t.Fatalf("expected first acquire to create a hold")
	}
	if !first.Appointment.StartsAt.Equal(at(2, 10)) {
		t.Fatalf("expected earliest candidate 10:00, got %s", first.Appointment.StartsAt)
	}

	second := acquire(t, e, "CA1", "+37060000001")
	if second.IsNew {
		t.Fatalf("expected re-prompt, got a new hold")
	}
	if second.Appointment.ID != first.Appointment.ID {
		t.Fatalf("re-prompt must return the same appointment")
	}
	if n := e.count(t, &model.ConversationLock{}, ""); n != 1 {
		t.Fatalf("expected 1 lock, got %d", n)
	}
	if n := e.count(t, &model.Appointment{}, "status = ?", model.AppointmentStatusHeld); n != 1 {
		t.Fatalf("expected 1 held appointment, got %d", n)
	}
}

func TestAcquireOrReprompt_TakeoverSupersedesOtherConversation(t *testing.T) {
	e := newTestEnv(t)

	first := acquire(t, e, "CA1", "+37060000001")
	second := acquire(t, e, "CA2", "+37060000001")

	if len(second.Superseded) != 1 || second.Superseded[0] != first.Appointment.ID {
		t.Fatalf("expected takeover of %s, got %v", first.Appointment.ID, second.Superseded)
	}
	old := e.reload(t, first.Appointment.ID)
	if old.Status != model.AppointmentStatusCancelled || old.CancelReason != model.CancelReasonSuperseded {
		t.Fatalf("expected superseded hold cancelled, got %s/%s", old.Status, old.CancelReason)
	}
	if n := e.count(t, &model.ConversationLock{}, ""); n != 1 {
		t.Fatalf("expected only the new conversation lock, got %d", n)
	}
	// Освободившееся окно снова доступно.
	if !second.Appointment.StartsAt.Equal(at(2, 10)) {
		t.Fatalf("expected takeover to reuse 10:00, got %s", second.Appointment.StartsAt)
	}

	found := false
	for _, a := range e.sink.Actions() {
		if a == model.ActionConversationTakeover {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s audit entry, got %v", model.ActionConversationTakeover, e.sink.Actions())
	}
}

func TestAcquireOrReprompt_ExpiredLockGetsNewHold(t *testing.T) {
	e := newTestEnv(t)

	first := acquire(t, e, "CA1", "+37060000001")
	e.clock.Advance(6 * time.Minute)
	second := acquire(t, e, "CA1", "+37060000001")

	if !second.IsNew || second.Appointment.ID == first.Appointment.ID {
		t.Fatalf("expected a new hold after expiry")
	}
	if n := e.count(t, &model.ConversationLock{}, ""); n != 1 {
		t.Fatalf("expected 1 lock, got %d", n)
	}
}

func TestAcquireOrReprompt_NoSlots(t *testing.T) {
	e := newTestEnv(t)
	empty := ProposerFunc(func(context.Context, *gorm.DB) ([]Slot, error) { return nil, nil })

	_, err := e.conv.AcquireOrReprompt(context.Background(), AcquireRequest{
		Channel:        model.ChannelChat,
		ConversationID: "chat-1",
		ProjectID:      &e.resource,
		Proposer:       empty,
	})
	if apperr.CodeOf(err) != apperr.CodeNoSlots {
		t.Fatalf("expected NO_SLOTS, got %v", err)
	}
	if n := e.count(t, &model.ConversationLock{}, ""); n != 0 {
		t.Fatalf("expected no lock, got %d", n)
	}
}

func TestAcquireOrReprompt_SkipsTakenCandidate(t *testing.T) {
	e := newTestEnv(t)
	e.hold(t, 2, 10)
	fixed := ProposerFunc(func(context.Context, *gorm.DB) ([]Slot, error) {
		return []Slot{
			{Start: at(2, 10), End: at(2, 11), ResourceID: e.resource},
			{Start: at(2, 13), End: at(2, 14), ResourceID: e.resource},
		}, nil
	})

	res, err := e.conv.AcquireOrReprompt(context.Background(), AcquireRequest{
		Channel:        model.ChannelChat,
		ConversationID: "chat-1",
		ProjectID:      &e.resource,
		Proposer:       fixed,
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !res.Appointment.StartsAt.Equal(at(2, 13)) {
		t.Fatalf("expected fallback to 13:00, got %s", res.Appointment.StartsAt)
	}
}

func TestConfirmConversation_SchedulesCallRequest(t *testing.T) {
	e := newTestEnv(t)
	res := acquire(t, e, "CA1", "+37060000001")

	a, err := e.conv.ConfirmConversation(context.Background(), model.ChannelVoice, "CA1", audit.SystemVoice())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if a.Status != model.AppointmentStatusConfirmed || a.LockReason != model.LockReasonHoldConfirm {
		t.Fatalf("unexpected confirmed row: %s/%s", a.Status, a.LockReason)
	}
	if n := e.count(t, &model.ConversationLock{}, ""); n != 0 {
		t.Fatalf("confirm must release the lock, got %d", n)
	}
	cr, err := e.intake.Get(context.Background(), *res.Appointment.CallRequestID)
	if err != nil {
		t.Fatalf("get call request: %v", err)
	}
	if cr.Status != model.CallRequestStatusScheduled {
		t.Fatalf("expected call request SCHEDULED, got %s", cr.Status)
	}
}

func TestConfirmConversation_ExpiredHold(t *testing.T) {
	e := newTestEnv(t)
	acquire(t, e, "CA1", "+37060000001")
	e.clock.Advance(6 * time.Minute)

	_, err := e.conv.ConfirmConversation(context.Background(), model.ChannelVoice, "CA1", audit.SystemVoice())
	if apperr.CodeOf(err) != apperr.CodeHoldExpired {
		t.Fatalf("expected HOLD_EXPIRED, got %v", err)
	}
}
