package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/model"
)

func TestCreateHold_RejectsOverlapAllowsAdjacent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.hold(t, 2, 10)

	project := uuid.New()
	_, err := e.appts.CreateHold(ctx, HoldRequest{
		ResourceID: e.resource,
		Start:      at(2, 10).Add(30 * time.Minute),
		End:        at(2, 11).Add(30 * time.Minute),
		ProjectID:  &project,
	})
	if apperr.CodeOf(err) != apperr.CodeSlotTaken {
		t.Fatalf("expected SLOT_TAKEN, got %v", err)
	}

	// [10:00,11:00) и [11:00,12:00) не пересекаются.
	if _, err := e.appts.CreateHold(ctx, HoldRequest{
		ResourceID: e.resource,
		Start:      at(2, 11),
		End:        at(2, 12),
		ProjectID:  &project,
	}); err != nil {
		t.Fatalf("adjacent hold: %v", err)
	}

	if n := e.count(t, &model.Appointment{}, "status IN ?", model.OccupyingStatuses); n != 2 {
		t.Fatalf("expected 2 occupying rows, got %d", n)
	}
}

func TestCreateHold_Validation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	project := uuid.New()

	cases := []struct {
		name string
		req  HoldRequest
		code string
	}{
		{"empty window", HoldRequest{ResourceID: e.resource, Start: at(2, 10), End: at(2, 10), ProjectID: &project}, apperr.CodeInvalidWindow},
		{"no link", HoldRequest{ResourceID: e.resource, Start: at(2, 10), End: at(2, 11)}, apperr.CodeMissingLink},
		{"no resource", HoldRequest{Start: at(2, 10), End: at(2, 11), ProjectID: &project}, apperr.CodeInvalidArgument},
		{"bad visit type", HoldRequest{ResourceID: e.resource, Start: at(2, 10), End: at(2, 11), ProjectID: &project, VisitType: "PICNIC"}, apperr.CodeInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.appts.CreateHold(ctx, tc.req)
			if apperr.KindOf(err) != apperr.KindValidation || apperr.CodeOf(err) != tc.code {
				t.Fatalf("expected validation %s, got %v", tc.code, err)
			}
		})
	}
}

func TestCreateHold_UnknownOrInactiveResource(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	project := uuid.New()

	_, err := e.appts.CreateHold(ctx, HoldRequest{ResourceID: uuid.New(), Start: at(2, 10), End: at(2, 11), ProjectID: &project})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found for unknown resource, got %v", err)
	}

	if err := e.db.Model(&model.User{}).Where("id = ?", e.resource).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err = e.appts.CreateHold(ctx, HoldRequest{ResourceID: e.resource, Start: at(2, 10), End: at(2, 11), ProjectID: &project})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for inactive resource, got %v", err)
	}
	if n := e.count(t, &model.Appointment{}, ""); n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}
}

func TestConfirm_StaleVersionLoses(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.hold(t, 2, 10)

	first, err := e.appts.Confirm(ctx, a.ID, a.RowVersion, ConfirmOptions{Actor: admin()})
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if first.Status != model.AppointmentStatusConfirmed || first.LockLevel != model.LockLevelConfirmed {
		t.Fatalf("unexpected confirmed row: status=%s lock=%d", first.Status, first.LockLevel)
	}
	if first.HoldExpiresAt != nil {
		t.Fatalf("expected hold_expires_at cleared")
	}
	if first.RowVersion != a.RowVersion+1 {
		t.Fatalf("expected row_version %d, got %d", a.RowVersion+1, first.RowVersion)
	}

	_, err = e.appts.Confirm(ctx, a.ID, a.RowVersion, ConfirmOptions{Actor: admin()})
	if apperr.KindOf(err) != apperr.KindVersionConflict {
		t.Fatalf("expected version conflict for stale confirm, got %v", err)
	}
}

func TestConfirm_ExpiredHold(t *testing.T) {
	e := newTestEnv(t)
	a := e.hold(t, 2, 10)
	e.clock.Advance(6 * time.Minute)

	_, err := e.appts.Confirm(context.Background(), a.ID, a.RowVersion, ConfirmOptions{Actor: admin()})
	if apperr.CodeOf(err) != apperr.CodeHoldExpired {
		t.Fatalf("expected HOLD_EXPIRED, got %v", err)
	}
}

func TestExpireStaleHolds_Idempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	stale := e.hold(t, 2, 10)
	e.clock.Advance(6 * time.Minute)
	fresh := e.hold(t, 2, 13)

	res, err := e.appts.ExpireStaleHolds(ctx, e.clock.Now())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if res.Appointments != 1 || len(res.IDs) != 1 || res.IDs[0] != stale.ID {
		t.Fatalf("expected only the stale hold to expire, got %+v", res)
	}

	got := e.reload(t, stale.ID)
	if got.Status != model.AppointmentStatusCancelled || got.CancelReason != model.CancelReasonHoldExpired {
		t.Fatalf("unexpected expired row: status=%s reason=%s", got.Status, got.CancelReason)
	}
	if got.RowVersion != stale.RowVersion+1 {
		t.Fatalf("expected row_version bumped once, got %d", got.RowVersion)
	}
	if got.HoldExpiresAt != nil {
		t.Fatalf("expected hold_expires_at cleared")
	}
	if e.reload(t, fresh.ID).Status != model.AppointmentStatusHeld {
		t.Fatalf("fresh hold must stay HELD")
	}

	again, err := e.appts.ExpireStaleHolds(ctx, e.clock.Now())
	if err != nil {
		t.Fatalf("second expire: %v", err)
	}
	if again.Appointments != 0 || again.Locks != 0 {
		t.Fatalf("expected second sweep to be a no-op, got %+v", again)
	}
	if e.reload(t, stale.ID).RowVersion != got.RowVersion {
		t.Fatalf("second sweep must not touch the row")
	}
}

func TestCancel_CancelledIsTerminal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.hold(t, 2, 10)

	if _, err := e.appts.Cancel(ctx, a.ID, "", nil, admin()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := e.appts.Cancel(ctx, a.ID, "", nil, admin())
	if apperr.CodeOf(err) != apperr.CodeInvalidTransition {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
	got := e.reload(t, a.ID)
	if got.CancelReason != model.CancelReasonAdmin {
		t.Fatalf("expected default reason %s, got %s", model.CancelReasonAdmin, got.CancelReason)
	}
}

func TestDailyApprove_LockedCancelNeedsAdmin(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.confirmed(t, 3, 10)
	e.confirmed(t, 3, 13)

	res, err := e.appts.DailyApprove(ctx, at(3, 0), &e.resource, "ok", admin())
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(res.Approved) != 2 || res.RouteDate != "2026-03-03" {
		t.Fatalf("unexpected approve result: %+v", res)
	}

	again, err := e.appts.DailyApprove(ctx, at(3, 0), &e.resource, "", admin())
	if err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if len(again.Approved) != 0 || again.AlreadyLocked != 2 {
		t.Fatalf("expected all already locked, got %+v", again)
	}

	_, err = e.appts.Cancel(ctx, a.ID, "", nil, audit.System())
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden for non-admin cancel, got %v", err)
	}
	if _, err := e.appts.Cancel(ctx, a.ID, "", nil, admin()); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestDailyApprove_EmptyDayNotFound(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.appts.DailyApprove(context.Background(), at(4, 0), nil, "", admin())
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDayEntityID_Stable(t *testing.T) {
	e := newTestEnv(t)
	a := e.appts.DayEntityID("2026-03-03", "ALL")
	b := e.appts.DayEntityID("2026-03-03", "ALL")
	c := e.appts.DayEntityID("2026-03-04", "ALL")
	if a != b || a == c {
		t.Fatalf("day ids must be deterministic per date: %s %s %s", a, b, c)
	}
}
