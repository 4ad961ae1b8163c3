package service

import (
	"context"
	"testing"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/model"
)

func preserve(level int) *int { return &level }

func TestReschedule_PreviewAndConfirmMovesDay(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.confirmed(t, 3, 10)
	b := e.confirmed(t, 3, 13)

	preview, err := e.resch.Preview(ctx, PreviewRequest{
		RouteDate:  at(3, 0),
		ResourceID: e.resource,
		Reason:     ReasonWeather,
		Rules:      RescheduleRules{PreserveLockedLevel: preserve(model.LockLevelApproved)},
		Actor:      admin(),
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Summary.CancelCount != 2 || preview.Summary.CreateCount != 2 || len(preview.SuggestedActions) != 4 {
		t.Fatalf("unexpected preview summary: %+v", preview.Summary)
	}
	if preview.ExpectedVersions[a.ID.String()] != a.RowVersion {
		t.Fatalf("expected version %d for %s", a.RowVersion, a.ID)
	}

	res, err := e.resch.Confirm(ctx, ConfirmPlanRequest{
		PreviewID:        preview.PreviewID,
		PreviewHash:      preview.PreviewHash,
		ExpectedVersions: preview.ExpectedVersions,
		Reason:           ReasonWeather,
		Actor:            admin(),
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(res.NewAppointmentIDs) != 2 {
		t.Fatalf("expected 2 replacements, got %d", len(res.NewAppointmentIDs))
	}

	for _, orig := range []*model.Appointment{a, b} {
		got := e.reload(t, orig.ID)
		if got.Status != model.AppointmentStatusCancelled || got.CancelReason != "RESCHEDULE:WEATHER" {
			t.Fatalf("original %s: %s/%s", orig.ID, got.Status, got.CancelReason)
		}
		if got.SupersededByID == nil {
			t.Fatalf("original %s has no superseded_by_id", orig.ID)
		}
		next := e.reload(t, *got.SupersededByID)
		if next.Status != model.AppointmentStatusConfirmed || next.LockReason != model.LockReasonReschedule {
			t.Fatalf("replacement %s: %s/%s", next.ID, next.Status, next.LockReason)
		}
		if !next.StartsAt.Equal(orig.StartsAt.AddDate(0, 0, 1)) {
			t.Fatalf("expected replacement one day later, got %s", next.StartsAt)
		}
	}

	// План одноразовый.
	_, err = e.resch.Confirm(ctx, ConfirmPlanRequest{
		PreviewID:        preview.PreviewID,
		PreviewHash:      preview.PreviewHash,
		ExpectedVersions: preview.ExpectedVersions,
		Actor:            admin(),
	})
	if apperr.CodeOf(err) != apperr.CodePlanStale {
		t.Fatalf("expected PLAN_STALE on reuse, got %v", err)
	}
}

func TestReschedule_StaleConfirmChangesNothing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.confirmed(t, 3, 10)

	preview, err := e.resch.Preview(ctx, PreviewRequest{
		RouteDate:  at(3, 0),
		ResourceID: e.resource,
		Rules:      RescheduleRules{PreserveLockedLevel: preserve(model.LockLevelManual)},
		Actor:      admin(),
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}

	// Визит изменился после preview.
	if _, err := e.appts.DailyApprove(ctx, at(3, 0), &e.resource, "", admin()); err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err = e.resch.Confirm(ctx, ConfirmPlanRequest{
		PreviewID:        preview.PreviewID,
		PreviewHash:      preview.PreviewHash,
		ExpectedVersions: preview.ExpectedVersions,
		Actor:            admin(),
	})
	if apperr.KindOf(err) != apperr.KindVersionConflict {
		t.Fatalf("expected version conflict, got %v", err)
	}

	got := e.reload(t, a.ID)
	if got.Status != model.AppointmentStatusConfirmed {
		t.Fatalf("original must stay CONFIRMED, got %s", got.Status)
	}
	if n := e.count(t, &model.Appointment{}, ""); n != 1 {
		t.Fatalf("no replacement may be created, got %d rows", n)
	}
	if n := e.count(t, &model.SchedulePreview{}, "consumed_at IS NULL"); n != 1 {
		t.Fatalf("preview must stay unconsumed")
	}
}

func TestReschedule_TamperedHash(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.confirmed(t, 3, 10)

	preview, err := e.resch.Preview(ctx, PreviewRequest{
		RouteDate:  at(3, 0),
		ResourceID: e.resource,
		Rules:      RescheduleRules{PreserveLockedLevel: preserve(model.LockLevelApproved)},
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	_, err = e.resch.Confirm(ctx, ConfirmPlanRequest{
		PreviewID:        preview.PreviewID,
		PreviewHash:      "deadbeef",
		ExpectedVersions: preview.ExpectedVersions,
		Actor:            admin(),
	})
	if apperr.CodeOf(err) != apperr.CodePlanStale {
		t.Fatalf("expected PLAN_STALE, got %v", err)
	}
}

func TestReschedule_DefaultPreserveSkipsConfirmed(t *testing.T) {
	e := newTestEnv(t)
	e.confirmed(t, 3, 10)

	// По умолчанию preserve_locked_level=1: подтверждённые визиты не трогаются.
	_, err := e.resch.Preview(context.Background(), PreviewRequest{RouteDate: at(3, 0), ResourceID: e.resource})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for empty plan, got %v", err)
	}
}

func TestReschedule_BusyTargetMovesToNextFree(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.confirmed(t, 3, 10)
	e.hold(t, 4, 10)

	preview, err := e.resch.Preview(ctx, PreviewRequest{
		RouteDate:  at(3, 0),
		ResourceID: e.resource,
		Rules:      RescheduleRules{PreserveLockedLevel: preserve(model.LockLevelApproved)},
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Summary.MovedCount != 1 {
		t.Fatalf("expected moved_count=1, got %+v", preview.Summary)
	}
	create := preview.SuggestedActions[1]
	if create.Action != ActionCreate || !create.StartsAt.Equal(at(4, 13)) {
		t.Fatalf("expected replacement at 13:00 next day, got %+v", create)
	}
}

func TestReschedule_WeatherResistantOnlyWithoutResource(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	project := e.resource
	a, err := e.appts.CreateHold(ctx, HoldRequest{
		ResourceID:   e.resource,
		Start:        at(3, 10),
		End:          at(3, 11),
		ProjectID:    &project,
		WeatherClass: model.WeatherClassSensitive,
	})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	if _, err := e.appts.Confirm(ctx, a.ID, a.RowVersion, ConfirmOptions{Actor: admin()}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	_, err = e.resch.Preview(ctx, PreviewRequest{
		RouteDate:  at(3, 0),
		ResourceID: e.resource,
		Rules:      RescheduleRules{PreserveLockedLevel: preserve(model.LockLevelApproved), WeatherResistantOnly: true},
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected empty plan without weather-resistant resources, got %v", err)
	}
}

// leadVisit подтверждает визит, привязанный к заявке с email.
func leadVisit(t *testing.T, e *testEnv, day, hour int) *model.Appointment {
	t.Helper()
	ctx := context.Background()
	cr, err := e.intake.CreateCallRequest(ctx, CallRequestInput{Name: "Ona", Email: "ona@example.lt", Source: model.CallRequestSourceEmail})
	if err != nil {
		t.Fatalf("create call request: %v", err)
	}
	a, err := e.appts.CreateHold(ctx, HoldRequest{
		ResourceID:    e.resource,
		Start:         at(day, hour),
		End:           at(day, hour+1),
		CallRequestID: &cr.ID,
		Actor:         admin(),
	})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	c, err := e.appts.Confirm(ctx, a.ID, a.RowVersion, ConfirmOptions{Actor: admin()})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return c
}

func (e *testEnv) previewDay(t *testing.T, day int) *PreviewResult {
	t.Helper()
	p, err := e.resch.Preview(context.Background(), PreviewRequest{
		RouteDate:  at(day, 0),
		ResourceID: e.resource,
		Reason:     ReasonWeather,
		Rules:      RescheduleRules{PreserveLockedLevel: preserve(model.LockLevelApproved)},
		Actor:      admin(),
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	return p
}

func confirmPlan(e *testEnv, p *PreviewResult) (*ConfirmPlanResult, error) {
	return e.resch.Confirm(context.Background(), ConfirmPlanRequest{
		PreviewID:        p.PreviewID,
		PreviewHash:      p.PreviewHash,
		ExpectedVersions: p.ExpectedVersions,
		Reason:           ReasonWeather,
		Actor:            admin(),
	})
}

func TestReschedule_NotifiesLeadByEmail(t *testing.T) {
	e := newTestEnv(t)
	leadVisit(t, e, 3, 10)

	if _, err := confirmPlan(e, e.previewDay(t, 3)); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if n := len(outboxRows(t, e, templateAppointmentRescheduled)); n != 1 {
		t.Fatalf("expected one rescheduled email, got %d", n)
	}
}

func TestReschedule_MissingLeadIsSkipped(t *testing.T) {
	e := newTestEnv(t)
	a := leadVisit(t, e, 3, 10)
	preview := e.previewDay(t, 3)

	if err := e.db.Exec("DELETE FROM call_requests WHERE id = ?", *a.CallRequestID).Error; err != nil {
		t.Fatalf("delete lead: %v", err)
	}
	if _, err := confirmPlan(e, preview); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if n := len(outboxRows(t, e, templateAppointmentRescheduled)); n != 0 {
		t.Fatalf("expected no notification without a lead, got %d", n)
	}
}

func TestReschedule_LeadLookupFailureRollsBack(t *testing.T) {
	e := newTestEnv(t)
	a := leadVisit(t, e, 3, 10)
	preview := e.previewDay(t, 3)

	// Ошибка хранилища при чтении заявки, а не её отсутствие.
	if err := e.db.Exec("ALTER TABLE call_requests RENAME TO call_requests_moved").Error; err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := confirmPlan(e, preview); err == nil {
		t.Fatalf("expected confirm to fail when the lead cannot be read")
	}

	if got := e.reload(t, a.ID); got.Status != model.AppointmentStatusConfirmed {
		t.Fatalf("original must stay CONFIRMED, got %s", got.Status)
	}
	if n := e.count(t, &model.Appointment{}, ""); n != 1 {
		t.Fatalf("no replacement may survive, got %d rows", n)
	}
	if n := e.count(t, &model.SchedulePreview{}, "consumed_at IS NULL"); n != 1 {
		t.Fatalf("preview must stay unconsumed")
	}
}
