package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/config"
	"github.com/Leganyst/visit-scheduler/internal/model"
	"github.com/Leganyst/visit-scheduler/internal/repository"
	"github.com/Leganyst/visit-scheduler/internal/testutil"
)

// Понедельник, 07:00 UTC: первый кандидат дня: 10:00.
var testStart = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

type testEnv struct {
	db       *gorm.DB
	clock    *testutil.Clock
	sink     *audit.MemorySink
	resource uuid.UUID

	finder *SlotFinder
	appts  *AppointmentService
	conv   *ConversationService
	intake *IntakeService
	resch  *RescheduleService
}

func testSchedulingConfig() config.SchedulingConfig {
	return config.SchedulingConfig{
		Timezone:          "UTC",
		CandidateHours:    []int{10, 13, 16},
		OpenHour:          9,
		CloseHour:         18,
		LeadTime:          30 * time.Minute,
		HorizonDays:       14,
		VisitDuration:     time.Hour,
		HoldMinutes:       5,
		EmailHoldMinutes:  60,
		PreviewTTLMinutes: 15,
		PreviewSecret:     "test-secret",
		DayNamespace:      "cd487f5c-baca-4d84-b0e8-97f7bfef7248",
	}
}

func testIntakeConfig() config.IntakeConfig {
	return config.IntakeConfig{
		AutoOfferEnabled:   true,
		AutoReplyEnabled:   true,
		OfferMaxAttempts:   5,
		MissingDataMax:     2,
		MissingDataMinWait: time.Hour,
		ReplyToEmail:       "info@example.lt",
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewSQLite(t)
	clock := testutil.NewClock(testStart)
	sink := audit.NewMemorySink()

	resource := &model.User{DisplayName: "Tomas", Role: model.UserRoleAdmin, IsActive: true}
	if err := repository.NewGormUserRepository(db).Create(context.Background(), resource); err != nil {
		t.Fatalf("create resource: %v", err)
	}

	sched := testSchedulingConfig()
	deps := Deps{DB: db, Audit: sink, Now: clock.Now}
	finder := NewSlotFinder(sched, clock.Now)
	appts := NewAppointmentService(deps, sched)

	return &testEnv{
		db:       db,
		clock:    clock,
		sink:     sink,
		resource: resource.ID,
		finder:   finder,
		appts:    appts,
		conv:     NewConversationService(deps, appts, finder, sched),
		intake:   NewIntakeService(deps, appts, finder, testIntakeConfig(), sched, "https://book.example.lt"),
		resch:    NewRescheduleService(deps, appts, finder, sched),
	}
}

func at(day, hour int) time.Time {
	return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
}

func admin() audit.Actor {
	id := uuid.New()
	return audit.Actor{Type: model.ActorAdmin, ID: &id}
}

// hold ставит часовое удержание ресурса на указанный час.
func (e *testEnv) hold(t *testing.T, day, hour int) *model.Appointment {
	t.Helper()
	project := uuid.New()
	a, err := e.appts.CreateHold(context.Background(), HoldRequest{
		ResourceID: e.resource,
		Start:      at(day, hour),
		End:        at(day, hour+1),
		ProjectID:  &project,
		Actor:      admin(),
	})
	if err != nil {
		t.Fatalf("create hold %d/%d: %v", day, hour, err)
	}
	return a
}

func (e *testEnv) confirmed(t *testing.T, day, hour int) *model.Appointment {
	t.Helper()
	a := e.hold(t, day, hour)
	c, err := e.appts.Confirm(context.Background(), a.ID, a.RowVersion, ConfirmOptions{Actor: admin()})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return c
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *model.Appointment {
	t.Helper()
	var a model.Appointment
	if err := e.db.First(&a, "id = ?", id).Error; err != nil {
		t.Fatalf("reload %s: %v", id, err)
	}
	return &a
}

func (e *testEnv) count(t *testing.T, m any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(m)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
