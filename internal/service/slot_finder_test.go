package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
)

func TestFindAvailableSlots_SkipsBusyAndLeadTime(t *testing.T) {
	e := newTestEnv(t)
	e.clock.T = at(2, 9).Add(45 * time.Minute) // 10:00 ближе lead time
	e.hold(t, 2, 13)

	slots, err := e.finder.FindAvailableSlots(context.Background(), e.db, SlotQuery{ResourceID: e.resource, Count: 3})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := []time.Time{at(2, 16), at(3, 10), at(3, 13)}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(slots))
	}
	for i, s := range slots {
		if !s.Start.Equal(want[i]) || s.End.Sub(s.Start) != time.Hour || s.ResourceID != e.resource {
			t.Fatalf("slot %d: %+v", i, s)
		}
		if s.Label == "" {
			t.Fatalf("slot %d has no label", i)
		}
	}
}

func TestFindAvailableSlots_NotBeforeAndRestDay(t *testing.T) {
	e := newTestEnv(t)
	notBefore := at(7, 16) // суббота 16:00; воскресенье выходной

	slots, err := e.finder.FindAvailableSlots(context.Background(), e.db, SlotQuery{
		ResourceID: e.resource,
		Count:      1,
		NotBefore:  &notBefore,
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(slots) != 1 || !slots[0].Start.Equal(at(9, 10)) {
		t.Fatalf("expected Monday 10:00, got %+v", slots)
	}
}

func TestFindAvailableSlots_ShortHorizonMayBeEmpty(t *testing.T) {
	e := newTestEnv(t)
	e.clock.T = at(2, 17)

	slots, err := e.finder.FindAvailableSlots(context.Background(), e.db, SlotQuery{ResourceID: e.resource, HorizonDays: 1})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots after close, got %d", len(slots))
	}
}

func TestFindAvailableSlots_RequiresResource(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.finder.FindAvailableSlots(context.Background(), e.db, SlotQuery{ResourceID: uuid.Nil})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPickResource_DefaultWins(t *testing.T) {
	cfg := testSchedulingConfig()
	id := uuid.New()
	cfg.DefaultResourceID = id.String()
	f := NewSlotFinder(cfg, nil)

	got, err := f.PickResource(context.Background(), nil)
	if err != nil || got != id {
		t.Fatalf("expected default resource %s, got %s %v", id, got, err)
	}
}
