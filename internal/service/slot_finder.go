package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
	"github.com/Leganyst/visit-scheduler/internal/calendar"
	"github.com/Leganyst/visit-scheduler/internal/config"
	"github.com/Leganyst/visit-scheduler/internal/repository"
)

const (
	minSlotDuration    = 15 * time.Minute
	defaultSlotCount   = 10
	defaultHorizonDays = 14
)

// SlotQuery: параметры поиска свободных окон.
type SlotQuery struct {
	ResourceID  uuid.UUID
	Duration    time.Duration
	Count       int
	HorizonDays int
	// Только окна, начинающиеся строго после NotBefore.
	NotBefore *time.Time
}

// Slot: свободное окно ресурса.
type Slot struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	ResourceID uuid.UUID `json:"resource_id"`
	Label      string    `json:"label"`
}

func (s Slot) Range() calendar.TimeRange {
	return calendar.TimeRange{Start: s.Start, End: s.End}
}

// SlotFinder ищет свободные окна по ежедневной сетке кандидатов. Только чтение.
type SlotFinder struct {
	rule            calendar.DailyRule
	leadTime        time.Duration
	horizonDays     int
	defaultResource *uuid.UUID
	now             func() time.Time
}

func NewSlotFinder(cfg config.SchedulingConfig, now func() time.Time) *SlotFinder {
	if now == nil {
		now = time.Now
	}
	rule := calendar.DefaultDailyRule(cfg.Location(), cfg.VisitDuration)
	if len(cfg.CandidateHours) > 0 {
		rule.AnchorHours = append([]int(nil), cfg.CandidateHours...)
	}
	if cfg.CloseHour > cfg.OpenHour {
		rule.OpenHour = cfg.OpenHour
		rule.CloseHour = cfg.CloseHour
	}

	f := &SlotFinder{
		rule:        rule,
		leadTime:    cfg.LeadTime,
		horizonDays: cfg.HorizonDays,
		now:         now,
	}
	if id, err := uuid.Parse(strings.TrimSpace(cfg.DefaultResourceID)); err == nil {
		f.defaultResource = &id
	}
	return f
}

func (f *SlotFinder) Location() *time.Location {
	if f.rule.Location == nil {
		return time.UTC
	}
	return f.rule.Location
}

// VisitDuration: длительность визита по умолчанию.
func (f *SlotFinder) VisitDuration() time.Duration { return f.rule.Duration }

// Label форматирует окно для клиента в локальном времени.
func (f *SlotFinder) Label(tr calendar.TimeRange) string {
	return calendar.FormatSlotForUser(tr, f.Location(), false, "")
}

// FindAvailableSlots возвращает до Count свободных окон по возрастанию начала.
// Короткий или пустой список не ошибка.
func (f *SlotFinder) FindAvailableSlots(ctx context.Context, db *gorm.DB, q SlotQuery) ([]Slot, error) {
	if q.ResourceID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "resource_id is required")
	}
	if q.Duration <= 0 {
		q.Duration = f.rule.Duration
	}
	if q.Duration < minSlotDuration {
		q.Duration = minSlotDuration
	}
	if q.Count <= 0 {
		q.Count = defaultSlotCount
	}
	if q.HorizonDays <= 0 {
		q.HorizonDays = f.horizonDays
	}
	if q.HorizonDays <= 0 {
		q.HorizonDays = defaultHorizonDays
	}

	loc := f.Location()
	now := f.now().UTC()
	earliest := now.Add(f.leadTime)

	window := calendar.DayBounds(now.In(loc), loc, q.HorizonDays)
	rule := f.rule
	rule.Duration = q.Duration

	candidates, err := calendar.ExpandDailyCandidates(rule, window)
	if err != nil {
		return nil, fmt.Errorf("expand candidates: %w", err)
	}
	if len(candidates) == 0 {
		return []Slot{}, nil
	}

	busy, err := repository.NewGormAppointmentRepository(db).
		ListOccupying(ctx, q.ResourceID, window.Start, window.End.Add(q.Duration))
	if err != nil {
		return nil, fmt.Errorf("list occupying: %w", err)
	}
	existing := make([]calendar.TimeRange, 0, len(busy))
	for _, a := range busy {
		existing = append(existing, calendar.TimeRange{Start: a.StartsAt, End: a.EndsAt})
	}

	out := make([]Slot, 0, q.Count)
	for _, c := range candidates {
		if c.Start.Before(earliest) {
			continue
		}
		if q.NotBefore != nil && !c.Start.After(*q.NotBefore) {
			continue
		}
		if overlap, _ := calendar.HasOverlap(c, existing, false); overlap {
			continue
		}
		utc := c.UTC()
		out = append(out, Slot{
			Start:      utc.Start,
			End:        utc.End,
			ResourceID: q.ResourceID,
			Label:      f.Label(c),
		})
		if len(out) == q.Count {
			break
		}
	}
	return out, nil
}

// PickResource возвращает ресурс по умолчанию либо самого раннего активного ADMIN/SUBCONTRACTOR.
func (f *SlotFinder) PickResource(ctx context.Context, db *gorm.DB) (uuid.UUID, error) {
	if f.defaultResource != nil {
		return *f.defaultResource, nil
	}
	u, err := repository.NewGormUserRepository(db).FirstActiveResource(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, apperr.NotFound(apperr.CodeNotFound, "no schedulable resource configured")
		}
		return uuid.Nil, fmt.Errorf("pick resource: %w", err)
	}
	return u.ID, nil
}

// Proposer выдаёт кандидатов для удержания внутри транзакции вызывающего.
type Proposer interface {
	Propose(ctx context.Context, tx *gorm.DB) ([]Slot, error)
}

type ProposerFunc func(ctx context.Context, tx *gorm.DB) ([]Slot, error)

func (f ProposerFunc) Propose(ctx context.Context, tx *gorm.DB) ([]Slot, error) { return f(ctx, tx) }

// Proposer на основе SlotFinder: ресурс выбирается в той же транзакции.
func (f *SlotFinder) Proposer(resourceID *uuid.UUID, count int) Proposer {
	return ProposerFunc(func(ctx context.Context, tx *gorm.DB) ([]Slot, error) {
		var rid uuid.UUID
		if resourceID != nil {
			rid = *resourceID
		} else {
			id, err := f.PickResource(ctx, tx)
			if err != nil {
				return nil, err
			}
			rid = id
		}
		return f.FindAvailableSlots(ctx, tx, SlotQuery{ResourceID: rid, Count: count})
	})
}
