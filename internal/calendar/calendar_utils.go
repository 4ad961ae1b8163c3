package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrSlotDuration     = errors.New("slot duration must be positive")
)

// TimeRange представляет временной интервал [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange создаёт интервал и проверяет, что End > Start.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return TimeRange{}, ErrInvalidTimeRange
	}
	return TimeRange{Start: start, End: end}, nil
}

func (tr TimeRange) Duration() time.Duration { return tr.End.Sub(tr.Start) }

// UTC возвращает тот же интервал в UTC.
func (tr TimeRange) UTC() TimeRange {
	return TimeRange{Start: tr.Start.UTC(), End: tr.End.UTC()}
}

// Shift сдвигает интервал на days календарных дней в часовом поясе loc,
// сохраняя локальное время начала и длительность.
func (tr TimeRange) Shift(days int, loc *time.Location) TimeRange {
	if loc == nil {
		loc = time.UTC
	}
	start := tr.Start.In(loc).AddDate(0, 0, days)
	return TimeRange{Start: start, End: start.Add(tr.Duration())}
}

// HasOverlap проверяет, пересекается ли newRange с existing.
// inclusive = true: касание концами считается пересечением.
func HasOverlap(
	newRange TimeRange,
	existing []TimeRange,
	inclusive bool,
) (bool, []TimeRange) {
	var conflicts []TimeRange

	for _, tr := range existing {
		if rangesOverlap(newRange, tr, inclusive) {
			conflicts = append(conflicts, tr)
		}
	}

	return len(conflicts) > 0, conflicts
}

func rangesOverlap(a, b TimeRange, inclusive bool) bool {
	if inclusive {
		return !a.Start.After(b.End) && !b.Start.After(a.End)
	}
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// ===== Кандидаты на визит =====

// DailyRule описывает ежедневную сетку кандидатов: якорные часы внутри
// рабочего окна, кроме дней отдыха.
type DailyRule struct {
	Location    *time.Location
	AnchorHours []int
	OpenHour    int // начало рабочего окна, ч
	CloseHour   int // конец рабочего окна, ч
	RestDays    []time.Weekday
	Duration    time.Duration
}

// DefaultDailyRule: 10:00, 13:00, 16:00 по Вильнюсу, 09–18, воскресенье выходной.
func DefaultDailyRule(loc *time.Location, duration time.Duration) DailyRule {
	return DailyRule{
		Location:    loc,
		AnchorHours: []int{10, 13, 16},
		OpenHour:    9,
		CloseHour:   18,
		RestDays:    []time.Weekday{time.Sunday},
		Duration:    duration,
	}
}

// ExpandDailyCandidates разворачивает правило в упорядоченный список окон,
// начинающихся внутри window. Окна, выходящие за рабочие часы, отбрасываются.
func ExpandDailyCandidates(rule DailyRule, window TimeRange) ([]TimeRange, error) {
	if rule.Duration <= 0 {
		return nil, ErrSlotDuration
	}
	if !window.End.After(window.Start) {
		return []TimeRange{}, nil
	}
	loc := rule.Location
	if loc == nil {
		loc = time.UTC
	}

	hours := append([]int(nil), rule.AnchorHours...)
	sort.Ints(hours)

	var result []TimeRange
	day := dateOnly(window.Start.In(loc))
	last := dateOnly(window.End.In(loc))

	for !day.After(last) {
		if containsWeekday(rule.RestDays, day.Weekday()) {
			day = day.AddDate(0, 0, 1)
			continue
		}

		open := time.Date(day.Year(), day.Month(), day.Day(), rule.OpenHour, 0, 0, 0, loc)
		closeAt := time.Date(day.Year(), day.Month(), day.Day(), rule.CloseHour, 0, 0, 0, loc)

		for _, h := range hours {
			start := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, loc)
			end := start.Add(rule.Duration)
			if start.Before(open) || end.After(closeAt) {
				continue
			}
			if start.Before(window.Start) || !start.Before(window.End) {
				continue
			}
			result = append(result, TimeRange{Start: start, End: end})
		}

		day = day.AddDate(0, 0, 1)
	}

	return result, nil
}

func containsWeekday(list []time.Weekday, w time.Weekday) bool {
	for _, d := range list {
		if d == w {
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// DayBounds возвращает [00:00, 00:00 следующего дня) для даты d в поясе loc.
func DayBounds(d time.Time, loc *time.Location, days int) TimeRange {
	if loc == nil {
		loc = time.UTC
	}
	if days <= 0 {
		days = 1
	}
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return TimeRange{Start: start, End: start.AddDate(0, 0, days)}
}

// ===== Форматирование слота для клиента =====

var ltWeekdays = map[time.Weekday]string{
	time.Monday:    "pirmadienis",
	time.Tuesday:   "antradienis",
	time.Wednesday: "trečiadienis",
	time.Thursday:  "ketvirtadienis",
	time.Friday:    "penktadienis",
	time.Saturday:  "šeštadienis",
	time.Sunday:    "sekmadienis",
}

// FormatSlotForUser форматирует интервал в строку вида
// "2025-01-06, pirmadienis 10:00–11:00".
// Если includeID = true, в конце добавляется идентификатор визита в скобках.
func FormatSlotForUser(
	tr TimeRange,
	loc *time.Location,
	includeID bool,
	slotID string,
) string {
	start := tr.Start
	end := tr.End

	if loc != nil {
		start = start.In(loc)
		end = end.In(loc)
	}

	base := fmt.Sprintf("%s, %s %s–%s",
		start.Format("2006-01-02"),
		ltWeekdays[start.Weekday()],
		start.Format("15:04"),
		end.Format("15:04"),
	)

	if includeID && slotID != "" {
		return fmt.Sprintf("%s (ID: %s)", base, slotID)
	}

	return base
}
