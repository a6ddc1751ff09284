// Package scheduler projects schedules onto comparable trigger windows and
// finds pairs of schedules whose windows can coincide.
package scheduler

import (
	"slices"
	"time"

	"github.com/example/autoscaler-scheduler/internal/schedule"
)

// DateRange is an inclusive calendar range. Nil bounds are open.
type DateRange struct {
	Start *schedule.Date
	End   *schedule.Date
}

// Disjoint reports whether the two ranges share no calendar day. Open bounds
// never make ranges disjoint.
func (r DateRange) Disjoint(other DateRange) bool {
	if r.End != nil && other.Start != nil && r.End.Before(*other.Start) {
		return true
	}
	if other.End != nil && r.Start != nil && other.End.Before(*r.Start) {
		return true
	}
	return false
}

// PredicateKind selects which days a window is active on.
type PredicateKind int

const (
	// PredicateAlways matches every day in the date range.
	PredicateAlways PredicateKind = iota
	// PredicateWeekdays matches ISO weekdays (1 = Monday … 7 = Sunday).
	PredicateWeekdays
	// PredicateMonthDays matches days of the month.
	PredicateMonthDays
)

// Recurrence is the day predicate of a window. Days is sorted and unique.
type Recurrence struct {
	Kind PredicateKind
	Days []int
}

// Compatible reports whether the predicates can hold on the same day. Weekday
// and month-day predicates are always treated as compatible.
func (r Recurrence) Compatible(other Recurrence) bool {
	if r.Kind == PredicateAlways || other.Kind == PredicateAlways || r.Kind != other.Kind {
		return true
	}
	for _, day := range r.Days {
		if _, found := slices.BinarySearch(other.Days, day); found {
			return true
		}
	}
	return false
}

// TriggerWindow is the normalized form of a schedule used for overlap checks
// and materialization. Start and End are only set for specific schedules.
type TriggerWindow struct {
	Ref        schedule.Ref
	DateRange  DateRange
	DailyStart schedule.TimeOfDay
	DailyEnd   schedule.TimeOfDay
	Recurrence Recurrence
	Start      time.Time
	End        time.Time
}

// SpecificWindow normalizes a specific schedule. It returns false when the
// schedule's date-times do not parse.
func SpecificWindow(index int, s schedule.SpecificSchedule, loc *time.Location) (TriggerWindow, bool) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := schedule.ParseDateTime(s.StartDateTime, loc)
	if err != nil {
		return TriggerWindow{}, false
	}
	end, err := schedule.ParseDateTime(s.EndDateTime, loc)
	if err != nil {
		return TriggerWindow{}, false
	}
	startDate, endDate := schedule.DateOf(start), schedule.DateOf(end)
	return TriggerWindow{
		Ref:        schedule.Ref{Kind: schedule.KindSpecific, Index: index},
		DateRange:  DateRange{Start: &startDate, End: &endDate},
		DailyStart: schedule.TimeOfDay(start.Hour()*60 + start.Minute()),
		DailyEnd:   schedule.TimeOfDay(end.Hour()*60 + end.Minute()),
		Recurrence: Recurrence{Kind: PredicateAlways},
		Start:      start,
		End:        end,
	}, true
}

// RecurringWindow normalizes a recurring schedule. It returns false when the
// times or dates do not parse or no day set is present.
func RecurringWindow(index int, s schedule.RecurringSchedule) (TriggerWindow, bool) {
	dailyStart, err := schedule.ParseTimeOfDay(s.StartTime)
	if err != nil {
		return TriggerWindow{}, false
	}
	dailyEnd, err := schedule.ParseTimeOfDay(s.EndTime)
	if err != nil {
		return TriggerWindow{}, false
	}

	var dates DateRange
	if s.StartDate != "" {
		d, err := schedule.ParseDate(s.StartDate)
		if err != nil {
			return TriggerWindow{}, false
		}
		dates.Start = &d
	}
	if s.EndDate != "" {
		d, err := schedule.ParseDate(s.EndDate)
		if err != nil {
			return TriggerWindow{}, false
		}
		dates.End = &d
	}

	var rec Recurrence
	switch {
	case len(s.DaysOfWeek) > 0:
		rec = Recurrence{Kind: PredicateWeekdays, Days: sortedUnique(s.DaysOfWeek)}
	case len(s.DaysOfMonth) > 0:
		rec = Recurrence{Kind: PredicateMonthDays, Days: sortedUnique(s.DaysOfMonth)}
	default:
		return TriggerWindow{}, false
	}

	return TriggerWindow{
		Ref:        schedule.Ref{Kind: schedule.KindRecurring, Index: index},
		DateRange:  dates,
		DailyStart: dailyStart,
		DailyEnd:   dailyEnd,
		Recurrence: rec,
	}, true
}

// Overlaps reports whether the two windows can be active at the same instant.
// Windows of different kinds never overlap. Intervals are half-open, so a
// window ending exactly when the other starts does not overlap it.
func (w TriggerWindow) Overlaps(other TriggerWindow) bool {
	if w.Ref.Kind != other.Ref.Kind {
		return false
	}
	if w.Ref.Kind == schedule.KindSpecific {
		return w.Start.Before(other.End) && other.Start.Before(w.End)
	}
	if w.DateRange.Disjoint(other.DateRange) {
		return false
	}
	if !w.Recurrence.Compatible(other.Recurrence) {
		return false
	}
	return w.DailyStart < other.DailyEnd && other.DailyStart < w.DailyEnd
}

func sortedUnique(days []int) []int {
	out := slices.Clone(days)
	slices.Sort(out)
	return slices.Compact(out)
}
