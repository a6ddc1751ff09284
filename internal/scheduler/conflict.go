package scheduler

import (
	"time"

	"github.com/example/autoscaler-scheduler/internal/schedule"
)

// Windows normalizes every parsable schedule of the policy. Schedules that do
// not parse are left out; their problems are reported by schedule.Validate.
func Windows(p schedule.Policy, loc *time.Location) (specific, recurring []TriggerWindow) {
	for i, s := range p.Specific {
		if w, ok := SpecificWindow(i, s, loc); ok {
			specific = append(specific, w)
		}
	}
	for i, s := range p.Recurring {
		if w, ok := RecurringWindow(i, s); ok {
			recurring = append(recurring, w)
		}
	}
	return specific, recurring
}

// DetectOverlaps returns one schedule.date.overlap violation per conflicting
// pair. Only schedules of the same kind are compared. Pairs are visited in
// ascending (i, j) order with i < j, specific schedules before recurring ones.
func DetectOverlaps(p schedule.Policy) []schedule.Violation {
	loc, err := schedule.LoadLocation(p.Timezone)
	if err != nil {
		loc = time.UTC
	}
	specific, recurring := Windows(p, loc)

	var out []schedule.Violation
	out = append(out, pairwise(specific)...)
	out = append(out, pairwise(recurring)...)
	return out
}

func pairwise(windows []TriggerWindow) []schedule.Violation {
	var out []schedule.Violation
	for i := 0; i < len(windows); i++ {
		for j := i + 1; j < len(windows); j++ {
			if windows[i].Overlaps(windows[j]) {
				out = append(out, overlapReport(windows[i], windows[j]))
			}
		}
	}
	return out
}

// overlapReport names the earlier window's end and the later window's start.
// Windows with identical starts both report their start field.
func overlapReport(a, b TriggerWindow) schedule.Violation {
	startField, endField := schedule.FieldStartTime, schedule.FieldEndTime
	if a.Ref.Kind == schedule.KindSpecific {
		startField, endField = schedule.FieldStartDateTime, schedule.FieldEndDateTime
	}

	switch c := compareStarts(a, b); {
	case c == 0:
		return schedule.Overlap(a.Ref, startField, b.Ref, startField)
	case c < 0:
		return schedule.Overlap(a.Ref, endField, b.Ref, startField)
	default:
		return schedule.Overlap(b.Ref, endField, a.Ref, startField)
	}
}

// compareStarts orders windows by when they begin: the absolute start for
// specific windows, the daily start for recurring ones. Date ranges only
// decide whether two recurring windows can meet, never which comes first.
func compareStarts(a, b TriggerWindow) int {
	if a.Ref.Kind == schedule.KindSpecific {
		return a.Start.Compare(b.Start)
	}
	switch {
	case a.DailyStart < b.DailyStart:
		return -1
	case a.DailyStart > b.DailyStart:
		return 1
	default:
		return 0
	}
}
