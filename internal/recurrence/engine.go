// Package recurrence materializes validated schedules into trigger
// descriptors.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/autoscaler-scheduler/internal/schedule"
	"github.com/example/autoscaler-scheduler/internal/scheduler"
	"github.com/example/autoscaler-scheduler/internal/trigger"
)

// ErrUnmaterializable indicates a schedule that passed validation could still
// not be turned into triggers.
var ErrUnmaterializable = errors.New("recurrence: schedule cannot be materialized")

// ErrInvalidWindow indicates a preview request without a positive limit.
var ErrInvalidWindow = errors.New("recurrence: preview requires a positive limit")

// Engine turns schedules into activate/deactivate descriptor pairs.
type Engine struct{}

// NewEngine constructs an Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Materialize emits one activate and one deactivate descriptor per schedule,
// specific schedules first, each kind by index. The policy must already be
// valid; now anchors the first firing of recurring triggers.
//
// Recurring descriptors carry their recurrence so the Trigger Store computes
// later firings itself. They are valid from start_date (or now, when absent)
// until end_date at the schedule's end time.
func (e *Engine) Materialize(p schedule.Policy, policyGUID string, now time.Time) ([]trigger.Descriptor, error) {
	loc, err := schedule.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnmaterializable, err)
	}

	out := make([]trigger.Descriptor, 0, 2*p.Len())
	for i, s := range p.Specific {
		pair, err := e.specific(p, policyGUID, i, s, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, pair...)
	}
	for i, s := range p.Recurring {
		pair, err := e.recurring(p, policyGUID, i, s, loc, now)
		if err != nil {
			return nil, err
		}
		out = append(out, pair...)
	}
	return out, nil
}

func (e *Engine) specific(p schedule.Policy, guid string, index int, s schedule.SpecificSchedule, loc *time.Location) ([]trigger.Descriptor, error) {
	w, ok := scheduler.SpecificWindow(index, s, loc)
	if !ok {
		ref := schedule.Ref{Kind: schedule.KindSpecific, Index: index}
		return nil, fmt.Errorf("%w: %s", ErrUnmaterializable, ref.Label())
	}
	base := trigger.Descriptor{
		AppID:      p.AppID,
		PolicyGUID: guid,
		Kind:       schedule.KindSpecific,
		Index:      index,
		Timezone:   p.Timezone,
		Counts:     s.Counts,
	}

	activate := base
	activate.Action = trigger.ActionActivate
	activate.FireAt = w.Start
	activate.NextFire = w.Start

	deactivate := base
	deactivate.Action = trigger.ActionDeactivate
	deactivate.FireAt = w.End
	deactivate.NextFire = w.End

	return []trigger.Descriptor{activate, deactivate}, nil
}

func (e *Engine) recurring(p schedule.Policy, guid string, index int, s schedule.RecurringSchedule, loc *time.Location, now time.Time) ([]trigger.Descriptor, error) {
	w, ok := scheduler.RecurringWindow(index, s)
	if !ok {
		ref := schedule.Ref{Kind: schedule.KindRecurring, Index: index}
		return nil, fmt.Errorf("%w: %s", ErrUnmaterializable, ref.Label())
	}

	validFrom := now.In(loc)
	if w.DateRange.Start != nil {
		validFrom = w.DateRange.Start.At(0, loc)
	}
	var validUntil *time.Time
	if w.DateRange.End != nil {
		until := w.DateRange.End.At(w.DailyEnd, loc)
		validUntil = &until
	}

	base := trigger.Descriptor{
		AppID:      p.AppID,
		PolicyGUID: guid,
		Kind:       schedule.KindRecurring,
		Index:      index,
		Timezone:   p.Timezone,
		Counts:     s.Counts,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
	}

	activate := base
	activate.Action = trigger.ActionActivate
	activate.Recurrence = recurrenceAt(w, w.DailyStart)

	deactivate := base
	deactivate.Action = trigger.ActionDeactivate
	deactivate.Recurrence = recurrenceAt(w, w.DailyEnd)

	pair := []trigger.Descriptor{activate, deactivate}
	for i := range pair {
		if err := pair[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnmaterializable, err)
		}
		// A window that never fires again keeps a zero NextFire.
		if next, ok := pair[i].NextAfter(now); ok {
			pair[i].NextFire = next
		}
	}
	return pair, nil
}

func recurrenceAt(w scheduler.TriggerWindow, at schedule.TimeOfDay) *trigger.Recurrence {
	r := &trigger.Recurrence{Hour: at.Hour(), Minute: at.Minute()}
	switch w.Recurrence.Kind {
	case scheduler.PredicateWeekdays:
		r.Weekdays = append([]int(nil), w.Recurrence.Days...)
	case scheduler.PredicateMonthDays:
		r.MonthDays = append([]int(nil), w.Recurrence.Days...)
	}
	return r
}

// Upcoming returns at most limit firings of d strictly after from. It never
// enumerates beyond the limit, so unbounded recurrences are safe to preview.
func (e *Engine) Upcoming(d trigger.Descriptor, from time.Time, limit int) ([]time.Time, error) {
	if limit <= 0 {
		return nil, ErrInvalidWindow
	}
	out := make([]time.Time, 0, limit)
	ref := from
	for len(out) < limit {
		next, ok := d.NextAfter(ref)
		if !ok {
			break
		}
		out = append(out, next)
		if !d.Recurring() {
			break
		}
		ref = next
	}
	return out, nil
}
