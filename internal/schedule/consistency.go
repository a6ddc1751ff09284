package schedule

import (
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

const validationParallelism = 8

// Validate runs every field and consistency rule over the policy and returns
// all violations. Order is stable: policy-level violations first, then
// specific schedules by index, then recurring schedules by index. Within a
// schedule, field violations precede consistency violations.
//
// Schedules are checked concurrently; each result is slotted by index so the
// order never depends on goroutine scheduling. Overlap detection is not part
// of Validate.
func Validate(p Policy, now time.Time) []Violation {
	loc, out := policyViolations(p)

	results := make([][]Violation, p.Len())
	var g errgroup.Group
	g.SetLimit(validationParallelism)
	for i, s := range p.Specific {
		g.Go(func() error {
			results[i] = CheckSpecific(i, s, loc, now)
			return nil
		})
	}
	offset := len(p.Specific)
	for i, s := range p.Recurring {
		g.Go(func() error {
			results[offset+i] = CheckRecurring(i, s, loc, now)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// policyViolations checks the timezone and schedule count. The returned
// location is nil when the timezone cannot be resolved; temporal checks are
// skipped in that case.
func policyViolations(p Policy) (*time.Location, []Violation) {
	var out []Violation
	loc, err := LoadLocation(p.Timezone)
	switch {
	case errors.Is(err, ErrEmptyValue):
		out = append(out, newViolation(CodeFieldMissing, KeyTimezoneNotSpecified, Ref{}, FieldTimezone, FieldTimezone))
	case err != nil:
		out = append(out, newViolation(CodeFieldInvalidValue, KeyTimezoneInvalid, Ref{}, FieldTimezone, p.Timezone))
	}
	if p.Len() == 0 {
		out = append(out, newViolation(CodeNoSchedulesSubmitted, KeyNoSchedules, Ref{}, "", "app_id="+p.AppID))
	}
	return loc, out
}

// CheckSpecific returns the field and consistency violations of one specific
// schedule. A nil loc disables the not-in-the-past rule.
func CheckSpecific(index int, s SpecificSchedule, loc *time.Location, now time.Time) []Violation {
	ref := Ref{Kind: KindSpecific, Index: index}
	out := ValidateSpecificFields(index, s)

	parseLoc := loc
	if parseLoc == nil {
		parseLoc = time.UTC
	}
	start, startErr := ParseDateTime(s.StartDateTime, parseLoc)
	end, endErr := ParseDateTime(s.EndDateTime, parseLoc)

	if loc != nil {
		if startErr == nil && start.Before(now) {
			out = append(out, beforeCurrent(ref, FieldStartDateTime, s.StartDateTime))
		}
		if endErr == nil && end.Before(now) {
			out = append(out, beforeCurrent(ref, FieldEndDateTime, s.EndDateTime))
		}
	}
	if startErr == nil && endErr == nil && !start.Before(end) {
		out = append(out, endBeforeStart(ref, FieldEndDateTime, s.EndDateTime, FieldStartDateTime, s.StartDateTime))
	}
	return append(out, minMaxViolations(ref, s.Counts)...)
}

// CheckRecurring returns the field and consistency violations of one recurring
// schedule. A nil loc disables the not-in-the-past rule.
func CheckRecurring(index int, s RecurringSchedule, loc *time.Location, now time.Time) []Violation {
	ref := Ref{Kind: KindRecurring, Index: index}
	out := ValidateRecurringFields(index, s)

	startDate, startDateErr := ParseDate(s.StartDate)
	endDate, endDateErr := ParseDate(s.EndDate)
	if loc != nil {
		today := Today(now, loc)
		if startDateErr == nil && startDate.Before(today) {
			out = append(out, beforeCurrent(ref, FieldStartDate, s.StartDate))
		}
		if endDateErr == nil && endDate.Before(today) {
			out = append(out, beforeCurrent(ref, FieldEndDate, s.EndDate))
		}
	}
	if startDateErr == nil && endDateErr == nil && endDate.Before(startDate) {
		out = append(out, endBeforeStart(ref, FieldEndDate, s.EndDate, FieldStartDate, s.StartDate))
	}

	startTime, startTimeErr := ParseTimeOfDay(s.StartTime)
	endTime, endTimeErr := ParseTimeOfDay(s.EndTime)
	if startTimeErr == nil && endTimeErr == nil && startTime >= endTime {
		out = append(out, newViolation(CodeOrderingViolation, KeyStartAfterEnd, ref, FieldEndTime,
			FieldEndTime, s.EndTime, FieldStartTime, s.StartTime))
	}
	return append(out, minMaxViolations(ref, s.Counts)...)
}

// minMaxViolations compares min and max only when both are present and
// non-negative; the other cases are reported by the field rules.
func minMaxViolations(ref Ref, c Counts) []Violation {
	if c.InstanceMinCount == nil || c.InstanceMaxCount == nil {
		return nil
	}
	lo, hi := *c.InstanceMinCount, *c.InstanceMaxCount
	if lo < 0 || hi < 0 || lo <= hi {
		return nil
	}
	return []Violation{newViolation(CodeOrderingViolation, KeyMinGreater, ref, FieldInstanceMinCount,
		FieldInstanceMaxCount, hi, FieldInstanceMinCount, lo)}
}
