package schedule

import "strings"

// ValidateSpecificFields checks the structure of one specific schedule. Every
// rule runs; the result lists all failures in field order.
func ValidateSpecificFields(index int, s SpecificSchedule) []Violation {
	ref := Ref{Kind: KindSpecific, Index: index}
	var out []Violation
	out = appendDateTimeField(out, ref, FieldStartDateTime, s.StartDateTime)
	out = appendDateTimeField(out, ref, FieldEndDateTime, s.EndDateTime)
	out = append(out, countViolations(ref, s.Counts)...)
	return out
}

// ValidateRecurringFields checks the structure of one recurring schedule.
func ValidateRecurringFields(index int, s RecurringSchedule) []Violation {
	ref := Ref{Kind: KindRecurring, Index: index}
	var out []Violation
	out = appendOptionalDateField(out, ref, FieldStartDate, s.StartDate)
	out = appendOptionalDateField(out, ref, FieldEndDate, s.EndDate)
	out = appendTimeField(out, ref, FieldStartTime, s.StartTime)
	out = appendTimeField(out, ref, FieldEndTime, s.EndTime)
	out = append(out, countViolations(ref, s.Counts)...)
	out = append(out, daySetViolations(ref, s.DaysOfWeek, s.DaysOfMonth)...)
	return out
}

func appendDateTimeField(out []Violation, ref Ref, field, value string) []Violation {
	if isBlank(value) {
		return append(out, missing(ref, field))
	}
	if _, err := ParseDateTime(value, nil); err != nil {
		return append(out, invalidValue(ref, field, value))
	}
	return out
}

func appendOptionalDateField(out []Violation, ref Ref, field, value string) []Violation {
	if isBlank(value) {
		return out
	}
	if _, err := ParseDate(value); err != nil {
		return append(out, invalidValue(ref, field, value))
	}
	return out
}

func appendTimeField(out []Violation, ref Ref, field, value string) []Violation {
	if isBlank(value) {
		return append(out, missing(ref, field))
	}
	if _, err := ParseTimeOfDay(value); err != nil {
		return append(out, invalidValue(ref, field, value))
	}
	return out
}

func countViolations(ref Ref, c Counts) []Violation {
	var out []Violation
	if c.InstanceMaxCount == nil {
		out = append(out, missing(ref, FieldInstanceMaxCount))
	}
	if c.InstanceMinCount == nil {
		out = append(out, missing(ref, FieldInstanceMinCount))
	}
	if c.InstanceMinCount != nil && *c.InstanceMinCount < 0 {
		out = append(out, invalidValue(ref, FieldInstanceMinCount, *c.InstanceMinCount))
	}
	if c.InstanceMaxCount != nil && *c.InstanceMaxCount < 0 {
		out = append(out, invalidValue(ref, FieldInstanceMaxCount, *c.InstanceMaxCount))
	}
	if c.InitialMinInstanceCount != nil && *c.InitialMinInstanceCount < 0 {
		out = append(out, invalidValue(ref, FieldInitialMinInstanceCount, *c.InitialMinInstanceCount))
	}
	return out
}

// daySetViolations enforces that exactly one day set is present. When the
// structure is wrong no element checks are reported for that schedule.
func daySetViolations(ref Ref, daysOfWeek, daysOfMonth []int) []Violation {
	hasWeek, hasMonth := len(daysOfWeek) > 0, len(daysOfMonth) > 0
	switch {
	case !hasWeek && !hasMonth:
		return []Violation{newViolation(CodeFieldSetInconsistent, KeyBothValuesNotSpecified, ref, FieldDayOfWeek, FieldDayOfWeek, FieldDayOfMonth)}
	case hasWeek && hasMonth:
		return []Violation{newViolation(CodeFieldSetInconsistent, KeyBothValuesSpecified, ref, FieldDayOfWeek, FieldDayOfWeek, FieldDayOfMonth)}
	case hasWeek:
		return daySetElementViolations(ref, FieldDayOfWeek, daysOfWeek, DayOfWeekMin, DayOfWeekMax, true)
	default:
		return daySetElementViolations(ref, FieldDayOfMonth, daysOfMonth, DayOfMonthMin, DayOfMonthMax, false)
	}
}

// daySetElementViolations reports at most one range and one uniqueness failure
// for the set. Weekday uniqueness messages carry the bounds, day-of-month ones do not.
func daySetElementViolations(ref Ref, field string, days []int, lo, hi int, boundsInUnique bool) []Violation {
	var out []Violation
	seen := make(map[int]struct{}, len(days))
	outOfRange, duplicated := false, false
	for _, day := range days {
		if day < lo || day > hi {
			outOfRange = true
		}
		if _, ok := seen[day]; ok {
			duplicated = true
		}
		seen[day] = struct{}{}
	}
	if outOfRange {
		out = append(out, newViolation(CodeFieldValueOutOfRange, KeyInvalidDay, ref, field, field, lo, hi))
	}
	if duplicated {
		if boundsInUnique {
			out = append(out, newViolation(CodeFieldValuesNotUnique, KeyNotUnique, ref, field, field, lo, hi))
		} else {
			out = append(out, newViolation(CodeFieldValuesNotUnique, KeyNotUnique, ref, field, field))
		}
	}
	return out
}

func isBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}
