package schedule

import "fmt"

// Code classifies a validation failure.
type Code int

const (
	CodeFieldMissing Code = iota + 1
	CodeFieldInvalidValue
	CodeFieldSetInconsistent
	CodeFieldValueOutOfRange
	CodeFieldValuesNotUnique
	CodeOrderingViolation
	CodeTemporalViolation
	CodeNoSchedulesSubmitted
	CodeScheduleOverlap
)

func (c Code) String() string {
	switch c {
	case CodeFieldMissing:
		return "field_missing"
	case CodeFieldInvalidValue:
		return "field_invalid_value"
	case CodeFieldSetInconsistent:
		return "field_set_inconsistent"
	case CodeFieldValueOutOfRange:
		return "field_value_out_of_range"
	case CodeFieldValuesNotUnique:
		return "field_values_not_unique"
	case CodeOrderingViolation:
		return "ordering_violation"
	case CodeTemporalViolation:
		return "temporal_violation"
	case CodeNoSchedulesSubmitted:
		return "no_schedules_submitted"
	case CodeScheduleOverlap:
		return "schedule_overlap"
	default:
		return "unknown"
	}
}

// Message keys understood by the message catalog.
const (
	KeyValueNotSpecified      = "schedule.data.value.not.specified"
	KeyValueInvalid           = "schedule.data.value.invalid"
	KeyBothValuesNotSpecified = "schedule.data.both.values.not.specified"
	KeyBothValuesSpecified    = "schedule.data.both.values.specified"
	KeyInvalidDay             = "schedule.data.invalid.day"
	KeyNotUnique              = "schedule.data.not.unique"
	KeyBeforeCurrent          = "schedule.date.invalid.before.current"
	KeyEndBeforeStart         = "schedule.date.invalid.end.before.start"
	KeyStartAfterEnd          = "schedule.date.invalid.start.after.end"
	KeyMinGreater             = "schedule.instanceCount.invalid.min.greater"
	KeyOverlap                = "schedule.date.overlap"
	KeyNoSchedules            = "data.invalid.noSchedules"
	KeyTimezoneNotSpecified   = "data.value.not.specified"
	KeyTimezoneInvalid        = "data.invalid.timezone"
)

// Day set bounds.
const (
	DayOfWeekMin  = 1
	DayOfWeekMax  = 7
	DayOfMonthMin = 1
	DayOfMonthMax = 31
)

// Violation is one structured validation failure. Args holds the positional
// arguments of the message identified by Key, in rendering order.
type Violation struct {
	Code  Code
	Key   string
	Ref   Ref
	Field string
	Args  []any
}

func (v Violation) Error() string {
	if v.Ref.IsPolicy() {
		return fmt.Sprintf("%s: %s %v", v.Code, v.Key, v.Args)
	}
	return fmt.Sprintf("%s: %s %s %v", v.Ref.Label(), v.Code, v.Key, v.Args)
}

func newViolation(code Code, key string, ref Ref, field string, args ...any) Violation {
	positional := make([]any, 0, len(args)+1)
	if !ref.IsPolicy() {
		positional = append(positional, ref.Label())
	}
	positional = append(positional, args...)
	return Violation{Code: code, Key: key, Ref: ref, Field: field, Args: positional}
}

func missing(ref Ref, field string) Violation {
	return newViolation(CodeFieldMissing, KeyValueNotSpecified, ref, field, field)
}

func invalidValue(ref Ref, field string, value any) Violation {
	return newViolation(CodeFieldInvalidValue, KeyValueInvalid, ref, field, field, value)
}

func beforeCurrent(ref Ref, field, value string) Violation {
	return newViolation(CodeTemporalViolation, KeyBeforeCurrent, ref, field, field, value)
}

func endBeforeStart(ref Ref, endField, endValue, startField, startValue string) Violation {
	return newViolation(CodeOrderingViolation, KeyEndBeforeStart, ref, endField, endField, endValue, startField, startValue)
}

// Overlap reports that a's field and b's field describe coinciding windows.
func Overlap(a Ref, fieldA string, b Ref, fieldB string) Violation {
	return Violation{
		Code:  CodeScheduleOverlap,
		Key:   KeyOverlap,
		Ref:   a,
		Field: fieldA,
		Args:  []any{a.Label(), fieldA, b.Label(), fieldB},
	}
}
