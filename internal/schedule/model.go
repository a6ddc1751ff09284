// Package schedule holds the schedule policy aggregate and the pure validators
// that decide whether a submitted policy can be materialized.
//
// A Policy owns its schedules by value. Individual schedules are addressed by
// (Kind, index) through Ref; nothing in the package keeps back-references from
// a schedule to its policy.
package schedule

import "strconv"

// Kind distinguishes one-shot schedules from recurring ones.
type Kind int

const (
	// KindSpecific is a one-shot window bounded by absolute date-times.
	KindSpecific Kind = iota + 1
	// KindRecurring repeats on selected weekdays or days of the month.
	KindRecurring
)

// Label returns the name used for the kind in rendered messages and payloads.
func (k Kind) Label() string {
	switch k {
	case KindSpecific:
		return "specific_schedule"
	case KindRecurring:
		return "recurring_schedule"
	default:
		return ""
	}
}

func (k Kind) String() string {
	switch k {
	case KindSpecific:
		return "specific"
	case KindRecurring:
		return "recurring"
	default:
		return "unknown"
	}
}

// Field names as they appear on the wire.
const (
	FieldStartDateTime           = "start_date_time"
	FieldEndDateTime             = "end_date_time"
	FieldStartDate               = "start_date"
	FieldEndDate                 = "end_date"
	FieldStartTime               = "start_time"
	FieldEndTime                 = "end_time"
	FieldDayOfWeek               = "day_of_week"
	FieldDayOfMonth              = "day_of_month"
	FieldInstanceMinCount        = "instance_min_count"
	FieldInstanceMaxCount        = "instance_max_count"
	FieldInitialMinInstanceCount = "initial_min_instance_count"
	FieldTimezone                = "timezone"
)

// Ref addresses a schedule inside a policy. The zero Ref denotes the policy itself.
type Ref struct {
	Kind  Kind
	Index int
}

// IsPolicy reports whether the reference points at the policy rather than a schedule.
func (r Ref) IsPolicy() bool {
	return r.Kind == 0
}

// Label renders the reference as "<kind label> <index>".
func (r Ref) Label() string {
	if r.IsPolicy() {
		return ""
	}
	return r.Kind.Label() + " " + strconv.Itoa(r.Index)
}

// Counts carries the instance-count override applied while a schedule is active.
// Nil pointers mean the value was not submitted.
type Counts struct {
	InstanceMinCount        *int
	InstanceMaxCount        *int
	InitialMinInstanceCount *int
}

// SpecificSchedule is a one-shot window. Date-times use DateTimeLayout and are
// interpreted in the policy timezone.
type SpecificSchedule struct {
	StartDateTime string
	EndDateTime   string
	Counts
}

// RecurringSchedule repeats on DaysOfWeek (1 = Monday … 7 = Sunday) or on
// DaysOfMonth, between StartTime and EndTime, optionally bounded by StartDate
// and EndDate.
type RecurringSchedule struct {
	StartDate   string
	EndDate     string
	StartTime   string
	EndTime     string
	DaysOfWeek  []int
	DaysOfMonth []int
	Counts
}

// Policy is the complete set of schedules submitted for one application.
type Policy struct {
	AppID     string
	Timezone  string
	Specific  []SpecificSchedule
	Recurring []RecurringSchedule
}

// Len returns the number of schedules of both kinds.
func (p Policy) Len() int {
	return len(p.Specific) + len(p.Recurring)
}

// Refs lists every schedule reference in submission order, specific schedules first.
func (p Policy) Refs() []Ref {
	refs := make([]Ref, 0, p.Len())
	for i := range p.Specific {
		refs = append(refs, Ref{Kind: KindSpecific, Index: i})
	}
	for i := range p.Recurring {
		refs = append(refs, Ref{Kind: KindRecurring, Index: i})
	}
	return refs
}

// CountsAt returns the counts of the referenced schedule.
func (p Policy) CountsAt(ref Ref) (Counts, bool) {
	switch ref.Kind {
	case KindSpecific:
		if ref.Index >= 0 && ref.Index < len(p.Specific) {
			return p.Specific[ref.Index].Counts, true
		}
	case KindRecurring:
		if ref.Index >= 0 && ref.Index < len(p.Recurring) {
			return p.Recurring[ref.Index].Counts, true
		}
	}
	return Counts{}, false
}

// Clone returns a deep copy of the policy.
func (p Policy) Clone() Policy {
	clone := Policy{AppID: p.AppID, Timezone: p.Timezone}
	if p.Specific != nil {
		clone.Specific = make([]SpecificSchedule, len(p.Specific))
		for i, s := range p.Specific {
			s.Counts = CloneCounts(s.Counts)
			clone.Specific[i] = s
		}
	}
	if p.Recurring != nil {
		clone.Recurring = make([]RecurringSchedule, len(p.Recurring))
		for i, s := range p.Recurring {
			s.Counts = CloneCounts(s.Counts)
			s.DaysOfWeek = cloneInts(s.DaysOfWeek)
			s.DaysOfMonth = cloneInts(s.DaysOfMonth)
			clone.Recurring[i] = s
		}
	}
	return clone
}

// CloneCounts returns a copy of c that shares no pointers with it.
func CloneCounts(c Counts) Counts {
	return Counts{
		InstanceMinCount:        cloneInt(c.InstanceMinCount),
		InstanceMaxCount:        cloneInt(c.InstanceMaxCount),
		InitialMinInstanceCount: cloneInt(c.InitialMinInstanceCount),
	}
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInts(v []int) []int {
	if v == nil {
		return nil
	}
	return append([]int(nil), v...)
}
