// Package trigger defines the trigger descriptors handed to a Trigger Store and
// the stores that fire them: an in-process heap store and an Amazon
// EventBridge Scheduler store.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/example/autoscaler-scheduler/internal/schedule"
)

var (
	// ErrInvalidDescriptor is returned when a descriptor can never fire.
	ErrInvalidDescriptor = errors.New("trigger: invalid descriptor")
	// ErrStoreClosed is returned after the store's run loop has stopped.
	ErrStoreClosed = errors.New("trigger: store closed")
)

// Action tells the consumer what to do when a trigger fires.
type Action int

const (
	ActionActivate Action = iota + 1
	ActionDeactivate
)

func (a Action) String() string {
	switch a {
	case ActionActivate:
		return "activate"
	case ActionDeactivate:
		return "deactivate"
	default:
		return "unknown"
	}
}

// ParseAction is the inverse of Action.String.
func ParseAction(s string) (Action, error) {
	switch s {
	case "activate":
		return ActionActivate, nil
	case "deactivate":
		return ActionDeactivate, nil
	default:
		return 0, fmt.Errorf("%w: unknown action %q", ErrInvalidDescriptor, s)
	}
}

// Recurrence is the repeating part of a recurring descriptor. Exactly one of
// Weekdays (1 = Monday … 7 = Sunday) and MonthDays is set.
type Recurrence struct {
	Hour      int
	Minute    int
	Weekdays  []int
	MonthDays []int
}

// Cron renders the recurrence as a standard 5-field cron expression.
func (r Recurrence) Cron() string {
	dom, dow := "*", "*"
	switch {
	case len(r.Weekdays) > 0:
		days := make([]string, 0, len(r.Weekdays))
		for _, d := range r.Weekdays {
			days = append(days, strconv.Itoa(d%7))
		}
		dow = strings.Join(days, ",")
	case len(r.MonthDays) > 0:
		dom = joinInts(r.MonthDays)
	}
	return fmt.Sprintf("%d %d %s * %s", r.Minute, r.Hour, dom, dow)
}

func (r Recurrence) valid() bool {
	if r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59 {
		return false
	}
	if (len(r.Weekdays) == 0) == (len(r.MonthDays) == 0) {
		return false
	}
	for _, d := range r.Weekdays {
		if d < schedule.DayOfWeekMin || d > schedule.DayOfWeekMax {
			return false
		}
	}
	for _, d := range r.MonthDays {
		if d < schedule.DayOfMonthMin || d > schedule.DayOfMonthMax {
			return false
		}
	}
	return true
}

// Descriptor is one activate or deactivate trigger derived from a schedule.
// One-shot descriptors set FireAt; recurring descriptors set Recurrence and
// leave further firings to the store.
type Descriptor struct {
	AppID      string
	PolicyGUID string
	Kind       schedule.Kind
	Index      int
	Action     Action
	Timezone   string
	Counts     schedule.Counts

	FireAt     time.Time
	Recurrence *Recurrence
	ValidFrom  time.Time
	ValidUntil *time.Time

	// NextFire is the first firing at or after registration.
	NextFire time.Time
}

// Recurring reports whether the descriptor repeats.
func (d Descriptor) Recurring() bool { return d.Recurrence != nil }

// Name identifies the descriptor within its application.
func (d Descriptor) Name() string {
	return fmt.Sprintf("%s-%d-%s", kindSlug(d.Kind), d.Index, d.Action)
}

// Location resolves the descriptor's timezone.
func (d Descriptor) Location() (*time.Location, error) {
	return schedule.LoadLocation(d.Timezone)
}

// Clone returns a copy that shares no slices or pointers with d.
func (d Descriptor) Clone() Descriptor {
	d.Counts = schedule.CloneCounts(d.Counts)
	if d.Recurrence != nil {
		r := *d.Recurrence
		r.Weekdays = append([]int(nil), r.Weekdays...)
		r.MonthDays = append([]int(nil), r.MonthDays...)
		if len(r.Weekdays) == 0 {
			r.Weekdays = nil
		}
		if len(r.MonthDays) == 0 {
			r.MonthDays = nil
		}
		d.Recurrence = &r
	}
	if d.ValidUntil != nil {
		until := *d.ValidUntil
		d.ValidUntil = &until
	}
	return d
}

// Validate checks that the descriptor can be registered.
func (d Descriptor) Validate() error {
	switch {
	case d.AppID == "":
		return fmt.Errorf("%w: missing app id", ErrInvalidDescriptor)
	case d.Action != ActionActivate && d.Action != ActionDeactivate:
		return fmt.Errorf("%w: unknown action %d", ErrInvalidDescriptor, d.Action)
	case d.Recurrence == nil && d.FireAt.IsZero():
		return fmt.Errorf("%w: %s has neither fire time nor recurrence", ErrInvalidDescriptor, d.Name())
	case d.Recurrence != nil && !d.Recurrence.valid():
		return fmt.Errorf("%w: %s has an out of range recurrence", ErrInvalidDescriptor, d.Name())
	case d.Recurrence != nil && !gronx.IsValid(d.Recurrence.Cron()):
		return fmt.Errorf("%w: %s has invalid cron %q", ErrInvalidDescriptor, d.Name(), d.Recurrence.Cron())
	}
	if _, err := d.Location(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return nil
}

// NextAfter returns the first firing strictly after ref, honoring the
// validity window. ok is false when the descriptor will not fire again.
func (d Descriptor) NextAfter(ref time.Time) (time.Time, bool) {
	loc, err := d.Location()
	if err != nil {
		return time.Time{}, false
	}
	if d.Recurrence == nil {
		return d.FireAt, d.FireAt.After(ref)
	}
	if ref.Before(d.ValidFrom) {
		ref = d.ValidFrom.Add(-time.Second)
	}
	next, err := gronx.NextTickAfter(d.Recurrence.Cron(), ref.In(loc), false)
	if err != nil {
		return time.Time{}, false
	}
	if d.ValidUntil != nil && next.After(*d.ValidUntil) {
		return time.Time{}, false
	}
	return next, true
}

// Handle is the store-assigned identity of a registered trigger.
type Handle string

// Store registers and removes triggers. Firing semantics belong to the
// implementation.
type Store interface {
	Register(ctx context.Context, d Descriptor) (Handle, error)
	DeregisterAll(ctx context.Context, appID string) error
	Now(loc *time.Location) time.Time
}

// Event is delivered when a trigger fires.
type Event struct {
	Handle     Handle
	Descriptor Descriptor
	FiredAt    time.Time
}

// FireFunc consumes fired events.
type FireFunc func(ctx context.Context, ev Event)

func kindSlug(k schedule.Kind) string {
	switch k {
	case schedule.KindSpecific:
		return "specific"
	case schedule.KindRecurring:
		return "recurring"
	default:
		return "unknown"
	}
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, ",")
}
