package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Wire layouts for schedule dates and times.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04"
	DateTimeLayout = "2006-01-02T15:04"
)

var (
	// ErrEmptyValue is returned when a required date or time string is blank.
	ErrEmptyValue = errors.New("schedule: empty value")
	// ErrUnknownTimezone is returned for identifiers the tz database does not know.
	ErrUnknownTimezone = errors.New("schedule: unknown timezone")
)

// Date is a calendar date without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a DateLayout string.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Date{}, ErrEmptyValue
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("schedule: parse date %q: %w", value, err)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the calendar date of now observed in loc.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(now.In(loc))
}

// Compare returns -1, 0 or 1 ordering d relative to other.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d == Date{} }

// At returns the instant at which d reaches tod in loc.
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, tod.Hour(), tod.Minute(), 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// TimeOfDay counts minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses a TimeLayout string. Seconds ("15:04:05") are accepted
// and truncated.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, ErrEmptyValue
	}
	layout := TimeLayout
	if strings.Count(value, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return 0, fmt.Errorf("schedule: parse time %q: %w", value, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// ParseDateTime parses a DateTimeLayout string as wall-clock time in loc.
func ParseDateTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptyValue
	}
	if loc == nil {
		loc = time.UTC
	}
	layout := DateTimeLayout
	if strings.Count(value, ":") == 2 {
		layout = "2006-01-02T15:04:05"
	}
	t, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: parse date-time %q: %w", value, err)
	}
	return t, nil
}

// FormatDateTime renders t in loc using DateTimeLayout.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DateTimeLayout)
}

// LoadLocation resolves an IANA identifier. The process-local zone is rejected
// so that results never depend on host configuration.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyValue
	}
	if strings.EqualFold(name, "Local") {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTimezone, name)
	}
	return loc, nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
