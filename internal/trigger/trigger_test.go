package trigger

import (
	"errors"
	"testing"
	"time"

	"github.com/example/autoscaler-scheduler/internal/schedule"
)

func TestRecurrenceCron(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rec  Recurrence
		want string
	}{
		{name: "weekdays map sunday to zero", rec: Recurrence{Hour: 9, Minute: 30, Weekdays: []int{1, 5, 7}}, want: "30 9 * * 1,5,0"},
		{name: "month days", rec: Recurrence{Hour: 23, Minute: 0, MonthDays: []int{1, 15, 31}}, want: "0 23 1,15,31 * *"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.rec.Cron(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestDescriptorValidate(t *testing.T) {
	t.Parallel()

	valid := Descriptor{
		AppID:    "app-1",
		Kind:     schedule.KindSpecific,
		Action:   ActionActivate,
		Timezone: "UTC",
		FireAt:   time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid descriptor, got %v", err)
	}

	cases := map[string]func(d *Descriptor){
		"missing app":      func(d *Descriptor) { d.AppID = "" },
		"missing action":   func(d *Descriptor) { d.Action = 0 },
		"no firing":        func(d *Descriptor) { d.FireAt = time.Time{} },
		"unknown timezone": func(d *Descriptor) { d.Timezone = "Nowhere/Special" },
		"bad recurrence":   func(d *Descriptor) { d.Recurrence = &Recurrence{Hour: 25, Weekdays: []int{1}} },
	}
	for name, mutate := range cases {
		d := valid
		mutate(&d)
		if err := d.Validate(); !errors.Is(err, ErrInvalidDescriptor) {
			t.Fatalf("%s: expected ErrInvalidDescriptor, got %v", name, err)
		}
	}
}

func TestDescriptorNextAfter(t *testing.T) {
	t.Parallel()

	t.Run("recurring triggers fire in their own timezone", func(t *testing.T) {
		t.Parallel()
		tokyo, err := time.LoadLocation("Asia/Tokyo")
		if err != nil {
			t.Skipf("tz database unavailable: %v", err)
		}
		d := Descriptor{
			AppID:      "app-1",
			Kind:       schedule.KindRecurring,
			Action:     ActionActivate,
			Timezone:   "Asia/Tokyo",
			Recurrence: &Recurrence{Hour: 9, Minute: 0, Weekdays: []int{1}},
		}
		// Tuesday 2024-01-02 15:04 UTC; the next Monday 09:00 in Tokyo is 2024-01-08.
		ref := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
		next, ok := d.NextAfter(ref)
		want := time.Date(2024, 1, 8, 9, 0, 0, 0, tokyo)
		if !ok || !next.Equal(want) {
			t.Fatalf("expected %v, got %v (ok=%v)", want, next, ok)
		}
	})

	t.Run("validity window bounds firings", func(t *testing.T) {
		t.Parallel()
		from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		until := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
		d := Descriptor{
			AppID:      "app-1",
			Kind:       schedule.KindRecurring,
			Action:     ActionDeactivate,
			Timezone:   "UTC",
			Recurrence: &Recurrence{Hour: 10, Minute: 0, MonthDays: []int{1, 2, 3}},
			ValidFrom:  from,
			ValidUntil: &until,
		}
		next, ok := d.NextAfter(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		if !ok || !next.Equal(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)) {
			t.Fatalf("expected first firing on valid-from day, got %v (ok=%v)", next, ok)
		}
		next, ok = d.NextAfter(next)
		if !ok || !next.Equal(until) {
			t.Fatalf("expected firing at valid-until, got %v (ok=%v)", next, ok)
		}
		if next, ok = d.NextAfter(next); ok {
			t.Fatalf("expected no firing after valid-until, got %v", next)
		}
	})

	t.Run("one-shot triggers fire once", func(t *testing.T) {
		t.Parallel()
		at := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
		d := Descriptor{AppID: "app-1", Action: ActionActivate, Timezone: "UTC", FireAt: at}
		if next, ok := d.NextAfter(at.Add(-time.Minute)); !ok || !next.Equal(at) {
			t.Fatalf("expected %v, got %v", at, next)
		}
		if _, ok := d.NextAfter(at); ok {
			t.Fatalf("expected no firing after the fire time")
		}
	})
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	for _, a := range []Action{ActionActivate, ActionDeactivate} {
		got, err := ParseAction(a.String())
		if err != nil || got != a {
			t.Fatalf("expected %v, got %v (err %v)", a, got, err)
		}
	}
	if _, err := ParseAction("pause"); err == nil {
		t.Fatalf("expected unknown action to fail")
	}
}
