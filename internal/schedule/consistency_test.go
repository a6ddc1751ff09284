package schedule

import (
	"reflect"
	"testing"
	"time"
)

var referenceNow = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

func TestCheckSpecific(t *testing.T) {
	t.Parallel()

	future := func(d time.Duration) string {
		return FormatDateTime(referenceNow.Add(d), time.UTC)
	}

	t.Run("accepts a window in the future", func(t *testing.T) {
		t.Parallel()
		s := SpecificSchedule{StartDateTime: future(time.Hour), EndDateTime: future(2 * time.Hour), Counts: validCounts()}
		if got := CheckSpecific(0, s, time.UTC, referenceNow); len(got) != 0 {
			t.Fatalf("expected no violations, got %v", got)
		}
	})

	t.Run("rejects date-times before now", func(t *testing.T) {
		t.Parallel()
		s := SpecificSchedule{StartDateTime: "2023-12-31T10:00", EndDateTime: future(time.Hour), Counts: validCounts()}
		got := CheckSpecific(0, s, time.UTC, referenceNow)
		want := []any{"specific_schedule 0", FieldStartDateTime, "2023-12-31T10:00"}
		if len(got) != 1 || got[0].Key != KeyBeforeCurrent || !reflect.DeepEqual(got[0].Args, want) {
			t.Fatalf("unexpected violations %v", got)
		}
		if got[0].Code != CodeTemporalViolation {
			t.Fatalf("expected temporal code, got %s", got[0].Code)
		}
	})

	t.Run("swapped bounds name both fields", func(t *testing.T) {
		t.Parallel()
		start, end := future(2*time.Hour), future(time.Hour)
		s := SpecificSchedule{StartDateTime: start, EndDateTime: end, Counts: validCounts()}
		got := CheckSpecific(3, s, time.UTC, referenceNow)
		want := []any{"specific_schedule 3", FieldEndDateTime, end, FieldStartDateTime, start}
		if len(got) != 1 || got[0].Key != KeyEndBeforeStart || !reflect.DeepEqual(got[0].Args, want) {
			t.Fatalf("unexpected violations %v", got)
		}
	})

	t.Run("equal bounds are an ordering violation", func(t *testing.T) {
		t.Parallel()
		s := SpecificSchedule{StartDateTime: future(time.Hour), EndDateTime: future(time.Hour), Counts: validCounts()}
		got := CheckSpecific(0, s, time.UTC, referenceNow)
		if len(got) != 1 || got[0].Code != CodeOrderingViolation {
			t.Fatalf("unexpected violations %v", got)
		}
	})

	t.Run("min greater than max", func(t *testing.T) {
		t.Parallel()
		s := SpecificSchedule{
			StartDateTime: future(time.Hour),
			EndDateTime:   future(2 * time.Hour),
			Counts:        Counts{InstanceMinCount: intPtr(5), InstanceMaxCount: intPtr(4)},
		}
		got := CheckSpecific(0, s, time.UTC, referenceNow)
		want := []any{"specific_schedule 0", FieldInstanceMaxCount, 4, FieldInstanceMinCount, 5}
		if len(got) != 1 || got[0].Key != KeyMinGreater || !reflect.DeepEqual(got[0].Args, want) {
			t.Fatalf("unexpected violations %v", got)
		}

		s.Counts = Counts{InstanceMinCount: intPtr(4), InstanceMaxCount: intPtr(4)}
		if got := CheckSpecific(0, s, time.UTC, referenceNow); len(got) != 0 {
			t.Fatalf("expected equal counts to be accepted, got %v", got)
		}
	})

	t.Run("date-times are read in the policy timezone", func(t *testing.T) {
		t.Parallel()
		tokyo, err := time.LoadLocation("Asia/Tokyo")
		if err != nil {
			t.Skipf("tz database unavailable: %v", err)
		}
		// 2024-01-03T00:30 in Tokyo is 2024-01-02T15:30Z, after referenceNow.
		s := SpecificSchedule{StartDateTime: "2024-01-03T00:30", EndDateTime: "2024-01-03T01:30", Counts: validCounts()}
		if got := CheckSpecific(0, s, tokyo, referenceNow); len(got) != 0 {
			t.Fatalf("expected no violations in Asia/Tokyo, got %v", got)
		}
		// 2024-01-03T00:00 in Tokyo is 2024-01-02T15:00Z, before referenceNow.
		s.StartDateTime = "2024-01-03T00:00"
		got := CheckSpecific(0, s, tokyo, referenceNow)
		if len(got) != 1 || got[0].Key != KeyBeforeCurrent {
			t.Fatalf("expected before current violation, got %v", got)
		}
	})
}

func TestCheckRecurring(t *testing.T) {
	t.Parallel()

	t.Run("dates before today are temporal violations", func(t *testing.T) {
		t.Parallel()
		s := validRecurring()
		s.StartDate = "1970-01-01"
		s.EndDate = "1970-01-01"
		got := CheckRecurring(0, s, time.UTC, referenceNow)
		if !reflect.DeepEqual(keysOf(got), []string{KeyBeforeCurrent, KeyBeforeCurrent}) {
			t.Fatalf("unexpected violations %v", got)
		}
		if got[0].Field != FieldStartDate || got[1].Field != FieldEndDate {
			t.Fatalf("expected start_date then end_date, got %s, %s", got[0].Field, got[1].Field)
		}
	})

	t.Run("today is accepted", func(t *testing.T) {
		t.Parallel()
		s := validRecurring()
		s.StartDate = "2024-01-02"
		if got := CheckRecurring(0, s, time.UTC, referenceNow); len(got) != 0 {
			t.Fatalf("expected no violations, got %v", got)
		}
	})

	t.Run("today depends on the policy timezone", func(t *testing.T) {
		t.Parallel()
		auckland, err := time.LoadLocation("Pacific/Auckland")
		if err != nil {
			t.Skipf("tz database unavailable: %v", err)
		}
		s := validRecurring()
		s.StartDate = "2024-01-02"
		got := CheckRecurring(0, s, auckland, referenceNow)
		if len(got) != 1 || got[0].Key != KeyBeforeCurrent {
			t.Fatalf("expected before current in Pacific/Auckland, got %v", got)
		}
	})

	t.Run("end date before start date", func(t *testing.T) {
		t.Parallel()
		s := validRecurring()
		s.StartDate = "2026-01-02"
		s.EndDate = "2025-01-02"
		got := CheckRecurring(0, s, time.UTC, referenceNow)
		want := []any{"recurring_schedule 0", FieldEndDate, "2025-01-02", FieldStartDate, "2026-01-02"}
		if len(got) != 1 || got[0].Key != KeyEndBeforeStart || !reflect.DeepEqual(got[0].Args, want) {
			t.Fatalf("unexpected violations %v", got)
		}
	})

	t.Run("start time not before end time", func(t *testing.T) {
		t.Parallel()
		for _, times := range [][2]string{{"10:00", "09:00"}, {"10:00", "10:00"}} {
			s := validRecurring()
			s.StartTime, s.EndTime = times[0], times[1]
			got := CheckRecurring(0, s, time.UTC, referenceNow)
			want := []any{"recurring_schedule 0", FieldEndTime, times[1], FieldStartTime, times[0]}
			if len(got) != 1 || got[0].Key != KeyStartAfterEnd || !reflect.DeepEqual(got[0].Args, want) {
				t.Fatalf("times %v: unexpected violations %v", times, got)
			}
		}
	})

	t.Run("initial min count has no ordering constraint", func(t *testing.T) {
		t.Parallel()
		s := validRecurring()
		s.InitialMinInstanceCount = intPtr(50)
		if got := CheckRecurring(0, s, time.UTC, referenceNow); len(got) != 0 {
			t.Fatalf("expected no violations, got %v", got)
		}
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("empty policy reports no schedules", func(t *testing.T) {
		t.Parallel()
		got := Validate(Policy{AppID: "app-1", Timezone: "UTC"}, referenceNow)
		if len(got) != 1 || got[0].Key != KeyNoSchedules {
			t.Fatalf("unexpected violations %v", got)
		}
		if !reflect.DeepEqual(got[0].Args, []any{"app_id=app-1"}) {
			t.Fatalf("unexpected args %v", got[0].Args)
		}
	})

	t.Run("timezone is required and must resolve", func(t *testing.T) {
		t.Parallel()
		p := Policy{AppID: "app-1", Recurring: []RecurringSchedule{validRecurring()}}
		got := Validate(p, referenceNow)
		if len(got) != 1 || got[0].Key != KeyTimezoneNotSpecified {
			t.Fatalf("unexpected violations %v", got)
		}

		p.Timezone = "Mars/Olympus_Mons"
		got = Validate(p, referenceNow)
		if len(got) != 1 || got[0].Key != KeyTimezoneInvalid {
			t.Fatalf("unexpected violations %v", got)
		}
	})

	t.Run("collects violations across schedules in a stable order", func(t *testing.T) {
		t.Parallel()
		badRecurring := validRecurring()
		badRecurring.DaysOfWeek = []int{1, 2, 2}
		missingCounts := validRecurring()
		missingCounts.Counts = Counts{}

		p := Policy{
			AppID:    "app-1",
			Timezone: "UTC",
			Specific: []SpecificSchedule{
				{StartDateTime: "2030-01-01T10:00", EndDateTime: "2030-01-01T09:00", Counts: validCounts()},
			},
			Recurring: []RecurringSchedule{validRecurring(), badRecurring, missingCounts},
		}

		for i := 0; i < 20; i++ {
			got := Validate(p, referenceNow)
			labels := make([]any, 0, len(got))
			for _, v := range got {
				labels = append(labels, v.Args[0])
			}
			want := []any{"specific_schedule 0", "recurring_schedule 1", "recurring_schedule 2", "recurring_schedule 2"}
			if !reflect.DeepEqual(labels, want) {
				t.Fatalf("run %d: expected labels %v, got %v", i, want, labels)
			}
		}
	})
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	if _, err := LoadLocation("Local"); err == nil {
		t.Fatalf("expected Local to be rejected")
	}
	tod, err := ParseTimeOfDay("09:30:59")
	if err != nil || tod.String() != "09:30" {
		t.Fatalf("expected 09:30, got %v (err %v)", tod, err)
	}
	d, err := ParseDate("2024-02-29")
	if err != nil || d.String() != "2024-02-29" {
		t.Fatalf("expected leap day, got %v (err %v)", d, err)
	}
	if _, err := ParseDate("2023-02-29"); err == nil {
		t.Fatalf("expected invalid leap day to fail")
	}
	if !d.Before(Date{Year: 2024, Month: time.March, Day: 1}) {
		t.Fatalf("expected %v before 2024-03-01", d)
	}
}
