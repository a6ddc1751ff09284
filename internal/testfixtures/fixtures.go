package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/autoscaler-scheduler/internal/persistence"
	"github.com/example/autoscaler-scheduler/internal/recurrence"
	"github.com/example/autoscaler-scheduler/internal/schedule"
	"github.com/example/autoscaler-scheduler/internal/trigger"
)

var (
	policyCounter uint64
	handleCounter uint64
)

// 2024-01-02 is a Tuesday.
var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}

// Counts returns a counts payload without an initial minimum.
func Counts(min, max int) schedule.Counts {
	return schedule.Counts{InstanceMinCount: Int(min), InstanceMaxCount: Int(max)}
}

// ---------------------------- Schedule fixtures ----------------------------

// Specific returns a one-shot schedule between two "2006-01-02T15:04" values
// with counts 1..5.
func Specific(start, end string) schedule.SpecificSchedule {
	return schedule.SpecificSchedule{StartDateTime: start, EndDateTime: end, Counts: Counts(1, 5)}
}

// Weekly returns a recurring schedule on ISO weekdays with counts 2..6.
func Weekly(start, end string, days ...int) schedule.RecurringSchedule {
	return schedule.RecurringSchedule{StartTime: start, EndTime: end, DaysOfWeek: days, Counts: Counts(2, 6)}
}

// Monthly returns a recurring schedule on days of the month with counts 2..6.
func Monthly(start, end string, days ...int) schedule.RecurringSchedule {
	return schedule.RecurringSchedule{StartTime: start, EndTime: end, DaysOfMonth: days, Counts: Counts(2, 6)}
}

// PolicyOption configures a generated policy.
type PolicyOption func(*schedule.Policy)

// NewPolicy returns a valid policy for appID: UTC, with a single weekday
// schedule from 09:00 to 17:00 unless options replace the schedules.
func NewPolicy(appID string, opts ...PolicyOption) schedule.Policy {
	p := schedule.Policy{
		AppID:     appID,
		Timezone:  "UTC",
		Recurring: []schedule.RecurringSchedule{Weekly("09:00", "17:00", 1, 2, 3, 4, 5)},
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithTimezone overrides the policy timezone.
func WithTimezone(tz string) PolicyOption {
	return func(p *schedule.Policy) {
		p.Timezone = tz
	}
}

// WithSchedules replaces every schedule of the policy.
func WithSchedules(specific []schedule.SpecificSchedule, recurring []schedule.RecurringSchedule) PolicyOption {
	return func(p *schedule.Policy) {
		p.Specific = specific
		p.Recurring = recurring
	}
}

// WithSpecific appends one-shot schedules.
func WithSpecific(s ...schedule.SpecificSchedule) PolicyOption {
	return func(p *schedule.Policy) {
		p.Specific = append(p.Specific, s...)
	}
}

// WithRecurring appends recurring schedules.
func WithRecurring(s ...schedule.RecurringSchedule) PolicyOption {
	return func(p *schedule.Policy) {
		p.Recurring = append(p.Recurring, s...)
	}
}

// ----------------------------- Record fixtures -----------------------------

// RecordOption configures a generated policy record.
type RecordOption func(*persistence.PolicyRecord)

// NewPolicyRecord wraps p in a record with a deterministic GUID, fingerprint
// and timestamps.
func NewPolicyRecord(p schedule.Policy, opts ...RecordOption) persistence.PolicyRecord {
	idx := atomic.AddUint64(&policyCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	record := persistence.PolicyRecord{
		AppID:       p.AppID,
		GUID:        fmt.Sprintf("guid-%03d", idx),
		Fingerprint: fmt.Sprintf("fingerprint-%03d", idx),
		Policy:      p,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	for _, opt := range opts {
		opt(&record)
	}
	return record
}

// WithGUID overrides the generated GUID.
func WithGUID(guid string) RecordOption {
	return func(r *persistence.PolicyRecord) {
		r.GUID = guid
	}
}

// WithRecordTimestamps overrides the created and updated timestamps.
func WithRecordTimestamps(created, updated time.Time) RecordOption {
	return func(r *persistence.PolicyRecord) {
		r.CreatedAt = created
		r.UpdatedAt = updated
	}
}

// TriggerRecords materializes the record's policy at ReferenceTime and pairs
// every descriptor with a generated handle.
func TriggerRecords(record persistence.PolicyRecord) []persistence.TriggerRecord {
	descriptors, err := recurrence.NewEngine().Materialize(record.Policy, record.GUID, referenceTime)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: materialize %s: %v", record.AppID, err))
	}
	out := make([]persistence.TriggerRecord, 0, len(descriptors))
	for _, d := range descriptors {
		idx := atomic.AddUint64(&handleCounter, 1)
		out = append(out, persistence.TriggerRecord{
			Handle:     trigger.Handle(fmt.Sprintf("handle-%03d", idx)),
			Descriptor: d,
			CreatedAt:  record.UpdatedAt,
		})
	}
	return out
}
