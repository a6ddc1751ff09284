package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/autoscaler-scheduler/internal/schedule"
	"github.com/example/autoscaler-scheduler/internal/trigger"
)

// Stored documents use their own tagged types so the column format does not
// follow Go field renames.

type countsDocument struct {
	InstanceMinCount        *int `json:"instance_min_count,omitempty"`
	InstanceMaxCount        *int `json:"instance_max_count,omitempty"`
	InitialMinInstanceCount *int `json:"initial_min_instance_count,omitempty"`
}

type specificDocument struct {
	StartDateTime string `json:"start_date_time"`
	EndDateTime   string `json:"end_date_time"`
	countsDocument
}

type recurringDocument struct {
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	DaysOfWeek  []int  `json:"day_of_week,omitempty"`
	DaysOfMonth []int  `json:"day_of_month,omitempty"`
	countsDocument
}

type policyDocument struct {
	Specific  []specificDocument  `json:"specific_schedule,omitempty"`
	Recurring []recurringDocument `json:"recurring_schedule,omitempty"`
}

type recurrenceDocument struct {
	Hour      int   `json:"hour"`
	Minute    int   `json:"minute"`
	Weekdays  []int `json:"weekdays,omitempty"`
	MonthDays []int `json:"month_days,omitempty"`
}

type descriptorDocument struct {
	PolicyGUID string              `json:"policy_guid"`
	Timezone   string              `json:"timezone"`
	Counts     countsDocument      `json:"counts"`
	FireAt     *time.Time          `json:"fire_at,omitempty"`
	Recurrence *recurrenceDocument `json:"recurrence,omitempty"`
	ValidFrom  *time.Time          `json:"valid_from,omitempty"`
	ValidUntil *time.Time          `json:"valid_until,omitempty"`
	NextFire   *time.Time          `json:"next_fire,omitempty"`
}

func toCountsDocument(c schedule.Counts) countsDocument {
	c = schedule.CloneCounts(c)
	return countsDocument{
		InstanceMinCount:        c.InstanceMinCount,
		InstanceMaxCount:        c.InstanceMaxCount,
		InitialMinInstanceCount: c.InitialMinInstanceCount,
	}
}

func (d countsDocument) counts() schedule.Counts {
	return schedule.Counts{
		InstanceMinCount:        d.InstanceMinCount,
		InstanceMaxCount:        d.InstanceMaxCount,
		InitialMinInstanceCount: d.InitialMinInstanceCount,
	}
}

func encodePolicy(p schedule.Policy) (string, error) {
	var doc policyDocument
	for _, s := range p.Specific {
		doc.Specific = append(doc.Specific, specificDocument{
			StartDateTime:  s.StartDateTime,
			EndDateTime:    s.EndDateTime,
			countsDocument: toCountsDocument(s.Counts),
		})
	}
	for _, s := range p.Recurring {
		doc.Recurring = append(doc.Recurring, recurringDocument{
			StartDate:      s.StartDate,
			EndDate:        s.EndDate,
			StartTime:      s.StartTime,
			EndTime:        s.EndTime,
			DaysOfWeek:     s.DaysOfWeek,
			DaysOfMonth:    s.DaysOfMonth,
			countsDocument: toCountsDocument(s.Counts),
		})
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode policy: %w", err)
	}
	return string(raw), nil
}

func decodePolicy(appID, timezone, raw string) (schedule.Policy, error) {
	var doc policyDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return schedule.Policy{}, fmt.Errorf("decode policy %s: %w", appID, err)
	}
	p := schedule.Policy{AppID: appID, Timezone: timezone}
	for _, s := range doc.Specific {
		p.Specific = append(p.Specific, schedule.SpecificSchedule{
			StartDateTime: s.StartDateTime,
			EndDateTime:   s.EndDateTime,
			Counts:        s.counts(),
		})
	}
	for _, s := range doc.Recurring {
		p.Recurring = append(p.Recurring, schedule.RecurringSchedule{
			StartDate:   s.StartDate,
			EndDate:     s.EndDate,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			DaysOfWeek:  s.DaysOfWeek,
			DaysOfMonth: s.DaysOfMonth,
			Counts:      s.counts(),
		})
	}
	return p, nil
}

func encodeDescriptor(d trigger.Descriptor) (string, error) {
	doc := descriptorDocument{
		PolicyGUID: d.PolicyGUID,
		Timezone:   d.Timezone,
		Counts:     toCountsDocument(d.Counts),
		FireAt:     optionalTime(d.FireAt),
		ValidFrom:  optionalTime(d.ValidFrom),
		ValidUntil: d.ValidUntil,
		NextFire:   optionalTime(d.NextFire),
	}
	if r := d.Recurrence; r != nil {
		doc.Recurrence = &recurrenceDocument{Hour: r.Hour, Minute: r.Minute, Weekdays: r.Weekdays, MonthDays: r.MonthDays}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode trigger %s: %w", d.Name(), err)
	}
	return string(raw), nil
}

// decodeDescriptor restores a descriptor. Times come back in the
// descriptor's own timezone when it can be loaded.
func decodeDescriptor(appID string, kind schedule.Kind, index int, action trigger.Action, raw string) (trigger.Descriptor, error) {
	var doc descriptorDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return trigger.Descriptor{}, fmt.Errorf("decode trigger for %s: %w", appID, err)
	}
	loc, err := schedule.LoadLocation(doc.Timezone)
	if err != nil {
		loc = time.UTC
	}
	d := trigger.Descriptor{
		AppID:      appID,
		PolicyGUID: doc.PolicyGUID,
		Kind:       kind,
		Index:      index,
		Action:     action,
		Timezone:   doc.Timezone,
		Counts:     doc.Counts.counts(),
		FireAt:     inLocation(doc.FireAt, loc),
		ValidFrom:  inLocation(doc.ValidFrom, loc),
		NextFire:   inLocation(doc.NextFire, loc),
	}
	if doc.ValidUntil != nil {
		until := doc.ValidUntil.In(loc)
		d.ValidUntil = &until
	}
	if r := doc.Recurrence; r != nil {
		d.Recurrence = &trigger.Recurrence{Hour: r.Hour, Minute: r.Minute, Weekdays: r.Weekdays, MonthDays: r.MonthDays}
	}
	return d, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func inLocation(t *time.Time, loc *time.Location) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.In(loc)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(column, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return t, nil
}
