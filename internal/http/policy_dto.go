package http

import (
	"encoding/json"
	"io"
	"time"

	"github.com/example/autoscaler-scheduler/internal/application"
	"github.com/example/autoscaler-scheduler/internal/persistence"
	"github.com/example/autoscaler-scheduler/internal/schedule"
)

type countsDTO struct {
	InstanceMinCount        *int `json:"instance_min_count"`
	InstanceMaxCount        *int `json:"instance_max_count"`
	InitialMinInstanceCount *int `json:"initial_min_instance_count,omitempty"`
}

func (c countsDTO) toCounts() schedule.Counts {
	return schedule.Counts{
		InstanceMinCount:        c.InstanceMinCount,
		InstanceMaxCount:        c.InstanceMaxCount,
		InitialMinInstanceCount: c.InitialMinInstanceCount,
	}
}

func newCountsDTO(c schedule.Counts) countsDTO {
	return countsDTO{
		InstanceMinCount:        c.InstanceMinCount,
		InstanceMaxCount:        c.InstanceMaxCount,
		InitialMinInstanceCount: c.InitialMinInstanceCount,
	}
}

type specificScheduleDTO struct {
	StartDateTime string `json:"start_date_time"`
	EndDateTime   string `json:"end_date_time"`
	countsDTO
}

type recurringScheduleDTO struct {
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	DaysOfWeek  []int  `json:"day_of_week,omitempty"`
	DaysOfMonth []int  `json:"day_of_month,omitempty"`
	countsDTO
}

type schedulesDTO struct {
	Timezone          string                 `json:"timezone"`
	SpecificSchedule  []specificScheduleDTO  `json:"specific_schedule,omitempty"`
	RecurringSchedule []recurringScheduleDTO `json:"recurring_schedule,omitempty"`
}

// policyRequest accepts the schedules at the top level or wrapped in a
// "schedules" object, as in full autoscaling policy documents.
type policyRequest struct {
	schedulesDTO
	Schedules *schedulesDTO `json:"schedules,omitempty"`
}

func (req policyRequest) toPolicy(appID string) schedule.Policy {
	src := req.schedulesDTO
	if req.Schedules != nil {
		src = *req.Schedules
	}
	p := schedule.Policy{AppID: appID, Timezone: src.Timezone}
	for _, s := range src.SpecificSchedule {
		p.Specific = append(p.Specific, schedule.SpecificSchedule{
			StartDateTime: s.StartDateTime,
			EndDateTime:   s.EndDateTime,
			Counts:        s.toCounts(),
		})
	}
	for _, s := range src.RecurringSchedule {
		p.Recurring = append(p.Recurring, schedule.RecurringSchedule{
			StartDate:   s.StartDate,
			EndDate:     s.EndDate,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			DaysOfWeek:  s.DaysOfWeek,
			DaysOfMonth: s.DaysOfMonth,
			Counts:      s.toCounts(),
		})
	}
	return p
}

// DecodePolicy reads a policy document for appID. Unknown fields are
// ignored.
func DecodePolicy(r io.Reader, appID string) (schedule.Policy, error) {
	var req policyRequest
	if err := json.NewDecoder(io.LimitReader(r, maxPolicyBytes)).Decode(&req); err != nil {
		return schedule.Policy{}, err
	}
	return req.toPolicy(appID), nil
}

func newSchedulesDTO(p schedule.Policy) schedulesDTO {
	out := schedulesDTO{Timezone: p.Timezone}
	for _, s := range p.Specific {
		out.SpecificSchedule = append(out.SpecificSchedule, specificScheduleDTO{
			StartDateTime: s.StartDateTime,
			EndDateTime:   s.EndDateTime,
			countsDTO:     newCountsDTO(s.Counts),
		})
	}
	for _, s := range p.Recurring {
		out.RecurringSchedule = append(out.RecurringSchedule, recurringScheduleDTO{
			StartDate:   s.StartDate,
			EndDate:     s.EndDate,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			DaysOfWeek:  s.DaysOfWeek,
			DaysOfMonth: s.DaysOfMonth,
			countsDTO:   newCountsDTO(s.Counts),
		})
	}
	return out
}

type triggerDTO struct {
	Name       string      `json:"name"`
	Handle     string      `json:"handle"`
	Schedule   string      `json:"schedule"`
	Action     string      `json:"action"`
	Cron       string      `json:"cron,omitempty"`
	FireAt     *time.Time  `json:"fire_at,omitempty"`
	ValidFrom  *time.Time  `json:"valid_from,omitempty"`
	ValidUntil *time.Time  `json:"valid_until,omitempty"`
	Upcoming   []time.Time `json:"upcoming"`
}

type activeScheduleDTO struct {
	Schedule  string    `json:"schedule"`
	StartedAt time.Time `json:"started_at"`
	countsDTO
}

type policyResponse struct {
	AppID       string `json:"app_id"`
	GUID        string `json:"guid"`
	Fingerprint string `json:"fingerprint"`
	schedulesDTO
	Triggers       []triggerDTO       `json:"triggers"`
	ActiveSchedule *activeScheduleDTO `json:"active_schedule,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func newPolicyResponse(view application.PolicyView) policyResponse {
	resp := policyResponse{
		AppID:        view.Record.AppID,
		GUID:         view.Record.GUID,
		Fingerprint:  view.Record.Fingerprint,
		schedulesDTO: newSchedulesDTO(view.Record.Policy),
		Triggers:     make([]triggerDTO, 0, len(view.Triggers)),
		CreatedAt:    view.Record.CreatedAt,
		UpdatedAt:    view.Record.UpdatedAt,
	}
	for _, t := range view.Triggers {
		resp.Triggers = append(resp.Triggers, newTriggerDTO(t))
	}
	if view.Active != nil {
		resp.ActiveSchedule = newActiveScheduleDTO(*view.Active)
	}
	return resp
}

func newTriggerDTO(t application.TriggerView) triggerDTO {
	d := t.Descriptor
	dto := triggerDTO{
		Name:       d.Name(),
		Handle:     string(t.Handle),
		Schedule:   schedule.Ref{Kind: d.Kind, Index: d.Index}.Label(),
		Action:     d.Action.String(),
		ValidUntil: d.ValidUntil,
		Upcoming:   t.Upcoming,
	}
	if dto.Upcoming == nil {
		dto.Upcoming = []time.Time{}
	}
	if d.Recurring() {
		dto.Cron = d.Recurrence.Cron()
		validFrom := d.ValidFrom
		dto.ValidFrom = &validFrom
	} else {
		fireAt := d.FireAt
		dto.FireAt = &fireAt
	}
	return dto
}

func newActiveScheduleDTO(a persistence.ActiveSchedule) *activeScheduleDTO {
	return &activeScheduleDTO{
		Schedule:  schedule.Ref{Kind: a.Kind, Index: a.Index}.Label(),
		StartedAt: a.StartedAt,
		countsDTO: newCountsDTO(a.Counts),
	}
}
