package persistence

import (
	"context"

	"github.com/example/autoscaler-scheduler/internal/schedule"
)

// PolicyRepository stores policies and the triggers registered for them.
type PolicyRepository interface {
	GetPolicy(ctx context.Context, appID string) (PolicyRecord, error)
	ListPolicies(ctx context.Context) ([]PolicyRecord, error)
	// SavePolicy inserts or replaces the policy of record.AppID. CreatedAt of
	// an existing record is kept.
	SavePolicy(ctx context.Context, record PolicyRecord) error
	// DeletePolicy removes the policy with its triggers and active schedule.
	DeletePolicy(ctx context.Context, appID string) error

	ListTriggers(ctx context.Context, appID string) ([]TriggerRecord, error)
	// ReplaceTriggers swaps every trigger of appID for triggers. The policy
	// must exist.
	ReplaceTriggers(ctx context.Context, appID string, triggers []TriggerRecord) error
	// DeleteScheduleTriggers drops the triggers of one schedule.
	DeleteScheduleTriggers(ctx context.Context, appID string, kind schedule.Kind, index int) error
}

// ActiveScheduleRepository tracks which schedule is in force per application.
type ActiveScheduleRepository interface {
	GetActiveSchedule(ctx context.Context, appID string) (ActiveSchedule, error)
	SetActiveSchedule(ctx context.Context, active ActiveSchedule) error
	ClearActiveSchedule(ctx context.Context, appID string) error
}
