package persistence

import (
	"time"

	"github.com/example/autoscaler-scheduler/internal/schedule"
	"github.com/example/autoscaler-scheduler/internal/trigger"
)

// PolicyRecord is the stored schedule policy of one application.
type PolicyRecord struct {
	AppID       string
	GUID        string
	Fingerprint string
	Policy      schedule.Policy
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TriggerRecord is a descriptor registered with the trigger store on behalf
// of a policy, together with the handle the store returned.
type TriggerRecord struct {
	Handle     trigger.Handle
	Descriptor trigger.Descriptor
	CreatedAt  time.Time
}

// ActiveSchedule is the schedule whose counts currently apply to an
// application.
type ActiveSchedule struct {
	AppID      string
	PolicyGUID string
	Kind       schedule.Kind
	Index      int
	Counts     schedule.Counts
	StartedAt  time.Time
}
