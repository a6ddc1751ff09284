package application

import (
	"time"

	"github.com/example/autoscaler-scheduler/internal/persistence"
	"github.com/example/autoscaler-scheduler/internal/schedule"
	"github.com/example/autoscaler-scheduler/internal/trigger"
)

// PolicyStore is the persistence needed by PolicyService.
type PolicyStore interface {
	persistence.PolicyRepository
	persistence.ActiveScheduleRepository
}

// Materializer turns a validated policy into trigger descriptors.
type Materializer interface {
	Materialize(p schedule.Policy, policyGUID string, now time.Time) ([]trigger.Descriptor, error)
	Upcoming(d trigger.Descriptor, from time.Time, limit int) ([]time.Time, error)
}

// PolicyServiceConfig tunes the apply pipeline.
type PolicyServiceConfig struct {
	// TriggerTimeout bounds every batch of Trigger Store calls.
	TriggerTimeout time.Duration
	// DeleteMissingNotFound makes Delete report ErrNotFound for unknown apps.
	DeleteMissingNotFound bool
	// PreviewLimit is the number of upcoming firings listed per trigger by Get.
	PreviewLimit int
}

// DefaultTriggerTimeout applies when PolicyServiceConfig.TriggerTimeout is unset.
const DefaultTriggerTimeout = 10 * time.Second

const defaultPreviewLimit = 3

// ApplyResult describes a committed policy.
type ApplyResult struct {
	Record   persistence.PolicyRecord
	Triggers []persistence.TriggerRecord
}

// TriggerView is a registered trigger with its next firings.
type TriggerView struct {
	persistence.TriggerRecord
	Upcoming []time.Time
}

// PolicyView is the stored state of one application.
type PolicyView struct {
	Record   persistence.PolicyRecord
	Triggers []TriggerView
	// Active is nil when no schedule is in force.
	Active *persistence.ActiveSchedule
}
