package application

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/crypto/blake2b"

	"github.com/example/autoscaler-scheduler/internal/persistence"
	"github.com/example/autoscaler-scheduler/internal/recurrence"
	"github.com/example/autoscaler-scheduler/internal/schedule"
	"github.com/example/autoscaler-scheduler/internal/scheduler"
	"github.com/example/autoscaler-scheduler/internal/trigger"
)

var errMissingAppID = errors.New("application: missing app id")

// PolicyService validates schedule policies and keeps the Trigger Store in
// step with the stored policy of every application.
//
// Apply moves a policy through Validating, then either Rejected or
// Materializing, and ends Committed or RolledBack. Work on one application is
// serialized; different applications proceed concurrently.
type PolicyService struct {
	policies    PolicyStore
	triggers    trigger.Store
	engine      Materializer
	idGenerator func() string
	cfg         PolicyServiceConfig
	locks       *appLocks
	logger      *slog.Logger
}

// NewPolicyService wires the service. A nil idGenerator yields random UUIDs.
func NewPolicyService(policies PolicyStore, triggers trigger.Store, idGenerator func() string, cfg PolicyServiceConfig, logger *slog.Logger) *PolicyService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = DefaultTriggerTimeout
	}
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = defaultPreviewLimit
	}
	return &PolicyService{
		policies:    policies,
		triggers:    triggers,
		engine:      recurrence.NewEngine(),
		idGenerator: idGenerator,
		cfg:         cfg,
		locks:       newAppLocks(),
		logger:      defaultLogger(logger),
	}
}

func (s *PolicyService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PolicyService", operation, attrs...)
}

// ValidatePolicy runs every field, consistency and overlap rule against p and
// returns the violations in reporting order. Overlaps come last.
func ValidatePolicy(p schedule.Policy, now time.Time) []schedule.Violation {
	out := schedule.Validate(p, now)
	return append(out, scheduler.DetectOverlaps(p)...)
}

// Fingerprint hashes the policy content. Equal policies share a fingerprint.
func Fingerprint(p schedule.Policy) string {
	raw, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Apply replaces the policy of p.AppID. A rejected policy returns a
// *ValidationError and changes nothing. Failures after validation restore the
// previous policy and triggers and return an *InfrastructureError.
func (s *PolicyService) Apply(ctx context.Context, p schedule.Policy) (result ApplyResult, err error) {
	if s == nil {
		err = fmt.Errorf("PolicyService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Apply", "app_id", p.AppID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to apply policy", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "policy applied",
			"policy_guid", result.Record.GUID,
			"triggers", len(result.Triggers),
		)
	}()

	if p.AppID == "" {
		err = errMissingAppID
		return
	}

	release, lockErr := s.locks.acquire(ctx, p.AppID)
	if lockErr != nil {
		err = infrastructure("lock", lockErr)
		return
	}
	defer release()

	loc, locErr := schedule.LoadLocation(p.Timezone)
	if locErr != nil {
		loc = time.UTC
	}
	now := s.triggers.Now(loc)

	if violations := ValidatePolicy(p, now); len(violations) > 0 {
		vErr := &ValidationError{}
		vErr.add(violations...)
		err = vErr
		return
	}

	result, err = s.materialize(ctx, p.Clone(), now)
	return
}

// prior is the state an apply falls back to.
type prior struct {
	exists   bool
	record   persistence.PolicyRecord
	triggers []persistence.TriggerRecord
}

func (s *PolicyService) snapshot(ctx context.Context, appID string) (prior, error) {
	record, err := s.policies.GetPolicy(ctx, appID)
	if errors.Is(err, persistence.ErrNotFound) {
		return prior{}, nil
	}
	if err != nil {
		return prior{}, infrastructure("load policy", err)
	}
	triggers, err := s.policies.ListTriggers(ctx, appID)
	if err != nil {
		return prior{}, infrastructure("load triggers", err)
	}
	return prior{exists: true, record: record, triggers: triggers}, nil
}

func (s *PolicyService) materialize(ctx context.Context, p schedule.Policy, now time.Time) (ApplyResult, error) {
	before, err := s.snapshot(ctx, p.AppID)
	if err != nil {
		return ApplyResult{}, err
	}

	record := persistence.PolicyRecord{
		AppID:       p.AppID,
		GUID:        s.idGenerator(),
		Fingerprint: Fingerprint(p),
		Policy:      p,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if before.exists {
		record.CreatedAt = before.record.CreatedAt
	}

	descriptors, err := s.engine.Materialize(p, record.GUID, now)
	if err != nil {
		return ApplyResult{}, infrastructure("materialize", err)
	}

	triggers, err := s.commit(ctx, record, descriptors, now)
	if err != nil {
		s.loggerWith(ctx, "Apply", "app_id", p.AppID).WarnContext(ctx, "rolling back policy", "error", err)
		if rbErr := s.rollback(ctx, before, p.AppID, now); rbErr != nil {
			err = multierror.Append(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return ApplyResult{}, &InfrastructureError{Op: "apply", Err: err}
	}

	// The triggers of the replaced policy are gone, so its active schedule
	// would never be deactivated.
	if err := s.policies.ClearActiveSchedule(ctx, p.AppID); err != nil {
		s.loggerWith(ctx, "Apply", "app_id", p.AppID).WarnContext(ctx, "failed to clear active schedule", "error", err)
	}
	return ApplyResult{Record: record, Triggers: triggers}, nil
}

func (s *PolicyService) commit(ctx context.Context, record persistence.PolicyRecord, descriptors []trigger.Descriptor, now time.Time) ([]persistence.TriggerRecord, error) {
	if err := s.policies.SavePolicy(ctx, record); err != nil {
		return nil, fmt.Errorf("save policy: %w", err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.TriggerTimeout)
	defer cancel()
	if err := s.triggers.DeregisterAll(storeCtx, record.AppID); err != nil {
		return nil, fmt.Errorf("deregister triggers: %w", err)
	}
	triggers, err := s.register(storeCtx, descriptors, now)
	if err != nil {
		return nil, err
	}

	if err := s.policies.ReplaceTriggers(ctx, record.AppID, triggers); err != nil {
		return nil, fmt.Errorf("save triggers: %w", err)
	}
	return triggers, nil
}

// rollback restores the snapshot taken before the apply. It runs even when
// ctx is already done.
func (s *PolicyService) rollback(ctx context.Context, before prior, appID string, now time.Time) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TriggerTimeout)
	defer cancel()

	var result *multierror.Error
	if err := s.triggers.DeregisterAll(ctx, appID); err != nil {
		result = multierror.Append(result, fmt.Errorf("deregister triggers: %w", err))
	}

	if !before.exists {
		if err := s.policies.DeletePolicy(ctx, appID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			result = multierror.Append(result, fmt.Errorf("delete policy: %w", err))
		}
		return result.ErrorOrNil()
	}

	if err := s.policies.SavePolicy(ctx, before.record); err != nil {
		result = multierror.Append(result, fmt.Errorf("restore policy: %w", err))
		return result.ErrorOrNil()
	}
	restored, err := s.register(ctx, Rearm(before.triggers, now), now)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("restore triggers: %w", err))
	}
	if err := s.policies.ReplaceTriggers(ctx, appID, restored); err != nil {
		result = multierror.Append(result, fmt.Errorf("restore trigger records: %w", err))
	}
	return result.ErrorOrNil()
}

// register hands descriptors to the Trigger Store in order. On failure the
// records registered so far are returned with the error.
func (s *PolicyService) register(ctx context.Context, descriptors []trigger.Descriptor, now time.Time) ([]persistence.TriggerRecord, error) {
	out := make([]persistence.TriggerRecord, 0, len(descriptors))
	for _, d := range descriptors {
		handle, err := s.triggers.Register(ctx, d)
		if err != nil {
			return out, fmt.Errorf("register %s: %w", d.Name(), err)
		}
		out = append(out, persistence.TriggerRecord{Handle: handle, Descriptor: d, CreatedAt: now.UTC()})
	}
	return out, nil
}

// Rearm prepares persisted triggers for registration at now. One-shot
// triggers in the past and recurring triggers past their validity are
// dropped. Recurring triggers lose their stored first firing so the store
// computes a fresh one.
func Rearm(records []persistence.TriggerRecord, now time.Time) []trigger.Descriptor {
	out := make([]trigger.Descriptor, 0, len(records))
	for _, r := range records {
		d := r.Descriptor.Clone()
		if !d.Recurring() {
			if d.FireAt.After(now) {
				out = append(out, d)
			}
			continue
		}
		d.NextFire = time.Time{}
		if next, ok := d.NextAfter(now); ok {
			d.NextFire = next
			out = append(out, d)
		}
	}
	return out
}

// Delete deregisters every trigger of appID and removes its policy. Unknown
// applications succeed unless the service is configured to report them.
func (s *PolicyService) Delete(ctx context.Context, appID string) (err error) {
	if s == nil {
		return fmt.Errorf("PolicyService is nil")
	}

	logger := s.loggerWith(ctx, "Delete", "app_id", appID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete policy", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "policy deleted")
	}()

	if appID == "" {
		return errMissingAppID
	}
	release, lockErr := s.locks.acquire(ctx, appID)
	if lockErr != nil {
		return infrastructure("lock", lockErr)
	}
	defer release()

	_, getErr := s.policies.GetPolicy(ctx, appID)
	missing := errors.Is(getErr, persistence.ErrNotFound)
	if getErr != nil && !missing {
		return infrastructure("load policy", getErr)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.TriggerTimeout)
	defer cancel()
	if err := s.triggers.DeregisterAll(storeCtx, appID); err != nil {
		return infrastructure("deregister triggers", err)
	}

	if missing {
		if s.cfg.DeleteMissingNotFound {
			return ErrNotFound
		}
		return nil
	}
	if err := s.policies.DeletePolicy(ctx, appID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return infrastructure("delete policy", err)
	}
	return nil
}

// Get returns the stored policy of appID with its triggers and active
// schedule.
func (s *PolicyService) Get(ctx context.Context, appID string) (view PolicyView, err error) {
	if s == nil {
		err = fmt.Errorf("PolicyService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Get", "app_id", appID)
	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			logger.ErrorContext(ctx, "failed to load policy", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	release, lockErr := s.locks.acquire(ctx, appID)
	if lockErr != nil {
		err = infrastructure("lock", lockErr)
		return
	}
	defer release()

	record, getErr := s.policies.GetPolicy(ctx, appID)
	if getErr != nil {
		err = mapPolicyRepoError("load policy", getErr)
		return
	}
	triggers, listErr := s.policies.ListTriggers(ctx, appID)
	if listErr != nil {
		err = mapPolicyRepoError("load triggers", listErr)
		return
	}

	view.Record = record
	now := s.triggers.Now(time.UTC)
	view.Triggers = make([]TriggerView, 0, len(triggers))
	for _, t := range triggers {
		upcoming, upErr := s.engine.Upcoming(t.Descriptor, now, s.cfg.PreviewLimit)
		if upErr != nil {
			logger.WarnContext(ctx, "failed to preview trigger", "trigger", t.Descriptor.Name(), "error", upErr)
		}
		view.Triggers = append(view.Triggers, TriggerView{TriggerRecord: t, Upcoming: upcoming})
	}

	active, activeErr := s.policies.GetActiveSchedule(ctx, appID)
	switch {
	case activeErr == nil:
		view.Active = &active
	case !errors.Is(activeErr, persistence.ErrNotFound):
		err = mapPolicyRepoError("load active schedule", activeErr)
	}
	return
}

// Reconcile re-registers the persisted triggers of every stored policy, for
// example after a restart of an in-process Trigger Store. It returns the
// number of triggers registered. Failing applications do not stop the others.
func (s *PolicyService) Reconcile(ctx context.Context) (registered int, err error) {
	if s == nil {
		return 0, fmt.Errorf("PolicyService is nil")
	}

	logger := s.loggerWith(ctx, "Reconcile")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "reconcile incomplete", "error", err, "error_kind", ErrorKind(err), "triggers", registered)
			return
		}
		logger.InfoContext(ctx, "triggers reconciled", "triggers", registered)
	}()

	records, listErr := s.policies.ListPolicies(ctx)
	if listErr != nil {
		return 0, infrastructure("list policies", listErr)
	}

	var result *multierror.Error
	for _, record := range records {
		n, appErr := s.reconcileApp(ctx, record.AppID)
		if appErr != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", record.AppID, appErr))
			continue
		}
		registered += n
	}
	if result.ErrorOrNil() != nil {
		return registered, &InfrastructureError{Op: "reconcile", Err: result}
	}
	return registered, nil
}

func (s *PolicyService) reconcileApp(ctx context.Context, appID string) (int, error) {
	release, err := s.locks.acquire(ctx, appID)
	if err != nil {
		return 0, err
	}
	defer release()

	records, err := s.policies.ListTriggers(ctx, appID)
	if err != nil {
		return 0, fmt.Errorf("load triggers: %w", err)
	}
	now := s.triggers.Now(time.UTC)

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.TriggerTimeout)
	defer cancel()
	if err := s.triggers.DeregisterAll(storeCtx, appID); err != nil {
		return 0, fmt.Errorf("deregister triggers: %w", err)
	}
	// Stored records stay untouched on failure so the next run retries the
	// full set.
	registered, err := s.register(storeCtx, Rearm(records, now), now)
	if err != nil {
		return 0, err
	}
	if err := s.policies.ReplaceTriggers(ctx, appID, registered); err != nil {
		return 0, fmt.Errorf("save triggers: %w", err)
	}
	return len(registered), nil
}

// HandleEvent records the effect of a fired trigger. Activation makes the
// schedule the application's active schedule; deactivation clears it, and a
// deactivated specific schedule is expired by dropping its triggers. Events
// from a replaced or deleted policy are ignored.
func (s *PolicyService) HandleEvent(ctx context.Context, ev trigger.Event) error {
	d := ev.Descriptor
	logger := s.loggerWith(ctx, "HandleEvent",
		"app_id", d.AppID,
		"trigger", d.Name(),
	)

	release, err := s.locks.acquire(ctx, d.AppID)
	if err != nil {
		return infrastructure("lock", err)
	}
	defer release()

	record, err := s.policies.GetPolicy(ctx, d.AppID)
	if errors.Is(err, persistence.ErrNotFound) {
		logger.DebugContext(ctx, "ignoring event for deleted policy")
		return nil
	}
	if err != nil {
		return infrastructure("load policy", err)
	}
	if record.GUID != d.PolicyGUID {
		logger.DebugContext(ctx, "ignoring event for replaced policy", "policy_guid", d.PolicyGUID)
		return nil
	}

	switch d.Action {
	case trigger.ActionActivate:
		active := persistence.ActiveSchedule{
			AppID:      d.AppID,
			PolicyGUID: d.PolicyGUID,
			Kind:       d.Kind,
			Index:      d.Index,
			Counts:     schedule.CloneCounts(d.Counts),
			StartedAt:  ev.FiredAt.UTC(),
		}
		if err := s.policies.SetActiveSchedule(ctx, active); err != nil {
			return infrastructure("set active schedule", err)
		}
		logger.InfoContext(ctx, "schedule activated")
	case trigger.ActionDeactivate:
		active, err := s.policies.GetActiveSchedule(ctx, d.AppID)
		switch {
		case err == nil:
			if active.Kind == d.Kind && active.Index == d.Index && active.PolicyGUID == d.PolicyGUID {
				if err := s.policies.ClearActiveSchedule(ctx, d.AppID); err != nil {
					return infrastructure("clear active schedule", err)
				}
			}
		case !errors.Is(err, persistence.ErrNotFound):
			return infrastructure("load active schedule", err)
		}
		if d.Kind == schedule.KindSpecific {
			if err := s.policies.DeleteScheduleTriggers(ctx, d.AppID, d.Kind, d.Index); err != nil {
				return infrastructure("expire schedule", err)
			}
		}
		logger.InfoContext(ctx, "schedule deactivated")
	}
	return nil
}

// OnFire adapts HandleEvent to trigger.FireFunc.
func (s *PolicyService) OnFire(ctx context.Context, ev trigger.Event) {
	if err := s.HandleEvent(ctx, ev); err != nil {
		s.loggerWith(ctx, "HandleEvent", "app_id", ev.Descriptor.AppID).ErrorContext(ctx, "failed to handle trigger event",
			"trigger", ev.Descriptor.Name(),
			"error", err,
			"error_kind", ErrorKind(err),
		)
	}
}
