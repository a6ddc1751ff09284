// Package memory provides an in-process implementation of the persistence
// repositories. Records are copied on the way in and out, so callers never
// share state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/autoscaler-scheduler/internal/persistence"
	"github.com/example/autoscaler-scheduler/internal/schedule"
)

// Storage implements persistence.PolicyRepository and
// persistence.ActiveScheduleRepository.
type Storage struct {
	mu       sync.RWMutex
	policies map[string]persistence.PolicyRecord
	triggers map[string][]persistence.TriggerRecord
	active   map[string]persistence.ActiveSchedule
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		policies: make(map[string]persistence.PolicyRecord),
		triggers: make(map[string][]persistence.TriggerRecord),
		active:   make(map[string]persistence.ActiveSchedule),
	}
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// --- PolicyRepository implementation ---

// GetPolicy retrieves the policy of appID.
func (s *Storage) GetPolicy(ctx context.Context, appID string) (persistence.PolicyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.policies[appID]
	if !ok {
		return persistence.PolicyRecord{}, persistence.ErrNotFound
	}
	return clonePolicy(record), nil
}

// ListPolicies returns every policy ordered by app id.
func (s *Storage) ListPolicies(ctx context.Context) ([]persistence.PolicyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]persistence.PolicyRecord, 0, len(s.policies))
	for _, record := range s.policies {
		records = append(records, clonePolicy(record))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].AppID < records[j].AppID
	})
	return records, nil
}

// SavePolicy inserts or replaces a policy.
func (s *Storage) SavePolicy(ctx context.Context, record persistence.PolicyRecord) error {
	if record.AppID == "" || record.GUID == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for appID, other := range s.policies {
		if appID != record.AppID && other.GUID == record.GUID {
			return fmt.Errorf("%w: guid %s is used by %s", persistence.ErrConflict, record.GUID, appID)
		}
	}
	if existing, ok := s.policies[record.AppID]; ok {
		record.CreatedAt = existing.CreatedAt
	}
	s.policies[record.AppID] = clonePolicy(record)
	return nil
}

// DeletePolicy removes a policy together with its triggers and active schedule.
func (s *Storage) DeletePolicy(ctx context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[appID]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.policies, appID)
	delete(s.triggers, appID)
	delete(s.active, appID)
	return nil
}

// ListTriggers returns the triggers of appID ordered by kind, index and action.
func (s *Storage) ListTriggers(ctx context.Context, appID string) ([]persistence.TriggerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]persistence.TriggerRecord, 0, len(s.triggers[appID]))
	for _, record := range s.triggers[appID] {
		records = append(records, cloneTrigger(record))
	}
	sortTriggers(records)
	return records, nil
}

// ReplaceTriggers swaps the triggers of an existing policy.
func (s *Storage) ReplaceTriggers(ctx context.Context, appID string, triggers []persistence.TriggerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[appID]; !ok {
		return fmt.Errorf("%w: no policy for %s", persistence.ErrConstraintViolation, appID)
	}
	seen := make(map[string]struct{}, len(triggers))
	records := make([]persistence.TriggerRecord, 0, len(triggers))
	for _, record := range triggers {
		if record.Descriptor.AppID != appID {
			return fmt.Errorf("%w: trigger %s belongs to %s", persistence.ErrConstraintViolation, record.Descriptor.Name(), record.Descriptor.AppID)
		}
		name := record.Descriptor.Name()
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: trigger %s", persistence.ErrConflict, name)
		}
		seen[name] = struct{}{}
		records = append(records, cloneTrigger(record))
	}
	if len(records) == 0 {
		delete(s.triggers, appID)
		return nil
	}
	s.triggers[appID] = records
	return nil
}

// DeleteScheduleTriggers drops the triggers of one schedule.
func (s *Storage) DeleteScheduleTriggers(ctx context.Context, appID string, kind schedule.Kind, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.triggers[appID]; !ok {
		return nil
	}
	kept := s.triggers[appID][:0:0]
	for _, record := range s.triggers[appID] {
		if record.Descriptor.Kind == kind && record.Descriptor.Index == index {
			continue
		}
		kept = append(kept, record)
	}
	s.triggers[appID] = kept
	return nil
}

// --- ActiveScheduleRepository implementation ---

// GetActiveSchedule returns the schedule in force for appID.
func (s *Storage) GetActiveSchedule(ctx context.Context, appID string) (persistence.ActiveSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active, ok := s.active[appID]
	if !ok {
		return persistence.ActiveSchedule{}, persistence.ErrNotFound
	}
	active.Counts = schedule.CloneCounts(active.Counts)
	return active, nil
}

// SetActiveSchedule records the schedule in force. The policy must exist.
func (s *Storage) SetActiveSchedule(ctx context.Context, active persistence.ActiveSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[active.AppID]; !ok {
		return fmt.Errorf("%w: no policy for %s", persistence.ErrConstraintViolation, active.AppID)
	}
	active.Counts = schedule.CloneCounts(active.Counts)
	s.active[active.AppID] = active
	return nil
}

// ClearActiveSchedule forgets the schedule in force. Clearing an app without
// one is not an error.
func (s *Storage) ClearActiveSchedule(ctx context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, appID)
	return nil
}

func clonePolicy(record persistence.PolicyRecord) persistence.PolicyRecord {
	record.Policy = record.Policy.Clone()
	return record
}

func cloneTrigger(record persistence.TriggerRecord) persistence.TriggerRecord {
	record.Descriptor = record.Descriptor.Clone()
	return record
}

func sortTriggers(records []persistence.TriggerRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Descriptor, records[j].Descriptor
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.Action < b.Action
	})
}
