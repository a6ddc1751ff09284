package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/autoscaler-scheduler/internal/persistence"
	"github.com/example/autoscaler-scheduler/internal/schedule"
	"github.com/example/autoscaler-scheduler/internal/trigger"
)

// PolicyRepository implements persistence.PolicyRepository and
// persistence.ActiveScheduleRepository using SQLite.
type PolicyRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
	now    func() time.Time
}

// NewPolicyRepository creates a repository over pool.
func NewPolicyRepository(pool *ConnectionPool) *PolicyRepository {
	return &PolicyRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
		now:    time.Now,
	}
}

const selectPolicy = `
	SELECT app_id, guid, fingerprint, timezone, document, created_at, updated_at
	FROM policies`

// GetPolicy retrieves the policy of appID.
func (r *PolicyRepository) GetPolicy(ctx context.Context, appID string) (persistence.PolicyRecord, error) {
	if appID == "" {
		return persistence.PolicyRecord{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, selectPolicy+` WHERE app_id = ?`, appID)
	record, err := scanPolicy(row)
	if err != nil {
		return persistence.PolicyRecord{}, r.mapper.MapError(err)
	}
	return record, nil
}

// ListPolicies returns every policy ordered by app id.
func (r *PolicyRepository) ListPolicies(ctx context.Context) ([]persistence.PolicyRecord, error) {
	rows, err := r.pool.DB().QueryContext(ctx, selectPolicy+` ORDER BY app_id`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var records []persistence.PolicyRecord
	for rows.Next() {
		record, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return records, nil
}

// SavePolicy inserts or replaces a policy. Replacing keeps created_at and
// leaves the policy's triggers in place.
func (r *PolicyRepository) SavePolicy(ctx context.Context, record persistence.PolicyRecord) error {
	if record.AppID == "" || record.GUID == "" {
		return persistence.ErrConstraintViolation
	}
	document, err := encodePolicy(record.Policy)
	if err != nil {
		return err
	}
	now := r.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	// INSERT OR REPLACE would delete the row and cascade to its triggers.
	const query = `
		INSERT INTO policies (app_id, guid, fingerprint, timezone, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (app_id) DO UPDATE SET
			guid = excluded.guid,
			fingerprint = excluded.fingerprint,
			timezone = excluded.timezone,
			document = excluded.document,
			updated_at = excluded.updated_at`

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, query,
			record.AppID,
			record.GUID,
			record.Fingerprint,
			record.Policy.Timezone,
			document,
			formatTimestamp(record.CreatedAt),
			formatTimestamp(record.UpdatedAt),
		)
		return err
	})
}

// DeletePolicy removes a policy; its triggers and active schedule follow
// through ON DELETE CASCADE.
func (r *PolicyRepository) DeletePolicy(ctx context.Context, appID string) error {
	return r.retry.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM policies WHERE app_id = ?`, appID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

// ListTriggers returns the triggers of appID ordered by kind, index and action.
func (r *PolicyRepository) ListTriggers(ctx context.Context, appID string) ([]persistence.TriggerRecord, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT handle, kind, schedule_index, action, descriptor, created_at
		FROM policy_triggers
		WHERE app_id = ?
		ORDER BY kind, schedule_index, action`, appID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var records []persistence.TriggerRecord
	for rows.Next() {
		var (
			handle, document, createdAt string
			kind, index, action         int
		)
		if err := rows.Scan(&handle, &kind, &index, &action, &document, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		d, err := decodeDescriptor(appID, schedule.Kind(kind), index, trigger.Action(action), document)
		if err != nil {
			return nil, err
		}
		created, err := parseTimestamp("created_at", createdAt)
		if err != nil {
			return nil, err
		}
		records = append(records, persistence.TriggerRecord{
			Handle:     trigger.Handle(handle),
			Descriptor: d,
			CreatedAt:  created,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return records, nil
}

// ReplaceTriggers swaps every trigger of appID in one transaction.
func (r *PolicyRepository) ReplaceTriggers(ctx context.Context, appID string, triggers []persistence.TriggerRecord) error {
	type row struct {
		record   persistence.TriggerRecord
		document string
	}
	rows := make([]row, 0, len(triggers))
	for _, record := range triggers {
		if record.Descriptor.AppID != appID {
			return fmt.Errorf("%w: trigger %s belongs to %s", persistence.ErrConstraintViolation, record.Descriptor.Name(), record.Descriptor.AppID)
		}
		document, err := encodeDescriptor(record.Descriptor)
		if err != nil {
			return err
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = r.now()
		}
		rows = append(rows, row{record: record, document: document})
	}

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM policies WHERE app_id = ?`, appID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: no policy for %s", persistence.ErrConstraintViolation, appID)
			}
			if err != nil {
				return r.mapper.MapError(err)
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM policy_triggers WHERE app_id = ?`, appID); err != nil {
				return r.mapper.MapError(err)
			}
			for _, row := range rows {
				d := row.record.Descriptor
				_, err := tx.ExecContext(ctx, `
					INSERT INTO policy_triggers (app_id, name, handle, kind, schedule_index, action, descriptor, created_at)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
					appID, d.Name(), string(row.record.Handle), int(d.Kind), d.Index, int(d.Action), row.document,
					formatTimestamp(row.record.CreatedAt),
				)
				if err != nil {
					return r.mapper.MapError(err)
				}
			}
			return nil
		})
	})
}

// DeleteScheduleTriggers drops the triggers of one schedule.
func (r *PolicyRepository) DeleteScheduleTriggers(ctx context.Context, appID string, kind schedule.Kind, index int) error {
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx,
			`DELETE FROM policy_triggers WHERE app_id = ? AND kind = ? AND schedule_index = ?`,
			appID, int(kind), index)
		return err
	})
}

// GetActiveSchedule returns the schedule in force for appID.
func (r *PolicyRepository) GetActiveSchedule(ctx context.Context, appID string) (persistence.ActiveSchedule, error) {
	var (
		active             persistence.ActiveSchedule
		kind               int
		minCount, maxCount sql.NullInt64
		initialMin         sql.NullInt64
		startedAt          string
	)
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT app_id, policy_guid, kind, schedule_index, instance_min_count, instance_max_count,
			initial_min_instance_count, started_at
		FROM active_schedules
		WHERE app_id = ?`, appID).Scan(
		&active.AppID, &active.PolicyGUID, &kind, &active.Index, &minCount, &maxCount, &initialMin, &startedAt,
	)
	if err != nil {
		return persistence.ActiveSchedule{}, r.mapper.MapError(err)
	}
	active.Kind = schedule.Kind(kind)
	active.Counts = schedule.Counts{
		InstanceMinCount:        fromNullInt(minCount),
		InstanceMaxCount:        fromNullInt(maxCount),
		InitialMinInstanceCount: fromNullInt(initialMin),
	}
	if active.StartedAt, err = parseTimestamp("started_at", startedAt); err != nil {
		return persistence.ActiveSchedule{}, err
	}
	return active, nil
}

// SetActiveSchedule records the schedule in force. The policy must exist.
func (r *PolicyRepository) SetActiveSchedule(ctx context.Context, active persistence.ActiveSchedule) error {
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, `
			INSERT INTO active_schedules (app_id, policy_guid, kind, schedule_index, instance_min_count,
				instance_max_count, initial_min_instance_count, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (app_id) DO UPDATE SET
				policy_guid = excluded.policy_guid,
				kind = excluded.kind,
				schedule_index = excluded.schedule_index,
				instance_min_count = excluded.instance_min_count,
				instance_max_count = excluded.instance_max_count,
				initial_min_instance_count = excluded.initial_min_instance_count,
				started_at = excluded.started_at`,
			active.AppID, active.PolicyGUID, int(active.Kind), active.Index,
			toNullInt(active.Counts.InstanceMinCount),
			toNullInt(active.Counts.InstanceMaxCount),
			toNullInt(active.Counts.InitialMinInstanceCount),
			formatTimestamp(active.StartedAt),
		)
		return err
	})
}

// ClearActiveSchedule forgets the schedule in force.
func (r *PolicyRepository) ClearActiveSchedule(ctx context.Context, appID string) error {
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, `DELETE FROM active_schedules WHERE app_id = ?`, appID)
		return err
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row scanner) (persistence.PolicyRecord, error) {
	var (
		record               persistence.PolicyRecord
		timezone, document   string
		createdAt, updatedAt string
	)
	if err := row.Scan(&record.AppID, &record.GUID, &record.Fingerprint, &timezone, &document, &createdAt, &updatedAt); err != nil {
		return persistence.PolicyRecord{}, err
	}
	policy, err := decodePolicy(record.AppID, timezone, document)
	if err != nil {
		return persistence.PolicyRecord{}, err
	}
	record.Policy = policy
	if record.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
		return persistence.PolicyRecord{}, err
	}
	if record.UpdatedAt, err = parseTimestamp("updated_at", updatedAt); err != nil {
		return persistence.PolicyRecord{}, err
	}
	return record, nil
}

func toNullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
