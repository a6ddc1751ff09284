package trigger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	schedulertypes "github.com/aws/aws-sdk-go-v2/service/scheduler/types"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/crypto/blake2b"
)

// SchedulerAPI is the subset of the EventBridge Scheduler client used by
// EventBridgeStore.
type SchedulerAPI interface {
	CreateSchedule(ctx context.Context, params *scheduler.CreateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error)
	DeleteSchedule(ctx context.Context, params *scheduler.DeleteScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.DeleteScheduleOutput, error)
	ListSchedules(ctx context.Context, params *scheduler.ListSchedulesInput, optFns ...func(*scheduler.Options)) (*scheduler.ListSchedulesOutput, error)
}

// EventBridgeConfig names the target every schedule invokes.
type EventBridgeConfig struct {
	TargetARN string
	RoleARN   string
	GroupName string
}

// EventBridgeStore registers triggers as EventBridge schedules. Firing is
// delivered by EventBridge to the configured target.
type EventBridgeStore struct {
	client SchedulerAPI
	cfg    EventBridgeConfig
	clock  func() time.Time
	logger *slog.Logger
}

// NewEventBridgeStore wraps an existing client.
func NewEventBridgeStore(client SchedulerAPI, cfg EventBridgeConfig, logger *slog.Logger) *EventBridgeStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBridgeStore{client: client, cfg: cfg, clock: time.Now, logger: logger}
}

// NewEventBridgeStoreFromConfig builds the client from an AWS config.
func NewEventBridgeStoreFromConfig(awsCfg aws.Config, cfg EventBridgeConfig, logger *slog.Logger) *EventBridgeStore {
	return NewEventBridgeStore(scheduler.NewFromConfig(awsCfg), cfg, logger)
}

// payload is the JSON input delivered to the target on every firing.
type payload struct {
	AppID                   string `json:"app_id"`
	PolicyGUID              string `json:"policy_guid"`
	ScheduleKind            string `json:"schedule_kind"`
	ScheduleIndex           int    `json:"schedule_index"`
	Action                  string `json:"action"`
	InstanceMinCount        *int   `json:"instance_min_count,omitempty"`
	InstanceMaxCount        *int   `json:"instance_max_count,omitempty"`
	InitialMinInstanceCount *int   `json:"initial_min_instance_count,omitempty"`
	ScheduledTime           string `json:"scheduled_time"`
}

// Register implements Store.
func (s *EventBridgeStore) Register(ctx context.Context, d Descriptor) (Handle, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}

	input, err := json.Marshal(payload{
		AppID:                   d.AppID,
		PolicyGUID:              d.PolicyGUID,
		ScheduleKind:            kindSlug(d.Kind),
		ScheduleIndex:           d.Index,
		Action:                  d.Action.String(),
		InstanceMinCount:        d.Counts.InstanceMinCount,
		InstanceMaxCount:        d.Counts.InstanceMaxCount,
		InitialMinInstanceCount: d.Counts.InitialMinInstanceCount,
		ScheduledTime:           "<aws.scheduler.scheduled-time>",
	})
	if err != nil {
		return "", fmt.Errorf("marshal trigger payload: %w", err)
	}

	params := &scheduler.CreateScheduleInput{
		Name:                       aws.String(ScheduleName(d)),
		Description:                aws.String(fmt.Sprintf("autoscaler %s for app %s", d.Name(), d.AppID)),
		ScheduleExpression:         aws.String(ScheduleExpression(d)),
		ScheduleExpressionTimezone: aws.String(d.Timezone),
		FlexibleTimeWindow: &schedulertypes.FlexibleTimeWindow{
			Mode: schedulertypes.FlexibleTimeWindowModeOff,
		},
		Target: &schedulertypes.Target{
			Arn:     aws.String(s.cfg.TargetARN),
			RoleArn: aws.String(s.cfg.RoleARN),
			Input:   aws.String(string(input)),
			RetryPolicy: &schedulertypes.RetryPolicy{
				MaximumRetryAttempts:     aws.Int32(2),
				MaximumEventAgeInSeconds: aws.Int32(300),
			},
		},
		State: schedulertypes.ScheduleStateEnabled,
	}
	if s.cfg.GroupName != "" {
		params.GroupName = aws.String(s.cfg.GroupName)
	}
	if d.Recurring() {
		if !d.ValidFrom.IsZero() {
			params.StartDate = aws.Time(d.ValidFrom)
		}
		if d.ValidUntil != nil {
			params.EndDate = aws.Time(*d.ValidUntil)
		}
	} else {
		params.ActionAfterCompletion = schedulertypes.ActionAfterCompletionDelete
	}

	out, err := s.client.CreateSchedule(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create eventbridge schedule %s: %w", aws.ToString(params.Name), err)
	}
	s.logger.Debug("eventbridge schedule created",
		"app_id", d.AppID,
		"trigger", d.Name(),
		"expression", aws.ToString(params.ScheduleExpression),
	)
	return Handle(aws.ToString(out.ScheduleArn)), nil
}

// DeregisterAll implements Store. Every schedule whose name carries the
// application's prefix is deleted; schedules already gone are ignored.
func (s *EventBridgeStore) DeregisterAll(ctx context.Context, appID string) error {
	input := &scheduler.ListSchedulesInput{NamePrefix: aws.String(NamePrefix(appID))}
	if s.cfg.GroupName != "" {
		input.GroupName = aws.String(s.cfg.GroupName)
	}

	var result *multierror.Error
	paginator := scheduler.NewListSchedulesPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list eventbridge schedules: %w", err)
		}
		for _, summary := range page.Schedules {
			_, err := s.client.DeleteSchedule(ctx, &scheduler.DeleteScheduleInput{
				Name:      summary.Name,
				GroupName: summary.GroupName,
			})
			var notFound *schedulertypes.ResourceNotFoundException
			if err != nil && !errors.As(err, &notFound) {
				result = multierror.Append(result, fmt.Errorf("delete eventbridge schedule %s: %w", aws.ToString(summary.Name), err))
			}
		}
	}
	return result.ErrorOrNil()
}

// Now implements Store.
func (s *EventBridgeStore) Now(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return s.clock().In(loc)
}

var awsWeekdays = [...]string{"", "MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

// ScheduleExpression renders the descriptor as an EventBridge expression:
// at(...) for one-shot triggers and a 6-field cron(...) for recurring ones.
func ScheduleExpression(d Descriptor) string {
	if !d.Recurring() {
		at := d.FireAt
		if loc, err := d.Location(); err == nil {
			at = at.In(loc)
		}
		return "at(" + at.Format("2006-01-02T15:04:05") + ")"
	}

	r := d.Recurrence
	dom, dow := "?", "?"
	if len(r.Weekdays) > 0 {
		days := make([]string, 0, len(r.Weekdays))
		for _, day := range r.Weekdays {
			if day >= 1 && day < len(awsWeekdays) {
				days = append(days, awsWeekdays[day])
			}
		}
		dow = strings.Join(days, ",")
	} else {
		dom = joinInts(r.MonthDays)
	}
	return fmt.Sprintf("cron(%d %d %s * %s *)", r.Minute, r.Hour, dom, dow)
}

// NamePrefix is the schedule name prefix shared by all triggers of an
// application. App ids are hashed so the name stays within EventBridge's
// character set and length limits.
func NamePrefix(appID string) string {
	sum := blake2b.Sum256([]byte(appID))
	return "as-" + hex.EncodeToString(sum[:12]) + "-"
}

// ScheduleName is the EventBridge schedule name of a descriptor.
func ScheduleName(d Descriptor) string {
	return NamePrefix(d.AppID) + d.Name()
}
