package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
)

// defaultDedupWindow buckets idempotency keys so repeated schedule ticks for
// the same integration collapse into one queued run.
const defaultDedupWindow = 5 * time.Minute

// Scheduler enqueues background sync runs with deterministic idempotency
// keys.
type Scheduler struct {
	Enqueuer    core.JobEnqueuer
	DedupWindow time.Duration
	Now         func() time.Time
}

func NewScheduler(enqueuer core.JobEnqueuer) *Scheduler {
	return &Scheduler{
		Enqueuer:    enqueuer,
		DedupWindow: defaultDedupWindow,
		Now:         time.Now,
	}
}

func (s *Scheduler) EnqueueSyncCalendar(ctx context.Context, userID string, integrationID string, direction core.SyncDirection) error {
	if s == nil || s.Enqueuer == nil {
		return fmt.Errorf("jobs: scheduler requires an enqueuer")
	}
	userID = strings.TrimSpace(userID)
	integrationID = strings.TrimSpace(integrationID)
	if userID == "" || integrationID == "" {
		return fmt.Errorf("jobs: user id and integration id are required")
	}
	return s.Enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID: JobIDSyncCalendar,
		Parameters: map[string]any{
			"user_id":        userID,
			"integration_id": integrationID,
			"direction":      string(direction),
		},
		IdempotencyKey: s.idempotencyKey(JobIDSyncCalendar, integrationID),
	})
}

func (s *Scheduler) EnqueueSyncAll(ctx context.Context, userID string) error {
	if s == nil || s.Enqueuer == nil {
		return fmt.Errorf("jobs: scheduler requires an enqueuer")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("jobs: user id is required")
	}
	return s.Enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID: JobIDSyncAll,
		Parameters: map[string]any{
			"user_id": userID,
		},
		IdempotencyKey: s.idempotencyKey(JobIDSyncAll, userID),
	})
}

func (s *Scheduler) idempotencyKey(jobID string, subject string) string {
	window := s.DedupWindow
	if window <= 0 {
		window = defaultDedupWindow
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	bucket := now().UTC().Truncate(window).Format(time.RFC3339)
	return jobID + "::" + subject + "::" + bucket
}

// SyncRunner matches the orchestrator surface the runner executes against.
type SyncRunner interface {
	SyncCalendar(ctx context.Context, userID string, integrationID string, direction core.SyncDirection) (core.SyncResult, error)
	SyncAll(ctx context.Context, userID string) ([]core.SyncResult, error)
}

// Runner executes dequeued sync jobs.
type Runner struct {
	Sync SyncRunner
}

func NewRunner(sync SyncRunner) *Runner {
	return &Runner{Sync: sync}
}

func (r *Runner) Execute(ctx context.Context, msg *core.JobExecutionMessage) error {
	if r == nil || r.Sync == nil {
		return fmt.Errorf("jobs: runner requires a sync runner")
	}
	if msg == nil {
		return fmt.Errorf("jobs: execution message is required")
	}

	userID := stringParam(msg.Parameters, "user_id")
	if userID == "" {
		return fmt.Errorf("jobs: %s requires a user_id parameter", msg.JobID)
	}

	switch strings.TrimSpace(msg.JobID) {
	case JobIDSyncCalendar:
		integrationID := stringParam(msg.Parameters, "integration_id")
		if integrationID == "" {
			return fmt.Errorf("jobs: %s requires an integration_id parameter", JobIDSyncCalendar)
		}
		direction := core.SyncDirection(stringParam(msg.Parameters, "direction"))
		_, err := r.Sync.SyncCalendar(ctx, userID, integrationID, direction)
		return err
	case JobIDSyncAll:
		_, err := r.Sync.SyncAll(ctx, userID)
		return err
	default:
		return fmt.Errorf("jobs: unknown job id %q", msg.JobID)
	}
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}
