// Package jobs bridges scheduled sync work onto the go-job queue: it maps
// the core job contract to go-job messages and turns dequeued messages back
// into orchestrator runs.
package jobs

import (
	"context"
	"fmt"
	"strings"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	"github.com/goliatone/go-calendar-sync/core"
)

const (
	JobIDSyncCalendar = "calendarsync.sync.calendar"
	JobIDSyncAll      = "calendarsync.sync.all"
)

// ToExecutionMessage maps the core job contract to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message into the core contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("jobs: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("jobs: execution message is required")
	}
	_, err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
	return err
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
