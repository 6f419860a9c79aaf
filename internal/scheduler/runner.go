package scheduler

import (
	"context"
	"fmt"
	"time"
)

// QueueService runs the alert queue pass and stuck-claim recovery.
type QueueService interface {
	ProcessQueuedAlerts(ctx context.Context, now time.Time) (Summary, error)
	RecoverStuck(ctx context.Context, now time.Time) (int64, error)
}

// DeadLetterService sweeps exhausted alerts and archives old dead ones.
type DeadLetterService interface {
	ProcessDLQ(ctx context.Context, now time.Time) (int64, error)
	ArchiveDeadAlerts(ctx context.Context, now time.Time, retentionDays int) (int, error)
}

// IdleSessionService detects and handles idle shopper sessions.
type IdleSessionService interface {
	ProcessIdleSessions(ctx context.Context, now time.Time, threshold time.Duration) (int, error)
}

// JobRunner routes a TaskType to the matching service. It is shared by the
// alert worker Lambda and the ops cron endpoint so both dispatch identically.
type JobRunner struct {
	Queue      QueueService
	DeadLetter DeadLetterService
	Idle       IdleSessionService

	IdleThreshold     time.Duration
	DeadRetentionDays int
}

// Run executes one task at the given reference time and returns the number
// of items processed.
func (r *JobRunner) Run(ctx context.Context, task TaskType, now time.Time) (int, error) {
	switch task {
	case TaskProcessAlerts:
		summary, err := r.Queue.ProcessQueuedAlerts(ctx, now)
		return summary.Claimed, err

	case TaskRecoverStuck:
		count, err := r.Queue.RecoverStuck(ctx, now)
		return int(count), err

	case TaskSweepDLQ:
		count, err := r.DeadLetter.ProcessDLQ(ctx, now)
		return int(count), err

	case TaskArchiveDead:
		return r.DeadLetter.ArchiveDeadAlerts(ctx, now, r.DeadRetentionDays)

	case TaskIdleSessions:
		return r.Idle.ProcessIdleSessions(ctx, now, r.IdleThreshold)

	default:
		return 0, fmt.Errorf("unknown task type: %s", task)
	}
}

// Compile-time assertions that the concrete services satisfy the runner
// interfaces.
var (
	_ QueueService       = (*AlertProcessor)(nil)
	_ DeadLetterService  = (*DLQProcessor)(nil)
	_ IdleSessionService = (*IdleSessionDetector)(nil)
)
