// Package scheduler implements the scheduled jobs of the alert pipeline:
// processing queued alerts, recovering stuck claims, sweeping exhausted
// alerts to the dead letter set, archiving old dead alerts, and detecting
// idle shopper sessions.
//
// All jobs accept a `now` parameter for deterministic testing and manual
// backfill via JobPayload.ReferenceTime, and use bounded batch sizes to stay
// inside Lambda timeouts.
package scheduler

import "time"

// TaskType identifies which scheduled job an invocation should run. Each
// constant maps to a specific service method in the job multiplexer.
type TaskType string

const (
	TaskProcessAlerts TaskType = "process_alerts"
	TaskRecoverStuck  TaskType = "recover_stuck"
	TaskSweepDLQ      TaskType = "sweep_dlq"
	TaskArchiveDead   TaskType = "archive_dead"
	TaskIdleSessions  TaskType = "idle_sessions"
)

// JobPayload is the JSON payload sent by the cron caller to a worker. It
// identifies the task to execute and optionally overrides the reference time
// for manual invocation or backfilling.
//
//	{
//	  "task": "process_alerts",
//	  "reference_time": "2026-08-01T03:00:00Z"  // optional
//	}
type JobPayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime allows manual invocation to specify a different "now"
	// for deterministic execution. If nil, time.Now().UTC() is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Summary reports the outcome of one alert processing pass.
type Summary struct {
	Claimed  int `json:"claimed"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Retried  int `json:"retried"`
	Deferred int `json:"deferred"`
}
