// Package core provides the shared alert infrastructure used by the channel
// dispatchers and the scheduler jobs. It centralizes delivery policy,
// retry timing, and observability so every channel behaves consistently.
package core

import (
	"context"
	"time"

	"storepulse/internal/types"
)

// PolicyDecision represents the outcome of a delivery policy evaluation.
type PolicyDecision string

const (
	// PolicyDeliverImmediately indicates the alert should be sent now.
	PolicyDeliverImmediately PolicyDecision = "deliver"

	// PolicyDefer indicates the alert should be re-queued for a later time.
	PolicyDefer PolicyDecision = "defer"
)

// PolicyResult contains the outcome and metadata from a policy evaluation.
type PolicyResult struct {
	Decision PolicyDecision
	Reason   string
	ResumeAt *time.Time // Set when Decision is PolicyDefer
}

// PolicyEngine determines whether an alert should be dispatched now or
// deferred based on the tenant's quiet hours configuration.
type PolicyEngine interface {
	// Evaluate checks the tenant's quiet hours window against the current
	// time. Deferred alerts keep their attempt count; only genuine delivery
	// failures consume attempts.
	Evaluate(ctx context.Context, alert *types.Alert, settings *types.AlertSettings) (PolicyResult, error)
}

// MetricResult categorizes a delivery outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess  MetricResult = "success"
	MetricFailed   MetricResult = "failed"
	MetricDeferred MetricResult = "deferred"
	MetricDead     MetricResult = "dead"
)

// AlertMetrics abstracts CloudWatch/telemetry operations for the alert
// pipeline.
type AlertMetrics interface {
	RecordDelivery(ctx context.Context, channel types.ChannelType, result MetricResult)
	RecordLatency(ctx context.Context, channel types.ChannelType, duration time.Duration)
	RecordIndexProgress(ctx context.Context, tenant string, processed, failed int)
}

// RetryPolicy defines the exponential backoff parameters for alert retries.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultAlertRetryPolicy yields 1m, 5m, 25m waits across three attempts.
var DefaultAlertRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelay:     1 * time.Minute,
	MaxDelay:      25 * time.Minute,
	BackoffFactor: 5.0,
}

// CalculateNextRetry computes the delay before the next retry attempt using
// exponential backoff: delay = min(BaseDelay * BackoffFactor^attempt, MaxDelay).
// Attempt is zero-based: the wait after the first failure uses attempt 0.
func CalculateNextRetry(policy RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.BackoffFactor
	}

	d := time.Duration(delay)
	if d > policy.MaxDelay {
		d = policy.MaxDelay
	}
	if d < 0 {
		// Guard against overflow
		d = policy.MaxDelay
	}

	return d
}
