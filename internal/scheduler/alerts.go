package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"storepulse/internal/alerts/channel"
	"storepulse/internal/alerts/core"
	"storepulse/internal/types"
)

// AlertQueueDB defines the alert table operations needed by the processor.
type AlertQueueDB interface {
	// ClaimDue atomically moves due queued/retryable rows to 'sending' and
	// returns them oldest-first.
	ClaimDue(ctx context.Context, now time.Time, limit, maxAttempts int) ([]*types.Alert, error)

	// MarkSent completes a claimed alert.
	MarkSent(ctx context.Context, id string, at time.Time) error

	// MarkFailed records a delivery failure, advancing the attempt counter.
	// A nil nextAttemptAt means no further retry is scheduled.
	MarkFailed(ctx context.Context, id string, lastError string, nextAttemptAt *time.Time, at time.Time) error

	// Defer returns a claimed alert to 'queued' with a future due time
	// without consuming an attempt.
	Defer(ctx context.Context, id string, until time.Time, at time.Time) error

	// RecoverStuckSending returns crashed 'sending' claims to 'queued'.
	RecoverStuckSending(ctx context.Context, stuckBefore time.Time, at time.Time) (int64, error)
}

// TenantSettingsDB resolves per-tenant alert settings.
type TenantSettingsDB interface {
	GetOrCreate(ctx context.Context, tenantID string) (*types.AlertSettings, error)
}

// AlertProcessor drains the alert queue: it claims due alerts, applies the
// tenant's delivery policy, dispatches through the channel registry, and
// persists every state transition before moving to the next alert.
type AlertProcessor struct {
	db           AlertQueueDB
	settings     TenantSettingsDB
	registry     *channel.Registry
	policy       core.PolicyEngine
	retryPolicy  core.RetryPolicy
	metrics      core.AlertMetrics
	logger       *slog.Logger
	batchSize    int
	claimTimeout time.Duration
	clock        types.Clock
}

// AlertProcessorConfig wires an AlertProcessor.
type AlertProcessorConfig struct {
	DB           AlertQueueDB
	Settings     TenantSettingsDB
	Registry     *channel.Registry
	Policy       core.PolicyEngine
	RetryPolicy  core.RetryPolicy
	Metrics      core.AlertMetrics
	Logger       *slog.Logger
	BatchSize    int
	ClaimTimeout time.Duration
}

// NewAlertProcessor creates an AlertProcessor.
func NewAlertProcessor(cfg AlertProcessorConfig) *AlertProcessor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = core.NoopAlertMetrics{}
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	claimTimeout := cfg.ClaimTimeout
	if claimTimeout <= 0 {
		claimTimeout = 10 * time.Minute
	}

	return &AlertProcessor{
		db:           cfg.DB,
		settings:     cfg.Settings,
		registry:     cfg.Registry,
		policy:       cfg.Policy,
		retryPolicy:  cfg.RetryPolicy,
		metrics:      metrics,
		logger:       logger,
		batchSize:    batchSize,
		claimTimeout: claimTimeout,
		clock:        types.RealClock{},
	}
}

// ProcessQueuedAlerts runs one processing pass over due alerts.
//
// Per-alert flow:
//  1. Resolve tenant settings (cached within the pass).
//  2. Disabled channel -> failed with "channel disabled", no retry scheduled.
//  3. Quiet hours active -> defer to window end without consuming an attempt.
//  4. Dispatch. Success -> sent. Transient failure with attempts remaining ->
//     failed with a backoff deadline. Anything else -> failed with no deadline,
//     leaving the alert for the dead-letter sweep.
//
// Every transition is persisted before the next alert so a crash mid-pass
// loses at most the alert currently in flight, which the stuck-claim recovery
// sweep returns to the queue.
func (p *AlertProcessor) ProcessQueuedAlerts(ctx context.Context, now time.Time) (Summary, error) {
	var summary Summary

	claimed, err := p.db.ClaimDue(ctx, now, p.batchSize, p.retryPolicy.MaxAttempts)
	if err != nil {
		return summary, fmt.Errorf("ProcessQueuedAlerts: claiming due alerts: %w", err)
	}
	summary.Claimed = len(claimed)

	if len(claimed) == 0 {
		return summary, nil
	}

	settingsCache := make(map[string]*types.AlertSettings)

	for _, alert := range claimed {
		settings, ok := settingsCache[alert.TenantID]
		if !ok {
			settings, err = p.settings.GetOrCreate(ctx, alert.TenantID)
			if err != nil {
				// Without settings we cannot make a policy decision. Return
				// the alert to the queue untouched and move on.
				p.logger.ErrorContext(ctx, "failed to load tenant settings, requeueing alert",
					"alert_id", alert.ID,
					"tenant", alert.TenantID,
					"error", err,
				)
				if deferErr := p.db.Defer(ctx, alert.ID, now, now); deferErr != nil {
					p.logger.ErrorContext(ctx, "failed to requeue alert", "alert_id", alert.ID, "error", deferErr)
				}
				continue
			}
			settingsCache[alert.TenantID] = settings
		}

		p.processOne(ctx, alert, settings, now, &summary)
	}

	p.logger.InfoContext(ctx, "alert processing pass complete",
		"claimed", summary.Claimed,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"retried", summary.Retried,
		"deferred", summary.Deferred,
	)

	return summary, nil
}

func (p *AlertProcessor) processOne(ctx context.Context, alert *types.Alert, settings *types.AlertSettings, now time.Time, summary *Summary) {
	chCfg, enabled := settings.Channels[alert.Channel]
	if !enabled || !chCfg.Enabled {
		if err := p.db.MarkFailed(ctx, alert.ID, "channel disabled", nil, now); err != nil {
			p.logger.ErrorContext(ctx, "failed to mark alert failed", "alert_id", alert.ID, "error", err)
			return
		}
		p.metrics.RecordDelivery(ctx, alert.Channel, core.MetricFailed)
		summary.Failed++
		return
	}

	policyResult, err := p.policy.Evaluate(ctx, alert, settings)
	if err != nil {
		p.logger.ErrorContext(ctx, "policy evaluation failed, delivering",
			"alert_id", alert.ID,
			"error", err,
		)
	}
	if policyResult.Decision == core.PolicyDefer && policyResult.ResumeAt != nil {
		if err := p.db.Defer(ctx, alert.ID, *policyResult.ResumeAt, now); err != nil {
			p.logger.ErrorContext(ctx, "failed to defer alert", "alert_id", alert.ID, "error", err)
			return
		}
		p.metrics.RecordDelivery(ctx, alert.Channel, core.MetricDeferred)
		summary.Deferred++
		return
	}

	ch, err := p.registry.Get(alert.Channel)
	if err != nil {
		if markErr := p.db.MarkFailed(ctx, alert.ID, err.Error(), nil, now); markErr != nil {
			p.logger.ErrorContext(ctx, "failed to mark alert failed", "alert_id", alert.ID, "error", markErr)
			return
		}
		summary.Failed++
		return
	}

	started := p.clock.Now()
	result, sendErr := ch.Send(ctx, chCfg, alert)
	p.metrics.RecordLatency(ctx, alert.Channel, p.clock.Now().Sub(started))

	if sendErr == nil {
		if err := p.db.MarkSent(ctx, alert.ID, now); err != nil {
			p.logger.ErrorContext(ctx, "delivered but failed to mark sent",
				"alert_id", alert.ID,
				"provider_message_id", result.ProviderMessageID,
				"error", err,
			)
			return
		}
		p.metrics.RecordDelivery(ctx, alert.Channel, core.MetricSuccess)
		summary.Sent++
		return
	}

	// Delivery failed. Transient failures with attempts remaining get a
	// backoff deadline; permanent failures and exhausted alerts are left for
	// the dead-letter sweep.
	var nextAttemptAt *time.Time
	retrying := false
	if channel.Retryable(sendErr) && alert.Attempts+1 < p.retryPolicy.MaxAttempts {
		next := now.Add(core.CalculateNextRetry(p.retryPolicy, alert.Attempts))
		nextAttemptAt = &next
		retrying = true
	}

	if err := p.db.MarkFailed(ctx, alert.ID, sendErr.Error(), nextAttemptAt, now); err != nil {
		p.logger.ErrorContext(ctx, "failed to record delivery failure", "alert_id", alert.ID, "error", err)
		return
	}

	p.metrics.RecordDelivery(ctx, alert.Channel, core.MetricFailed)
	if retrying {
		summary.Retried++
	} else {
		summary.Failed++
	}

	p.logger.WarnContext(ctx, "alert delivery failed",
		"alert_id", alert.ID,
		"tenant", alert.TenantID,
		"channel", string(alert.Channel),
		"attempt", alert.Attempts+1,
		"retrying", retrying,
		"error", sendErr,
	)
}

// RecoverStuck returns alerts stuck in 'sending' longer than the claim
// timeout back to 'queued'. These are claims from crashed workers; their
// attempt counters are left untouched.
func (p *AlertProcessor) RecoverStuck(ctx context.Context, now time.Time) (int64, error) {
	recovered, err := p.db.RecoverStuckSending(ctx, now.Add(-p.claimTimeout), now)
	if err != nil {
		return 0, fmt.Errorf("RecoverStuck: %w", err)
	}
	if recovered > 0 {
		p.logger.WarnContext(ctx, "recovered stuck alert claims", "count", recovered)
	}
	return recovered, nil
}
