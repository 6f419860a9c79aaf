package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"storepulse/internal/types"
)

// IdleSessionDB defines the session table operations needed by the detector.
type IdleSessionDB interface {
	// ListIdleOpen returns open sessions whose last activity predates idleBefore.
	ListIdleOpen(ctx context.Context, idleBefore time.Time, limit int) ([]*types.Session, error)

	// Close ends a session. Returns false when another sweep already closed it.
	Close(ctx context.Context, id string, reason types.EndReason, at time.Time) (bool, error)
}

// IdleAlertDB defines the alert table operations needed by the detector.
type IdleAlertDB interface {
	Create(ctx context.Context, a *types.Alert) error

	// PendingIdleAlertExists reports whether a non-terminal idle alert
	// already exists for the session. This is the idempotency key of the
	// sweep: one idle alert burst per session, no matter how often it runs.
	PendingIdleAlertExists(ctx context.Context, sessionID string) (bool, error)
}

// idleBatchLimit bounds how many idle sessions one sweep examines.
const idleBatchLimit = 200

// IdleSessionDetector finds shopper sessions that went silent and enqueues
// idle alerts for the tenant's enabled channels.
type IdleSessionDetector struct {
	sessions IdleSessionDB
	alerts   IdleAlertDB
	settings TenantSettingsDB
	logger   *slog.Logger
}

// NewIdleSessionDetector creates an IdleSessionDetector.
func NewIdleSessionDetector(sessions IdleSessionDB, alerts IdleAlertDB, settings TenantSettingsDB, logger *slog.Logger) *IdleSessionDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdleSessionDetector{
		sessions: sessions,
		alerts:   alerts,
		settings: settings,
		logger:   logger,
	}
}

// ProcessIdleSessions runs one idle detection sweep. For each open session
// idle longer than threshold:
//
//  1. Skip when a non-terminal idle alert already exists (idempotency).
//  2. Skip low-quality leads (intent score below the low-quality floor).
//  3. Skip when the tenant has the idle_session trigger disabled.
//  4. Enqueue one idle alert per enabled channel.
//  5. Close the session with end reason idle_timeout when the tenant has
//     auto-close enabled.
//
// Returns the number of alerts created. Per-session failures are logged and
// skipped so one broken session cannot stall the sweep.
func (d *IdleSessionDetector) ProcessIdleSessions(ctx context.Context, now time.Time, threshold time.Duration) (int, error) {
	sessions, err := d.sessions.ListIdleOpen(ctx, now.Add(-threshold), idleBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("ProcessIdleSessions: listing idle sessions: %w", err)
	}
	if len(sessions) == 0 {
		return 0, nil
	}

	created := 0
	for _, sess := range sessions {
		n, err := d.processSession(ctx, sess, now)
		if err != nil {
			d.logger.ErrorContext(ctx, "idle session processing failed",
				"session_id", sess.ID,
				"tenant", sess.TenantID,
				"error", err,
			)
			continue
		}
		created += n
	}

	d.logger.InfoContext(ctx, "idle session sweep complete",
		"examined", len(sessions),
		"alerts_created", created,
	)

	return created, nil
}

func (d *IdleSessionDetector) processSession(ctx context.Context, sess *types.Session, now time.Time) (int, error) {
	exists, err := d.alerts.PendingIdleAlertExists(ctx, sess.ID)
	if err != nil {
		return 0, fmt.Errorf("checking idle alert idempotency: %w", err)
	}
	if exists {
		return 0, nil
	}

	settings, err := d.settings.GetOrCreate(ctx, sess.TenantID)
	if err != nil {
		return 0, fmt.Errorf("loading settings: %w", err)
	}

	created := 0
	notify := sess.IntentScore >= types.LowQualityIntentScore &&
		settings.TriggerEnabled(types.TriggerIdleSession)

	if notify {
		payload := idlePayload(sess)
		for _, ch := range settings.EnabledChannels() {
			sessionID := sess.ID
			alert := &types.Alert{
				TenantID:    sess.TenantID,
				SessionID:   &sessionID,
				Channel:     ch,
				TriggerType: types.TriggerIdleSession,
				Payload:     payload,
			}
			if err := d.alerts.Create(ctx, alert); err != nil {
				return created, fmt.Errorf("creating %s alert: %w", ch, err)
			}
			created++
		}
	}

	if settings.AutoCloseIdle {
		closed, err := d.sessions.Close(ctx, sess.ID, types.EndReasonIdleTimeout, now)
		if err != nil {
			return created, fmt.Errorf("closing session: %w", err)
		}
		if !closed {
			d.logger.InfoContext(ctx, "session already closed by another sweep", "session_id", sess.ID)
		}
	}

	return created, nil
}

// idlePayload builds the alert payload for an idle session, classifying the
// lead from its intent score.
func idlePayload(sess *types.Session) types.AlertPayload {
	kind := "browsing"
	switch {
	case sess.IntentScore >= types.HighIntentScore:
		kind = "high_intent"
	case sess.IntentScore >= types.AbandonedIntentScore:
		kind = "abandoned"
	}

	payload := types.AlertPayload{
		"intent_score": sess.IntentScore,
		"lead_kind":    kind,
	}
	if sess.Summary != "" {
		payload["summary"] = sess.Summary
	}
	return payload
}
