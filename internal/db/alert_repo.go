package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"storepulse/internal/types"
)

// alertColumns is the canonical column list for scanning alert rows.
const alertColumns = `id, tenant_id, session_id, channel, trigger_type, payload,
	status, attempts, last_error, next_attempt_at, sent_at, created_at, updated_at`

// AlertRepository provides data access for the alerts table.
//
// Delivery state transitions are single-row conditional updates: the WHERE
// clause names the expected current status, and zero rows affected means
// another worker won the row. This is the whole claim mechanism; there are no
// advisory locks or multi-row transactions.
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates a new AlertRepository backed by the given
// database connection (pool or transaction).
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert in the queued state. If the ID is empty a
// prefixed UUID is generated ("alr_...").
func (r *AlertRepository) Create(ctx context.Context, a *types.Alert) error {
	if a.ID == "" {
		a.ID = "alr_" + uuid.NewString()
	}
	if a.Status == "" {
		a.Status = types.AlertStatusQueued
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO alerts
		 (id, tenant_id, session_id, channel, trigger_type, payload,
		  status, attempts, next_attempt_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
		 RETURNING created_at, updated_at`,
		a.ID,
		a.TenantID,
		a.SessionID,
		string(a.Channel),
		string(a.TriggerType),
		a.Payload,
		string(a.Status),
		a.NextAttemptAt,
	)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create alert", err)
	}
	return nil
}

// Get retrieves a single alert by ID.
func (r *AlertRepository) Get(ctx context.Context, id string) (*types.Alert, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get alert", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get alert", err)
		}
		return nil, types.NewAppError(types.ErrCodeNotFoundAlert, "alert not found", nil)
	}
	a, err := scanAlert(rows)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert row", err)
	}
	return a, nil
}

// ClaimDue atomically claims queued and retryable failed alerts that are due
// at now, moving them to the sending state. Rows are claimed oldest-first.
// Queued rows with no deadline are immediately due; failed rows are due only
// when a retry deadline was scheduled — a NULL next_attempt_at on a failed
// row means MarkFailed declined to retry (disabled channel, config or
// rejected sends), and the dead-letter sweep owns it. Exhausted rows
// (attempts >= maxAttempts) are never claimed either. SKIP LOCKED keeps
// concurrent scheduler passes from claiming the same rows.
func (r *AlertRepository) ClaimDue(ctx context.Context, now time.Time, limit, maxAttempts int) ([]*types.Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`UPDATE alerts SET
			status = 'sending',
			updated_at = $1
		 WHERE id IN (
			SELECT id FROM alerts
			WHERE attempts < $2
			  AND (
				(status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= $1))
				OR
				(status = 'failed' AND next_attempt_at IS NOT NULL AND next_attempt_at <= $1)
			  )
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+alertColumns,
		now, maxAttempts, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to claim due alerts", err)
	}
	defer rows.Close()

	var claimed []*types.Alert
	for rows.Next() {
		a, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan claimed alert", scanErr)
		}
		claimed = append(claimed, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating claimed alerts", err)
	}
	return claimed, nil
}

// MarkSent records a successful delivery. The row must still be in the
// sending state; zero rows affected means the claim was lost.
func (r *AlertRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET
			status = 'sent',
			sent_at = $1,
			last_error = '',
			next_attempt_at = NULL,
			updated_at = $1
		 WHERE id = $2 AND status = 'sending'`,
		at, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark alert sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictAlertState, "alert not in sending state", nil)
	}
	return nil
}

// MarkFailed records a delivery failure: attempts is incremented, the error
// text is retained, and next_attempt_at is set to the backoff deadline
// (nil for failures that should never be retried).
func (r *AlertRepository) MarkFailed(ctx context.Context, id string, lastError string, nextAttemptAt *time.Time, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET
			status = 'failed',
			attempts = attempts + 1,
			last_error = $1,
			next_attempt_at = $2,
			updated_at = $3
		 WHERE id = $4 AND status = 'sending'`,
		lastError, nextAttemptAt, at, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark alert failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictAlertState, "alert not in sending state", nil)
	}
	return nil
}

// Defer returns a claimed alert to the queue with a future due time without
// touching the attempt counter. Used for quiet-hours and digest deferral,
// which are policy outcomes rather than delivery failures.
func (r *AlertRepository) Defer(ctx context.Context, id string, until time.Time, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET
			status = 'queued',
			next_attempt_at = $1,
			updated_at = $2
		 WHERE id = $3 AND status = 'sending'`,
		until, at, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to defer alert", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictAlertState, "alert not in sending state", nil)
	}
	return nil
}

// RecoverStuckSending returns alerts stuck in the sending state (claimed by a
// worker that crashed) to the queue. The attempt counter is left untouched:
// we cannot know whether the send happened, and the channel providers are
// expected to deduplicate on reference IDs. Returns the number recovered.
func (r *AlertRepository) RecoverStuckSending(ctx context.Context, stuckBefore time.Time, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET
			status = 'queued',
			updated_at = $1
		 WHERE status = 'sending' AND updated_at < $2`,
		at, stuckBefore,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to recover stuck alerts", err)
	}
	return tag.RowsAffected(), nil
}

// MoveExhaustedToDead moves failed alerts that have used all their attempts
// to the dead state. Idempotent: a second sweep matches nothing.
func (r *AlertRepository) MoveExhaustedToDead(ctx context.Context, maxAttempts int, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET
			status = 'dead',
			next_attempt_at = NULL,
			updated_at = $1
		 WHERE status = 'failed' AND attempts >= $2`,
		at, maxAttempts,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to move exhausted alerts", err)
	}
	return tag.RowsAffected(), nil
}

// PendingIdleAlertExists reports whether a non-terminal idle-session alert
// already exists for the session. This is the idempotency check that keeps
// overlapping idle sweeps from double-alerting on the same session.
//
// Terminal states are deliberately excluded: once an idle alert is sent or
// dead, a session that stays open past another full idle threshold counts as
// a fresh episode and may alert again. Tenants that find repeats noisy turn
// on auto-close, which ends the session after the first sweep.
func (r *AlertRepository) PendingIdleAlertExists(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE session_id = $1
			  AND trigger_type = 'idle_session'
			  AND status IN ('queued', 'sending', 'failed')
		 )`,
		sessionID,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check idle alert existence", err)
	}
	return exists, nil
}

// RetryDead resets a dead alert for manual redelivery: attempts back to zero,
// error cleared, immediately due. Only dead rows are eligible.
func (r *AlertRepository) RetryDead(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET
			status = 'queued',
			attempts = 0,
			last_error = '',
			next_attempt_at = NULL,
			updated_at = $1
		 WHERE id = $2 AND status = 'dead'`,
		at, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to retry dead alert", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictAlertState, "alert is not dead", nil)
	}
	return nil
}

// ListDeadBefore returns dead alerts last touched before the cutoff, for the
// archive sweep. Ordered by update time so the export is stable.
func (r *AlertRepository) ListDeadBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Alert, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM alerts
		 WHERE status = 'dead' AND updated_at < $1
		 ORDER BY updated_at
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list dead alerts", err)
	}
	defer rows.Close()

	var results []*types.Alert
	for rows.Next() {
		a, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan dead alert", scanErr)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating dead alerts", err)
	}
	return results, nil
}

// DeleteByIDs hard-deletes the given alerts. Used by the archive sweep after
// a successful export. Returns the count of deleted rows.
func (r *AlertRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM alerts WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete archived alerts", err)
	}
	return tag.RowsAffected(), nil
}

// scanAlert scans a single alerts row from a pgx.Rows result set.
// Handles nullable columns using pointer types.
func scanAlert(rows pgx.Rows) (*types.Alert, error) {
	var (
		a         types.Alert
		channel   string
		trigger   string
		status    string
		lastError *string
	)

	err := rows.Scan(
		&a.ID,
		&a.TenantID,
		&a.SessionID,
		&channel,
		&trigger,
		&a.Payload,
		&status,
		&a.Attempts,
		&lastError,
		&a.NextAttemptAt,
		&a.SentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Channel = types.ChannelType(channel)
	a.TriggerType = types.TriggerType(trigger)
	a.Status = types.AlertStatus(status)
	if lastError != nil {
		a.LastError = *lastError
	}
	return &a, nil
}
