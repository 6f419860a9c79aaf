package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"storepulse/internal/types"
)

// SessionRepository provides data access for the sessions table.
// The idle detector is the only writer here; sessions themselves are created
// by the shopper-assistant frontend outside this codebase.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository backed by the given
// database connection (pool or transaction).
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// ListIdleOpen returns open sessions whose last activity predates the cutoff,
// oldest activity first. Closed sessions (ended_at set) are never returned.
func (r *SessionRepository) ListIdleOpen(ctx context.Context, idleBefore time.Time, limit int) ([]*types.Session, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, tenant_id, intent_score, summary, consent, end_reason,
		        last_activity_at, ended_at, created_at
		 FROM sessions
		 WHERE ended_at IS NULL AND last_activity_at < $1
		 ORDER BY last_activity_at
		 LIMIT $2`,
		idleBefore, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list idle sessions", err)
	}
	defer rows.Close()

	var results []*types.Session
	for rows.Next() {
		s, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan session row", scanErr)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating session rows", err)
	}
	return results, nil
}

// Close marks an open session as ended with the given reason. Conditional on
// ended_at still being NULL so a session the shopper resumed (or another
// sweep already closed) is left alone; zero rows affected is not an error.
func (r *SessionRepository) Close(ctx context.Context, id string, reason types.EndReason, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET
			ended_at = $1,
			end_reason = $2
		 WHERE id = $3 AND ended_at IS NULL`,
		at, string(reason), id,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to close session", err)
	}
	return tag.RowsAffected() > 0, nil
}

// scanSession scans a single sessions row from a pgx.Rows result set.
// Handles nullable columns using pointer types.
func scanSession(rows pgx.Rows) (*types.Session, error) {
	var (
		s         types.Session
		summary   *string
		endReason *string
	)

	err := rows.Scan(
		&s.ID,
		&s.TenantID,
		&s.IntentScore,
		&summary,
		&s.Consent,
		&endReason,
		&s.LastActivityAt,
		&s.EndedAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if summary != nil {
		s.Summary = *summary
	}
	if endReason != nil {
		s.EndReason = types.EndReason(*endReason)
	}
	return &s, nil
}
