package db

import (
	"context"
	"encoding/json"

	"storepulse/internal/types"
)

// SettingsRepository provides data access for the alert_settings table.
// Settings are keyed by tenant and created lazily with defaults.
type SettingsRepository struct {
	db DBTX
}

// NewSettingsRepository creates a new SettingsRepository backed by the given
// database connection (pool or transaction).
func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetOrCreate returns the tenant's alert settings, inserting a default row on
// first access. The insert is ON CONFLICT DO NOTHING so concurrent first
// accesses converge on a single row.
func (r *SettingsRepository) GetOrCreate(ctx context.Context, tenantID string) (*types.AlertSettings, error) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO alert_settings (tenant_id, triggers, channels, digest, auto_close_idle)
		 VALUES ($1, $2, '{}', $3, false)
		 ON CONFLICT (tenant_id) DO NOTHING`,
		tenantID,
		types.DefaultTriggers,
		string(types.DigestOff),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to seed alert settings", err)
	}

	return r.Get(ctx, tenantID)
}

// Get returns the tenant's alert settings without creating defaults.
func (r *SettingsRepository) Get(ctx context.Context, tenantID string) (*types.AlertSettings, error) {
	var (
		s          types.AlertSettings
		digest     string
		quietHours []byte // nullable JSONB
	)
	err := r.db.QueryRow(ctx,
		`SELECT tenant_id, triggers, channels, quiet_hours, digest, auto_close_idle,
		        created_at, updated_at
		 FROM alert_settings
		 WHERE tenant_id = $1`,
		tenantID,
	).Scan(
		&s.TenantID,
		&s.Triggers,
		&s.Channels,
		&quietHours,
		&digest,
		&s.AutoCloseIdle,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundSettings, "alert settings not found", err)
	}
	s.Digest = types.DigestMode(digest)
	if len(quietHours) > 0 {
		var qh types.QuietHours
		if err := json.Unmarshal(quietHours, &qh); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode quiet hours", err)
		}
		s.QuietHours = &qh
	}
	return &s, nil
}

// Update replaces the tenant's settings document. The row must already exist
// (use GetOrCreate first).
func (r *SettingsRepository) Update(ctx context.Context, s *types.AlertSettings) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alert_settings SET
			triggers = $1,
			channels = $2,
			quiet_hours = $3,
			digest = $4,
			auto_close_idle = $5,
			updated_at = NOW()
		 WHERE tenant_id = $6`,
		s.Triggers,
		s.Channels,
		s.QuietHours,
		string(s.Digest),
		s.AutoCloseIdle,
		s.TenantID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update alert settings", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSettings, "alert settings not found", nil)
	}
	return nil
}
