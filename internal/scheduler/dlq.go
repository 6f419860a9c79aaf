package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"storepulse/internal/types"
)

// DeadLetterDB defines the alert table operations needed by the dead-letter
// processor.
type DeadLetterDB interface {
	// MoveExhaustedToDead marks failed alerts with no attempts left as dead.
	MoveExhaustedToDead(ctx context.Context, maxAttempts int, at time.Time) (int64, error)

	// ListDeadBefore returns dead alerts last updated before cutoff.
	ListDeadBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Alert, error)

	// DeleteByIDs removes alerts by ID after they have been archived.
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// DeadLetterArchiver abstracts the cold-storage upload for archived dead
// alerts. The key is generated by the service:
// "alerts/dead/YYYY/MM/batch_{uuid}.jsonl.gz".
type DeadLetterArchiver interface {
	UploadArchive(ctx context.Context, key string, data []byte) error
}

// archiveBatchLimit bounds how many dead alerts one archive pass exports.
const archiveBatchLimit = 500

// DLQProcessor moves exhausted alerts to the dead set and periodically
// archives old dead alerts to cold storage as gzipped JSONL.
type DLQProcessor struct {
	db          DeadLetterDB
	archiver    DeadLetterArchiver // nil if archival is not configured
	maxAttempts int
	logger      *slog.Logger
}

// NewDLQProcessor creates a DLQProcessor. The archiver may be nil when
// cold-storage archival is not configured; ArchiveDeadAlerts then only
// reports what it would have exported.
func NewDLQProcessor(db DeadLetterDB, archiver DeadLetterArchiver, maxAttempts int, logger *slog.Logger) *DLQProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DLQProcessor{
		db:          db,
		archiver:    archiver,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// ProcessDLQ moves failed alerts with exhausted attempts to 'dead'. The
// underlying update is conditional on the current state, so running the sweep
// twice is harmless.
func (p *DLQProcessor) ProcessDLQ(ctx context.Context, now time.Time) (int64, error) {
	moved, err := p.db.MoveExhaustedToDead(ctx, p.maxAttempts, now)
	if err != nil {
		return 0, fmt.Errorf("ProcessDLQ: %w", err)
	}
	if moved > 0 {
		p.logger.WarnContext(ctx, "moved exhausted alerts to dead letter set", "count", moved)
	}
	return moved, nil
}

// ArchiveDeadAlerts exports dead alerts older than the retention window to
// cold storage as gzipped JSONL, then deletes them. Returns the number of
// alerts archived.
//
// The export is written before the delete; a crash in between leaves
// duplicate rows in the archive on the next run, never data loss.
func (p *DLQProcessor) ArchiveDeadAlerts(ctx context.Context, now time.Time, retentionDays int) (int, error) {
	cutoff := now.AddDate(0, 0, -retentionDays)

	dead, err := p.db.ListDeadBefore(ctx, cutoff, archiveBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("ArchiveDeadAlerts: listing dead alerts: %w", err)
	}
	if len(dead) == 0 {
		return 0, nil
	}

	if p.archiver == nil {
		p.logger.WarnContext(ctx, "dead alert archival not configured, leaving rows in place",
			"eligible", len(dead),
		)
		return 0, nil
	}

	data, err := encodeArchive(dead)
	if err != nil {
		return 0, fmt.Errorf("ArchiveDeadAlerts: encoding archive: %w", err)
	}

	key := fmt.Sprintf("alerts/dead/%s/batch_%s.jsonl.gz", now.Format("2006/01"), uuid.NewString())
	if err := p.archiver.UploadArchive(ctx, key, data); err != nil {
		return 0, fmt.Errorf("ArchiveDeadAlerts: uploading %s: %w", key, err)
	}

	ids := make([]string, 0, len(dead))
	for _, a := range dead {
		ids = append(ids, a.ID)
	}
	deleted, err := p.db.DeleteByIDs(ctx, ids)
	if err != nil {
		// The archive upload already succeeded; the next run re-exports and
		// retries the delete.
		return 0, fmt.Errorf("ArchiveDeadAlerts: deleting archived alerts: %w", err)
	}

	p.logger.InfoContext(ctx, "archived dead alerts",
		"archived", len(dead),
		"deleted", deleted,
		"key", key,
	)

	return len(dead), nil
}

// encodeArchive serializes alerts as gzipped JSONL, one alert per line.
func encodeArchive(alerts []*types.Alert) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, a := range alerts {
		if err := enc.Encode(a); err != nil {
			return nil, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
