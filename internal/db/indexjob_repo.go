package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"storepulse/internal/types"
)

// IndexJobRepository provides data access for the index_jobs table.
//
// Progress counters are incremented in the database, not accumulated in
// memory, so a crashed run leaves an accurate partial record. Terminal rows
// are immutable: every mutation is conditional on the current status.
type IndexJobRepository struct {
	db DBTX
}

// NewIndexJobRepository creates a new IndexJobRepository backed by the given
// database connection (pool or transaction).
func NewIndexJobRepository(db DBTX) *IndexJobRepository {
	return &IndexJobRepository{db: db}
}

// Create inserts a new index job in the pending state. If the ID is empty a
// prefixed UUID is generated ("job_...").
func (r *IndexJobRepository) Create(ctx context.Context, j *types.IndexJob) error {
	if j.ID == "" {
		j.ID = "job_" + uuid.NewString()
	}
	j.Status = types.JobStatusPending

	row := r.db.QueryRow(ctx,
		`INSERT INTO index_jobs (id, tenant, status)
		 VALUES ($1, $2, 'pending')
		 RETURNING created_at`,
		j.ID, j.Tenant,
	)
	if err := row.Scan(&j.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create index job", err)
	}
	return nil
}

// Get retrieves a single index job by ID.
func (r *IndexJobRepository) Get(ctx context.Context, id string) (*types.IndexJob, error) {
	var (
		j            types.IndexJob
		status       string
		errorMessage *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, tenant, status, total_products, processed_products,
		        failed_products, error_message, started_at, finished_at, created_at
		 FROM index_jobs
		 WHERE id = $1`,
		id,
	).Scan(
		&j.ID,
		&j.Tenant,
		&status,
		&j.TotalProducts,
		&j.ProcessedProducts,
		&j.FailedProducts,
		&errorMessage,
		&j.StartedAt,
		&j.FinishedAt,
		&j.CreatedAt,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundIndexJob, "index job not found", err)
	}
	j.Status = types.IndexJobStatus(status)
	if errorMessage != nil {
		j.ErrorMessage = *errorMessage
	}
	return &j, nil
}

// MarkRunning transitions a pending job to running and records the catalog
// size. Zero rows affected means the job was already picked up or finished.
func (r *IndexJobRepository) MarkRunning(ctx context.Context, id string, totalProducts int, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE index_jobs SET
			status = 'running',
			total_products = $1,
			started_at = $2
		 WHERE id = $3 AND status = 'pending'`,
		totalProducts, at, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job running", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictJobFinished, "index job is not pending", nil)
	}
	return nil
}

// IncrementProcessed atomically bumps the processed counter for a running job.
func (r *IndexJobRepository) IncrementProcessed(ctx context.Context, id string) error {
	return r.increment(ctx, id, "processed_products")
}

// IncrementFailed atomically bumps the failed counter for a running job.
func (r *IndexJobRepository) IncrementFailed(ctx context.Context, id string) error {
	return r.increment(ctx, id, "failed_products")
}

func (r *IndexJobRepository) increment(ctx context.Context, id, column string) error {
	// column is one of two compile-time constants, never user input.
	tag, err := r.db.Exec(ctx,
		`UPDATE index_jobs SET `+column+` = `+column+` + 1
		 WHERE id = $1 AND status = 'running'`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to increment job counter", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictJobFinished, "index job is not running", nil)
	}
	return nil
}

// Finish transitions a job to its terminal status. Pending jobs may finish
// directly: a run that dies before MarkRunning (catalog fetch failure) still
// records its outcome instead of leaving the row pending forever. Finished
// rows are immutable; a second Finish call affects zero rows and returns a
// conflict.
func (r *IndexJobRepository) Finish(ctx context.Context, id string, status types.IndexJobStatus, errorMessage string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE index_jobs SET
			status = $1,
			error_message = $2,
			finished_at = $3
		 WHERE id = $4 AND status IN ('pending', 'running')`,
		string(status), nilIfEmpty(errorMessage), at, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish index job", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictJobFinished, "index job is already finished", nil)
	}
	return nil
}

// nilIfEmpty maps empty strings to SQL NULL.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
