package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storepulse/internal/types"
)

func TestIndexJobRepository_Create_GeneratesPrefixedID(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIndexJobRepository(db)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*time.Time) = time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	j := &types.IndexJob{Tenant: "shop-1"}
	require.NoError(t, repo.Create(context.Background(), j))
	assert.Regexp(t, `^job_`, j.ID)
	assert.Equal(t, types.JobStatusPending, j.Status)
	db.AssertExpectations(t)
}

func TestIndexJobRepository_MarkRunning_OnlyPending(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIndexJobRepository(db)
	now := time.Now().UTC()

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.MarkRunning(context.Background(), "job_1", 120, now)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictJobFinished, appErr.Code)
	db.AssertExpectations(t)
}

func TestIndexJobRepository_Increment_OnlyRunning(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIndexJobRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Twice()

	require.NoError(t, repo.IncrementProcessed(context.Background(), "job_1"))
	require.NoError(t, repo.IncrementFailed(context.Background(), "job_1"))
	db.AssertExpectations(t)
}

func TestIndexJobRepository_Finish_ImmutableOnceFinished(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIndexJobRepository(db)
	now := time.Now().UTC()

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()
	require.NoError(t, repo.Finish(context.Background(), "job_1", types.JobStatusCompleted, "", now))

	// Finishing an already-finished job affects zero rows.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()
	err := repo.Finish(context.Background(), "job_1", types.JobStatusFailed, "late writer", now)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictJobFinished, appErr.Code)
	db.AssertExpectations(t)
}

func TestIndexJobRepository_Finish_AllowsPendingJobs(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIndexJobRepository(db)
	now := time.Now().UTC()

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			// A run that dies before MarkRunning (catalog fetch failure)
			// must still be able to record its outcome on the pending row.
			assert.Contains(t, sql, "status IN ('pending', 'running')")
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.Finish(context.Background(), "job_1", types.JobStatusFailed, "catalog fetch failed", now)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestIndexJobRepository_Finish_EmptyErrorIsNull(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIndexJobRepository(db)
	now := time.Now().UTC()

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			assert.Nil(t, sqlArgs[1], "empty error message should be stored as NULL")
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.Finish(context.Background(), "job_1", types.JobStatusCompleted, "", now))
	db.AssertExpectations(t)
}
