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

func TestSettingsRepository_GetOrCreate_SeedsDefaults(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSettingsRepository(db)
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sqlArgs := args.Get(2).([]any)
			triggers := sqlArgs[1].(types.TriggerSet)
			assert.True(t, triggers[types.TriggerLeadCaptured], "default seed enables lead_captured")
			assert.False(t, triggers[types.TriggerHighIntent])
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*string) = "shop-1"
		*dest[1].(*types.TriggerSet) = types.DefaultTriggers
		*dest[2].(*types.ChannelMap) = types.ChannelMap{}
		*dest[3].(*[]byte) = nil
		*dest[4].(*string) = "off"
		*dest[5].(*bool) = false
		*dest[6].(*time.Time) = now
		*dest[7].(*time.Time) = now
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	s, err := repo.GetOrCreate(context.Background(), "shop-1")
	require.NoError(t, err)
	assert.Equal(t, "shop-1", s.TenantID)
	assert.Equal(t, types.DigestOff, s.Digest)
	assert.Nil(t, s.QuietHours)
	db.AssertExpectations(t)
}

func TestSettingsRepository_Get_DecodesQuietHours(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSettingsRepository(db)
	now := time.Now().UTC()

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*string) = "shop-1"
		*dest[1].(*types.TriggerSet) = types.DefaultTriggers
		*dest[2].(*types.ChannelMap) = types.ChannelMap{types.ChannelEmail: {Enabled: true}}
		*dest[3].(*[]byte) = []byte(`{"start":"22:00","end":"07:00","timezone":"America/Denver"}`)
		*dest[4].(*string) = "off"
		*dest[5].(*bool) = true
		*dest[6].(*time.Time) = now
		*dest[7].(*time.Time) = now
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	s, err := repo.Get(context.Background(), "shop-1")
	require.NoError(t, err)
	require.NotNil(t, s.QuietHours)
	assert.Equal(t, "22:00", s.QuietHours.Start)
	assert.Equal(t, "America/Denver", s.QuietHours.Timezone)
	assert.True(t, s.AutoCloseIdle)
	db.AssertExpectations(t)
}
