package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

func testTopup(id, userID string) domain.Topup {
	return domain.Topup{
		ID:             id,
		UserID:         userID,
		Amount:         decimal.RequireFromString("50"),
		Provider:       domain.ProviderGCash,
		ProofReference: "uploads/" + id + ".png",
		Status:         domain.TopupPending,
		CreatedAt:      testTime,
	}
}

func TestInsertTopup_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertTopup(ctx, testTopup("t-1", "u1")))

	got, err := s.GetTopup(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "50.00", domain.FormatMoney(got.Amount))
	assert.Equal(t, domain.ProviderGCash, got.Provider)
	assert.Equal(t, domain.TopupPending, got.Status)
	assert.Nil(t, got.DecidedAt)

	assert.ErrorIs(t, s.InsertTopup(ctx, testTopup("t-1", "u1")), ErrDuplicate)
}

func TestInsertTopup_AmountOutOfRange(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	top := testTopup("t-1", "u1")
	top.Amount = decimal.RequireFromString("184467440737095566.16")
	err := s.InsertTopup(ctx, top)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = s.GetTopup(ctx, "t-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTopup_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetTopup(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecideTopup_OnlyOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertTopup(ctx, testTopup("t-1", "u1")))

	decided := testTime.Add(time.Hour)
	require.NoError(t, s.DecideTopup(ctx, "t-1", domain.TopupApproved, "matched receipt", "admin", decided))

	err := s.DecideTopup(ctx, "t-1", domain.TopupRejected, "", "admin", decided)
	assert.ErrorIs(t, err, ErrStale)

	got, err := s.GetTopup(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TopupApproved, got.Status)
	assert.Equal(t, "matched receipt", got.Reason)
	assert.Equal(t, "admin", got.DecidedBy)
	require.NotNil(t, got.DecidedAt)
	assert.True(t, got.DecidedAt.Equal(decided))
}

func TestDecideTopup_Missing(t *testing.T) {
	s := createTestStore(t)

	err := s.DecideTopup(context.Background(), "ghost", domain.TopupApproved, "", "admin", testTime)
	assert.ErrorIs(t, err, ErrStale)
}

func TestListTopups(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertTopup(ctx, testTopup("t-1", "u1")))
	require.NoError(t, s.InsertTopup(ctx, testTopup("t-2", "u1")))
	require.NoError(t, s.InsertTopup(ctx, testTopup("t-3", "u2")))
	require.NoError(t, s.DecideTopup(ctx, "t-2", domain.TopupRejected, "blurry", "admin", testTime))

	mine, err := s.ListTopupsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	pending, err := s.ListTopupsByStatus(ctx, domain.TopupPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "t-1", pending[0].ID)
	assert.Equal(t, "t-3", pending[1].ID)
}
