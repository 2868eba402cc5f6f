package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

func TestRecordAlert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a, err := s.RecordAlert(ctx, domain.IntegrityAlert{
		Kind: "refund_dropped", Subject: "r-1", Detail: "database is locked", At: testTime,
	})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	alerts, err := s.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "refund_dropped", alerts[0].Kind)
	assert.Equal(t, "r-1", alerts[0].Subject)
	assert.True(t, alerts[0].At.Equal(testTime))
}

func TestCheckInvariants_Clean(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedItem(t, s, "adobo", "40.00", 3)
	require.NoError(t, s.InsertReservation(ctx, testReservation("r-1", "u1", testTime), "u1"))

	violations, err := s.CheckInvariants(ctx)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestCheckInvariants_TotalMismatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertReservation(ctx, testReservation("r-1", "u1", testTime), "u1"))

	_, err := s.db.Exec(`UPDATE reservations SET total_cents = 1 WHERE id = 'r-1'`)
	require.NoError(t, err)

	violations, err := s.CheckInvariants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"reservation r-1"}, violations)
}
