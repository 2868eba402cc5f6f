package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/store"
	"github.com/mrdcvlsc/food-reservation/internal/testutil"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: "invocation", Action: "reservation.create", Actor: "stu-001", Args: map[string]any{"pickup_slot": "11:30", "note": "extra rice"}, Seq: 1},
		{Type: "completion", Case: CaseOK, Seq: 2},
		{Type: "invocation", Action: "reservation.create", Actor: "stu-002", Args: map[string]any{"pickup_slot": "11:30"}, Seq: 3},
		{Type: "completion", Case: "INSUFFICIENT_STOCK", Seq: 4},
		{Type: "invocation", Action: "wallet.balance", Actor: "stu-001", Args: map[string]any{}, Seq: 5},
		{Type: "completion", Case: CaseOK, Seq: 6},
		{Type: "invocation", Action: "reservation.setStatus", Actor: "cashier", Args: map[string]any{"id": "id-0001", "status": "approved"}, Seq: 7},
		{Type: "completion", Case: CaseOK, Seq: 8},
		{Type: "invocation", Action: "reservation.setStatus", Actor: "cashier", Args: map[string]any{"id": "id-0001", "status": "preparing"}, Seq: 9},
		{Type: "completion", Case: CaseOK, Seq: 10},
	}
}

func TestPairSteps(t *testing.T) {
	steps := pairSteps(sampleTrace())
	require.Len(t, steps, 5)
	assert.Equal(t, "stu-002", steps[1].Actor)
	assert.Equal(t, "INSUFFICIENT_STOCK", steps[1].Outcome)

	// A trailing invocation without its completion has no case.
	steps = pairSteps([]TraceEvent{{Type: "invocation", Action: "wallet.balance"}})
	require.Len(t, steps, 1)
	assert.Empty(t, steps[0].Outcome)
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "reservation.create"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{
		Action: "reservation.setStatus",
		Args:   map[string]any{"status": "preparing"},
	}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "reservation.create", Case: "INSUFFICIENT_STOCK"}))

	err := assertTraceContains(trace, Assertion{
		Action: "reservation.setStatus",
		Args:   map[string]any{"status": "claimed"},
	})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "as cashier")

	assert.Error(t, assertTraceContains(trace, Assertion{Action: "topup.submit"}))
	assert.Error(t, assertTraceContains(trace, Assertion{Action: "wallet.balance", Case: "FORBIDDEN"}))
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"reservation.create", "wallet.balance", "reservation.setStatus"}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{"reservation.setStatus", "reservation.create"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"reservation.create", "topup.decide"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action: topup.decide")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "reservation.setStatus", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "topup.decide", Count: 0}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "reservation.create", Case: CaseOK, Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "reservation.create", Case: "INSUFFICIENT_STOCK", Count: 1}))

	err := assertTraceCount(trace, Assertion{Action: "reservation.setStatus", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences")
}

func TestMatchArgs(t *testing.T) {
	tests := []struct {
		name     string
		actual   map[string]any
		expected map[string]any
		want     bool
	}{
		{"exact", map[string]any{"status": "pending"}, map[string]any{"status": "pending"}, true},
		{"subset", map[string]any{"status": "pending", "total": "80.00"}, map[string]any{"total": "80.00"}, true},
		{"missing key", map[string]any{"status": "pending"}, map[string]any{"total": "80.00"}, false},
		{"wrong value", map[string]any{"status": "pending"}, map[string]any{"status": "approved"}, false},
		{"empty expected", map[string]any{"status": "pending"}, nil, true},
		{"int widths", map[string]any{"stock": int64(3)}, map[string]any{"stock": 3}, true},
		{"nested subset", map[string]any{"line": map[string]any{"menu_item_id": "A", "qty": 2}}, map[string]any{"line": map[string]any{"qty": 2}}, true},
		{"nil actual", nil, map[string]any{"status": "pending"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchArgs(tt.actual, tt.expected))
		})
	}
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual([]any{"id-0001", "id-0002"}, []any{"id-0001", "id-0002"}))
	assert.False(t, valuesEqual([]any{"id-0001"}, []any{"id-0001", "id-0002"}))
	assert.True(t, valuesEqual(true, true))
	assert.False(t, valuesEqual(nil, "x"))
	assert.True(t, valuesEqual(nil, nil))
}

func TestResolveColumns(t *testing.T) {
	cols := stateTables["wallets"]

	got, err := resolveColumns("wallets", cols, map[string]any{"user_id": "stu-001", "balance": "75.25"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user_id": "stu-001", "balance_cents": int64(7525)}, got)

	got, err = resolveColumns("wallets", cols, map[string]any{"balance": 80, "balance_cents": 8000})
	require.NoError(t, err)
	assert.Equal(t, int64(8000), got["balance_cents"])

	_, err = resolveColumns("wallets", cols, map[string]any{"balance": "1.005"})
	assert.Error(t, err)

	_, err = resolveColumns("wallets", cols, map[string]any{"updated_at": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no column "updated_at"`)
}

func TestColumnEqual(t *testing.T) {
	assert.True(t, columnEqual(int64(3), int64(3)))
	assert.True(t, columnEqual("pending", []byte("pending")))
	assert.True(t, columnEqual(toSQLValue(true), int64(1)))
	assert.False(t, columnEqual(toSQLValue(false), int64(1)))
	assert.False(t, columnEqual("3", int64(3)))
	assert.False(t, columnEqual(nil, "x"))
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedWallet(t *testing.T, st *store.Store, user string, cents int64) {
	t.Helper()
	_, err := st.CreditWallet(context.Background(), user, cents, store.EntryOpening, "opening:"+user, testutil.DefaultEpoch)
	require.NoError(t, err)
}

func TestAssertFinalState(t *testing.T) {
	st := setupTestStore(t)
	seedWallet(t, st, "stu-001", 2500)
	ctx := context.Background()

	assert.NoError(t, assertFinalState(ctx, st, Assertion{
		Table:  "wallets",
		Where:  map[string]any{"user_id": "stu-001"},
		Expect: map[string]any{"balance_cents": 2500},
	}))
	assert.NoError(t, assertFinalState(ctx, st, Assertion{
		Table:  "wallets",
		Where:  map[string]any{"user_id": "stu-001"},
		Expect: map[string]any{"balance": "25.00"},
	}))
	assert.NoError(t, assertFinalState(ctx, st, Assertion{
		Table:  "wallet_entries",
		Where:  map[string]any{"reason": store.EntryOpening, "reference": "opening:stu-001"},
		Expect: map[string]any{"delta": 25},
	}))

	err := assertFinalState(ctx, st, Assertion{
		Table:  "wallets",
		Where:  map[string]any{"user_id": "stu-001"},
		Expect: map[string]any{"balance_cents": 9999},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallets.balance_cents = 2500")

	err = assertFinalState(ctx, st, Assertion{
		Table:  "wallets",
		Where:  map[string]any{"user_id": "nobody"},
		Expect: map[string]any{"balance_cents": 0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row not found")

	err = assertFinalState(ctx, st, Assertion{
		Table:  "wallets",
		Where:  map[string]any{"user_id": "stu-001"},
		Expect: map[string]any{"no_such_column": 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no column "no_such_column"`)

	err = assertFinalState(ctx, st, Assertion{
		Table:  "wallets; DROP TABLE wallets",
		Expect: map[string]any{"balance_cents": 0},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown state table")
}

func TestAssertFinalState_MenuItem(t *testing.T) {
	st := setupTestStore(t)
	require.NoError(t, st.UpsertMenuItem(context.Background(), domain.MenuItem{
		ID:        "turon",
		Name:      "Turon",
		Category:  domain.CategorySnacks,
		UnitPrice: domain.FromCents(1500),
		Stock:     25,
		Active:    true,
		UpdatedAt: testutil.DefaultEpoch,
	}))

	assert.NoError(t, assertFinalState(context.Background(), st, Assertion{
		Table:  "menu_items",
		Where:  map[string]any{"id": "turon"},
		Expect: map[string]any{"stock": 25, "active": true, "unit_price": "15.00"},
	}))
}

func TestAssertFinalState_Ambiguous(t *testing.T) {
	st := setupTestStore(t)
	seedWallet(t, st, "stu-001", 100)
	seedWallet(t, st, "stu-002", 100)

	err := assertFinalState(context.Background(), st, Assertion{
		Table:  "wallets",
		Where:  map[string]any{"balance_cents": 100},
		Expect: map[string]any{"balance_cents": 100},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple rows matched")
}

func TestAssertInvariants(t *testing.T) {
	st := setupTestStore(t)
	seedWallet(t, st, "stu-001", 100)

	assert.NoError(t, assertInvariants(context.Background(), st))
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Action: "reservation.create"},
		{Type: AssertTraceCount, Action: "wallet.balance", Count: 5},
		{Type: AssertFinalState, Table: "wallets", Expect: map[string]any{"balance_cents": 0}},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "trace_count")
	assert.Contains(t, errs[1], "requires database context")
	assert.Contains(t, errs[2], "unknown assertion type")
}
