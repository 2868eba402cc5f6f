package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ExampleScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_TracesEveryStep(t *testing.T) {
	scenario := &Scenario{
		Name:        "trace_shape",
		Description: "setup and flow are both traced",
		Setup: []ActionStep{
			{Action: "wallet.credit", Args: map[string]any{"user": "stu-001", "amount": "10.00"}},
		},
		Flow: []FlowStep{
			{Invoke: "wallet.balance", As: "stu-001"},
		},
		Assertions: []Assertion{{Type: AssertInvariants}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 4)
	assert.Equal(t, "invocation", result.Trace[0].Type)
	assert.Equal(t, SetupActor, result.Trace[0].Actor)
	assert.Equal(t, "completion", result.Trace[1].Type)
	assert.Equal(t, CaseOK, result.Trace[1].Case)
	assert.Equal(t, map[string]any{}, result.Trace[2].Args)
	assert.Equal(t, map[string]any{"user_id": "stu-001", "balance": "10.00"}, result.Trace[3].Result)
	for i, event := range result.Trace {
		assert.Equal(t, int64(i+1), event.Seq)
	}
}

func TestRun_ExpectationMismatchFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "a wrong expectation is reported, not returned",
		Flow: []FlowStep{
			{
				Invoke: "reservation.create",
				As:     "stu-001",
				Args:   map[string]any{"lines": []any{map[string]any{"menu_item_id": "A", "qty": 1}}, "pickup_slot": "11:30"},
				Expect: &ExpectClause{Case: CaseOK},
			},
			{
				Invoke: "wallet.balance",
				As:     "stu-001",
				Expect: &ExpectClause{Case: CaseOK, Result: map[string]any{"balance": "5.00"}},
			},
		},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: "wallet.balance", Count: 2}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "expected case ok, got ITEM_NOT_FOUND")
	assert.Contains(t, result.Errors[1], "expected result")
	assert.Contains(t, result.Errors[2], "trace_count")
}

func TestRun_SetupFailureIsAnError(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_setup",
		Description: "setup steps must succeed",
		Setup: []ActionStep{
			{Action: "menu.adjustStock", Args: map[string]any{"id": "ghost", "stock": 1}},
		},
		Flow:       []FlowStep{{Invoke: "wallet.balance", As: "stu-001"}},
		Assertions: []Assertion{{Type: AssertInvariants}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed with NOT_FOUND")
}

func TestRun_BadArgsAreInvalidInput(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_args",
		Description: "unknown argument names are refused",
		Admins:      []string{"cashier"},
		Flow: []FlowStep{
			{
				Invoke: "menu.adjustStock",
				As:     "cashier",
				Args:   map[string]any{"id": "A", "quantity": 1},
				Expect: &ExpectClause{Case: "INVALID_INPUT"},
			},
		},
		Assertions: []Assertion{{Type: AssertInvariants}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestResolve(t *testing.T) {
	h := &Harness{bindings: map[string]string{"r1": "id-0001", "r2": "id-0002"}}

	out, err := h.resolve(map[string]any{
		"id":   "$r1",
		"ids":  []any{"$r1", "$r2", "ghost"},
		"note": "no $ here",
		"qty":  2,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":   "id-0001",
		"ids":  []any{"id-0001", "id-0002", "ghost"},
		"note": "no $ here",
		"qty":  2,
	}, out)

	_, err = h.resolve(map[string]any{"id": "$r3"})
	require.Error(t, err)
}
