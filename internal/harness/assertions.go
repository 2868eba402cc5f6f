package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/store"
)

// stateTables lists the ledger tables final_state may read and the columns
// it selects from each. Identifiers never come from the scenario file.
var stateTables = map[string][]string{
	"menu_items":         {"id", "name", "category", "unit_price_cents", "stock", "active"},
	"stock_movements":    {"menu_item_id", "delta", "reason", "reference"},
	"wallets":            {"user_id", "balance_cents"},
	"wallet_entries":     {"user_id", "delta_cents", "reason", "reference"},
	"reservations":       {"id", "user_id", "total_cents", "pickup_slot", "note", "status"},
	"reservation_lines":  {"reservation_id", "line_no", "menu_item_id", "name", "unit_price_cents", "quantity"},
	"reservation_events": {"reservation_id", "from_status", "to_status", "actor", "reason"},
	"topups":             {"id", "user_id", "amount_cents", "provider", "proof_reference", "status", "reason", "decided_by"},
	"integrity_alerts":   {"kind", "subject", "detail"},
}

// centsSuffix marks integer money columns. A scenario may name the column
// without it and give a decimal amount instead: balance: "75.25".
const centsSuffix = "_cents"

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	steps := pairSteps(e.Trace)
	if len(steps) > 0 {
		fmt.Fprintf(&buf, "\nSteps:\n")
		for i, s := range steps {
			fmt.Fprintf(&buf, "  [%d] %s as %s %v -> %s\n", i+1, s.Action, s.Actor, s.Args, s.Outcome)
		}
	}
	return buf.String()
}

// step is an invocation joined with the case of the completion that follows it.
type step struct {
	TraceEvent
	Outcome string
}

func pairSteps(trace []TraceEvent) []step {
	var steps []step
	for i, event := range trace {
		if event.Type != "invocation" {
			continue
		}
		s := step{TraceEvent: event}
		if i+1 < len(trace) && trace[i+1].Type == "completion" {
			s.Outcome = trace[i+1].Case
		}
		steps = append(steps, s)
	}
	return steps
}

// matches reports whether a step is the action an assertion names, with
// the given args (subset) and, when set, the given outcome case.
func (s step) matches(a Assertion) bool {
	if s.Action != a.Action {
		return false
	}
	if a.Case != "" && s.Outcome != a.Case {
		return false
	}
	return matchArgs(s.Args, a.Args)
}

func describeStep(a Assertion) string {
	desc := a.Action
	if len(a.Args) > 0 {
		desc += fmt.Sprintf(" with args %v", a.Args)
	}
	if a.Case != "" {
		desc += " ending " + a.Case
	}
	return desc
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	if slices.ContainsFunc(pairSteps(trace), func(s step) bool { return s.matches(a) }) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeStep(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrence of each action comes
// after the first occurrence of the one listed before it. Other steps may
// sit in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	steps := pairSteps(trace)
	last := -1
	for i, action := range a.Actions {
		pos := slices.IndexFunc(steps, func(s step) bool { return s.Action == action })
		if pos < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
		if pos <= last {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (step %d) should be before %s (step %d)",
					a.Actions[i-1], last+1, action, pos+1),
				Trace: trace,
			}
		}
		last = pos
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, s := range pairSteps(trace) {
		if s.matches(a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describeStep(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState reads the single row of a ledger table matching Where
// and checks the Expect columns against it.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	columns, ok := stateTables[a.Table]
	if !ok {
		return fmt.Errorf("unknown state table %q (known: %s)", a.Table, strings.Join(knownTables(), ", "))
	}

	where, err := resolveColumns(a.Table, columns, a.Where)
	if err != nil {
		return fmt.Errorf("where: %w", err)
	}
	expect, err := resolveColumns(a.Table, columns, a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}

	keys := sortedKeys(where)
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), a.Table)
	args := make([]any, 0, len(keys))
	if len(keys) > 0 {
		conds := make([]string, len(keys))
		for i, k := range keys {
			conds[i] = k + " = ?"
			args = append(args, where[k])
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " LIMIT 2"

	row, err := queryOne(ctx, st.DB(), query, columns, args)
	switch {
	case errors.Is(err, errNoRow):
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, describeWhere(a.Where)),
			Actual:   "row not found",
		}
	case errors.Is(err, errManyRows):
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, describeWhere(a.Where)),
			Actual:   "multiple rows matched",
		}
	case err != nil:
		return fmt.Errorf("query %s: %w", a.Table, err)
	}

	for _, col := range sortedKeys(expect) {
		if !columnEqual(expect[col], row[col]) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", a.Table, col, expect[col]),
				Actual:   fmt.Sprintf("%s.%s = %v", a.Table, col, row[col]),
			}
		}
	}
	return nil
}

var (
	errNoRow    = errors.New("no row")
	errManyRows = errors.New("more than one row")
)

func queryOne(ctx context.Context, db *sql.DB, query string, columns []string, args []any) (map[string]any, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, errNoRow
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	if rows.Next() {
		return nil, errManyRows
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	return row, rows.Err()
}

// resolveColumns maps scenario keys onto table columns and scenario values
// onto SQLite values. "balance: 75.25" becomes "balance_cents: 7525".
func resolveColumns(table string, columns []string, in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for key, val := range in {
		switch {
		case slices.Contains(columns, key):
			out[key] = toSQLValue(val)
		case slices.Contains(columns, key+centsSuffix):
			cents, err := amountToCents(val)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key+centsSuffix] = cents
		default:
			return nil, fmt.Errorf("%s has no column %q (columns: %s)", table, key, strings.Join(columns, ", "))
		}
	}
	return out, nil
}

func amountToCents(v any) (int64, error) {
	var d decimal.Decimal
	switch val := v.(type) {
	case string:
		parsed, err := domain.ParseMoney(val)
		if err != nil {
			return 0, err
		}
		d = parsed
	case int:
		d = decimal.NewFromInt(int64(val))
	case float64:
		d = decimal.NewFromFloat(val)
	default:
		return 0, fmt.Errorf("amount must be a number or string, got %T", v)
	}
	return domain.ToCents(d)
}

func toSQLValue(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case string, int64, nil:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// columnEqual compares an expected SQLite value with a scanned one. The
// driver returns TEXT as string or []byte and INTEGER as int64.
func columnEqual(expected, actual any) bool {
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}
	return reflect.DeepEqual(expected, actual)
}

func describeWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, where[k])
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func knownTables() []string {
	tables := make([]string, 0, len(stateTables))
	for t := range stateTables {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

func assertInvariants(ctx context.Context, st *store.Store) error {
	violations, err := st.CheckInvariants(ctx)
	if err != nil {
		return fmt.Errorf("check invariants: %w", err)
	}
	if len(violations) > 0 {
		return &AssertionError{
			Type:     AssertInvariants,
			Expected: "no invariant violations",
			Actual:   strings.Join(violations, "; "),
		}
	}
	return nil
}

// matchArgs reports whether actual holds every expected key with an equal
// value. Extra keys in actual are ignored.
func matchArgs(actual map[string]any, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares summary values. Scalars compare by their printed form
// so YAML ints match summary ints of any width; maps compare as subsets;
// slices element-wise.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		return ok && matchArgs(act, exp)
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

// AssertionContext gives assertions access to the scenario's store.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result and
// returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState, AssertInvariants:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, a.Type)
			} else if a.Type == AssertFinalState {
				err = assertFinalState(actx.Ctx, actx.Store, a)
			} else {
				err = assertInvariants(actx.Ctx, actx.Store)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			failures = append(failures, err.Error())
		}
	}

	return failures
}
