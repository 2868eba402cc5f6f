package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

// Scenario defines a conformance test scenario.
// A scenario drives the engine through a flow of operations and asserts on
// the resulting trace and final ledger state.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is an optional CUE catalog file or directory seeded before
	// setup. Relative paths resolve against the scenario file.
	Catalog string `yaml:"catalog,omitempty"`

	// Admins lists the actor ids that carry the admin role.
	Admins []string `yaml:"admins,omitempty"`

	// Setup contains operations run before the flow as the "setup" admin.
	// Every setup step must succeed.
	Setup []ActionStep `yaml:"setup,omitempty"`

	// Flow contains the operations under test.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// ActionStep is a setup operation.
type ActionStep struct {
	// Action is the operation name (e.g. "menu.upsert").
	Action string `yaml:"action"`

	// Args are the operation arguments.
	Args map[string]any `yaml:"args"`
}

// FlowStep is one operation of the flow under test.
type FlowStep struct {
	// Invoke is the operation name.
	Invoke string `yaml:"invoke"`

	// As is the acting user id. An id listed in Scenario.Admins acts as admin.
	As string `yaml:"as"`

	// Args are the operation arguments. A string "$name" is replaced by the
	// id saved under name by an earlier step.
	Args map[string]any `yaml:"args"`

	// Save binds the id of the record this step returns to a name.
	Save string `yaml:"save,omitempty"`

	// Expect specifies the expected outcome. If nil, no validation is done.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies an expected outcome.
type ExpectClause struct {
	// Case is CaseOK or an error code such as "INSUFFICIENT_STOCK".
	Case string `yaml:"case"`

	// Result is a subset match against the operation's result summary.
	Result map[string]any `yaml:"result,omitempty"`
}

// CaseOK is the outcome case of a successful operation.
const CaseOK = "ok"

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is the operation name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are the expected operation arguments (trace_contains, trace_count).
	// Subset match.
	Args map[string]any `yaml:"args,omitempty"`

	// Case restricts trace_contains and trace_count to steps that ended with
	// this outcome.
	Case string `yaml:"case,omitempty"`

	// Table is the ledger table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where selects exactly one row (final_state). Money columns may be
	// named without their _cents suffix and given as amounts.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state). Subset match,
	// with the same money shorthand as Where.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected operation order (trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertInvariants    = "invariants"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Catalog != "" {
		if _, err := os.Stat(s.Catalog); os.IsNotExist(err) {
			return fmt.Errorf("catalog not found: %s", s.Catalog)
		}
	}

	for i, step := range s.Setup {
		if _, ok := operations[step.Action]; !ok {
			return fmt.Errorf("setup[%d]: unknown action %q", i, step.Action)
		}
	}

	saved := map[string]bool{}
	for i, step := range s.Flow {
		if _, ok := operations[step.Invoke]; !ok {
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Invoke)
		}
		if step.As == "" {
			return fmt.Errorf("flow[%d]: as is required", i)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
		if step.Expect != nil && !validCase(step.Expect.Case) {
			return fmt.Errorf("flow[%d].expect: unknown case %q", i, step.Expect.Case)
		}
		if err := checkBindings(step.Args, saved); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Save != "" {
			saved[step.Save] = true
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

var knownCodes = []domain.ErrorCode{
	domain.ErrCodeInvalidQuantity,
	domain.ErrCodeInvalidAmount,
	domain.ErrCodeInvalidInput,
	domain.ErrCodeItemNotFound,
	domain.ErrCodeInsufficientStock,
	domain.ErrCodeInsufficientBalance,
	domain.ErrCodeInvalidTransition,
	domain.ErrCodeAlreadyDecided,
	domain.ErrCodeNotFound,
	domain.ErrCodeForbidden,
	domain.ErrCodeIntegrity,
}

func validCase(c string) bool {
	return c == CaseOK || slices.Contains(knownCodes, domain.ErrorCode(c))
}

// checkBindings rejects "$name" references to names no earlier step saves.
func checkBindings(v any, saved map[string]bool) error {
	switch val := v.(type) {
	case string:
		if name, ok := strings.CutPrefix(val, "$"); ok && !saved[name] {
			return fmt.Errorf("reference to unsaved id %q", val)
		}
	case []any:
		for _, elem := range val {
			if err := checkBindings(elem, saved); err != nil {
				return err
			}
		}
	case map[string]any:
		for _, elem := range val {
			if err := checkBindings(elem, saved); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Case != "" && !validCase(a.Case) {
		return fmt.Errorf("assertions[%d]: unknown case %q", index, a.Case)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if _, ok := stateTables[a.Table]; !ok {
			return fmt.Errorf("assertions[%d]: unknown state table %q", index, a.Table)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertInvariants:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
