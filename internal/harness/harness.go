package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/mrdcvlsc/food-reservation/internal/catalog"
	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/engine"
	"github.com/mrdcvlsc/food-reservation/internal/store"
	"github.com/mrdcvlsc/food-reservation/internal/testutil"
)

// SetupActor is the admin identity setup steps and catalog seeding run as.
const SetupActor = "setup"

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and id generator.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	admins   []string
	bindings map[string]string
	seq      int64
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and engine
// 2. Seed the catalog, if any
// 3. Execute setup steps (each must succeed)
// 4. Execute flow steps with expect validation
// 5. Evaluate assertions
//
// A returned error means the scenario could not be executed; expectation
// and assertion failures are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(st,
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithIDGenerator(testutil.NewSequenceGenerator("id")),
		engine.WithLogger(logger),
		engine.WithCompensation(1, 0),
	)

	h := &Harness{
		store:    st,
		engine:   eng,
		admins:   scenario.Admins,
		bindings: map[string]string{},
		logger:   logger,
	}

	ctx := context.Background()
	result := NewResult()

	if scenario.Catalog != "" {
		setup := domain.Actor{UserID: SetupActor, Admin: true}
		if _, err := catalog.LoadAndSeed(ctx, scenario.Catalog, eng.Menu, eng.Wallet, setup, catalog.SeedOptions{}); err != nil {
			return nil, fmt.Errorf("failed to seed catalog: %w", err)
		}
	}

	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// invoke runs one operation and traces both its invocation and completion.
// Domain failures become the completion case; anything else is returned.
func (h *Harness) invoke(ctx context.Context, action string, actor domain.Actor, args map[string]any, result *Result) (string, any, error) {
	if args == nil {
		args = map[string]any{}
	}
	result.AddInvocationTrace(action, actor.UserID, args, h.next())

	out, err := operations[action](ctx, h.engine, actor, args)
	outcome := CaseOK
	if err != nil {
		code := domain.CodeOf(err)
		if code == "" {
			return "", nil, fmt.Errorf("%s: %w", action, err)
		}
		outcome = string(code)
		out = nil
	}
	result.AddCompletionTrace(outcome, out, h.next())

	h.logger.Info("step completed", "action", action, "actor", actor.UserID, "case", outcome)
	return outcome, out, nil
}

// executeSetup runs all setup steps as the setup admin.
func (h *Harness) executeSetup(ctx context.Context, setup []ActionStep, result *Result) error {
	actor := domain.Actor{UserID: SetupActor, Admin: true}
	for i, step := range setup {
		outcome, _, err := h.invoke(ctx, step.Action, actor, step.Args, result)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		if outcome != CaseOK {
			return fmt.Errorf("setup step %d: %s failed with %s", i, step.Action, outcome)
		}
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		args, err := h.resolve(step.Args)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		var resolved map[string]any
		if args != nil {
			resolved = args.(map[string]any)
		}

		actor := domain.Actor{UserID: step.As, Admin: slices.Contains(h.admins, step.As)}
		outcome, out, err := h.invoke(ctx, step.Invoke, actor, resolved, result)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		if step.Save != "" && outcome == CaseOK {
			summary, _ := out.(map[string]any)
			id, ok := summary["id"].(string)
			if !ok {
				return fmt.Errorf("flow step %d: %s returned no id to save", i, step.Invoke)
			}
			h.bindings[step.Save] = id
		}

		if step.Expect == nil {
			continue
		}
		if outcome != step.Expect.Case {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %s, got %s", i, step.Invoke, step.Expect.Case, outcome))
			continue
		}
		if len(step.Expect.Result) > 0 {
			summary, _ := out.(map[string]any)
			if !matchArgs(summary, step.Expect.Result) {
				result.AddError(fmt.Sprintf("flow[%d] %s: expected result %v, got %v", i, step.Invoke, step.Expect.Result, out))
			}
		}
	}

	return nil
}

// resolve replaces "$name" strings with saved ids, recursively.
func (h *Harness) resolve(v any) (any, error) {
	switch val := v.(type) {
	case string:
		name, ok := strings.CutPrefix(val, "$")
		if !ok {
			return val, nil
		}
		id, ok := h.bindings[name]
		if !ok {
			return nil, fmt.Errorf("no id saved as %q", name)
		}
		return id, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			r, err := h.resolve(elem)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		if val == nil {
			return nil, nil
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			r, err := h.resolve(elem)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	default:
		return val, nil
	}
}
