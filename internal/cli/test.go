package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrdcvlsc/food-reservation/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update   bool   // regenerate golden files
	Filter   string // scenario filter (glob pattern)
	FailFast bool   // stop at the first failing scenario
}

// Golden file outcomes reported per scenario.
const (
	GoldenNone    = ""
	GoldenMatched = "matched"
	GoldenUpdated = "updated"
)

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Steps  int      `json:"steps"`
	Golden string   `json:"golden,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run YAML conformance scenarios against a fresh in-memory engine.

Every scenario gets its own database, a fixed clock and sequential ids
(id-0001, id-0002, ...), so traces are reproducible. After the flow, the
expect clauses and assertions are checked. A scenario with a golden file
(golden/<file>.golden next to it) must also reproduce the recorded trace
byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  canteen test ./scenarios
  canteen test ./scenarios --filter "topup_*"
  canteen test ./scenarios --update
  canteen test ./scenarios --fail-fast --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "stop after the first failing scenario")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	out := newFormatter(cmd, opts.RootOptions)
	text := opts.Format != "json"
	w := cmd.OutOrStdout()

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for i, file := range files {
		sr := checkScenario(file, opts.Update)
		result.Scenarios = append(result.Scenarios, sr)
		if text {
			reportScenario(w, sr)
		}
		if sr.Pass {
			result.Passed++
			continue
		}
		result.Failed++
		if opts.FailFast {
			result.Skipped = len(files) - i - 1
			break
		}
	}

	if result.Failed == 0 {
		if err := out.Emit(result, func(w io.Writer) { reportSummary(w, result) }); err != nil {
			return WrapExitError(ExitCommandError, "write output", err)
		}
		return nil
	}

	msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
	if text {
		reportSummary(w, result)
	} else if err := out.Error("TEST_FAILED", msg, result); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return &ExitError{Code: ExitFailure, Message: msg, Reported: true}
}

// findScenarioFiles returns the .yaml and .yml files under dir, sorted.
// filter is a glob matched against the file name without its extension.
func findScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	sort.Strings(files)
	return files, err
}

// checkScenario loads and runs one scenario file, then updates or compares
// its golden trace.
func checkScenario(file string, update bool) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}
	fail := func(format string, args ...any) ScenarioResult {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf(format, args...))
		return sr
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail("load error: %v", err)
	}
	sr.Name = scenario.Name
	sr.Steps = len(scenario.Flow)

	result, err := harness.Run(scenario)
	if err != nil {
		return fail("execution error: %v", err)
	}

	snapshot, err := harness.Snapshot(scenario.Name, result.Trace)
	if err != nil {
		return fail("snapshot error: %v", err)
	}

	golden := goldenFilePath(file)
	switch {
	case update:
		if err := writeGolden(golden, snapshot); err != nil {
			return fail("golden update error: %v", err)
		}
		sr.Golden = GoldenUpdated
	default:
		recorded, err := os.ReadFile(golden)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fail("golden read error: %v", err)
		case !bytes.Equal(recorded, snapshot):
			return fail("golden file mismatch (run with --update to regenerate)")
		default:
			sr.Golden = GoldenMatched
		}
	}

	sr.Pass = result.Pass
	sr.Errors = result.Errors
	return sr
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}

func reportScenario(w io.Writer, sr ScenarioResult) {
	mark := "✓"
	if !sr.Pass {
		mark = "✗"
	}
	suffix := ""
	switch sr.Golden {
	case GoldenUpdated:
		suffix = " (golden updated)"
	case GoldenMatched:
		suffix = " (golden)"
	}
	fmt.Fprintf(w, "%s %s%s\n", mark, sr.Name, suffix)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func reportSummary(w io.Writer, result TestResult) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Skipped > 0 {
		fmt.Fprintf(w, "%d scenario(s) skipped after the first failure\n", result.Skipped)
	}
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}
