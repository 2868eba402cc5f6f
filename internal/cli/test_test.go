package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleScenarios = "../harness/testdata/scenarios"

// copyScenario copies one example scenario into a fresh directory.
func copyScenario(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(exampleScenarios, name+".yaml"))
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), data, 0o644))
	return dir
}

func runTestCommand(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	buf, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	buf, err := runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandExampleScenarios(t *testing.T) {
	buf, err := runTestCommand(t, "text", exampleScenarios)
	require.NoError(t, err, buf.String())
	assert.Contains(t, buf.String(), "✓ example_reject_restores")
	assert.Contains(t, buf.String(), "All scenarios passed")
}

func TestTestCommandFilterJSON(t *testing.T) {
	buf, err := runTestCommand(t, "json", exampleScenarios, "--filter", "topup_*")
	require.NoError(t, err)

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	require.Len(t, response.Data.Scenarios, 1)
	assert.Equal(t, "topup_decided_once", response.Data.Scenarios[0].Name)
	assert.Equal(t, 1, response.Data.Passed)
}

func TestTestCommandGoldenRoundTrip(t *testing.T) {
	dir := copyScenario(t, "example_reject_restores")
	golden := filepath.Join(dir, "golden", "example_reject_restores.golden")

	buf, err := runTestCommand(t, "text", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "golden updated")
	require.FileExists(t, golden)

	// A second run reproduces the recorded trace.
	buf, err = runTestCommand(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ example_reject_restores (golden)")

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"example_reject_restores","trace":[]}`), 0o644))
	buf, err = runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.Contains(t, buf.String(), "golden file mismatch")
}

func TestTestCommandLoadErrorFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0o644))

	buf, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ broken.yaml")
	assert.Contains(t, buf.String(), "load error")
	assert.Contains(t, buf.String(), "1 failed")
}

const failingScenario = `name: wrong_expectation
description: "Expects a student to be refused their own balance."
flow:
  - invoke: wallet.balance
    as: stu-001
    args: {}
    expect: { case: FORBIDDEN }
assertions:
  - type: invariants
`

func writeFailingScenarios(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(failingScenario), 0o644))
	}
	return dir
}

func TestTestCommandFailureJSON(t *testing.T) {
	dir := writeFailingScenarios(t, "a")

	buf, err := runTestCommand(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))

	var response struct {
		Status string `json:"status"`
		Error  struct {
			Code    string     `json:"code"`
			Message string     `json:"message"`
			Details TestResult `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "error", response.Status)
	assert.Equal(t, "TEST_FAILED", response.Error.Code)
	assert.Equal(t, 1, response.Error.Details.Failed)
	require.Len(t, response.Error.Details.Scenarios, 1)
	assert.Contains(t, response.Error.Details.Scenarios[0].Errors[0], "expected case FORBIDDEN, got ok")
}

func TestTestCommandFailFast(t *testing.T) {
	dir := writeFailingScenarios(t, "a", "b", "c")

	buf, err := runTestCommand(t, "text", dir, "--fail-fast")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "1 failed, 3 total")
	assert.Contains(t, buf.String(), "2 scenario(s) skipped")

	buf, err = runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "3 failed, 3 total")
}

func TestTestHelpText(t *testing.T) {
	buf, err := runTestCommand(t, "text", "--help")
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "conformance")
	assert.Contains(t, output, "--update")
	assert.Contains(t, output, "--filter")
	assert.Contains(t, output, "--fail-fast")
	assert.Contains(t, output, "scenarios-dir")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0o644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(tmpDir, "test1.yaml"), filepath.Join(tmpDir, "test2.yml")}, files)

	_, err = findScenarioFiles(tmpDir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "topup-approve.yaml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "topup-reject.yaml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "reserve-stock.yaml"), []byte(""), 0o644))

	files, err := findScenarioFiles(tmpDir, "topup-*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	for _, f := range files {
		assert.Regexp(t, `topup-[a-z]+\.yaml$`, f)
	}
}

func TestFindScenarioFilesSubdirectories(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "root.yaml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "sub.yaml"), []byte(""), 0o644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"/path/to/scenario.yaml", "/path/to/golden/scenario.golden"},
		{"/path/to/scenario.yml", "/path/to/golden/scenario.golden"},
		{"scenarios/test.yaml", "scenarios/golden/test.golden"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, goldenFilePath(tc.input))
	}
}
