package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir holds golden kernels, relative to the package under test.
const GoldenDir = "testdata/golden"

var modelHashLine = regexp.MustCompile(`(?m)^// model hash: [0-9a-f]+$`)

// Snapshot returns the golden form of a result's kernel: the source with
// the model hash masked, since the hash covers the whole IR including
// fields that never reach the generated code.
func Snapshot(result *Result) ([]byte, error) {
	if result.Kernel == nil {
		return nil, fmt.Errorf("no kernel to snapshot: %v", result.GenerationError)
	}
	return modelHashLine.ReplaceAll([]byte(result.Kernel.Source), []byte("// model hash: <masked>")), nil
}

// RunWithGolden executes a scenario and compares the kernel against a golden
// file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the kernel doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's kernel against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}

// GoldenPath returns the golden file of a scenario file: golden/<name>.golden
// next to the scenario directory.
func GoldenPath(scenarioFile, name string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// CompareGolden reports whether the result matches the golden file at path.
// Used outside of go test, where goldie is not available.
func CompareGolden(path string, result *Result) (bool, error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := Snapshot(result)
	if err != nil {
		return false, err
	}
	return bytes.Equal(want, got), nil
}

// UpdateGolden writes the result's snapshot to path.
func UpdateGolden(path string, result *Result) error {
	data, err := Snapshot(result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}
