package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SuiteOptions control RunSuite.
type SuiteOptions struct {
	// Filter is a glob matched against scenario file names without extension.
	Filter string
	// Update rewrites golden files instead of comparing against them.
	Update bool
}

// SuiteResult summarises a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Scenarios      []ScenarioOutcome `json:"scenarios"`
}

// ScenarioOutcome is the result of one scenario in a suite.
type ScenarioOutcome struct {
	Name          string   `json:"name"`
	ScenarioPath  string   `json:"scenario_path"`
	Pass          bool     `json:"pass"`
	GoldenUpdated bool     `json:"golden_updated,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// FindScenarios returns every .yaml or .yml file directly in dir, sorted,
// whose base name matches filter. Subdirectories hold models and golden
// files and are not searched.
func FindScenarios(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(entry.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// RunSuite loads and runs every scenario in dir. Golden scenarios are
// compared against <dir>/golden/<name>.golden, or rewritten with Update.
//
// Scenario failures are reported in the result; only an unreadable
// directory is an error.
func RunSuite(dir string, opts SuiteOptions) (*SuiteResult, error) {
	files, err := FindScenarios(dir, opts.Filter)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{Scenarios: make([]ScenarioOutcome, 0, len(files))}
	for _, path := range files {
		outcome := runOne(path, opts)
		result.TotalScenarios++
		if outcome.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, outcome)
	}
	return result, nil
}

func runOne(path string, opts SuiteOptions) ScenarioOutcome {
	outcome := ScenarioOutcome{Name: filepath.Base(path), ScenarioPath: path}

	scenario, err := LoadScenario(path)
	if err != nil {
		outcome.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return outcome
	}
	outcome.Name = scenario.Name

	run, err := Run(scenario)
	if err != nil {
		outcome.Errors = []string{fmt.Sprintf("scenario execution failed: %v", err)}
		return outcome
	}
	outcome.Errors = run.Errors

	if scenario.Golden && run.Kernel != nil {
		golden := GoldenPath(path, scenario.Name)
		if opts.Update {
			if err := UpdateGolden(golden, run); err != nil {
				outcome.Errors = append(outcome.Errors, err.Error())
			} else {
				outcome.GoldenUpdated = true
			}
		} else if match, err := CompareGolden(golden, run); err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("golden comparison failed: %v", err))
		} else if !match {
			outcome.Errors = append(outcome.Errors, "kernel does not match golden file (run with --update to regenerate)")
		}
	}

	outcome.Pass = len(outcome.Errors) == 0
	return outcome
}
