package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/kernel"
	"github.com/roach88/dyngen/internal/solver"
)

// Scenario defines a kernel generation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the path of the CUE model source.
	// Relative paths are resolved against the scenario's base path.
	Model string `yaml:"model"`

	// Class selects one model out of the source. May be empty when the
	// source declares exactly one.
	Class string `yaml:"class,omitempty"`

	// Options configure kernel generation.
	Options Options `yaml:"options,omitempty"`

	// Golden compares the kernel source against testdata/golden/<name>.golden.
	Golden bool `yaml:"golden,omitempty"`

	// Assertions validate the generated kernel and the model.
	Assertions []Assertion `yaml:"assertions"`
}

// Options mirror kernel.Options in scenario form.
type Options struct {
	Debug bool `yaml:"debug,omitempty"`

	// Exclude lists "category:name" keys the host provides.
	Exclude []string `yaml:"exclude,omitempty"`

	Solver solver.Settings `yaml:"solver,omitempty"`
}

// KernelOptions converts the scenario options.
func (o Options) KernelOptions() (kernel.Options, error) {
	exclude, err := ParseKeys(o.Exclude)
	if err != nil {
		return kernel.Options{}, err
	}
	return kernel.Options{
		Debug:   o.Debug,
		Exclude: exclude,
		Solver:  o.Solver,
	}, nil
}

// Assertion validates the generated kernel or the model's behaviour.
type Assertion struct {
	// Type specifies the assertion type:
	// - "source_contains": Text appears in the kernel source
	// - "scope_declares": Scope declared exactly Symbols
	// - "scope_order": Scopes were opened in this order
	// - "scope_count": Exactly Count scopes were opened
	// - "generation_error": Generation failed with kind Error
	// - "residual": Residual at (Time, State, Derivative) equals Residual
	// - "flags": Regime flags at (Time, State) equal Flags
	Type string `yaml:"type"`

	// Text is the expected source fragment (used by source_contains).
	Text string `yaml:"text,omitempty"`

	// Scope is a scope path (used by scope_declares).
	Scope string `yaml:"scope,omitempty"`

	// Symbols are "category:name" keys (used by scope_declares).
	Symbols []string `yaml:"symbols,omitempty"`

	// Scopes is the expected scope order (used by scope_order).
	Scopes []string `yaml:"scopes,omitempty"`

	// Count is the expected number of scopes (used by scope_count).
	Count int `yaml:"count,omitempty"`

	// Error is the expected error kind (used by generation_error).
	Error string `yaml:"error,omitempty"`

	// Regime selects the regime evaluated (used by residual and flags).
	Regime string `yaml:"regime,omitempty"`

	// Time is the model time (used by residual and flags).
	Time float64 `yaml:"time,omitempty"`

	// Set binds parameters, ports, random variables and constant overrides
	// by bare name (used by residual and flags).
	Set map[string]float64 `yaml:"set,omitempty"`

	// State is the state vector in declaration order.
	State []float64 `yaml:"state,omitempty"`

	// Derivative is the solver's derivative estimate (used by residual).
	// Defaults to zeros.
	Derivative []float64 `yaml:"derivative,omitempty"`

	// Residual is the expected residual (used by residual).
	Residual []float64 `yaml:"residual,omitempty"`

	// Flags are the expected transition flags (used by flags).
	Flags []bool `yaml:"flags,omitempty"`

	// Tolerance bounds numeric comparisons. Defaults to 1e-9.
	Tolerance float64 `yaml:"tolerance,omitempty"`
}

// Assertion type constants.
const (
	AssertSourceContains  = "source_contains"
	AssertScopeDeclares   = "scope_declares"
	AssertScopeOrder      = "scope_order"
	AssertScopeCount      = "scope_count"
	AssertGenerationError = "generation_error"
	AssertResidual        = "residual"
	AssertFlags           = "flags"
)

// LoadScenario reads and parses a scenario YAML file. The model path is
// resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the model path relative to basePath.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the model path BEFORE validation
	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) && basePath != "" {
		scenario.Model = filepath.Join(basePath, scenario.Model)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// ParseKeys parses "category:name" symbol keys.
func ParseKeys(keys []string) ([]ir.SymbolKey, error) {
	out := make([]ir.SymbolKey, 0, len(keys))
	for _, k := range keys {
		cat, name, ok := strings.Cut(k, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid symbol key %q, want category:name", k)
		}
		c, err := ir.ParseCategory(cat)
		if err != nil {
			return nil, fmt.Errorf("invalid symbol key %q: %w", k, err)
		}
		out = append(out, ir.Key(c, name))
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := os.Stat(s.Model); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.Model)
	}

	if _, err := ParseKeys(s.Options.Exclude); err != nil {
		return fmt.Errorf("options.exclude: %w", err)
	}

	if len(s.Assertions) == 0 && !s.Golden {
		return fmt.Errorf("assertions list is required unless golden is set")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSourceContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for source_contains", index)
		}
	case AssertScopeDeclares:
		if a.Scope == "" {
			return fmt.Errorf("assertions[%d]: scope is required for scope_declares", index)
		}
		if _, err := ParseKeys(a.Symbols); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertScopeOrder:
		if len(a.Scopes) == 0 {
			return fmt.Errorf("assertions[%d]: scopes list is required for scope_order", index)
		}
	case AssertScopeCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for scope_count", index)
		}
	case AssertGenerationError:
		if !isErrorKind(a.Error) {
			return fmt.Errorf("assertions[%d]: unknown error kind %q for generation_error", index, a.Error)
		}
	case AssertResidual:
		if a.Regime == "" {
			return fmt.Errorf("assertions[%d]: regime is required for residual", index)
		}
		if len(a.State) == 0 || len(a.Residual) == 0 {
			return fmt.Errorf("assertions[%d]: state and residual are required for residual", index)
		}
		if a.Derivative != nil && len(a.Derivative) != len(a.State) {
			return fmt.Errorf("assertions[%d]: derivative must match state length", index)
		}
	case AssertFlags:
		if a.Regime == "" {
			return fmt.Errorf("assertions[%d]: regime is required for flags", index)
		}
		if len(a.Flags) == 0 {
			return fmt.Errorf("assertions[%d]: flags list is required for flags", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
