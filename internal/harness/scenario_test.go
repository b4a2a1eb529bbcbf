package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dyngen/internal/ir"
)

func writeScenario(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/izhikevich.yaml")
	require.NoError(t, err)

	assert.Equal(t, "izhikevich", s.Name)
	assert.Equal(t, filepath.Join("testdata", "models", "izhikevich.cue"), s.Model)
	assert.Equal(t, "Izhikevich", s.Class)
	assert.True(t, s.Golden)
	require.NotEmpty(t, s.Assertions)
	assert.Equal(t, AssertScopeCount, s.Assertions[0].Type)
	assert.Equal(t, 9, s.Assertions[0].Count)
}

func TestLoadScenarioOptions(t *testing.T) {
	s, err := LoadScenario("testdata/izhikevich_exclude.yaml")
	require.NoError(t, err)

	opts, err := s.Options.KernelOptions()
	require.NoError(t, err)
	assert.Equal(t, []ir.SymbolKey{ir.Key(ir.Parameter, "a"), ir.Key(ir.Port, "theta")}, opts.Exclude)
	assert.Equal(t, 0.001, opts.Solver.AbsTol)
	assert.Equal(t, 100, opts.Solver.MaxSteps)
}

func TestLoadScenarioErrors(t *testing.T) {
	model, err := filepath.Abs("testdata/models/izhikevich.cue")
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", "name: x\ndescription: d\nmodel: " + model + "\nassertion: []\n", "failed to parse YAML"},
		{"missing name", "description: d\nmodel: " + model + "\ngolden: true\n", "name is required"},
		{"missing description", "name: x\nmodel: " + model + "\ngolden: true\n", "description is required"},
		{"missing model", "name: x\ndescription: d\ngolden: true\n", "model is required"},
		{"model not found", "name: x\ndescription: d\nmodel: nowhere.cue\ngolden: true\n", "model file not found"},
		{"no assertions", "name: x\ndescription: d\nmodel: " + model + "\n", "assertions list is required"},
		{"bad exclude", "name: x\ndescription: d\nmodel: " + model + "\ngolden: true\noptions: {exclude: [a]}\n", "options.exclude"},
		{"bad category", "name: x\ndescription: d\nmodel: " + model + "\ngolden: true\noptions: {exclude: [\"widget:a\"]}\n", "unknown category"},
		{"unknown type", "name: x\ndescription: d\nmodel: " + model + "\nassertions: [{type: nope}]\n", "unknown assertion type"},
		{"source text", "name: x\ndescription: d\nmodel: " + model + "\nassertions: [{type: source_contains}]\n", "text is required"},
		{"declares scope", "name: x\ndescription: d\nmodel: " + model + "\nassertions: [{type: scope_declares}]\n", "scope is required"},
		{"order scopes", "name: x\ndescription: d\nmodel: " + model + "\nassertions: [{type: scope_order}]\n", "scopes list is required"},
		{"count", "name: x\ndescription: d\nmodel: " + model + "\nassertions: [{type: scope_count, count: -1}]\n", "non-negative"},
		{"error kind", "name: x\ndescription: d\nmodel: " + model + "\nassertions: [{type: generation_error, error: boom}]\n", "unknown error kind"},
		{"residual regime", "name: x\ndescription: d\nmodel: " + model + "\nassertions: [{type: residual, state: [1], residual: [1]}]\n", "regime is required"},
		{"residual state", "name: x\ndescription: d\nmodel: " + model + "\nassertions: [{type: residual, regime: r}]\n", "state and residual"},
		{"residual derivative", "name: x\ndescription: d\nmodel: " + model + "\nassertions: [{type: residual, regime: r, state: [1, 2], derivative: [0], residual: [1, 2]}]\n", "derivative must match"},
		{"flags", "name: x\ndescription: d\nmodel: " + model + "\nassertions: [{type: flags, regime: r}]\n", "flags list is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, t.TempDir(), tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/missing.yaml")
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "name: x\ndescription: d\nmodel: models/izhikevich.cue\ngolden: true\n")

	s, err := LoadScenarioWithBasePath(path, "testdata")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "models", "izhikevich.cue"), s.Model)
}

func TestParseKeys(t *testing.T) {
	keys, err := ParseKeys([]string{"state_variable:V", "alias:drive"})
	require.NoError(t, err)
	assert.Equal(t, []ir.SymbolKey{ir.Key(ir.StateVariable, "V"), ir.Key(ir.Alias, "drive")}, keys)

	_, err = ParseKeys([]string{"parameter:"})
	assert.Error(t, err)
}
