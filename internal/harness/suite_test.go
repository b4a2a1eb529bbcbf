package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	files, err := FindScenarios("testdata", "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "cycle.yaml"),
		filepath.Join("testdata", "gated.yaml"),
		filepath.Join("testdata", "izhikevich.yaml"),
		filepath.Join("testdata", "izhikevich_exclude.yaml"),
	}, files)

	filtered, err := FindScenarios("testdata", "izh*")
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	_, err = FindScenarios("testdata", "[")
	assert.Error(t, err)

	_, err = FindScenarios("testdata/missing", "")
	assert.Error(t, err)
}

func TestRunSuite(t *testing.T) {
	result, err := RunSuite("testdata", SuiteOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalScenarios)
	assert.Equal(t, 4, result.Passed, "scenarios: %+v", result.Scenarios)
	assert.Equal(t, 0, result.Failed)
}

// copySuite copies the izhikevich scenario and its model into a fresh
// directory so golden files can be written.
func copySuite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "models"), 0755))
	for _, name := range []string{"izhikevich.yaml", filepath.Join("models", "izhikevich.cue")} {
		data, err := os.ReadFile(filepath.Join("testdata", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}
	return dir
}

func TestRunSuiteGolden(t *testing.T) {
	dir := copySuite(t)

	missing, err := RunSuite(dir, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, missing.Failed, "golden file not written yet")

	updated, err := RunSuite(dir, SuiteOptions{Update: true})
	require.NoError(t, err)
	require.Len(t, updated.Scenarios, 1)
	assert.True(t, updated.Scenarios[0].GoldenUpdated)

	want, err := os.ReadFile(filepath.Join("testdata", "golden", "izhikevich.golden"))
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dir, "golden", "izhikevich.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	again, err := RunSuite(dir, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, again.Passed)
}

func TestRunSuiteLoadFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0644))

	result, err := RunSuite(dir, SuiteOptions{})
	require.NoError(t, err)
	require.Len(t, result.Scenarios, 1)
	assert.False(t, result.Scenarios[0].Pass)
	assert.Equal(t, "broken.yaml", result.Scenarios[0].Name)
}
