package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dyngen/internal/store"
	"github.com/roach88/dyngen/internal/testutil"
)

type generateResponse struct {
	Status string         `json:"status"`
	Data   GenerateResult `json:"data"`
	Error  *CLIError      `json:"error"`
}

func decodeGenerate(t *testing.T, out string) generateResponse {
	t.Helper()
	var resp generateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestGenerate_ForceThenLazy(t *testing.T) {
	model := writeModel(t, "izhikevich.cue", testutil.IzhikevichCUE)
	dir := t.TempDir()
	db := filepath.Join(dir, "history", "builds.db")
	args := []string{"--format", "json", "generate", model, "--out", dir, "--store", db, "--prefix", "T-"}

	out, err := execute(t, append(args, "--mode", "force")...)
	require.NoError(t, err)
	first := decodeGenerate(t, out)
	assert.Equal(t, "ok", first.Status)
	assert.Equal(t, "Izhikevich", first.Data.Model)
	assert.Equal(t, store.StatusInstalled, first.Data.Status)
	assert.Equal(t, filepath.Join(dir, "T-Izhikevich"), first.Data.BuildDir)
	assert.Equal(t, filepath.Join(dir, "T-Izhikevich", "install", "Izhikevich.cpp"), first.Data.KernelPath)
	assert.Equal(t, 9, first.Data.Scopes)
	assert.FileExists(t, first.Data.KernelPath)

	out, err = execute(t, append(args, "--mode", "lazy")...)
	require.NoError(t, err)
	second := decodeGenerate(t, out)
	assert.Equal(t, store.StatusReused, second.Data.Status)
	assert.Equal(t, first.Data.ModelHash, second.Data.ModelHash)
	assert.NotEqual(t, first.Data.BuildID, second.Data.BuildID)

	out, err = execute(t, "--format", "json", "history", "--store", db)
	require.NoError(t, err)
	var hist struct {
		Data HistoryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &hist))
	require.Len(t, hist.Data.Builds, 2)
	assert.Equal(t, first.Data.BuildID, hist.Data.Builds[0].ID)
	assert.Equal(t, "force", hist.Data.Builds[0].Mode)
	assert.Equal(t, "lazy", hist.Data.Builds[1].Mode)
}

func TestGenerate_ModelURLSelectsFilePrefix(t *testing.T) {
	model := writeModel(t, "izhikevich.cue", testutil.IzhikevichCUE)
	dir := t.TempDir()

	out, err := execute(t, "--format", "json", "generate", model, "--out", dir, "--no-history", "--mode", "generate_only")
	require.NoError(t, err)
	resp := decodeGenerate(t, out)
	assert.Equal(t, store.StatusGenerated, resp.Data.Status)
	assert.Contains(t, filepath.Base(resp.Data.BuildDir), "FILE-")
	assert.Contains(t, filepath.Base(resp.Data.BuildDir), "Izhikevich")
}

func TestGenerate_Text(t *testing.T) {
	model := writeModel(t, "izhikevich.cue", testutil.IzhikevichCUE)
	dir := t.TempDir()

	out, err := execute(t, "generate", model, "--out", dir, "--no-history", "--prefix", "T-", "--debug", "--exclude", "parameter:a")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Izhikevich installed (lazy)")
	assert.Contains(t, out, "scopes: 9")

	src, err := os.ReadFile(filepath.Join(dir, "T-Izhikevich", "install", "Izhikevich.cpp"))
	require.NoError(t, err)
	assert.NotContains(t, string(src), "node.P_.a;")
}

func TestGenerate_CircularDependency(t *testing.T) {
	model := writeModel(t, "loop.cue", loopCUE)
	dir := t.TempDir()
	db := filepath.Join(dir, "builds.db")

	out, err := execute(t, "--format", "json", "generate", model, "--out", dir, "--store", db, "--prefix", "T-")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeGenerate(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCircular, resp.Error.Code)
	assert.NoDirExists(t, filepath.Join(dir, "T-Loop", "src"))

	out, err = execute(t, "--format", "json", "history", "--store", db)
	require.NoError(t, err)
	var hist struct {
		Data HistoryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &hist))
	require.Len(t, hist.Data.Builds, 1)
	assert.Equal(t, store.StatusFailed, hist.Data.Builds[0].Status)
	assert.Contains(t, hist.Data.Builds[0].Error, "circular dependency")
}

func TestGenerate_Require(t *testing.T) {
	model := writeModel(t, "izhikevich.cue", testutil.IzhikevichCUE)
	dir := t.TempDir()

	out, err := execute(t, "--format", "json", "generate", model, "--out", dir, "--no-history", "--prefix", "T-", "--mode", "require")
	require.Error(t, err)
	assert.Equal(t, ErrCodeBuild, decodeGenerate(t, out).Error.Code)
}

func TestGenerate_CommandErrors(t *testing.T) {
	model := writeModel(t, "izhikevich.cue", testutil.IzhikevichCUE)
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"bad mode", []string{"generate", model, "--out", dir, "--no-history", "--mode", "sometimes"}},
		{"bad exclude", []string{"generate", model, "--out", dir, "--no-history", "--exclude", "a"}},
		{"missing model", []string{"generate", filepath.Join(dir, "missing.cue"), "--out", dir, "--no-history"}},
		{"unknown class", []string{"generate", model, "--out", dir, "--no-history", "--class", "Hodgkin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}
