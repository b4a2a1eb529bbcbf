package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/testutil"
)

func runRequiredJSON(t *testing.T, args ...string) RequiredResult {
	t.Helper()
	out, err := execute(t, append([]string{"--format", "json", "required"}, args...)...)
	require.NoError(t, err, out)
	var resp struct {
		Data RequiredResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp.Data
}

func TestRequired_Expression(t *testing.T) {
	model := writeModel(t, "izhikevich.cue", testutil.IzhikevichCUE)

	res := runRequiredJSON(t, model, "--expr", "recovery")
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "expr", res.Groups[0].Group)
	assert.Equal(t, ir.NewRequiredSet(
		ir.Key(ir.StateVariable, "U"),
		ir.Key(ir.StateVariable, "V"),
		ir.Key(ir.Parameter, "a"),
		ir.Key(ir.Parameter, "b"),
		ir.Key(ir.Alias, "recovery"),
	), res.Groups[0].Required)
}

func TestRequired_AliasesWithExclude(t *testing.T) {
	model := writeModel(t, "izhikevich.cue", testutil.IzhikevichCUE)

	res := runRequiredJSON(t, model, "--alias", "recovery", "--exclude", "parameter:a", "--exclude", "alias:recovery")
	require.Len(t, res.Groups, 1)
	assert.Equal(t, ir.NewRequiredSet(
		ir.Key(ir.StateVariable, "U"),
		ir.Key(ir.StateVariable, "V"),
		ir.Key(ir.Parameter, "b"),
	), res.Groups[0].Required)
}

func TestRequired_Regimes(t *testing.T) {
	model := writeModel(t, "izhikevich.cue", testutil.IzhikevichCUE)

	res := runRequiredJSON(t, model)
	assert.Equal(t, "Izhikevich", res.Model)
	groups := make([]string, len(res.Groups))
	for i, g := range res.Groups {
		groups[i] = g.Group
	}
	assert.ElementsMatch(t, []string{
		"regime:subthreshold/dynamics",
		"regime:subthreshold/transition:0->refractory",
		"regime:refractory/dynamics",
		"regime:refractory/transition:0->subthreshold",
	}, groups)

	only := runRequiredJSON(t, model, "--regime", "refractory")
	require.Len(t, only.Groups, 2)
	assert.Equal(t, ir.NewRequiredSet(ir.Key(ir.Parameter, "t_ref")), only.Groups[1].Required)
}

func TestRequired_Text(t *testing.T) {
	model := writeModel(t, "izhikevich.cue", testutil.IzhikevichCUE)

	out, err := execute(t, "required", model, "--expr", "t + c")
	require.NoError(t, err)
	assert.Contains(t, out, "Izhikevich")
	assert.Contains(t, out, "expr: parameter:c")
}

func TestRequired_Errors(t *testing.T) {
	model := writeModel(t, "izhikevich.cue", testutil.IzhikevichCUE)

	out, err := execute(t, "--format", "json", "required", model, "--expr", "ghost * 2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeUnknownSymbol)

	loop := writeModel(t, "loop.cue", loopCUE)
	out, err = execute(t, "--format", "json", "required", loop)
	require.Error(t, err)
	assert.Contains(t, out, ErrCodeCircular)

	_, err = execute(t, "required", model, "--regime", "bursting")
	require.Error(t, err)
}
