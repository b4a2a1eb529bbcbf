// Package harness runs kernel generation scenarios.
//
// A scenario names a model source, the generation options and a list of
// assertions about the generated kernel. Scenarios run through the build
// driver in generate-only mode against an in-memory build history, with
// fixed run IDs and a deterministic clock, so identical scenarios produce
// identical kernels, scopes and history rows.
//
// # Scenario Format
//
//	name: izhikevich
//	description: "Two-regime neuron with nested aliases"
//	model: models/izhikevich.cue
//	class: Izhikevich
//	options:
//	  debug: false
//	  exclude: ["parameter:a"]
//	  solver: {abstol: 1e-9}
//	golden: true
//	assertions:
//	  - type: scope_declares
//	    scope: Izhikevich_dynamics
//	    symbols: [state_variable:V, alias:recovery]
//	  - type: residual
//	    regime: subthreshold
//	    set: {a: 0.02, Isyn: 10}
//	    state: [-70, -14]
//	    derivative: [0, 0]
//	    residual: [6, -1]
//
// # Assertion Types
//
//   - source_contains: the kernel source contains text
//   - scope_declares: a scope declared exactly the listed symbols
//   - scope_order: scopes were opened in the listed order
//   - scope_count: the kernel opened exactly count scopes
//   - generation_error: generation failed with the named error kind
//   - residual: the model's residual at (time, state, derivative) matches
//   - flags: the regime's transition flags at (time, state) match
//
// Residual and flag assertions evaluate the model itself with package eval,
// which is the reference the generated C++ is checked against.
//
// # Golden Kernels
//
// Scenarios with golden: true compare the kernel source against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
