// Package solver bridges explicit model dynamics to an implicit DAE solver
// (SUNDIALS IDA style) and classifies the solver's return codes.
//
// The Go functions here define the contract; Fragments renders the same
// contract as C++ for generated kernels.
package solver

// StatusLengthMismatch is returned by Residual, without calling the
// dynamics, when the vectors do not all have the same length.
const StatusLengthMismatch = -100

// Dynamics computes explicit derivatives y1 = g(t, y) and returns a status,
// zero on success.
type Dynamics func(t float64, y, y1 []float64) int

// Residual evaluates the implicit form F(t, y, y') = g(t, y) - y'.
//
// dyn fills y1, then f[i] = y1[i] - yp[i] for every i. The status of dyn is
// returned unchanged, so a dynamics failure and a residual failure look the
// same to the caller.
func Residual(dyn Dynamics, t float64, y, yp, f, y1 []float64) int {
	n := len(y)
	if len(yp) != n || len(f) != n || len(y1) != n {
		return StatusLengthMismatch
	}
	status := dyn(t, y, y1)
	for i := range n {
		f[i] = y1[i] - yp[i]
	}
	return status
}

// AdjustZeroCrossings zeroes, in place, every component whose magnitude is
// below abstol so values chattering around a root do not flip event
// detection.
func AdjustZeroCrossings(v []float64, abstol float64) {
	for i, x := range v {
		if x < abstol && -x < abstol {
			v[i] = 0
		}
	}
}
