package solver

import "fmt"

// Failure is the terminal error of a simulation instance whose solver
// returned a failing status. It is never retried.
type Failure struct {
	Model  string
	Status int
}

func (f *Failure) Error() string {
	return fmt.Sprintf("In model %s, the solver returned with exit status %d.", f.Model, f.Status)
}

// Escalate turns a solver exit status into a *Failure. Negative statuses
// fail; zero and the positive informational returns (root found, stop time
// reached) do not.
func Escalate(model string, status int) error {
	if status >= 0 {
		return nil
	}
	return &Failure{Model: model, Status: status}
}
