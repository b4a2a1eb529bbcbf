package harness

import (
	"github.com/roach88/dyngen/internal/kernel"
	"github.com/roach88/dyngen/internal/store"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every assertion held.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Kernel is the generated kernel, nil when generation failed.
	Kernel *kernel.Kernel `json:"kernel,omitempty"`

	// Build is the history record of the generation run.
	Build store.Build `json:"build"`

	// Emissions are the scopes read back from the build history.
	Emissions []store.Emission `json:"emissions"`

	// GenerationError is the generation failure, if any.
	GenerationError error `json:"-"`

	// ErrorKind classifies GenerationError (see ErrorKind).
	ErrorKind string `json:"error_kind,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Errors:    []string{},
		Emissions: []store.Emission{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Source returns the generated kernel text, or "" when generation failed.
func (r *Result) Source() string {
	if r.Kernel == nil {
		return ""
	}
	return r.Kernel.Source
}
