package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/dyngen/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// Model errors (E200-E209)
	ErrModelNameEmpty      = "E200" // model name is required
	ErrModelNoRegimes      = "E201" // at least one regime required
	ErrDuplicateName       = "E202" // duplicate name within a category
	ErrAmbiguousName       = "E203" // same bare name in two categories
	ErrReservedName        = "E204" // name collides with t or a function
	ErrInvalidIdentifier   = "E205" // name is not a C identifier
	ErrInvalidPortMode     = "E206" // unknown port mode
	ErrUnknownDistribution = "E207" // unknown random distribution

	// Expression errors (E210-E219)
	ErrUndefinedReference = "E210" // expression references an undeclared symbol
	ErrUnknownStateTarget = "E211" // derivative or assignment of an unknown state
	ErrUnknownRegime      = "E212" // transition targets an unknown regime
	ErrDuplicateTrigger   = "E213" // same trigger and target declared twice
	ErrAliasCycle         = "E214" // aliases depend on each other circularly
)

// Distributions lists the random distributions the kernel runtime provides,
// with their parameter names in call order.
var Distributions = map[string][]string{
	"normal":      {"mu", "sigma"},
	"uniform":     {"low", "high"},
	"exponential": {"rate"},
	"poisson":     {"lambda"},
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidationError represents a model validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled model class against the structural rules
// generation relies on. Returns all errors found (does not fail-fast).
func Validate(m *ir.ModelClass) []ValidationError {
	var errs []ValidationError

	// E200
	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "model name is required and must be non-empty",
			Code:    ErrModelNameEmpty,
		})
	}

	// E201
	if len(m.Regimes) == 0 {
		errs = append(errs, ValidationError{
			Field:   "regimes",
			Message: "at least one regime is required",
			Code:    ErrModelNoRegimes,
		})
	}

	errs = append(errs, validateNames(m)...)
	errs = append(errs, validateDeclarations(m)...)
	errs = append(errs, validateExpressions(m)...)
	errs = append(errs, validateRegimes(m)...)

	for _, cycle := range AnalyzeAliasCycles(m) {
		errs = append(errs, ValidationError{
			Field:   "aliases",
			Message: cycle.Message,
			Code:    ErrAliasCycle,
		})
	}

	return errs
}

// validateNames enforces identifier shape and uniqueness. Expression text
// refers to symbols by bare name, so a name may live in only one category.
func validateNames(m *ir.ModelClass) []ValidationError {
	var errs []ValidationError
	owner := make(map[string]ir.Category)

	for _, c := range ir.Categories {
		seen := make(map[string]bool)
		for i, name := range m.Names(c) {
			field := fmt.Sprintf("%ss[%d]", c, i)

			if !identifierPattern.MatchString(name) {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("%q is not a valid identifier", name),
					Code:    ErrInvalidIdentifier,
				})
			}
			if IsReserved(name) {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("%q is reserved", name),
					Code:    ErrReservedName,
				})
			}
			if seen[name] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("duplicate %s name: %q", c, name),
					Code:    ErrDuplicateName,
				})
				continue
			}
			seen[name] = true

			if prev, ok := owner[name]; ok {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("%q is declared as both %s and %s", name, prev, c),
					Code:    ErrAmbiguousName,
				})
				continue
			}
			owner[name] = c
		}
	}

	return errs
}

func validateDeclarations(m *ir.ModelClass) []ValidationError {
	var errs []ValidationError

	for i, p := range m.Ports {
		switch p.Mode {
		case ir.PortReceive, ir.PortSend, ir.PortReduce:
		default:
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("ports[%d].mode", i),
				Message: fmt.Sprintf("invalid port mode %q, must be \"receive\", \"send\", or \"reduce\"", p.Mode),
				Code:    ErrInvalidPortMode,
			})
		}
	}

	for i, rv := range m.RandomVariables {
		params, ok := Distributions[rv.Distribution]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("random_variables[%d].distribution", i),
				Message: fmt.Sprintf("unknown distribution %q", rv.Distribution),
				Code:    ErrUnknownDistribution,
			})
			continue
		}
		if len(rv.Params) != len(params) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("random_variables[%d].params", i),
				Message: fmt.Sprintf("%s takes parameters %s", rv.Distribution, strings.Join(params, ", ")),
				Code:    ErrUnknownDistribution,
			})
			continue
		}
		for j, p := range rv.Params {
			if p.Name != params[j] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("random_variables[%d].params[%d]", i, j),
					Message: fmt.Sprintf("expected parameter %q, got %q", params[j], p.Name),
					Code:    ErrUnknownDistribution,
				})
			}
		}
	}

	return errs
}

// validateExpressions checks that every reference resolves to a declaration.
func validateExpressions(m *ir.ModelClass) []ValidationError {
	var errs []ValidationError

	check := func(field string, refs []string) {
		for _, ref := range refs {
			if _, ok := m.Lookup(ref); !ok {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("undefined symbol %q", ref),
					Code:    ErrUndefinedReference,
				})
			}
		}
	}

	for _, a := range m.Aliases {
		check("aliases."+a.Name, a.References())
	}
	for _, r := range m.Regimes {
		for _, td := range r.TimeDerivatives {
			check(fmt.Sprintf("regimes.%s.time_derivatives.%s", r.Name, td.Variable), td.Expr.Refs)
		}
		for i, oc := range r.OnConditions {
			check(fmt.Sprintf("regimes.%s.on_conditions[%d].trigger", r.Name, i), oc.Trigger.Refs)
			for _, sa := range oc.StateAssignments {
				check(fmt.Sprintf("regimes.%s.on_conditions[%d].state_assignments.%s", r.Name, i, sa.Variable), sa.Expr.Refs)
			}
		}
	}

	return errs
}

func validateRegimes(m *ir.ModelClass) []ValidationError {
	var errs []ValidationError

	for _, r := range m.Regimes {
		for _, td := range r.TimeDerivatives {
			if m.StateIndex(td.Variable) < 0 {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("regimes.%s.time_derivatives.%s", r.Name, td.Variable),
					Message: fmt.Sprintf("%q is not a state variable", td.Variable),
					Code:    ErrUnknownStateTarget,
				})
			}
		}

		seen := make(map[string]bool)
		for i, oc := range r.OnConditions {
			field := fmt.Sprintf("regimes.%s.on_conditions[%d]", r.Name, i)
			if _, ok := m.Regime(oc.Target); !ok {
				errs = append(errs, ValidationError{
					Field:   field + ".target",
					Message: fmt.Sprintf("unknown target regime %q", oc.Target),
					Code:    ErrUnknownRegime,
				})
			}
			// IndexOf identifies transitions by trigger and target.
			key := oc.Trigger.Text + "\x00" + oc.Target
			if seen[key] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("transition on %q to %q declared twice", oc.Trigger.Text, oc.Target),
					Code:    ErrDuplicateTrigger,
				})
			}
			seen[key] = true
			for _, sa := range oc.StateAssignments {
				if m.StateIndex(sa.Variable) < 0 {
					errs = append(errs, ValidationError{
						Field:   field + ".state_assignments." + sa.Variable,
						Message: fmt.Sprintf("%q is not a state variable", sa.Variable),
						Code:    ErrUnknownStateTarget,
					})
				}
			}
		}
	}

	return errs
}
