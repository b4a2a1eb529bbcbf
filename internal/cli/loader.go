package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/dyngen/internal/build"
	"github.com/roach88/dyngen/internal/compiler"
	"github.com/roach88/dyngen/internal/emit"
	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/resolve"
	"github.com/roach88/dyngen/internal/solver"
)

// LoadError represents an error that occurred during model loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadModel loads one model class from a .cue file or package directory.
// class may be empty when the source declares a single model. A model
// without a url field is given the absolute source path, which selects its
// FILE- build directory.
func LoadModel(path, class string) (*ir.ModelClass, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("model source not found: %s", path)}
	}

	m, err := compiler.LoadModel(path, class)
	if err != nil {
		return nil, convertCompileError(err)
	}
	if m.URL == "" {
		if abs, err := filepath.Abs(path); err == nil {
			m.URL = abs
		}
	}
	return m, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	if errors.Is(err, compiler.ErrNoModels) {
		return &LoadError{Code: ErrCodeNoModels, Message: err.Error()}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNoModels    = "E003" // No model found in the source
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // Build history unavailable

	// Model compile errors
	ErrCodeInvalidExpr  = "E101" // Expression does not parse
	ErrCodeInvalidAlias = "E102" // Alias has neither or both of rhs and piecewise
	ErrCodeNoRegimes    = "E103" // No regime declared

	// Generation errors
	ErrCodeCircular           = "E301" // Circular alias dependency
	ErrCodeUnknownSymbol      = "E302" // Reference to an undeclared symbol
	ErrCodeScopeInconsistency = "E303" // Scope bookkeeping failed
	ErrCodePiecewise          = "E304" // Piecewise alias cannot be emitted
	ErrCodeBuild              = "E310" // Build mode or directory failure
	ErrCodeSolver             = "E320" // Solver returned a negative status
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "regime":
		return ErrCodeNoRegimes
	case isExpressionField(field):
		return ErrCodeInvalidExpr
	case strings.HasPrefix(field, "alias.") && strings.Count(field, ".") == 1:
		return ErrCodeInvalidAlias
	default:
		return ErrCodeGeneric
	}
}

func isExpressionField(field string) bool {
	if strings.Contains(field, ".time_derivative.") || strings.Contains(field, ".state_assignment.") {
		return true
	}
	for _, suffix := range []string{".rhs", ".trigger", ".condition", ".value", ".otherwise"} {
		if strings.HasSuffix(field, suffix) {
			return true
		}
	}
	return false
}

// MapGenerationError maps a kernel generation or build failure to an error
// code.
func MapGenerationError(err error) string {
	var (
		cycle   *resolve.CircularDependencyError
		unknown *resolve.UnknownSymbolError
		scope   *resolve.ScopeInconsistencyError
		be      *build.Error
		le      *LoadError
		sf      *solver.Failure
	)
	switch {
	case errors.As(err, &le):
		return le.Code
	case errors.As(err, &cycle):
		return ErrCodeCircular
	case errors.As(err, &unknown):
		return ErrCodeUnknownSymbol
	case errors.As(err, &scope):
		return ErrCodeScopeInconsistency
	case errors.Is(err, emit.ErrPiecewiseUnsupported):
		return ErrCodePiecewise
	case errors.As(err, &be):
		return ErrCodeBuild
	case errors.As(err, &sf):
		return ErrCodeSolver
	}
	return ErrCodeGeneric
}
