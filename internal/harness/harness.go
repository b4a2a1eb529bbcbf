package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/dyngen/internal/build"
	"github.com/roach88/dyngen/internal/compiler"
	"github.com/roach88/dyngen/internal/emit"
	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/resolve"
	"github.com/roach88/dyngen/internal/store"
	"github.com/roach88/dyngen/internal/testutil"
)

// Generation error kinds, as named by generation_error assertions.
const (
	KindCircularDependency   = "circular_dependency"
	KindUnknownSymbol        = "unknown_symbol"
	KindScopeInconsistency   = "scope_inconsistency"
	KindPiecewiseUnsupported = "piecewise_unsupported"
	KindOther                = "other"
)

func isErrorKind(s string) bool {
	switch s {
	case KindCircularDependency, KindUnknownSymbol, KindScopeInconsistency, KindPiecewiseUnsupported, KindOther:
		return true
	}
	return false
}

// ErrorKind classifies a generation error.
func ErrorKind(err error) string {
	var (
		cycle   *resolve.CircularDependencyError
		unknown *resolve.UnknownSymbolError
		scope   *resolve.ScopeInconsistencyError
	)
	switch {
	case errors.As(err, &cycle):
		return KindCircularDependency
	case errors.As(err, &unknown):
		return KindUnknownSymbol
	case errors.As(err, &scope):
		return KindScopeInconsistency
	case errors.Is(err, emit.ErrPiecewiseUnsupported):
		return KindPiecewiseUnsupported
	}
	return KindOther
}

// Harness is the scenario execution engine.
// It generates with fixed run IDs and a deterministic clock.
type Harness struct {
	store  *store.Store
	driver *build.Driver
	model  *ir.ModelClass
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory build history and a
// temporary build directory that is removed afterwards.
//
// Execution flow:
// 1. Load and compile the model source
// 2. Generate the kernel through the build driver (generate_only)
// 3. Read the recorded emissions back from the history
// 4. Evaluate assertions
//
// A generation failure is part of the result, not an error: it fails the
// scenario unless a generation_error assertion expects it.
func Run(scenario *Scenario) (*Result, error) {
	m, err := compiler.LoadModel(scenario.Model, scenario.Class)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	opts, err := scenario.Options.KernelOptions()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	dir, err := os.MkdirTemp("", "dyngen-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create build directory: %w", err)
	}
	defer os.RemoveAll(dir)

	drv, err := build.New(dir,
		build.WithStore(st),
		build.WithIDs(testutil.NewFixedIDGenerator("run")),
		build.WithClock(testutil.NewDeterministicClock()),
	)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:  st,
		driver: drv,
		model:  m,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	result := NewResult()
	if err := h.generate(ctx, build.Request{Model: m, Mode: build.ModeGenerateOnly, Kernel: opts}, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Model: m}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	if result.GenerationError != nil && !expectsFailure(scenario.Assertions) {
		result.AddError(fmt.Sprintf("generation failed: %v", result.GenerationError))
	}

	return result, nil
}

// generate builds the kernel and fills result. Only driver failures that are
// not generation failures are returned.
func (h *Harness) generate(ctx context.Context, req build.Request, result *Result) error {
	res, err := h.driver.Build(ctx, req)
	if err != nil && (res == nil || res.Build.Status != store.StatusFailed) {
		return fmt.Errorf("build %s: %w", h.model.Name, err)
	}

	result.Build = res.Build
	result.Kernel = res.Kernel
	if err != nil {
		result.GenerationError = err
		result.ErrorKind = ErrorKind(err)
	}

	emissions, err := h.store.ReadEmissions(ctx, res.Build.ID)
	if err != nil {
		return fmt.Errorf("read emissions: %w", err)
	}
	result.Emissions = emissions

	h.logger.Info("scenario generated",
		"model", h.model.Name,
		"build_id", res.Build.ID,
		"status", res.Build.Status,
		"scopes", len(emissions),
	)
	return nil
}

func expectsFailure(assertions []Assertion) bool {
	for _, a := range assertions {
		if a.Type == AssertGenerationError {
			return true
		}
	}
	return false
}
