package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dyngen/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Models []string                   `json:"models,omitempty"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model.cue>",
		Short: "Validate model classes without generating",
		Long: `Compile every model class in a CUE source and check the structural
rules generation relies on: unique and legal names, known references,
known regimes and acyclic aliases. No files are written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	value, err := compiler.LoadValue(path)
	if err != nil {
		loadErr := convertCompileError(err)
		formatter.Error(loadErr.Code, loadErr.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
	}

	models, compileErrs := compiler.CompileModels(value)

	var errs []compiler.ValidationError
	for _, err := range compileErrs {
		errs = append(errs, toValidationError(err))
	}
	names := make([]string, 0, len(models))
	for _, m := range models {
		formatter.VerboseLog("Validating model: %s", m.Name)
		names = append(names, m.Name)
		errs = append(errs, compiler.Validate(m)...)
	}

	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Models: names})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d model(s) valid\n", len(names))
	return nil
}

func toValidationError(err error) compiler.ValidationError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		ve := compiler.ValidationError{
			Field:   compileErr.Field,
			Message: compileErr.Message,
			Code:    MapFieldToErrorCode(compileErr.Field),
		}
		if compileErr.Pos.IsValid() {
			ve.Line = compileErr.Pos.Line()
		}
		return ve
	}
	code := ErrCodeGeneric
	if errors.Is(err, compiler.ErrNoModels) {
		code = ErrCodeNoModels
	}
	return compiler.ValidationError{Field: "model", Message: err.Error(), Code: code}
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return exitErr
}
