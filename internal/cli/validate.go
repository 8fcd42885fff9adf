package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Monitors int                        `json:"monitors"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs>",
		Short: "Validate monitor definitions",
		Long: `Validate the CUE monitor definitions of a file or directory.

Every error is reported, not only the first: CUE structure, formula
syntax, kinds, control types, locations and duplicate ids.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specs string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := LoadSpecs(specs, LoadModeCollectAll)
	if loadResult == nil {
		code, message := parseCompileError(loadErrors[0])
		return formatter.Abort(code, message,
			NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message)))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specs)

	verrs := ValidateLoaded(loadResult, loadErrors)
	for _, m := range loadResult.Monitors {
		formatter.VerboseLog("Validated monitor: %s", m.ID)
	}

	if len(verrs) > 0 {
		return outputValidationErrors(formatter, len(loadResult.Monitors), verrs)
	}
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Monitors: len(loadResult.Monitors)})
	}
	fmt.Fprintf(formatter.Writer, "✓ All %d monitor(s) valid\n", len(loadResult.Monitors))
	return nil
}

// ValidateLoaded merges compile errors of a load with the validation
// errors of the monitors that did compile.
func ValidateLoaded(result *LoadResult, loadErrors []error) []compiler.ValidationError {
	var out []compiler.ValidationError
	for _, err := range loadErrors {
		verr := compiler.ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeGeneric}
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			verr.Message = loadErr.Message
			verr.Code = loadErr.Code
			if loadErr.Pos.IsValid() {
				verr.Line = loadErr.Pos.Line()
			}
		}
		out = append(out, verr)
	}
	return append(out, compiler.ValidateAll(result.Monitors)...)
}

func outputValidationErrors(formatter *OutputFormatter, monitors int, errs []compiler.ValidationError) error {
	message := fmt.Sprintf("validation failed with %d error(s)", len(errs))
	if formatter.JSON() {
		return formatter.Fail(ExitFailure, errs[0].Code, message,
			ValidationResult{Valid: false, Monitors: monitors, Errors: errs})
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return NewExitError(ExitFailure, message)
}
