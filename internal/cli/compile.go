package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/compiler"
	"github.com/roach88/tracemon/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled monitors.
type CompilationResult struct {
	Monitors []ir.MonitorSpec `json:"monitors"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs>",
		Short: "Compile CUE monitor definitions",
		Long: `Compile the CUE monitor definitions of a file or directory.

Every monitor is compiled and validated; formulas must parse and enum
fields must hold known values. The compiled monitors are printed, or
written as JSON with --output.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, specs string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := LoadSpecs(specs, LoadModeCollectAll)
	if loadResult == nil {
		code, message := parseCompileError(loadErrors[0])
		return formatter.Abort(code, message,
			NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message)))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specs)

	errs := loadErrors
	for _, verr := range compiler.ValidateAll(loadResult.Monitors) {
		errs = append(errs, verr)
	}
	if len(errs) > 0 {
		return outputCompileErrors(formatter, errs)
	}

	result := &CompilationResult{Monitors: loadResult.Monitors}
	if opts.Output != "" {
		if err := writeSpecsToFile(result, opts.Output); err != nil {
			return formatter.Abort(ErrCodeWriteFailed, err.Error(),
				WrapExitError(ExitCommandError, "writing output file", err))
		}
	}
	return outputCompileSuccess(formatter, result, opts.Output)
}

func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d monitor(s)\n\n", len(result.Monitors))
	for _, m := range result.Monitors {
		trace := m.Trace
		if trace == "" {
			trace = ir.DefaultTrace
		}
		fmt.Fprintf(w, "  %s [%s]: %s\n", m.ID, trace, m.Formula)
		if m.ViolationFormula != "" {
			fmt.Fprintf(w, "    remediation: %s\n", m.ViolationFormula)
		}
	}
	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote monitors to %s\n", outputFile)
	}
	return nil
}

func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	message := fmt.Sprintf("compilation failed with %d error(s)", len(errs))
	if formatter.JSON() {
		details := make([]CLIError, len(errs))
		for i, err := range errs {
			code, msg := parseCompileError(err)
			details[i] = CLIError{Code: code, Message: msg}
		}
		return formatter.Fail(ExitCommandError, details[0].Code, message, details)
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, msg := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, msg)
	}
	return NewExitError(ExitCommandError, message)
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return verr.Code, verr.Field + ": " + verr.Message
	}
	return ErrCodeGeneric, err.Error()
}

func writeSpecsToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling monitors: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
