package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tracemon/internal/formula"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/trace"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Formulas []string
	Trace    string
	Vars     []string // name=value
}

// CheckResult is the verdict of one formula over the trace.
type CheckResult struct {
	Formula  string     `json:"formula"`
	Verdict  ir.Verdict `json:"verdict"`
	Residual string     `json:"residual"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate formulas over a trace",
		Long: `Evaluate one or more formulas over a finite trace without a service
or database and print the three-valued verdict of each.

Events are separated by ";" or newlines.

Exit codes:
  0 - No formula is false
  1 - At least one formula is false
  2 - Command error (invalid formula, trace or variable)

Examples:
  tracemon check --formula "G(!login('admin'))" --trace "{login('bob')}; {login('admin')}"
  tracemon check --formula "G(x <= limit)" --var limit=5 --trace "{x=3}; {x=9}"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Formulas, "formula", nil, "formula to evaluate (repeatable, required)")
	cmd.Flags().StringVar(&opts.Trace, "trace", "", "trace text")
	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "valuation entry name=value (repeatable)")
	_ = cmd.MarkFlagRequired("formula")

	return cmd
}

func runCheck(ctx context.Context, opts *CheckOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	val, err := parseVars(opts.Vars)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	events, err := trace.ParseTrace(opts.Trace)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	results := make([]CheckResult, len(opts.Formulas))
	g, ctx := errgroup.WithContext(ctx)
	for i, text := range opts.Formulas {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := formula.Parse(text)
			if err != nil {
				return fmt.Errorf("formula %q: %w", text, err)
			}
			residual, err := formula.Evaluate(f, events, val, nil)
			if err != nil {
				return fmt.Errorf("formula %q: %w", text, err)
			}
			results[i] = CheckResult{Formula: text, Verdict: formula.Verdict(residual), Residual: residual.String()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	failed := false
	for _, r := range results {
		if r.Verdict == ir.False {
			failed = true
		}
	}

	if formatter.JSON() {
		if failed {
			return formatter.Fail(ExitFailure, "E_VIOLATED", "formula violated", results)
		}
		return formatter.Success(results)
	}

	for _, r := range results {
		fmt.Fprintf(formatter.Writer, "%s %s\n", r.Verdict.Symbol(), r.Formula)
		if r.Verdict == ir.Unknown && formatter.Verbose {
			fmt.Fprintf(formatter.Writer, "    residual: %s\n", r.Residual)
		}
	}
	if failed {
		return NewExitError(ExitFailure, "formula violated")
	}
	return nil
}

func parseVars(vars []string) (formula.Valuation, error) {
	val := formula.Valuation{}
	for _, kv := range vars {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable %q: want name=value", kv)
		}
		val[name] = ir.ParseScalar(strings.TrimSpace(value))
	}
	return val, nil
}
