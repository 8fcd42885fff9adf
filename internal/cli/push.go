package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/remote"
	"github.com/roach88/tracemon/internal/trace"
)

// PushOptions holds flags for the push command.
type PushOptions struct {
	*RootOptions
	Server  string
	Trace   string
	Timeout time.Duration
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push <event>",
		Short: "Push an event to a running service",
		Long: `Append an event to a trace of a running service and print the
verdicts of the monitors watching that trace.

Exit codes:
  0 - Event accepted
  1 - Event blocked by a realtime monitor
  2 - Command error (invalid event, server unreachable, etc.)

Examples:
  tracemon push "{login('admin')}"
  tracemon push --trace view "{render('home') | x=3}"
  tracemon push --server http://10.0.0.2:8700 --format json "{logout('admin')}"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "http://127.0.0.1:8700", "base URL of the service")
	cmd.Flags().StringVar(&opts.Trace, "trace", ir.DefaultTrace, "trace to append to")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", remote.DefaultTimeout, "request timeout")

	return cmd
}

func runPush(opts *PushOptions, event string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	// Reject malformed events before they reach the network.
	if _, err := trace.ParseEvent(event); err != nil {
		return formatter.Abort(ErrCodeGeneric, err.Error(),
			WrapExitError(ExitCommandError, "invalid event", err))
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	res, err := remote.NewClient("server", opts.Server).PushEvent(ctx, opts.Trace, event)
	if err != nil {
		return formatter.Abort(ErrCodeGeneric, err.Error(),
			WrapExitError(ExitCommandError, "push failed", err))
	}

	if formatter.JSON() {
		if res.Blocked {
			return formatter.Fail(ExitFailure, "E_BLOCKED", "event blocked by a realtime monitor", res)
		}
		return formatter.Success(res)
	}

	printResult(formatter, res)
	if res.Blocked {
		return NewExitError(ExitFailure, "event blocked by a realtime monitor")
	}
	return nil
}

func printResult(f *OutputFormatter, res engine.Result) {
	w := f.Writer
	fmt.Fprintf(w, "%s step %d\n", res.Trace, res.Step)
	ids := make([]string, 0, len(res.Verdicts))
	for id := range res.Verdicts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %s %s\n", res.Verdicts[id].Symbol(), id)
	}
	for _, v := range res.Violations {
		fmt.Fprintf(w, "✗ violation of %s (%s)\n", v.MonitorID, v.ID)
	}
	if res.Blocked {
		fmt.Fprintln(w, "✗ blocked")
	}
}
