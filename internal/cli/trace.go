package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Trace    string // empty lists every trace
	From     int64
	To       int64
}

// TraceResult holds the events of one trace.
type TraceResult struct {
	Trace  string           `json:"trace"`
	State  store.TraceState `json:"state"`
	Events []ir.Event       `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print stored events",
		Long: `Print the stored events of a trace in step order, or a summary of
every trace when --trace is not given.

Examples:
  tracemon trace --db ./tracemon.db
  tracemon trace --db ./tracemon.db --trace http --from 10 --to 20
  tracemon trace --db ./tracemon.db --trace view --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Trace, "trace", "", "trace to print")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "first step (inclusive)")
	cmd.Flags().Int64Var(&opts.To, "to", -1, "last step (exclusive), -1 for the end")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Trace == "" {
		return listTraces(ctx, st, formatter)
	}

	state, err := st.GetTraceState(ctx, opts.Trace)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace state", err)
	}
	events, err := st.ReadEvents(ctx, opts.Trace, opts.From, opts.To)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	if formatter.JSON() {
		return formatter.Success(TraceResult{Trace: opts.Trace, State: state, Events: events})
	}
	w := formatter.Writer
	if len(events) == 0 {
		fmt.Fprintf(w, "No events found for trace: %s\n", opts.Trace)
		return nil
	}
	fmt.Fprintf(w, "Trace %s: %d event(s), %d violation(s)\n\n", opts.Trace, state.Events, state.Violations)
	for _, ev := range events {
		fmt.Fprintf(w, "  [%d] %s\n", ev.Step, ev.String())
	}
	return nil
}

func listTraces(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	names, err := st.TraceNames(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list traces", err)
	}
	states := make([]store.TraceState, 0, len(names))
	for _, name := range names {
		state, err := st.GetTraceState(ctx, name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read trace state", err)
		}
		states = append(states, state)
	}

	if formatter.JSON() {
		return formatter.Success(states)
	}
	if len(states) == 0 {
		fmt.Fprintln(formatter.Writer, "No traces found in database.")
		return nil
	}
	for _, s := range states {
		fmt.Fprintf(formatter.Writer, "%s: %d event(s), %d violation(s)\n", s.Trace, s.Events, s.Violations)
	}
	return nil
}

// openExisting opens a database that must already exist; store.Open
// would silently create an empty one.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
