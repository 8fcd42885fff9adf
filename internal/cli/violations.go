package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/store"
	"github.com/roach88/tracemon/internal/violation"
)

// ViolationsOptions holds flags for the violations command.
type ViolationsOptions struct {
	*RootOptions
	Database string
	Monitor  string
	Trace    string
	Status   string
}

// NewViolationsCommand creates the violations command.
func NewViolationsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ViolationsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "violations",
		Short: "List recorded violations",
		Long: `List recorded violations with their review status.

Examples:
  tracemon violations --db ./tracemon.db
  tracemon violations --db ./tracemon.db --monitor no-admin --format json
  tracemon violations --db ./tracemon.db --trace http --status UNREAD`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runViolations(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Monitor, "monitor", "", "only list violations of this monitor")
	cmd.Flags().StringVar(&opts.Trace, "trace", "", "only list violations on this trace")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only list violations in this review status")

	return cmd
}

func runViolations(opts *ViolationsOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	filter := store.ViolationFilter{MonitorID: opts.Monitor, Trace: opts.Trace}
	if opts.Status != "" {
		status, err := violation.ParseStatus(strings.ToUpper(opts.Status))
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		filter.Status = status
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	vs, err := st.FindViolations(context.Background(), filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read violations", err)
	}

	if formatter.JSON() {
		return formatter.Success(vs)
	}
	if len(vs) == 0 {
		fmt.Fprintln(formatter.Writer, "No violations recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMONITOR\tTRACE\tSTEP\tSTATUS\tEVENT")
	for _, v := range vs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", v.ID, v.MonitorID, v.Trace, v.Step, v.Status, v.Event)
	}
	return tw.Flush()
}
