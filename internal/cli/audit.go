package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/violation"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Database  string
	Violation string
	Monitor   string // resolved from the violation when empty
	Verdict   string
	Comment   string
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Review a recorded violation",
		Long: `Mark an UNREAD violation as LEGITIMATE or ILLEGITIMATE and record
the reviewer comment. A reviewed violation cannot be reviewed again.

Exit codes:
  0 - Review recorded
  1 - Transition not allowed (already reviewed, or invalid verdict)
  2 - Command error (unknown violation, database missing, etc.)

Examples:
  tracemon audit --db ./tracemon.db --violation c9cdc0e1... --verdict ILLEGITIMATE --comment "intrusion"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Violation, "violation", "", "violation id (required)")
	cmd.Flags().StringVar(&opts.Monitor, "monitor", "", "monitor that recorded the violation")
	cmd.Flags().StringVar(&opts.Verdict, "verdict", "", "LEGITIMATE or ILLEGITIMATE (required)")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "reviewer comment")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("violation")
	_ = cmd.MarkFlagRequired("verdict")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)

	verdict, err := violation.ParseStatus(strings.ToUpper(strings.TrimSpace(opts.Verdict)))
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	monitorID := opts.Monitor
	if monitorID == "" {
		v, err := st.ReadViolation(ctx, opts.Violation)
		if errors.Is(err, sql.ErrNoRows) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound,
				fmt.Sprintf("unknown violation: %s", opts.Violation), nil)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read violation", err)
		}
		monitorID = v.MonitorID
	}

	logger, err := opts.newLogger(cmd.ErrOrStderr(), "warn")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create logger", err)
	}
	defer func() { _ = logger.Sync() }()

	rec := violation.NewRecorder(st, violation.WithLogger(logger))
	a, err := rec.Audit(ctx, monitorID, opts.Violation, opts.Comment, verdict)
	switch {
	case errors.Is(err, violation.ErrUnknownViolation):
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	case errors.Is(err, violation.ErrInvalidTransition):
		return formatter.Fail(ExitFailure, "E_TRANSITION", err.Error(), nil)
	case err != nil:
		return WrapExitError(ExitCommandError, "audit failed", err)
	}

	if formatter.JSON() {
		return formatter.Success(a)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s marked %s\n", a.ViolationID, a.Status)
	return nil
}
