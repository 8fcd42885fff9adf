package cli

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/spf13/cobra"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Specs    string
}

// ReplayTraceResult holds the replay result for a single trace.
type ReplayTraceResult struct {
	Trace      string `json:"trace"`
	Events     int    `json:"events"`
	Violations int    `json:"violations"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Traces        []ReplayTraceResult `json:"traces"`
	Events        int                 `json:"events"`
	Deterministic bool                `json:"deterministic"`
	Consistent    bool                `json:"consistent"`
	Missing       []string            `json:"missing,omitempty"` // stored but not reproduced
	Extra         []string            `json:"extra,omitempty"`   // reproduced but not stored
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay stored events and verify determinism",
		Long: `Replay the stored events through the monitors of --specs.

The events are replayed twice into fresh in-memory stores. Both runs must
produce the same violations, and those must match the violations stored
for the same monitors. Remediation monitors are started by reviewers and
are not replayed.

Exit codes:
  0 - Replay is deterministic and matches the database
  1 - Divergence detected
  2 - Command error (database not found, invalid specs, etc.)

Examples:
  tracemon replay --db ./tracemon.db --specs ./specs
  tracemon replay --db ./tracemon.db --specs ./specs --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Specs, "specs", "", "CUE spec file or directory (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("specs")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)

	specs, err := compileSpecs(opts.Specs)
	if err != nil {
		return formatter.Abort(ErrCodeLoadFailed, err.Error(),
			WrapExitError(ExitCommandError, "failed to load specs", err))
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var events []ir.Event
	if err := st.ReplayEvents(ctx, func(ev ir.Event) error {
		events = append(events, ev)
		return nil
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	formatter.VerboseLog("Replaying %d event(s) through %d monitor(s)", len(events), len(specs))

	first, err := replayOnce(ctx, specs, events)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	second, err := replayOnce(ctx, specs, events)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	stored, err := storedViolations(ctx, st, specs)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read violations", err)
	}

	result := ReplayResult{
		Traces:        summarize(events, first),
		Events:        len(events),
		Deterministic: slices.Equal(ids(first), ids(second)),
		Missing:       difference(stored, ids(first)),
		Extra:         difference(ids(first), stored),
	}
	result.Consistent = len(result.Missing) == 0 && len(result.Extra) == 0

	ok := result.Deterministic && result.Consistent
	if formatter.JSON() {
		if !ok {
			return formatter.Fail(ExitFailure, "E_DIVERGED", "replay diverged", result)
		}
		return formatter.Success(result)
	}

	printReplay(formatter, result)
	if !ok {
		return NewExitError(ExitFailure, "replay diverged")
	}
	return nil
}

// replayOnce runs events through a fresh engine and returns the violations
// it recorded.
func replayOnce(ctx context.Context, specs []ir.MonitorSpec, events []ir.Event) ([]ir.Violation, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, err
	}
	defer st.Close()

	eng, err := engine.New(st, specs,
		engine.WithClock(engine.NewLogicalClock()),
		engine.WithLogger(zap.NewNop()),
	)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if _, err := eng.Process(ctx, ev.Trace, ev); err != nil {
			return nil, err
		}
	}
	return st.ReadViolations(ctx, "")
}

func storedViolations(ctx context.Context, st *store.Store, specs []ir.MonitorSpec) ([]string, error) {
	var out []string
	for _, spec := range specs {
		vs, err := st.ReadViolations(ctx, spec.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ids(vs)...)
	}
	slices.Sort(out)
	return out, nil
}

func ids(vs []ir.Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.ID)
	}
	slices.Sort(out)
	return out
}

// difference returns the sorted ids of a that are not in b.
func difference(a, b []string) []string {
	var out []string
	for _, id := range a {
		if _, found := slices.BinarySearch(b, id); !found {
			out = append(out, id)
		}
	}
	return out
}

func summarize(events []ir.Event, vs []ir.Violation) []ReplayTraceResult {
	var out []ReplayTraceResult
	index := map[string]int{}
	for _, ev := range events {
		i, ok := index[ev.Trace]
		if !ok {
			i = len(out)
			index[ev.Trace] = i
			out = append(out, ReplayTraceResult{Trace: ev.Trace})
		}
		out[i].Events++
	}
	for _, v := range vs {
		if i, ok := index[v.Trace]; ok {
			out[i].Violations++
		}
	}
	return out
}

func printReplay(f *OutputFormatter, r ReplayResult) {
	w := f.Writer
	if r.Events == 0 {
		fmt.Fprintln(w, "No events found in database.")
	}
	for _, t := range r.Traces {
		fmt.Fprintf(w, "%s: %d event(s), %d violation(s)\n", t.Trace, t.Events, t.Violations)
	}
	if r.Deterministic {
		fmt.Fprintln(w, "✓ Replay is deterministic")
	} else {
		fmt.Fprintln(w, "✗ Replay produced different violations on a second run")
	}
	if r.Consistent {
		fmt.Fprintln(w, "✓ Violations match the database")
		return
	}
	for _, id := range r.Missing {
		fmt.Fprintf(w, "✗ missing: %s\n", id)
	}
	for _, id := range r.Extra {
		fmt.Fprintf(w, "✗ unexpected: %s\n", id)
	}
}
