package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/tracemon/internal/compiler"
	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/store"
	"github.com/roach88/tracemon/internal/testutil"
	"github.com/roach88/tracemon/internal/trace"
	"github.com/roach88/tracemon/internal/violation"
)

// Harness runs one scenario against a real engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	logger *zap.Logger
}

// Run executes a scenario with logging disabled.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, zap.NewNop())
}

// RunWithLogger executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The engine is driven
// synchronously from this goroutine; no Run loop is started.
//
// Failed expectations are reported in Result.Errors. The returned error
// is reserved for scenarios that cannot run at all: bad monitor
// definitions, unparsable events, storage failures.
func RunWithLogger(scenario *Scenario, logger *zap.Logger) (*Result, error) {
	specs, err := scenarioSpecs(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	eng, err := engine.New(st, specs,
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithIDGenerator(testutil.NewSequentialIDs("audit")),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{store: st, engine: eng, logger: logger}
	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		rec, err := h.executeStep(ctx, i, step, result)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Steps = append(result.Steps, rec)
	}

	result.Monitors = eng.Monitors()
	result.Violations, err = st.ReadViolations(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("read violations: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// scenarioSpecs compiles the CUE spec files and inline monitors of a
// scenario and validates them together.
func scenarioSpecs(scenario *Scenario) ([]ir.MonitorSpec, error) {
	var specs []ir.MonitorSpec
	for _, path := range scenario.Specs {
		v, err := compiler.LoadPath(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		compiled, errs := compiler.CompileMonitors(v, true)
		if len(errs) > 0 {
			return nil, fmt.Errorf("compile %s: %w", path, errors.Join(errs...))
		}
		specs = append(specs, compiled...)
	}
	for _, def := range scenario.Monitors {
		spec, err := def.Spec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	if verrs := compiler.ValidateAll(specs); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, e := range verrs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid monitors: %s", strings.Join(msgs, "; "))
	}
	return specs, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) (StepRecord, error) {
	switch {
	case step.Event != "":
		return h.executeEvent(ctx, index, step, result)
	case step.Audit != nil:
		rec := StepRecord{Index: index, Kind: "audit", Monitor: step.Audit.Monitor, Step: step.Audit.Step}
		a, err := h.audit(ctx, *step.Audit)
		if err == nil {
			rec.Detail = string(a.Status)
		}
		checkStepError(index, step.Expect, err, &rec, result)
		return rec, nil
	case step.Remediate != nil:
		rec := StepRecord{Index: index, Kind: "remediate", Monitor: step.Remediate.Monitor, Step: step.Remediate.Step}
		st, err := h.remediate(ctx, *step.Remediate)
		if err == nil {
			rec.Detail = st.ID
		}
		checkStepError(index, step.Expect, err, &rec, result)
		return rec, nil
	default:
		rec := StepRecord{Index: index, Kind: "reset", Monitor: step.Reset}
		st, err := h.engine.ResetMonitor(step.Reset)
		if err == nil {
			rec.Detail = st.Residual
		}
		checkStepError(index, step.Expect, err, &rec, result)
		return rec, nil
	}
}

func (h *Harness) executeEvent(ctx context.Context, index int, step Step, result *Result) (StepRecord, error) {
	traceName := step.Trace
	if traceName == "" {
		traceName = ir.DefaultTrace
	}
	ev, err := trace.ParseEvent(step.Event)
	if err != nil {
		return StepRecord{}, err
	}

	res, err := h.engine.Process(ctx, traceName, ev)
	if err != nil {
		return StepRecord{}, err
	}

	rec := StepRecord{
		Index:      index,
		Kind:       "event",
		Trace:      traceName,
		Step:       res.Step,
		Event:      ev.String(),
		Verdicts:   res.Verdicts,
		Violations: make([]string, 0, len(res.Violations)),
		Blocked:    res.Blocked,
	}
	for _, v := range res.Violations {
		rec.Violations = append(rec.Violations, v.MonitorID)
	}
	h.logger.Debug("scenario event",
		zap.Int("step", index),
		zap.String("trace", traceName),
		zap.String("event", rec.Event))

	if step.Expect != nil {
		for _, msg := range checkEventExpect(index, step.Expect, rec) {
			result.AddError(msg)
		}
	}
	return rec, nil
}

// checkStepError compares the outcome of an audit, remediate or reset step
// with its expect clause. Unexpected failures are expectation errors, not
// run errors, so later steps still run.
func checkStepError(index int, expect *ExpectClause, err error, rec *StepRecord, result *Result) {
	want := ""
	if expect != nil {
		want = expect.Error
	}
	switch {
	case err == nil && want != "":
		result.AddError(fmt.Sprintf("steps[%d]: expected error containing %q, step succeeded", index, want))
	case err != nil && want == "":
		result.AddError(fmt.Sprintf("steps[%d]: %v", index, err))
		rec.Detail = "error: " + err.Error()
	case err != nil && !strings.Contains(err.Error(), want):
		result.AddError(fmt.Sprintf("steps[%d]: error %q does not contain %q", index, err.Error(), want))
		rec.Detail = "error: " + err.Error()
	case err != nil:
		rec.Detail = "error: " + want
	}
}

func checkEventExpect(index int, e *ExpectClause, rec StepRecord) []string {
	var errs []string
	ids := make([]string, 0, len(e.Verdicts))
	for id := range e.Verdicts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		want, err := ir.ParseVerdict(e.Verdicts[id])
		if err != nil {
			errs = append(errs, fmt.Sprintf("steps[%d]: monitor %s: %v", index, id, err))
			continue
		}
		got, ok := rec.Verdicts[id]
		if !ok {
			errs = append(errs, fmt.Sprintf("steps[%d]: monitor %s did not observe the event", index, id))
			continue
		}
		if got != want {
			errs = append(errs, fmt.Sprintf("steps[%d]: monitor %s verdict = %s, want %s", index, id, got, want))
		}
	}
	if e.Blocked != nil && *e.Blocked != rec.Blocked {
		errs = append(errs, fmt.Sprintf("steps[%d]: blocked = %v, want %v", index, rec.Blocked, *e.Blocked))
	}
	if e.Violations != nil {
		want := slices.Clone(*e.Violations)
		got := slices.Clone(rec.Violations)
		slices.Sort(want)
		slices.Sort(got)
		if !slices.Equal(want, got) {
			errs = append(errs, fmt.Sprintf("steps[%d]: violations = %v, want %v", index, got, want))
		}
	}
	return errs
}

// lookup finds the violation a step refers to.
func (h *Harness) lookup(ctx context.Context, ref ViolationRef) (ir.Violation, error) {
	all, err := h.engine.Violations(ctx, ref.Monitor)
	if err != nil {
		return ir.Violation{}, err
	}
	for _, v := range all {
		if v.Step == ref.Step {
			return v, nil
		}
	}
	return ir.Violation{}, fmt.Errorf("no violation of %s at step %d", ref.Monitor, ref.Step)
}

func (h *Harness) audit(ctx context.Context, a AuditStep) (ir.Audit, error) {
	verdict, err := violation.ParseStatus(a.Verdict)
	if err != nil {
		return ir.Audit{}, err
	}
	v, err := h.lookup(ctx, a.ViolationRef)
	if err != nil {
		return ir.Audit{}, err
	}
	return h.engine.Audit(ctx, a.Monitor, v.ID, a.Comment, verdict)
}

func (h *Harness) remediate(ctx context.Context, ref ViolationRef) (ir.MonitorStatus, error) {
	v, err := h.lookup(ctx, ref)
	if err != nil {
		return ir.MonitorStatus{}, err
	}
	return h.engine.TriggerRemediation(ctx, ref.Monitor, v.ID)
}
