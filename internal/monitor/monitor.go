// Package monitor runs a formula against a trace by progression and turns
// verdicts into violation, liveness and knowledge-vector updates.
//
// A Monitor is not safe for concurrent use. The engine owns every monitor
// from its single writer goroutine; offline checks give each goroutine its
// own monitor over a shared read-only trace.
package monitor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/tracemon/internal/formula"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/trace"
)

// ErrNoViolationFormula is returned by Remediation when the monitor
// declares no violation formula.
var ErrNoViolationFormula = errors.New("monitor has no violation formula")

// Observation is the outcome of one event for one monitor.
type Observation struct {
	MonitorID string
	Event     ir.Event
	Verdict   ir.Verdict

	// Violated is set when this event must be recorded as a violation.
	// A non-G monitor is violated at most once.
	Violated bool
}

// Monitor evaluates one formula over one trace.
type Monitor struct {
	spec      ir.MonitorSpec
	original  formula.Formula
	residual  formula.Formula
	valuation formula.Valuation
	kv        *Knowledge
	always    bool // formula is G(...) as written, before simplification

	verdict    ir.Verdict
	counter    int64 // index of the next trace event to consume
	enabled    bool
	violations int
	liveness   int64
	err        error
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithKnowledge attaches the knowledge vector used to resolve @agent(...)
// sub-formulas and to publish the verdict of non-LOCAL monitors.
func WithKnowledge(kv *Knowledge) Option {
	return func(m *Monitor) {
		m.kv = kv
	}
}

// WithStart makes the monitor skip the trace events before index start.
func WithStart(start int64) Option {
	return func(m *Monitor) {
		m.counter = start
	}
}

// New parses spec.Formula and builds a monitor in its initial state.
// A formula that simplifies to a literal is decided immediately.
func New(spec ir.MonitorSpec, opts ...Option) (*Monitor, error) {
	f, err := formula.Parse(spec.Formula)
	if err != nil {
		return nil, fmt.Errorf("monitor %s: %w", spec.ID, err)
	}
	if spec.ViolationFormula != "" {
		if _, err := formula.Parse(spec.ViolationFormula); err != nil {
			return nil, fmt.Errorf("monitor %s violation formula: %w", spec.ID, err)
		}
	}
	always := f.Kind() == formula.KindAlways
	f, err = formula.BindFIDs(formula.Simplify(f), spec.ID)
	if err != nil {
		return nil, fmt.Errorf("monitor %s: %w", spec.ID, err)
	}

	if spec.Trace == "" {
		spec.Trace = ir.DefaultTrace
	}
	if spec.Kind == "" {
		spec.Kind = ir.KindGeneric
	}
	if spec.Control == "" {
		spec.Control = ir.ControlPosteriori
	}
	if spec.Location == "" {
		spec.Location = ir.LocationLocal
	}

	m := &Monitor{
		spec:      spec,
		original:  f,
		residual:  f,
		valuation: formula.Valuation(spec.Valuation),
		always:    always,
		verdict:   formula.Verdict(f),
		enabled:   true,
		liveness:  spec.Liveness,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.kv != nil {
		for _, at := range formula.Ats(f) {
			m.kv.Add(ir.KVEntry{FID: at.FID, Agent: spec.ID, Value: ir.Unknown})
		}
	}
	return m, nil
}

// ID returns the monitor id.
func (m *Monitor) ID() string { return m.spec.ID }

// Spec returns the monitor definition with defaults applied.
func (m *Monitor) Spec() ir.MonitorSpec { return m.spec }

// Formula returns the simplified formula the monitor restarts from.
func (m *Monitor) Formula() formula.Formula { return m.original }

// Residual returns what remains to be proven about the rest of the trace.
func (m *Monitor) Residual() formula.Formula { return m.residual }

// Verdict returns the current verdict without evaluating anything.
func (m *Monitor) Verdict() ir.Verdict { return m.verdict }

// Counter returns the index of the next trace event the monitor consumes.
func (m *Monitor) Counter() int64 { return m.counter }

// Enabled reports whether Advance still consumes events.
func (m *Monitor) Enabled() bool { return m.enabled }

// Err returns the evaluation error that disabled the monitor, if any.
func (m *Monitor) Err() error { return m.err }

// Violations returns how many violations the monitor has emitted.
func (m *Monitor) Violations() int { return m.violations }

// Remotes returns the @agent(...) sub-formulas that other agents evaluate.
func (m *Monitor) Remotes() []formula.At { return formula.Ats(m.original) }

// Step progresses the residual formula by ev. A decided verdict is
// absorbing until Reset: further events only move the counter.
func (m *Monitor) Step(ev ir.Event) (ir.Verdict, error) {
	m.counter++
	if m.verdict.Decided() {
		return m.verdict, nil
	}
	var kb formula.Knowledge
	if m.kv != nil {
		kb = m.kv
	}
	next, err := formula.Progress(m.residual, ev, m.valuation, kb)
	if err != nil {
		return m.verdict, fmt.Errorf("monitor %s step %d: %w", m.spec.ID, ev.Step, err)
	}
	m.residual = next
	m.verdict = formula.Verdict(next)
	return m.verdict, nil
}

// Observe steps the monitor by ev and applies the verdict policy:
//
//   - on false a violation is emitted if the monitor has none yet or its
//     formula is G(...); a G(...) monitor then resets and keeps watching
//   - while unknown, a G(...) monitor with a liveness bound counts bad
//     prefixes (residual is a conjunction) and restores the bound on a
//     good prefix (residual is the G(...) itself)
//   - a remediation monitor is disabled once it is satisfied
//   - a non-LOCAL monitor publishes its verdict in the knowledge vector
//
// An evaluation error disables the monitor.
func (m *Monitor) Observe(ev ir.Event) (Observation, error) {
	v, err := m.Step(ev)
	if err != nil {
		m.err = err
		m.enabled = false
		return Observation{MonitorID: m.spec.ID, Event: ev, Verdict: v}, err
	}
	obs := Observation{MonitorID: m.spec.ID, Event: ev, Verdict: v}
	always := m.always

	switch v {
	case ir.False:
		if m.violations == 0 || always {
			m.violations++
			obs.Violated = true
		}
		if always {
			m.Reset()
		}
	case ir.Unknown:
		if m.spec.Liveness > 0 && always {
			switch m.residual.Kind() {
			case formula.KindAnd:
				m.liveness--
			case formula.KindAlways:
				m.liveness = m.spec.Liveness
			}
		}
	case ir.True:
		if m.spec.Kind == ir.KindRemediation {
			m.enabled = false
		}
	}

	if m.spec.Location != ir.LocationLocal && m.kv != nil {
		agent, _, _ := strings.Cut(m.spec.ID, "@")
		m.kv.Update(ir.KVEntry{
			FID:       m.spec.ID,
			Agent:     strings.TrimSpace(agent),
			Value:     v,
			Timestamp: m.counter,
		})
	}
	return obs, nil
}

// Advance observes every event of tr the monitor has not consumed yet.
// It stops at the first evaluation error.
func (m *Monitor) Advance(tr *trace.Trace) ([]Observation, error) {
	var out []Observation
	for m.enabled {
		ev, ok := tr.At(int(m.counter))
		if !ok {
			break
		}
		obs, err := m.Observe(ev)
		if err != nil {
			return out, err
		}
		out = append(out, obs)
	}
	return out, nil
}

// Reset restores the original formula and an unknown verdict. The counter
// is kept so the monitor resumes after the last consumed event. A monitor
// disabled by an error or by remediation is enabled again.
func (m *Monitor) Reset() {
	m.residual = m.original
	m.verdict = ir.Unknown
	if formula.IsLiteral(m.original) {
		m.verdict = formula.Verdict(m.original)
	}
	m.enabled = true
	m.err = nil
}

// LivenessExpired reports by how many bad steps the liveness bound is
// overdue, or 0 when it is not.
func (m *Monitor) LivenessExpired() int64 {
	if m.spec.Liveness <= 0 || m.liveness > 0 {
		return 0
	}
	return -m.liveness
}

// Remediation builds the monitor that watches the violation formula of m
// on the same trace, starting after the violating event.
func (m *Monitor) Remediation(v ir.Violation, opts ...Option) (*Monitor, error) {
	if m.spec.ViolationFormula == "" {
		return nil, fmt.Errorf("monitor %s: %w", m.spec.ID, ErrNoViolationFormula)
	}
	spec := ir.MonitorSpec{
		ID:          RemediationID(v.MonitorID, v.Step),
		Description: "Remediation monitor for monitor " + m.spec.ID,
		Trace:       m.spec.Trace,
		Kind:        ir.KindRemediation,
		Formula:     m.spec.ViolationFormula,
		Control:     ir.ControlPosteriori,
		Location:    m.spec.Location,
		Valuation:   m.spec.Valuation.Clone(),
	}
	opts = append([]Option{WithKnowledge(m.kv), WithStart(v.Step + 1)}, opts...)
	return New(spec, opts...)
}

// RemediationID names the remediation monitor of a violation.
func RemediationID(monitorID string, step int64) string {
	return monitorID + "_violation_" + strconv.FormatInt(step, 10)
}

// Status returns a snapshot for display.
func (m *Monitor) Status() ir.MonitorStatus {
	st := ir.MonitorStatus{
		ID:              m.spec.ID,
		Trace:           m.spec.Trace,
		Kind:            m.spec.Kind,
		Control:         m.spec.Control,
		Formula:         m.original.String(),
		Residual:        m.residual.String(),
		Verdict:         m.verdict,
		Enabled:         m.enabled,
		Step:            m.counter,
		Violations:      m.violations,
		LivenessExpired: m.LivenessExpired(),
	}
	if m.err != nil {
		st.Error = m.err.Error()
	}
	return st
}
