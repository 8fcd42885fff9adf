package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/tracemon/internal/formula"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/monitor"
	"github.com/roach88/tracemon/internal/observability"
	"github.com/roach88/tracemon/internal/store"
	"github.com/roach88/tracemon/internal/trace"
	"github.com/roach88/tracemon/internal/violation"
)

// DefaultQueueSize bounds the request backlog when no option overrides it.
const DefaultQueueSize = 1024

// Result is the outcome of processing one event.
type Result struct {
	Trace   string `json:"trace"`
	Step    int64  `json:"step"`
	EventID string `json:"event_id"`

	// Verdicts holds the verdict of every monitor of the trace after the
	// event, keyed by monitor id.
	Verdicts map[string]ir.Verdict `json:"verdicts"`

	// Violations lists the violations this event caused, including ones
	// that were already recorded before a restart.
	Violations []ir.Violation `json:"violations"`

	// Blocked is set when a realtime monitor was violated by this event.
	Blocked bool `json:"blocked"`
}

// RemoteFormula is a sub-formula another agent asks this process to
// evaluate on its behalf.
type RemoteFormula struct {
	FID       string       `json:"formula_id"`
	Formula   string       `json:"formula"`
	Target    string       `json:"target"`
	Knowledge []ir.KVEntry `json:"kv,omitempty"`
}

// Engine is the single-writer monitoring engine.
//
// Thread-safety model:
//   - Submit(), Do(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - every other method: call from the Run goroutine (through Do), or
//     before Run starts
//   - Knowledge(): the returned vector is safe for concurrent reads
type Engine struct {
	store    *store.Store
	traces   *trace.Set
	monitors *monitor.Registry
	kv       *monitor.Knowledge
	recorder *violation.Recorder
	queue    *requestQueue

	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
	metrics   *observability.Metrics
	sinks     []violation.Sink
	queueSize int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithClock sets the clock used to stamp events and violations.
// Default: SystemClock.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the audit id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSinks adds violation export sinks.
func WithSinks(sinks ...violation.Sink) EngineOption {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sinks...)
	}
}

// WithQueueSize bounds the request backlog. 0 means unbounded.
// Default: DefaultQueueSize.
func WithQueueSize(n int) EngineOption {
	return func(e *Engine) {
		e.queueSize = n
	}
}

// New creates an Engine over the given store and registers one monitor per
// spec, in order.
func New(s *store.Store, specs []ir.MonitorSpec, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		store:     s,
		traces:    trace.NewSet(),
		monitors:  monitor.NewRegistry(),
		kv:        monitor.NewKnowledge(),
		clock:     SystemClock{},
		ids:       UUIDv7Generator{},
		logger:    zap.NewNop(),
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.queue = newRequestQueue(e.queueSize)
	e.recorder = violation.NewRecorder(s,
		violation.WithSinks(e.sinks...),
		violation.WithLogger(e.logger.Named("recorder")),
		violation.WithNow(e.clock.Now),
		violation.WithIDs(e.ids.Generate),
	)

	for _, spec := range specs {
		if err := e.register(spec); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) register(spec ir.MonitorSpec) error {
	m, err := monitor.New(spec, monitor.WithKnowledge(e.kv))
	if err != nil {
		return NewEvaluationError(spec.ID, err)
	}
	return e.add(m)
}

func (e *Engine) add(m *monitor.Monitor) error {
	if err := e.monitors.Add(m); err != nil {
		return &RuntimeError{Code: ErrCodeEvaluation, Message: "duplicate monitor", MonitorID: m.ID(), Cause: err}
	}
	e.metrics.SetMonitors(e.monitors.Len())
	e.logger.Debug("monitor registered",
		zap.String("monitor", m.ID()),
		zap.String("trace", m.Spec().Trace),
		zap.String("formula", m.Formula().String()))
	return nil
}

// Run starts the single-writer request loop.
// Blocks until the context is cancelled or Stop() is called.
//
// ERROR HANDLING: a failed request is logged and its error is returned to
// the caller; the loop continues with the next request.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", zap.Int("monitors", e.monitors.Len()))

	for {
		req, ok := e.queue.TryDequeue()
		if ok {
			e.metrics.SetQueueLength(e.queue.Len())
			e.serve(req)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.drain()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed by Stop; a stale signal on an
			// open queue just loops back to TryDequeue.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop rejects new requests and makes Run return.
// Requests still queued receive a QUEUE_CLOSED error.
func (e *Engine) Stop() {
	e.drain()
}

func (e *Engine) drain() {
	for _, req := range e.queue.Close() {
		req.reply <- reply{err: errQueueClosed}
	}
}

func (e *Engine) serve(req request) {
	if err := req.ctx.Err(); err != nil {
		req.reply <- reply{err: err}
		return
	}

	var rep reply
	switch req.typ {
	case requestEvent:
		rep.result, rep.err = e.Process(req.ctx, req.trace, req.event)
		if rep.err != nil {
			e.logger.Error("event processing failed",
				zap.String("trace", req.trace),
				zap.String("event", req.event.String()),
				zap.Error(rep.err))
		}
	case requestCall:
		rep.err = req.call(req.ctx)
	default:
		rep.err = fmt.Errorf("unknown request type: %d", req.typ)
	}
	req.reply <- rep
}

// Submit enqueues an event for traceName and waits for its Result.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Submit(ctx context.Context, traceName string, ev ir.Event) (Result, error) {
	rep, err := e.enqueue(ctx, request{typ: requestEvent, trace: traceName, event: ev})
	if err != nil {
		return Result{}, err
	}
	return rep.result, rep.err
}

// Do runs fn on the writer goroutine and returns its error.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	rep, err := e.enqueue(ctx, request{typ: requestCall, call: fn})
	if err != nil {
		return err
	}
	return rep.err
}

func (e *Engine) enqueue(ctx context.Context, req request) (reply, error) {
	req.ctx = ctx
	req.reply = make(chan reply, 1)
	if err := e.queue.Enqueue(req); err != nil {
		return reply{}, err
	}
	e.metrics.SetQueueLength(e.queue.Len())

	select {
	case rep := <-req.reply:
		return rep, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

// Process appends ev to traceName and evaluates the monitors of that trace.
//
// The step is assigned by the trace; a zero timestamp is stamped from the
// engine clock. The event is persisted before it becomes visible to
// monitors.
func (e *Engine) Process(ctx context.Context, traceName string, ev ir.Event) (Result, error) {
	start := time.Now()
	tr := e.traces.Get(traceName)

	ev.Trace = traceName
	ev.Step = int64(tr.Len())
	if ev.Timestamp == 0 {
		ev.Timestamp = e.clock.Now().UnixNano()
	}
	if ev.Predicates == nil {
		ev.Predicates = []ir.Predicate{}
	}
	if ev.Attrs == nil {
		ev.Attrs = ir.Object{}
	}
	id, err := ir.EventID(traceName, ev.Step, ev.String())
	if err != nil {
		return Result{}, fmt.Errorf("process %s: %w", traceName, err)
	}
	ev.ID = id

	if err := e.store.WriteEvent(ctx, ev); err != nil {
		return Result{}, fmt.Errorf("process %s step %d: %w", traceName, ev.Step, err)
	}
	stored := tr.Append(ev)

	res := Result{
		Trace:      traceName,
		Step:       stored.Step,
		EventID:    stored.ID,
		Verdicts:   make(map[string]ir.Verdict),
		Violations: []ir.Violation{},
	}
	err = e.evaluate(ctx, tr, e.monitors.ForTrace(traceName), &res)
	e.metrics.ObserveEvent(traceName, time.Since(start))
	if res.Blocked {
		e.metrics.IncBlocked(traceName)
	}
	e.logger.Debug("event processed",
		zap.String("trace", traceName),
		zap.Int64("step", stored.Step),
		zap.String("event", stored.String()),
		zap.Int("violations", len(res.Violations)),
		zap.Bool("blocked", res.Blocked))
	return res, err
}

// evaluate advances monitors over tr and records their violations into res.
// A monitor disabled by an evaluation error is logged and skipped; storage
// failures are returned after every monitor has run.
func (e *Engine) evaluate(ctx context.Context, tr *trace.Trace, monitors []*monitor.Monitor, res *Result) error {
	var errs []error
	kvChanged := false

	for _, m := range monitors {
		if !m.Enabled() {
			continue
		}
		observations, err := m.Advance(tr)
		if err != nil {
			e.metrics.IncMonitorError(m.ID())
			e.logger.Warn("monitor disabled",
				zap.String("monitor", m.ID()),
				zap.String("trace", tr.Name()),
				zap.Error(err))
		}
		if m.Spec().Location != ir.LocationLocal {
			kvChanged = true
		}
		if res != nil {
			res.Verdicts[m.ID()] = m.Verdict()
		}

		for _, obs := range observations {
			e.metrics.ObserveVerdict(m.ID(), obs.Verdict)
			if res != nil {
				res.Verdicts[m.ID()] = obs.Verdict
			}
			if !obs.Violated {
				continue
			}
			v, err := e.record(ctx, m, tr.Name(), obs.Event)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if res == nil {
				continue
			}
			res.Violations = append(res.Violations, v)
			if m.Spec().Control == ir.ControlRealtime && obs.Event.Step == res.Step {
				res.Blocked = true
			}
		}
	}

	if kvChanged {
		if err := e.store.WriteKnowledge(ctx, e.kv.Entries()); err != nil {
			errs = append(errs, fmt.Errorf("persist knowledge: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) record(ctx context.Context, m *monitor.Monitor, traceName string, ev ir.Event) (ir.Violation, error) {
	v, err := violation.New(m.ID(), traceName, ev, "", e.clock.Now().UnixNano())
	if err != nil {
		return ir.Violation{}, err
	}
	created, err := e.recorder.Record(ctx, v)
	if err != nil {
		return ir.Violation{}, err
	}
	if created {
		e.metrics.IncViolation(m.ID())
		e.logger.Info("violation recorded",
			zap.String("monitor", m.ID()),
			zap.String("trace", traceName),
			zap.Int64("step", ev.Step),
			zap.String("violation", v.ID))
	}
	return v, nil
}

// Restore loads the persisted knowledge vector and traces, then advances
// every monitor over them. It must run before any event is processed.
// Returns the number of events restored.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	entries, err := e.store.ReadKnowledge(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore: %w", err)
	}
	e.kv.Merge(entries)

	n := 0
	err = e.store.ReplayEvents(ctx, func(ev ir.Event) error {
		tr := e.traces.Get(ev.Trace)
		if int64(tr.Len()) != ev.Step {
			return fmt.Errorf("restore %s: step %d arrives at length %d", ev.Trace, ev.Step, tr.Len())
		}
		tr.Append(ev)
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("restore: %w", err)
	}

	for _, name := range e.traces.Names() {
		tr, _ := e.traces.Lookup(name)
		if err := e.evaluate(ctx, tr, e.monitors.ForTrace(name), nil); err != nil {
			return n, fmt.Errorf("restore %s: %w", name, err)
		}
	}
	e.logger.Info("engine restored",
		zap.Int("events", n),
		zap.Strings("traces", e.traces.Names()))
	return n, nil
}

// AddMonitor registers a monitor and advances it over the events its
// trace already holds.
func (e *Engine) AddMonitor(ctx context.Context, spec ir.MonitorSpec) (ir.MonitorStatus, error) {
	if err := e.register(spec); err != nil {
		return ir.MonitorStatus{}, err
	}
	m, _ := e.monitors.Get(spec.ID)
	if err := e.catchUp(ctx, m); err != nil {
		return m.Status(), err
	}
	return m.Status(), nil
}

func (e *Engine) catchUp(ctx context.Context, m *monitor.Monitor) error {
	tr, ok := e.traces.Lookup(m.Spec().Trace)
	if !ok {
		return nil
	}
	return e.evaluate(ctx, tr, []*monitor.Monitor{m}, nil)
}

// RemoveMonitor unregisters a monitor. Its violations stay in the store.
func (e *Engine) RemoveMonitor(id string) error {
	if !e.monitors.Remove(id) {
		return NewUnknownMonitorError(id)
	}
	e.metrics.SetMonitors(e.monitors.Len())
	e.logger.Info("monitor removed", zap.String("monitor", id))
	return nil
}

// ResetMonitor restores a monitor's original formula. The monitor keeps
// its trace position.
func (e *Engine) ResetMonitor(id string) (ir.MonitorStatus, error) {
	m, ok := e.monitors.Get(id)
	if !ok {
		return ir.MonitorStatus{}, NewUnknownMonitorError(id)
	}
	m.Reset()
	e.logger.Info("monitor reset", zap.String("monitor", id))
	return m.Status(), nil
}

// Monitor returns the status of one monitor.
func (e *Engine) Monitor(id string) (ir.MonitorStatus, error) {
	m, ok := e.monitors.Get(id)
	if !ok {
		return ir.MonitorStatus{}, NewUnknownMonitorError(id)
	}
	return m.Status(), nil
}

// Monitors returns the status of every monitor in registration order.
func (e *Engine) Monitors() []ir.MonitorStatus {
	all := e.monitors.All()
	out := make([]ir.MonitorStatus, len(all))
	for i, m := range all {
		out[i] = m.Status()
	}
	return out
}

// Trace returns a view of the events of a trace.
func (e *Engine) Trace(name string) []ir.Event {
	tr, ok := e.traces.Lookup(name)
	if !ok {
		return []ir.Event{}
	}
	return tr.Events()
}

// Events returns the stored events of a trace with from <= step < to.
// A negative to reads to the end.
func (e *Engine) Events(ctx context.Context, traceName string, from, to int64) ([]ir.Event, error) {
	return e.store.ReadEvents(ctx, traceName, from, to)
}

// Violations lists recorded violations, all of them when monitorID is empty.
func (e *Engine) Violations(ctx context.Context, monitorID string) ([]ir.Violation, error) {
	return e.store.ReadViolations(ctx, monitorID)
}

// FindViolations lists recorded violations matching f.
func (e *Engine) FindViolations(ctx context.Context, f store.ViolationFilter) ([]ir.Violation, error) {
	return e.store.FindViolations(ctx, f)
}

// Violation returns one recorded violation with its audit log.
func (e *Engine) Violation(ctx context.Context, id string) (ir.Violation, []ir.Audit, error) {
	v, err := e.store.ReadViolation(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Violation{}, nil, &RuntimeError{Code: ErrCodeUnknownViolation, Message: "no such violation " + id, Cause: err}
	}
	if err != nil {
		return ir.Violation{}, nil, fmt.Errorf("read violation %s: %w", id, err)
	}
	audits, err := e.store.ReadAudits(ctx, id)
	if err != nil {
		return ir.Violation{}, nil, fmt.Errorf("read audits %s: %w", id, err)
	}
	return v, audits, nil
}

// TriggerRemediation starts the remediation monitor of a violation and
// advances it over the events recorded since. Triggering twice returns the
// existing remediation monitor.
func (e *Engine) TriggerRemediation(ctx context.Context, monitorID, violationID string) (ir.MonitorStatus, error) {
	m, ok := e.monitors.Get(monitorID)
	if !ok {
		return ir.MonitorStatus{}, NewUnknownMonitorError(monitorID)
	}
	v, err := e.lookupViolation(ctx, monitorID, violationID)
	if err != nil {
		return ir.MonitorStatus{}, err
	}
	if existing, ok := e.monitors.Get(monitor.RemediationID(v.MonitorID, v.Step)); ok {
		return existing.Status(), nil
	}

	rm, err := m.Remediation(v)
	if errors.Is(err, monitor.ErrNoViolationFormula) {
		return ir.MonitorStatus{}, &RuntimeError{
			Code:      ErrCodeEvaluation,
			Message:   "monitor has no violation formula",
			MonitorID: monitorID,
			Cause:     err,
		}
	}
	if err != nil {
		return ir.MonitorStatus{}, NewEvaluationError(monitorID, err)
	}
	if err := e.add(rm); err != nil {
		return ir.MonitorStatus{}, err
	}
	e.logger.Info("remediation triggered",
		zap.String("monitor", monitorID),
		zap.String("violation", violationID),
		zap.String("remediation", rm.ID()))
	if err := e.catchUp(ctx, rm); err != nil {
		return rm.Status(), err
	}
	return rm.Status(), nil
}

func (e *Engine) lookupViolation(ctx context.Context, monitorID, violationID string) (ir.Violation, error) {
	v, err := e.store.ReadViolation(ctx, violationID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ir.Violation{}, fmt.Errorf("read violation %s: %w", violationID, err)
	}
	if err != nil || v.MonitorID != monitorID {
		return ir.Violation{}, &RuntimeError{
			Code:      ErrCodeUnknownViolation,
			Message:   "no such violation " + violationID,
			MonitorID: monitorID,
			Cause:     err,
		}
	}
	return v, nil
}

// Audit records a reviewer verdict on a violation of monitorID.
func (e *Engine) Audit(ctx context.Context, monitorID, violationID, comment string, verdict ir.ReviewStatus) (ir.Audit, error) {
	if _, ok := e.monitors.Get(monitorID); !ok {
		return ir.Audit{}, NewUnknownMonitorError(monitorID)
	}
	a, err := e.recorder.Audit(ctx, monitorID, violationID, comment, verdict)
	if errors.Is(err, violation.ErrUnknownViolation) {
		return ir.Audit{}, &RuntimeError{
			Code:      ErrCodeUnknownViolation,
			Message:   "no such violation " + violationID,
			MonitorID: monitorID,
			Cause:     err,
		}
	}
	return a, err
}

// Knowledge returns the knowledge vector shared by the monitors.
func (e *Engine) Knowledge() *monitor.Knowledge {
	return e.kv
}

// MergeKnowledge folds entries received from other agents into the
// knowledge vector and persists it. Returns how many entries changed.
func (e *Engine) MergeKnowledge(ctx context.Context, entries []ir.KVEntry) (int, error) {
	n := e.kv.Merge(entries)
	if n == 0 {
		return 0, nil
	}
	if err := e.store.WriteKnowledge(ctx, e.kv.Entries()); err != nil {
		return n, fmt.Errorf("merge knowledge: %w", err)
	}
	e.logger.Debug("knowledge merged", zap.Int("changed", n))
	return n, nil
}

// RegisterRemoteFormula evaluates a sub-formula on behalf of another
// agent. The monitor is named by the formula id, so its verdict lands in
// the knowledge vector under that id. Registering the same id again only
// merges the sender's knowledge. Returns the local knowledge vector.
func (e *Engine) RegisterRemoteFormula(ctx context.Context, rf RemoteFormula) ([]ir.KVEntry, error) {
	if rf.FID == "" {
		return nil, &RuntimeError{Code: ErrCodeEvaluation, Message: "remote formula without id"}
	}
	if _, err := e.MergeKnowledge(ctx, rf.Knowledge); err != nil {
		return nil, err
	}
	if _, ok := e.monitors.Get(rf.FID); !ok {
		spec := ir.MonitorSpec{
			ID:          rf.FID,
			Description: "Remote formula from " + rf.Target,
			Trace:       ir.DefaultTrace,
			Kind:        ir.KindHTTP,
			Formula:     rf.Formula,
			Control:     ir.ControlPosteriori,
			Location:    "REMOTE_" + rf.Target,
		}
		if _, err := e.AddMonitor(ctx, spec); err != nil {
			return nil, err
		}
		e.logger.Info("remote formula registered",
			zap.String("fid", rf.FID),
			zap.String("target", rf.Target))
	}
	return e.kv.Entries(), nil
}

// RemoteFormulas returns, per agent, the @agent(...) sub-formulas of the
// registered monitors that must be evaluated elsewhere.
func (e *Engine) RemoteFormulas() map[string][]formula.At {
	out := make(map[string][]formula.At)
	for _, m := range e.monitors.All() {
		for _, at := range m.Remotes() {
			out[at.Agent] = append(out[at.Agent], at)
		}
	}
	return out
}
