package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/formula"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/monitor"
	"github.com/roach88/tracemon/internal/store"
	"github.com/roach88/tracemon/internal/trace"
	"github.com/roach88/tracemon/internal/violation"
)

// badRequest marks client input errors.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func invalid(format string, args ...any) error {
	return badRequest{err: fmt.Errorf(format, args...)}
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	var rerr *engine.RuntimeError
	if errors.As(err, &rerr) {
		body.Code = string(rerr.Code)
	}
	var br badRequest
	switch {
	case errors.As(err, &br):
		status = http.StatusBadRequest
	case engine.IsUnknownMonitor(err), engine.IsUnknownViolation(err):
		status = http.StatusNotFound
	case errors.Is(err, violation.ErrInvalidTransition):
		status = http.StatusConflict
	case engine.IsQueueFull(err), engine.IsQueueClosed(err):
		status = http.StatusServiceUnavailable
	case engine.IsEvaluationError(err):
		status = http.StatusUnprocessableEntity
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalid("bad json: %v", err)
	}
	return nil
}

// do runs fn on the engine goroutine.
func (s *Server) do(r *http.Request, fn func(ctx context.Context, e *engine.Engine) error) error {
	return s.engine.Do(r.Context(), func(ctx context.Context) error {
		return fn(ctx, s.engine)
	})
}

// handleMon is the form endpoint: it evaluates or canonicalizes a formula
// without touching the engine.
func (s *Server) handleMon(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := formula.Parse(r.PostForm.Get("formula"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	switch action := r.PostForm.Get("action"); action {
	case "parse":
		fmt.Fprintln(w, f.String())
	case "monitor", "":
		events, err := trace.ParseTrace(r.PostForm.Get("trace"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		residual, err := formula.Evaluate(f, events, nil, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		fmt.Fprintf(w, "%s\n%s\n", formula.Verdict(residual).Symbol(), residual.String())
	default:
		http.Error(w, "unknown action "+strconv.Quote(action), http.StatusBadRequest)
	}
}

// readEvent accepts a JSON event or, for any other content type, the
// textual {p(a) | k=v} form.
func readEvent(r *http.Request) (ir.Event, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var ev ir.Event
		if err := decodeJSON(r, &ev); err != nil {
			return ir.Event{}, err
		}
		return ev, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return ir.Event{}, invalid("read body: %v", err)
	}
	ev, err := trace.ParseEvent(string(body))
	if err != nil {
		return ir.Event{}, badRequest{err: err}
	}
	return ev, nil
}

func (s *Server) handlePushEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := readEvent(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.engine.Submit(r.Context(), r.PathValue("trace"), ev)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if res.Blocked {
		status = http.StatusForbidden
	}
	writeJSON(w, status, res)
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalid("invalid %s %q", name, raw)
	}
	return n, nil
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	from, err := queryInt(r, "from", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	to, err := queryInt(r, "to", -1)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var events []ir.Event
	err = s.do(r, func(ctx context.Context, e *engine.Engine) error {
		var err error
		events, err = e.Events(ctx, r.PathValue("trace"), from, to)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	var out []ir.MonitorStatus
	err := s.do(r, func(_ context.Context, e *engine.Engine) error {
		out = e.Monitors()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResetMonitor(w http.ResponseWriter, r *http.Request) {
	var st ir.MonitorStatus
	err := s.do(r, func(_ context.Context, e *engine.Engine) error {
		var err error
		st, err = e.ResetMonitor(r.PathValue("id"))
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.ViolationFilter{
		MonitorID: query.Get("monitor"),
		Trace:     query.Get("trace"),
	}
	if status := query.Get("status"); status != "" {
		st, err := violation.ParseStatus(status)
		if err != nil {
			s.writeError(w, badRequest{err: err})
			return
		}
		filter.Status = st
	}

	var out []ir.Violation
	err := s.do(r, func(ctx context.Context, e *engine.Engine) error {
		var err error
		out, err = e.FindViolations(ctx, filter)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// violationDetail is a violation with its review history.
type violationDetail struct {
	Violation ir.Violation `json:"violation"`
	Audits    []ir.Audit   `json:"audits"`
}

func (s *Server) handleViolation(w http.ResponseWriter, r *http.Request) {
	var out violationDetail
	err := s.do(r, func(ctx context.Context, e *engine.Engine) error {
		var err error
		out.Violation, out.Audits, err = e.Violation(ctx, r.PathValue("id"))
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// AuditRequest is the body of POST /api/v1/violations/{id}/audit.
// MonitorID defaults to the owner of the violation.
type AuditRequest struct {
	MonitorID string `json:"monitor_id,omitempty"`
	Verdict   string `json:"verdict"`
	Comment   string `json:"comment"`
}

// owner resolves the monitor of a violation when the caller left it out.
func owner(ctx context.Context, e *engine.Engine, monitorID, violationID string) (string, error) {
	if monitorID != "" {
		return monitorID, nil
	}
	v, _, err := e.Violation(ctx, violationID)
	if err != nil {
		return "", err
	}
	return v.MonitorID, nil
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	var req AuditRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	verdict, err := violation.ParseStatus(req.Verdict)
	if err != nil {
		s.writeError(w, badRequest{err: err})
		return
	}

	id := r.PathValue("id")
	var a ir.Audit
	err = s.do(r, func(ctx context.Context, e *engine.Engine) error {
		monitorID, err := owner(ctx, e, req.MonitorID, id)
		if err != nil {
			return err
		}
		a, err = e.Audit(ctx, monitorID, id, req.Comment, verdict)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// RemediateRequest is the body of POST /api/v1/violations/{id}/remediate.
// An empty body remediates on behalf of the violation's owner.
type RemediateRequest struct {
	MonitorID string `json:"monitor_id,omitempty"`
}

func (s *Server) handleRemediate(w http.ResponseWriter, r *http.Request) {
	var req RemediateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, invalid("bad json: %v", err))
		return
	}

	id := r.PathValue("id")
	var st ir.MonitorStatus
	err := s.do(r, func(ctx context.Context, e *engine.Engine) error {
		monitorID, err := owner(ctx, e, req.MonitorID, id)
		if err != nil {
			return err
		}
		st, err = e.TriggerRemediation(ctx, monitorID, id)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleKnowledge(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Knowledge())
}

// mergeReply reports how many knowledge entries a merge changed.
type mergeReply struct {
	Changed int `json:"changed"`
}

func (s *Server) handleMergeKnowledge(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, invalid("read body: %v", err))
		return
	}
	entries, err := monitor.ParseKnowledge(body)
	if err != nil {
		s.writeError(w, badRequest{err: err})
		return
	}
	var n int
	err = s.do(r, func(ctx context.Context, e *engine.Engine) error {
		var err error
		n, err = e.MergeKnowledge(ctx, entries)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mergeReply{Changed: n})
}

func (s *Server) handleRemoteFormula(w http.ResponseWriter, r *http.Request) {
	var rf engine.RemoteFormula
	if err := decodeJSON(r, &rf); err != nil {
		s.writeError(w, err)
		return
	}
	if rf.FID == "" || rf.Formula == "" {
		s.writeError(w, invalid("formula_id and formula are required"))
		return
	}
	var entries []ir.KVEntry
	err := s.do(r, func(ctx context.Context, e *engine.Engine) error {
		var err error
		entries, err = e.RegisterRemoteFormula(ctx, rf)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("remote formula accepted", zap.String("fid", rf.FID), zap.String("target", rf.Target))
	writeJSON(w, http.StatusOK, entries)
}
