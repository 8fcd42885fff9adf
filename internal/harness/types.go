package harness

import "github.com/roach88/tracemon/internal/ir"

// StepRecord is what one scenario step produced.
type StepRecord struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"` // event, audit, remediate or reset

	// Event steps.
	Trace      string                `json:"trace,omitempty"`
	Step       int64                 `json:"step"`
	Event      string                `json:"event,omitempty"`
	Verdicts   map[string]ir.Verdict `json:"verdicts,omitempty"`
	Violations []string              `json:"violations,omitempty"` // monitor ids
	Blocked    bool                  `json:"blocked,omitempty"`

	// Audit, remediate and reset steps.
	Monitor string `json:"monitor,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Steps      []StepRecord       `json:"steps"`
	Monitors   []ir.MonitorStatus `json:"monitors"`
	Violations []ir.Violation     `json:"violations"`

	// Errors lists failed expectations; empty when Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Steps:      []StepRecord{},
		Monitors:   []ir.MonitorStatus{},
		Violations: []ir.Violation{},
		Errors:     []string{},
	}
}

// AddError records a failed expectation.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// violation finds the violation of monitorID raised at step.
func (r *Result) violation(monitorID string, step int64) (ir.Violation, bool) {
	for _, v := range r.Violations {
		if v.MonitorID == monitorID && v.Step == step {
			return v, true
		}
	}
	return ir.Violation{}, false
}

// monitor finds the final status of a monitor.
func (r *Result) monitor(id string) (ir.MonitorStatus, bool) {
	for _, m := range r.Monitors {
		if m.ID == id {
			return m, true
		}
	}
	return ir.MonitorStatus{}, false
}
