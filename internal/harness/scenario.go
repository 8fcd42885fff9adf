package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tracemon/internal/ir"
)

// Scenario is a monitoring scenario loaded from YAML.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE monitor files, relative to the scenario file.
	Specs []string `yaml:"specs,omitempty"`

	// Monitors are inline monitor definitions, registered after Specs.
	Monitors []MonitorDef `yaml:"monitors,omitempty"`

	// Steps run in order against one engine.
	Steps []Step `yaml:"steps"`

	// Assertions are checked against the final result.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// MonitorDef is the YAML form of a monitor definition.
type MonitorDef struct {
	ID               string         `yaml:"id"`
	Description      string         `yaml:"description,omitempty"`
	Trace            string         `yaml:"trace,omitempty"`
	Kind             string         `yaml:"kind,omitempty"`
	Formula          string         `yaml:"formula"`
	ViolationFormula string         `yaml:"violation_formula,omitempty"`
	Liveness         int64          `yaml:"liveness,omitempty"`
	Control          string         `yaml:"control,omitempty"`
	Location         string         `yaml:"location,omitempty"`
	Valuation        map[string]any `yaml:"valuation,omitempty"`
}

// Spec converts the definition. Valuation values must be strings,
// integers or booleans.
func (d MonitorDef) Spec() (ir.MonitorSpec, error) {
	spec := ir.MonitorSpec{
		ID:               d.ID,
		Description:      d.Description,
		Trace:            d.Trace,
		Kind:             ir.MonitorKind(d.Kind),
		Formula:          d.Formula,
		ViolationFormula: d.ViolationFormula,
		Liveness:         d.Liveness,
		Control:          ir.ControlType(d.Control),
		Location:         d.Location,
	}
	if len(d.Valuation) > 0 {
		spec.Valuation = make(ir.Object, len(d.Valuation))
		for k, raw := range d.Valuation {
			v, err := ir.FromGo(raw)
			if err != nil {
				return ir.MonitorSpec{}, fmt.Errorf("monitor %s: valuation %s: %w", d.ID, k, err)
			}
			spec.Valuation[k] = v
		}
	}
	return spec, nil
}

// Step is one scenario action. Exactly one of Event, Audit, Remediate and
// Reset is set.
type Step struct {
	// Trace receives Event; defaults to ir.DefaultTrace.
	Trace string `yaml:"trace,omitempty"`

	// Event is the textual event, e.g. "{login('admin') | path='/'}".
	Event string `yaml:"event,omitempty"`

	Audit     *AuditStep    `yaml:"audit,omitempty"`
	Remediate *ViolationRef `yaml:"remediate,omitempty"`
	Reset     string        `yaml:"reset,omitempty"`
	Expect    *ExpectClause `yaml:"expect,omitempty"`
}

// ViolationRef addresses a violation by monitor and trace step.
type ViolationRef struct {
	Monitor string `yaml:"monitor"`
	Step    int64  `yaml:"step"`
}

// AuditStep reviews a violation.
type AuditStep struct {
	ViolationRef `yaml:",inline"`
	Verdict      string `yaml:"verdict"`
	Comment      string `yaml:"comment,omitempty"`
}

// ExpectClause checks the Result of an event step.
type ExpectClause struct {
	// Verdicts maps monitor ids to true, false or unknown.
	Verdicts map[string]string `yaml:"verdicts,omitempty"`

	// Blocked is checked when set.
	Blocked *bool `yaml:"blocked,omitempty"`

	// Violations lists the monitors this event violated, in any order.
	// Checked when set; an empty list expects no violation.
	Violations *[]string `yaml:"violations,omitempty"`

	// Error is a substring the step's error must contain. Audit and
	// remediate steps that are expected to fail set it.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final result.
type Assertion struct {
	Type    string  `yaml:"type"`
	Monitor string  `yaml:"monitor,omitempty"`
	Trace   string  `yaml:"trace,omitempty"`
	Verdict string  `yaml:"verdict,omitempty"`
	Count   int     `yaml:"count,omitempty"`
	Steps   []int64 `yaml:"steps,omitempty"`
	Step    int64   `yaml:"step,omitempty"`
	Status  string  `yaml:"status,omitempty"`
	Enabled *bool   `yaml:"enabled,omitempty"`
}

// Assertion type constants.
const (
	AssertVerdict        = "verdict"
	AssertViolationCount = "violation_count"
	AssertViolationSteps = "violation_steps"
	AssertReviewStatus   = "review_status"
	AssertBlockedCount   = "blocked_count"
	AssertMonitorEnabled = "monitor_enabled"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Specs) == 0 && len(s.Monitors) == 0 {
		return fmt.Errorf("at least one spec file or monitor is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must contain at least one step")
	}
	for i, m := range s.Monitors {
		if m.ID == "" {
			return fmt.Errorf("monitors[%d]: id is required", i)
		}
		if m.Formula == "" {
			return fmt.Errorf("monitors[%d]: formula is required", i)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	set := 0
	for _, ok := range []bool{step.Event != "", step.Audit != nil, step.Remediate != nil, step.Reset != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of event, audit, remediate, reset is required", index)
	}
	if step.Audit != nil {
		if step.Audit.Monitor == "" {
			return fmt.Errorf("steps[%d]: audit.monitor is required", index)
		}
		if step.Audit.Verdict == "" {
			return fmt.Errorf("steps[%d]: audit.verdict is required", index)
		}
	}
	if step.Remediate != nil && step.Remediate.Monitor == "" {
		return fmt.Errorf("steps[%d]: remediate.monitor is required", index)
	}
	if step.Expect != nil && step.Event == "" {
		e := step.Expect
		if len(e.Verdicts) > 0 || e.Blocked != nil || e.Violations != nil {
			return fmt.Errorf("steps[%d]: verdicts, blocked and violations apply to event steps only", index)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertVerdict:
		if a.Monitor == "" || a.Verdict == "" {
			return fmt.Errorf("assertions[%d]: monitor and verdict are required for verdict", index)
		}
	case AssertViolationCount:
		if a.Monitor == "" {
			return fmt.Errorf("assertions[%d]: monitor is required for violation_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for violation_count", index)
		}
	case AssertViolationSteps:
		if a.Monitor == "" {
			return fmt.Errorf("assertions[%d]: monitor is required for violation_steps", index)
		}
	case AssertReviewStatus:
		if a.Monitor == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: monitor and status are required for review_status", index)
		}
	case AssertBlockedCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for blocked_count", index)
		}
	case AssertMonitorEnabled:
		if a.Monitor == "" || a.Enabled == nil {
			return fmt.Errorf("assertions[%d]: monitor and enabled are required for monitor_enabled", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
