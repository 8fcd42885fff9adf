package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/tracemon/internal/formula"
	"github.com/roach88/tracemon/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Formula errors (E101-E109)
	ErrFormulaMissing          = "E101" // formula is required
	ErrFormulaInvalid          = "E102" // formula does not parse
	ErrViolationFormulaInvalid = "E103" // violation_formula does not parse
	ErrInvalidFieldType        = "E104" // invalid valuation value type
	ErrDuplicateName           = "E105" // duplicate monitor id
	ErrFloatTypeForbidden      = "E106" // float values not allowed

	// Monitor attribute errors (E110-E119)
	ErrInvalidKind     = "E110" // unknown monitor kind
	ErrInvalidControl  = "E111" // control is neither posteriori nor realtime
	ErrInvalidLocation = "E112" // location is neither LOCAL nor REMOTE_<host>
	ErrInvalidLiveness = "E113" // negative liveness bound
	ErrInvalidID       = "E114" // empty or malformed monitor id
	ErrInvalidTrace    = "E115" // malformed trace name
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled monitor spec.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.MonitorSpec:
		return validateMonitorSpec(spec)
	case ir.MonitorSpec:
		return validateMonitorSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// ValidateAll validates every spec and reports duplicate ids.
func ValidateAll(specs []ir.MonitorSpec) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i := range specs {
		for _, e := range validateMonitorSpec(&specs[i]) {
			e.Field = fmt.Sprintf("monitor[%q].%s", specs[i].ID, e.Field)
			errs = append(errs, e)
		}
		if seen[specs[i].ID] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("monitor[%q]", specs[i].ID),
				Message: fmt.Sprintf("duplicate monitor id: %q", specs[i].ID),
				Code:    ErrDuplicateName,
			})
		}
		seen[specs[i].ID] = true
	}
	return errs
}

func validateMonitorSpec(spec *ir.MonitorSpec) []ValidationError {
	var errs []ValidationError

	// E114: ids name rows and HTTP paths
	if strings.TrimSpace(spec.ID) == "" || strings.ContainsAny(spec.ID, "/ \t\n") {
		errs = append(errs, ValidationError{
			Field:   "id",
			Message: fmt.Sprintf("invalid monitor id %q: must be non-empty without spaces or slashes", spec.ID),
			Code:    ErrInvalidID,
		})
	}

	// E101/E102
	if strings.TrimSpace(spec.Formula) == "" {
		errs = append(errs, ValidationError{
			Field:   "formula",
			Message: "formula is required and must be non-empty",
			Code:    ErrFormulaMissing,
		})
	} else if _, err := formula.Parse(spec.Formula); err != nil {
		errs = append(errs, ValidationError{
			Field:   "formula",
			Message: err.Error(),
			Code:    ErrFormulaInvalid,
		})
	}

	// E103
	if spec.ViolationFormula != "" {
		if _, err := formula.Parse(spec.ViolationFormula); err != nil {
			errs = append(errs, ValidationError{
				Field:   "violation_formula",
				Message: err.Error(),
				Code:    ErrViolationFormulaInvalid,
			})
		}
	}

	// E110
	if spec.Kind != "" && !ir.ValidKinds[spec.Kind] {
		errs = append(errs, ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("invalid kind %q", spec.Kind),
			Code:    ErrInvalidKind,
		})
	}

	// E111
	switch spec.Control {
	case "", ir.ControlPosteriori, ir.ControlRealtime:
	default:
		errs = append(errs, ValidationError{
			Field:   "control",
			Message: fmt.Sprintf("invalid control %q, must be \"posteriori\" or \"realtime\"", spec.Control),
			Code:    ErrInvalidControl,
		})
	}

	// E112
	if !isValidLocation(spec.Location) {
		errs = append(errs, ValidationError{
			Field:   "location",
			Message: fmt.Sprintf("invalid location %q, must be \"LOCAL\" or \"REMOTE_<host>\"", spec.Location),
			Code:    ErrInvalidLocation,
		})
	}

	// E113
	if spec.Liveness < 0 {
		errs = append(errs, ValidationError{
			Field:   "liveness",
			Message: fmt.Sprintf("liveness must not be negative, got %d", spec.Liveness),
			Code:    ErrInvalidLiveness,
		})
	}

	// E115
	if spec.Trace != "" && !isTraceName(spec.Trace) {
		errs = append(errs, ValidationError{
			Field:   "trace",
			Message: fmt.Sprintf("invalid trace name %q", spec.Trace),
			Code:    ErrInvalidTrace,
		})
	}

	return errs
}

func isValidLocation(loc string) bool {
	if loc == "" || loc == ir.LocationLocal {
		return true
	}
	host, ok := strings.CutPrefix(loc, "REMOTE_")
	return ok && host != ""
}

// isTraceName accepts the channel names used in URLs: letters, digits,
// '-', '_' and '.'.
func isTraceName(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
