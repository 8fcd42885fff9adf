// Package compiler turns CUE monitor definitions into ir.MonitorSpec values
// and validates them.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tracemon/internal/ir"
)

// CompileMonitor parses a CUE value into a MonitorSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the monitor struct itself; its label is the
// monitor id:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`monitor: "no-admin": { formula: "G(!login('admin'))" }`)
//	spec, err := CompileMonitor(v.LookupPath(cue.ParsePath(`monitor."no-admin"`)))
//
// Only structure is checked here; Validate checks formulas and enums.
func CompileMonitor(v cue.Value) (*ir.MonitorSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.MonitorSpec{ID: labelOf(v)}

	formulaVal := v.LookupPath(cue.ParsePath("formula"))
	if !formulaVal.Exists() {
		return nil, &CompileError{
			Field:   "formula",
			Message: "formula is required",
			Pos:     v.Pos(),
		}
	}
	f, err := formulaVal.String()
	if err != nil {
		return nil, &CompileError{Field: "formula", Message: "formula must be a string", Pos: formulaVal.Pos()}
	}
	spec.Formula = f

	fields := []struct {
		field string
		dst   *string
	}{
		{"description", &spec.Description},
		{"trace", &spec.Trace},
		{"violation_formula", &spec.ViolationFormula},
		{"location", &spec.Location},
	}
	for _, s := range fields {
		if *s.dst, err = optionalString(v, s.field); err != nil {
			return nil, err
		}
	}

	kind, err := optionalString(v, "kind")
	if err != nil {
		return nil, err
	}
	spec.Kind = ir.MonitorKind(kind)

	control, err := optionalString(v, "control")
	if err != nil {
		return nil, err
	}
	spec.Control = ir.ControlType(control)

	if lv := v.LookupPath(cue.ParsePath("liveness")); lv.Exists() {
		n, err := lv.Int64()
		if err != nil {
			return nil, &CompileError{Field: "liveness", Message: "liveness must be an integer", Pos: lv.Pos()}
		}
		spec.Liveness = n
	}

	if vv := v.LookupPath(cue.ParsePath("valuation")); vv.Exists() {
		spec.Valuation, err = parseValuation(vv)
		if err != nil {
			return nil, err
		}
	}

	return spec, nil
}

// labelOf returns the last path selector, unquoted.
func labelOf(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	sel := sels[len(sels)-1]
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a string", field),
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

// parseValuation reads constant variable bindings. Values are string, int
// or bool; floats are rejected so comparisons stay exact.
func parseValuation(v cue.Value) (ir.Object, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: "valuation", Message: "valuation must be a struct", Pos: v.Pos()}
	}

	out := ir.Object{}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		fv := iter.Value()
		switch fv.Kind() {
		case cue.StringKind:
			s, _ := fv.String()
			out[name] = ir.Str(s)
		case cue.IntKind:
			n, err := fv.Int64()
			if err != nil {
				return nil, &CompileError{Field: "valuation." + name, Message: err.Error(), Pos: fv.Pos()}
			}
			out[name] = ir.Int(n)
		case cue.BoolKind:
			b, _ := fv.Bool()
			out[name] = ir.Bool(b)
		case cue.FloatKind:
			return nil, &CompileError{
				Field:   "type",
				Message: fmt.Sprintf("float value forbidden for valuation %q, use int instead", name),
				Pos:     fv.Pos(),
			}
		default:
			return nil, &CompileError{
				Field:   "type",
				Message: fmt.Sprintf("valuation %q must be a concrete string, int or bool", name),
				Pos:     fv.Pos(),
			}
		}
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
