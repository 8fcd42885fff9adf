package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/tracemon/internal/compiler"
	"github.com/roach88/tracemon/internal/ir"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the monitors compiled from a file or directory.
type LoadResult struct {
	Monitors  []ir.MonitorSpec
	FileCount int // number of CUE files found
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpecs loads and compiles the CUE monitors of a .cue file or a
// directory. A nil result means nothing could be loaded; otherwise the
// errors are per-monitor compile errors.
func LoadSpecs(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs: %v", err)}}
	}

	count := 1
	if info.IsDir() {
		files, err := FindCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(files) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
		count = len(files)
	}

	value, err := compiler.LoadPath(path)
	if err != nil {
		return nil, []error{convertCompileError(err, ErrCodeLoadFailed)}
	}

	specs, compileErrs := compiler.CompileMonitors(value, mode == LoadModeFailFast)
	result := &LoadResult{Monitors: specs, FileCount: count}
	errs := make([]error, 0, len(compileErrs))
	for _, e := range compileErrs {
		errs = append(errs, convertCompileError(e, ErrCodeGeneric))
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with
// position info. The monitor prefix added by CompileMonitors is kept.
func convertCompileError(err error, fallback string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		msg := compileErr.Message
		if prefix, _, ok := strings.Cut(err.Error(), ": "); ok && strings.HasPrefix(prefix, "monitor ") {
			msg = prefix + ": " + msg
		}
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: msg,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: fallback, Message: err.Error()}
}

// Error code constants, shared by all commands. Monitor field codes match
// compiler.Validate.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeNoMonitors  = "E008" // No monitor definitions
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "formula":
		return compiler.ErrFormulaMissing
	case "violation_formula":
		return compiler.ErrViolationFormulaInvalid
	case "valuation", "type":
		return compiler.ErrInvalidFieldType
	case "kind":
		return compiler.ErrInvalidKind
	case "control":
		return compiler.ErrInvalidControl
	case "location":
		return compiler.ErrInvalidLocation
	case "liveness":
		return compiler.ErrInvalidLiveness
	case "trace":
		return compiler.ErrInvalidTrace
	case "monitor":
		return ErrCodeNoMonitors
	case "cue":
		return ErrCodeBuildFailed
	}
	if strings.HasPrefix(field, "valuation.") {
		return compiler.ErrInvalidFieldType
	}
	return ErrCodeGeneric
}
