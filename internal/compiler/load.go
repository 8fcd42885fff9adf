package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/tracemon/internal/ir"
)

// LoadPath builds the CUE value of a .cue file or of the package in a
// directory.
func LoadPath(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, err
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE instances loaded from %s", path)
	}
	if err := instances[0].Err; err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", err)
	}

	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return value, nil
}

// CompileMonitors compiles every entry of the top-level monitor struct of
// v, in source order. Failing entries are skipped and their errors
// collected; failFast stops at the first one.
func CompileMonitors(v cue.Value, failFast bool) ([]ir.MonitorSpec, []error) {
	monitors := v.LookupPath(cue.ParsePath("monitor"))
	if !monitors.Exists() {
		return nil, []error{&CompileError{Field: "monitor", Message: "no monitor definitions found", Pos: v.Pos()}}
	}
	iter, err := monitors.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		specs []ir.MonitorSpec
		errs  []error
	)
	for iter.Next() {
		spec, err := CompileMonitor(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("monitor %s: %w", iter.Label(), err))
			if failFast {
				return specs, errs
			}
			continue
		}
		specs = append(specs, *spec)
	}
	return specs, errs
}
