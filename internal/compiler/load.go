package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/robotcore/internal/ir"
)

// LoadError wraps a failure to locate or evaluate a routines directory, as
// opposed to a CompileError inside an otherwise well-formed one.
type LoadError struct {
	Dir string
	Op  string // "stat", "scan", "load", "build"
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load routines %s: %s: %v", e.Dir, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ErrNoFiles is the scan failure for a directory without .cue files.
var ErrNoFiles = errors.New("no CUE files found")

// Source is an evaluated routines directory.
type Source struct {
	Dir   string
	Files []string
	Value cue.Value
}

// LoadDir evaluates the CUE package in dir. All files must share one package
// clause; nested directories are not loaded.
func LoadDir(dir string) (*Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Dir: dir, Op: "stat", Err: err}
	}
	if !info.IsDir() {
		return nil, &LoadError{Dir: dir, Op: "stat", Err: fmt.Errorf("not a directory")}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Dir: dir, Op: "scan", Err: err}
	}
	if len(files) == 0 {
		return nil, &LoadError{Dir: dir, Op: "scan", Err: ErrNoFiles}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Dir: dir, Op: "load", Err: fmt.Errorf("no CUE instances loaded")}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Dir: dir, Op: "load", Err: formatCUEError(inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Dir: dir, Op: "build", Err: formatCUEError(err)}
	}
	if err := value.Validate(); err != nil {
		return nil, &LoadError{Dir: dir, Op: "build", Err: formatCUEError(err)}
	}
	return &Source{Dir: dir, Files: files, Value: value}, nil
}

// FindCUEFiles returns the sorted .cue files directly inside dir.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// LoadRoutines loads dir, compiles every routine in it and links call steps.
func LoadRoutines(dir string) ([]ir.Routine, error) {
	src, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	routines, err := CompileRoutines(src.Value)
	if err != nil {
		return nil, err
	}
	return Link(routines)
}
