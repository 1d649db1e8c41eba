package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"cuelang.org/go/cue/token"

	"github.com/roach88/robotcore/internal/compiler"
	"github.com/roach88/robotcore/internal/ir"
)

// Error code constants shared by every command. Routine validation codes
// (E1xx) come from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeConfig      = "E008" // Configuration error
	ErrCodeDatabase    = "E009" // Event store error
)

// LoadResult is a compiled and linked routines directory.
type LoadResult struct {
	Dir       string
	Routines  []ir.Routine
	FileCount int
}

// LoadError is a routines directory that could not be turned into routines.
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

// LoadRoutines loads, compiles and links the routines in dir. Every failure
// is a *LoadError with a code.
func LoadRoutines(dir string) (*LoadResult, error) {
	src, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, convertLoadError(err)
	}
	routines, err := compiler.CompileRoutines(src.Value)
	if err != nil {
		return nil, convertCompileError(err)
	}
	linked, err := compiler.Link(routines)
	if err != nil {
		return nil, convertLinkError(err)
	}
	return &LoadResult{Dir: dir, Routines: linked, FileCount: len(src.Files)}, nil
}

func convertLoadError(err error) *LoadError {
	var le *compiler.LoadError
	if !errors.As(err, &le) {
		return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	switch le.Op {
	case "stat":
		if errors.Is(le.Err, fs.ErrNotExist) {
			return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("routines directory not found: %s", le.Dir)}
		}
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s: %v", le.Dir, le.Err)}
	case "scan":
		if errors.Is(le.Err, compiler.ErrNoFiles) {
			return &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", le.Dir)}
		}
		return &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", le.Err)}
	case "load":
		return withPos(ErrCodeLoadFailed, le.Err)
	case "build":
		return withPos(ErrCodeBuildFailed, le.Err)
	default:
		return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
}

func convertCompileError(err error) *LoadError {
	return withPos(compiler.ErrInvalidStep, err)
}

func convertLinkError(err error) *LoadError {
	var unresolved *compiler.UnresolvedCallError
	if errors.As(err, &unresolved) {
		return &LoadError{Code: compiler.ErrUnresolvedCall, Message: err.Error()}
	}
	var cycle *compiler.CycleError
	if errors.As(err, &cycle) {
		return &LoadError{Code: compiler.ErrCallCycle, Message: err.Error()}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// withPos keeps the CUE position of a *compiler.CompileError.
func withPos(code string, err error) *LoadError {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return &LoadError{Code: code, Message: fmt.Sprintf("%s: %s", ce.Field, ce.Message), Pos: ce.Pos}
	}
	return &LoadError{Code: code, Message: err.Error()}
}

// loadErrorCode returns the code of a *LoadError, or ErrCodeGeneric.
func loadErrorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeGeneric
}
