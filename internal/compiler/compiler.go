// Package compiler turns CUE definition files into engine types: sync
// rules under a top-level "syncs" struct and the concept catalog under
// "concepts". Compilation uses the CUE Go API directly, so errors carry
// source positions.
package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/weftworks/weft/internal/ir"
)

// Definitions is the compiled content of one or more definition files.
type Definitions struct {
	Syncs    []ir.Sync
	Concepts []ir.ConceptSpec
}

// Compile extracts sync and concept definitions from a CUE value. Both
// top-level structs are optional; a file may carry either or both.
func Compile(v cue.Value) (*Definitions, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	defs := &Definitions{}

	syncsVal := v.LookupPath(cue.ParsePath("syncs"))
	if syncsVal.Exists() {
		syncs, err := compileSyncs(syncsVal)
		if err != nil {
			return nil, err
		}
		defs.Syncs = syncs
	}

	conceptsVal := v.LookupPath(cue.ParsePath("concepts"))
	if conceptsVal.Exists() {
		concepts, err := compileConcepts(conceptsVal)
		if err != nil {
			return nil, err
		}
		defs.Concepts = concepts
	}

	return defs, nil
}

// CompileBytes compiles CUE source text. The filename feeds error
// positions only.
func CompileBytes(data []byte, filename string) (*Definitions, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	return Compile(v)
}

// CompileFile compiles one definition file from disk.
func CompileFile(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return CompileBytes(data, path)
}

// Merge combines definitions from several files. Duplicate sync names or
// concept URIs across files are an error here, before they could surface
// confusingly at registration.
func Merge(all ...*Definitions) (*Definitions, error) {
	merged := &Definitions{}
	syncNames := make(map[string]bool)
	conceptURIs := make(map[string]bool)

	for _, defs := range all {
		for _, s := range defs.Syncs {
			if syncNames[s.Name] {
				return nil, fmt.Errorf("duplicate sync %q across definition files", s.Name)
			}
			syncNames[s.Name] = true
			merged.Syncs = append(merged.Syncs, s)
		}
		for _, c := range defs.Concepts {
			if conceptURIs[c.URI] {
				return nil, fmt.Errorf("duplicate concept %q across definition files", c.URI)
			}
			conceptURIs[c.URI] = true
			merged.Concepts = append(merged.Concepts, c)
		}
	}
	return merged, nil
}

// CompileError is a compilation error with source position.
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

// formatCUEError extracts position info from CUE's multi-error values.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
