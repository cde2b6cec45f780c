// Package module implements the loader: the procedure that merges an
// independently compiled Unit into a VM's shared global address space.
// It is grounded on the teacher's internal/module.ModuleLoader (caching
// and search-path shape) generalized from source-file loading to
// pre-compiled Unit merging, and on original_source/src/vm/mem.rs's
// Environment::append / Op::apply_ident_swap for the exact remap
// semantics.
package module

import (
	"wisp/internal/bytecode"
	"wisp/internal/memory"
)

// Flag selects how the loader resolves a name already present in the
// target environment's identifier registry.
type Flag int

const (
	// OverrideVarStrings is the default: a name collision gets a fresh
	// global id, and the registry's binding for that name now points at
	// the newly loaded unit's variable, shadowing whatever unit declared
	// it first.
	OverrideVarStrings Flag = iota
	// ReuseVarStrings resolves a name collision by reusing the id already
	// bound to that name, so two units can share a global (e.g. two
	// modules both referencing a `print` builtin bound by whichever
	// loaded first).
	ReuseVarStrings
)

// Unit is the output of independent compilation: a procedure plus the
// three tables the loader needs to fold it into a shared environment.
// Idents lists every local IdentID the procedure references; VarStrings
// maps each declared name (a DVR the compiler attached a name to) to its
// local id, covering the named subset of those ids, for cross-unit
// identifier resolution.
type Unit struct {
	Instructions bytecode.Procedure
	Idents       []bytecode.IdentID
	VarStrings   map[string]bytecode.IdentID
	Constants    []memory.Value
}
