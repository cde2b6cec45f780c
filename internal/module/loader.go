package module

import (
	"wisp/internal/bytecode"
	"wisp/internal/memory"
)

// Load merges unit into env's shared address space and returns the
// global IdentID the unit is now bound under. The returned id resolves
// (via env.Get) to a Lambda wrapping the unit's rewritten procedure and a
// snapshot of env as it stood at load time — calling that Lambda runs the
// unit's top-level body.
//
// The merge is the seven-step procedure this loader is grounded on
// (original_source/src/vm/mem.rs's Environment::append plus
// Op::apply_ident_swap / apply_const_offset):
//  1. reserve a fresh global id for the unit, bound to Nil so recursive
//     self-reference resolves before the body is attached;
//  2. append the unit's constants to the shared pool and record the
//     offset it started at;
//  3. resolve every named local id the unit declares against the shared
//     registry, honoring flag, producing parallel old/new id tables;
//  4. rewrite every ident field in the procedure through that table;
//  5. rebase every const field in the procedure by the offset from step 2;
//  6. bind the reserved id to a Lambda over the rewritten procedure,
//     capturing a snapshot of env;
//  7. return the reserved id.
func Load(env *memory.Environment, unit Unit, flag Flag) (bytecode.IdentID, error) {
	id := env.Idents().Fresh()
	env.Define(id, memory.Nil{})

	offset := env.Consts().Len()
	for _, c := range unit.Constants {
		env.Consts().Load(c)
	}

	oldIDs := make([]bytecode.IdentID, 0, len(unit.Idents))
	newIDs := make([]bytecode.IdentID, 0, len(unit.Idents))
	seen := make(map[bytecode.IdentID]bool, len(unit.Idents))
	for name, localID := range unit.VarStrings {
		newID := resolveName(env, name, flag)
		oldIDs = append(oldIDs, localID)
		newIDs = append(newIDs, newID)
		seen[localID] = true
	}
	// Every local id the procedure references gets a remap entry, not just
	// the named subset: an anonymous local left unmapped would pass through
	// ApplyIdentSwap unchanged and collide with whatever global id another
	// unit happens to occupy at that same numeric value.
	for _, localID := range unit.Idents {
		if seen[localID] {
			continue
		}
		oldIDs = append(oldIDs, localID)
		newIDs = append(newIDs, env.Idents().Fresh())
		seen[localID] = true
	}

	proc := unit.Instructions
	proc.Ops = append([]bytecode.Op(nil), proc.Ops...)
	proc.ApplyIdentSwaps(oldIDs, newIDs)
	proc.ApplyConstOffset(offset)

	env.Define(id, memory.Lambda{Body: proc, Env: env.Clone()})
	return id, nil
}

func resolveName(env *memory.Environment, name string, flag Flag) bytecode.IdentID {
	if flag == ReuseVarStrings {
		if existing, ok := env.Idents().Lookup(name); ok {
			return existing
		}
	}
	fresh := env.Idents().Fresh()
	env.Idents().Bind(name, fresh)
	return fresh
}
