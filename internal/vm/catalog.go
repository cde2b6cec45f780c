package vm

import (
	"context"
	"fmt"

	"wisp/internal/bytecode"
	"wisp/internal/database"
	"wisp/internal/module"
)

// LoadFromCatalog is the cross-process counterpart to Load: it seeds the
// VM's identifier registry with every name -> global id assignment the
// catalog has recorded (so a REUSE_VAR_STRINGS load resolves names the
// same way an earlier process's VM did), performs the ordinary in-memory
// Load, and then persists the resulting assignment back to the catalog
// under hash for the next process to pick up.
func (v *VM) LoadFromCatalog(ctx context.Context, cat *database.Catalog, unit module.Unit, flag module.Flag, hash string) (bytecode.IdentID, error) {
	names, err := cat.LoadNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("seeding registry from catalog: %w", err)
	}

	v.mu.Lock()
	for name, id := range names {
		v.idents.Bind(name, id)
	}
	offsetBefore := v.consts.Len()
	v.mu.Unlock()

	id, err := v.Load(unit, flag)
	if err != nil {
		return 0, err
	}

	if err := cat.PutUnit(ctx, hash, id, offsetBefore); err != nil {
		return id, err
	}

	v.mu.Lock()
	assigned := make(map[string]bytecode.IdentID, len(unit.VarStrings))
	for name := range unit.VarStrings {
		if gid, ok := v.idents.Lookup(name); ok {
			assigned[name] = gid
		}
	}
	v.mu.Unlock()

	if err := cat.PutNames(ctx, assigned); err != nil {
		return id, err
	}
	return id, nil
}
