package module

import (
	"testing"

	"wisp/internal/bytecode"
	"wisp/internal/memory"
)

func newTestEnv() memory.Environment {
	return memory.New(memory.NewConstants(), memory.NewRegistry())
}

func TestLoadReservesFreshIDAndBindsLambda(t *testing.T) {
	env := newTestEnv()
	unit := Unit{
		Instructions: bytecode.Procedure{Ops: []bytecode.Op{{Code: bytecode.LVR, Val: bytecode.ValOf(0)}}},
		Constants:    []memory.Value{memory.Int(7)},
	}

	id, err := Load(&env, unit, OverrideVarStrings)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	v, err := env.Get(id)
	if err != nil {
		t.Fatalf("Get(loaded id): %v", err)
	}
	lam, ok := memory.Deref(v).(memory.Lambda)
	if !ok {
		t.Fatalf("Get(loaded id) = %#v, want memory.Lambda", memory.Deref(v))
	}
	if len(lam.Body.Ops) != 1 || lam.Body.Ops[0].Code != bytecode.LVR {
		t.Fatalf("unexpected rewritten body: %#v", lam.Body)
	}
}

func TestLoadRebasesConstOffsetsAcrossUnits(t *testing.T) {
	env := newTestEnv()

	first := Unit{Constants: []memory.Value{memory.Int(1), memory.Int(2)}}
	if _, err := Load(&env, first, OverrideVarStrings); err != nil {
		t.Fatalf("Load(first): %v", err)
	}

	second := Unit{
		Instructions: bytecode.Procedure{Ops: []bytecode.Op{{Code: bytecode.LVR, Val: bytecode.ValOf(0)}}},
		Constants:    []memory.Value{memory.Int(99)},
	}
	id, err := Load(&env, second, OverrideVarStrings)
	if err != nil {
		t.Fatalf("Load(second): %v", err)
	}

	v, _ := env.Get(id)
	lam := memory.Deref(v).(memory.Lambda)
	got := *lam.Body.Ops[0].Val
	if got != 2 {
		t.Fatalf("second unit's rebased const id = %d, want 2 (offset by first unit's 2 constants)", got)
	}
}

// TestOverrideVarStringsShadowsSameName exercises the "two units declare
// the same name, later one wins" half of the Flag contract: with
// OverrideVarStrings every load gets its own fresh id for the name, and
// the registry's most recent binding is the one later ReuseVarStrings
// loads will observe.
func TestOverrideVarStringsShadowsSameName(t *testing.T) {
	env := newTestEnv()

	a := Unit{VarStrings: map[string]bytecode.IdentID{"foo": 0}}
	if _, err := Load(&env, a, OverrideVarStrings); err != nil {
		t.Fatalf("Load(a): %v", err)
	}
	firstID, _ := env.Idents().Lookup("foo")

	b := Unit{VarStrings: map[string]bytecode.IdentID{"foo": 0}}
	if _, err := Load(&env, b, OverrideVarStrings); err != nil {
		t.Fatalf("Load(b): %v", err)
	}
	secondID, _ := env.Idents().Lookup("foo")

	if firstID == secondID {
		t.Fatalf("OverrideVarStrings: expected a fresh id for the second unit's foo, got the same id %d twice", firstID)
	}
}

// TestCrossUnitNameReuse is spec.md scenario 6: a unit declaring "foo"
// with default (override) flags, followed by a second unit loaded with
// ReuseVarStrings that only reads "foo" by its own local id — the
// loader must remap that local id onto the exact global id the first
// unit's "foo" was assigned, so the second unit observes the first's
// value.
func TestCrossUnitNameReuse(t *testing.T) {
	env := newTestEnv()

	unitA := Unit{VarStrings: map[string]bytecode.IdentID{"foo": 0}}
	if _, err := Load(&env, unitA, OverrideVarStrings); err != nil {
		t.Fatalf("Load(unitA): %v", err)
	}
	fooID, ok := env.Idents().Lookup("foo")
	if !ok {
		t.Fatal("unitA load: \"foo\" was not registered")
	}
	env.Define(fooID, memory.Str("woop woop woop"))

	unitB := Unit{
		Instructions: bytecode.Procedure{Ops: []bytecode.Op{{Code: bytecode.LVR, Ident: bytecode.IdentOf(0)}}},
		VarStrings:   map[string]bytecode.IdentID{"foo": 0},
	}
	idB, err := Load(&env, unitB, ReuseVarStrings)
	if err != nil {
		t.Fatalf("Load(unitB): %v", err)
	}

	v, _ := env.Get(idB)
	lam := memory.Deref(v).(memory.Lambda)
	rewrittenIdent := lam.Body.Ops[0].Ident
	if rewrittenIdent == nil || *rewrittenIdent != fooID {
		t.Fatalf("unitB's LVR ident after remap = %v, want %d (unitA's foo)", rewrittenIdent, fooID)
	}
}

// TestAnonymousLocalGetsRemapped pins the collision Idents exists to
// prevent: a local id present in Idents but never named in VarStrings (a
// compiler-generated temporary) must still be rewritten onto a fresh
// global id on every load, or two units that each happen to use local id
// 7 for an anonymous temp would collide silently after merge.
func TestAnonymousLocalGetsRemapped(t *testing.T) {
	env := newTestEnv()

	unitA := Unit{
		Instructions: bytecode.Procedure{Ops: []bytecode.Op{{Code: bytecode.DVR, Ident: bytecode.IdentOf(7), Mute: true}}},
		Idents:       []bytecode.IdentID{7},
	}
	idA, err := Load(&env, unitA, OverrideVarStrings)
	if err != nil {
		t.Fatalf("Load(unitA): %v", err)
	}
	lamA := memory.Deref(mustGet(t, env, idA)).(memory.Lambda)
	globalA := *lamA.Body.Ops[0].Ident

	unitB := Unit{
		Instructions: bytecode.Procedure{Ops: []bytecode.Op{{Code: bytecode.DVR, Ident: bytecode.IdentOf(7), Mute: true}}},
		Idents:       []bytecode.IdentID{7},
	}
	idB, err := Load(&env, unitB, OverrideVarStrings)
	if err != nil {
		t.Fatalf("Load(unitB): %v", err)
	}
	lamB := memory.Deref(mustGet(t, env, idB)).(memory.Lambda)
	globalB := *lamB.Body.Ops[0].Ident

	if globalA == globalB {
		t.Fatalf("unitA and unitB's anonymous local 7 both remapped to global id %d, want distinct ids", globalA)
	}
}

func mustGet(t *testing.T, env memory.Environment, id bytecode.IdentID) memory.Value {
	t.Helper()
	v, err := env.Get(id)
	if err != nil {
		t.Fatalf("Get(%d): %v", id, err)
	}
	return v
}
