package memory

import (
	"testing"

	"wisp/internal/bytecode"
)

func newTestEnv() Environment {
	return New(NewConstants(), NewRegistry())
}

func TestDefineAndGet(t *testing.T) {
	env := newTestEnv()
	id := bytecode.IdentID(1)
	env.Define(id, Str("hello"))

	v, err := env.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := Deref(v); got != Value(Str("hello")) {
		t.Fatalf("Get(id) = %#v, want Str(hello)", got)
	}
}

func TestGetMissingReturnsVariableNotFound(t *testing.T) {
	env := newTestEnv()
	if _, err := env.Get(bytecode.IdentID(99)); err == nil {
		t.Fatal("Get(missing): want error, got nil")
	}
}

func TestPopRootFrameIsIllegal(t *testing.T) {
	env := newTestEnv()
	if err := env.PopFrame(); err == nil {
		t.Fatal("PopFrame on root: want error, got nil")
	}
}

func TestFrameShadowingAndRestoration(t *testing.T) {
	env := newTestEnv()
	id := bytecode.IdentID(1)
	env.Define(id, Int(1))

	env.NewFrame()
	env.Define(id, Int(2))
	v, _ := env.Get(id)
	if got := Deref(v); got != Value(Int(2)) {
		t.Fatalf("shadowed Get = %#v, want Int(2)", got)
	}

	if err := env.PopFrame(); err != nil {
		t.Fatalf("PopFrame: %v", err)
	}
	v, _ = env.Get(id)
	if got := Deref(v); got != Value(Int(1)) {
		t.Fatalf("restored Get = %#v, want Int(1)", got)
	}
}

// TestClosureOutlivesPoppedFrame mirrors the spec's closure-capture
// scenario at the environment layer: a snapshot taken while a frame is
// live keeps resolving names bound in that frame after the frame is
// popped from the live chain, while the live chain itself no longer sees
// them.
func TestClosureOutlivesPoppedFrame(t *testing.T) {
	env := newTestEnv()
	foo := bytecode.IdentID(1)

	env.NewFrame()
	env.Define(foo, Str("Heyheyhey"))
	captured := env.Clone()

	if err := env.PopFrame(); err != nil {
		t.Fatalf("PopFrame: %v", err)
	}
	env.Define(foo, Str("Yoyoyo"))

	liveVal, _ := env.Get(foo)
	if got := Deref(liveVal); got != Value(Str("Yoyoyo")) {
		t.Fatalf("live env Get(foo) = %#v, want Str(Yoyoyo)", got)
	}

	capturedVal, err := captured.Get(foo)
	if err != nil {
		t.Fatalf("captured env Get(foo): %v", err)
	}
	if got := Deref(capturedVal); got != Value(Str("Heyheyhey")) {
		t.Fatalf("captured env Get(foo) = %#v, want Str(Heyheyhey)", got)
	}
}

func TestAppendSplicesChain(t *testing.T) {
	a := newTestEnv()
	b := New(a.Consts(), a.Idents())
	id := bytecode.IdentID(5)
	b.Define(id, Int(42))

	a.Append(b)
	v, err := a.Get(id)
	if err != nil {
		t.Fatalf("Get after Append: %v", err)
	}
	if got := Deref(v); got != Value(Int(42)) {
		t.Fatalf("Get after Append = %#v, want Int(42)", got)
	}
}
