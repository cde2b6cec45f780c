package memory

import (
	"wisp/internal/bytecode"
	"wisp/internal/errors"
)

// envNode is one frame in the linked chain. Parent is the frame pushed
// before it (toward the root); child is the frame pushed after it (toward
// the tip). Both directions are plain Go pointers: a closure's captured
// chain and a live job's frame stack are the only roots that keep a node
// reachable, so a popped frame with no remaining reference — cyclic or
// not — is reclaimed by the ordinary garbage collector. The spec this
// core is modeled on uses a weak child backref to avoid an Rc cycle; Go
// has no such concern; this is the only behavior-preserving way to carry
// that detail forward.
type envNode struct {
	parent, child *envNode
	vars          map[bytecode.IdentID]*Box
}

func newNode() *envNode {
	return &envNode{vars: make(map[bytecode.IdentID]*Box)}
}

// Environment is a handle onto a frame chain: head is the root frame,
// tail is the innermost (current) frame. Copying an Environment by value
// aliases the same chain and the same constant pool / registry — this is
// exactly how a Lambda captures its defining scope.
type Environment struct {
	head, tail *envNode
	len        int
	consts     *Constants
	idents     *Registry
}

// New creates a fresh environment with a single root frame.
func New(consts *Constants, idents *Registry) Environment {
	root := newNode()
	return Environment{head: root, tail: root, len: 1, consts: consts, idents: idents}
}

// Consts returns the shared constant pool backing this environment.
func (e Environment) Consts() *Constants { return e.consts }

// Idents returns the shared identifier registry backing this environment.
func (e Environment) Idents() *Registry { return e.idents }

// NewFrame pushes a fresh, empty frame onto the tail of the chain.
func (e *Environment) NewFrame() {
	n := newNode()
	n.parent = e.tail
	e.tail.child = n
	e.tail = n
	e.len++
}

// PopFrame detaches the tail frame, returning to its parent. Popping the
// root frame is illegal.
func (e *Environment) PopFrame() errors.Err {
	if e.len <= 1 {
		return &errors.IllegalStackPop{}
	}
	parent := e.tail.parent
	parent.child = nil
	e.tail = parent
	e.len--
	return nil
}

// Define binds id to v in the current (tail) frame, shadowing any
// binding for id in an outer frame. v is dereferenced first: a Box must
// never itself hold a Pointer, or Deref would stop being a single hop for
// every binding built from an already-boxed value (a constant pool
// lookup, or another binding's current value).
func (e *Environment) Define(id bytecode.IdentID, v Value) {
	e.tail.vars[id] = &Box{V: Deref(v)}
}

// Get resolves id by walking from the tail toward the head, returning a
// Pointer aliasing the bound Box.
func (e Environment) Get(id bytecode.IdentID) (Value, errors.Err) {
	for n := e.tail; n != nil; n = n.parent {
		if b, ok := n.vars[id]; ok {
			return Pointer{Box: b}, nil
		}
	}
	return nil, &errors.VariableNotFound{Depth: 0, ID: id}
}

// Append splices other's chain onto the tail of e: other's head becomes a
// child of e's current tail, and e's tail moves to other's tail. Both
// environments then share the spliced frames.
func (e *Environment) Append(other Environment) {
	other.head.parent = e.tail
	e.tail.child = other.head
	e.tail = other.tail
	e.len += other.len
}

// MaxID returns the largest IdentID bound anywhere in the chain and
// whether any binding exists at all.
func (e Environment) MaxID() (bytecode.IdentID, bool) {
	var max bytecode.IdentID
	found := false
	for n := e.tail; n != nil; n = n.parent {
		for id := range n.vars {
			if !found || id > max {
				max = id
				found = true
			}
			found = true
		}
	}
	return max, found
}

// Clone returns an independent Environment value that aliases the same
// underlying chain, constants, and registry — the snapshot a Lambda keeps
// of its defining scope. Mutating the chain's bindings through either
// value is visible to both; pushing/popping frames through one does not
// move the other's head/tail, since those fields are plain struct fields
// copied by value.
func (e Environment) Clone() Environment {
	return e
}

// Equal reports whether two Environment values observe the same chain,
// constant pool, and registry.
func (e Environment) Equal(other Environment) bool {
	return e.head == other.head && e.tail == other.tail &&
		e.consts == other.consts && e.idents == other.idents &&
		e.len == other.len
}
