package bytecode

import (
	"fmt"
	"sort"
)

// IdentID names a variable binding, global to a loaded VM once the loader
// has remapped it out of a unit's private id space.
type IdentID uint16

// ConstID indexes into the shared constant pool.
type ConstID uint16

// Quantif is the opcode "n" operand: a non-negative count, 18 bits wide on
// the wire. The Go representation is a plain uint32; callers that encode
// to the wire format are responsible for range-checking against 1<<18.
type Quantif uint32

// Op is a single reified instruction. Optional fields are nil when absent,
// matching the source format's sum-of-maybes encoding.
type Op struct {
	Code  OpCode
	Ident *IdentID
	N     *Quantif
	Val   *ConstID
	Typ   *Type
	Mute  bool
}

func (o Op) String() string {
	s := o.Code.String()
	if o.Ident != nil {
		s += fmt.Sprintf(" %d", *o.Ident)
	}
	if o.N != nil {
		s += fmt.Sprintf(" (%d)", *o.N)
	}
	if o.Val != nil {
		s += fmt.Sprintf(" #%d", *o.Val)
	}
	if o.Typ != nil {
		s += fmt.Sprintf(" <%s>", *o.Typ)
	}
	if o.Mute {
		s += " &"
	}
	return s
}

// ApplyConstOffset rebases a val field produced by a unit compiled in its
// own private constant-id space onto the shared pool.
func (o *Op) ApplyConstOffset(ofs int) {
	if o.Val != nil {
		v := ConstID(int(*o.Val) + ofs)
		o.Val = &v
	}
}

// ApplyIdentSwap rewrites an ident field through a remap table produced by
// the loader. oldIDs must be sorted; newIDs is indexed in parallel. Any
// ident not present in oldIDs is left unchanged.
func (o *Op) ApplyIdentSwap(oldIDs, newIDs []IdentID) {
	if o.Ident == nil {
		return
	}
	i := sort.Search(len(oldIDs), func(i int) bool { return oldIDs[i] >= *o.Ident })
	if i < len(oldIDs) && oldIDs[i] == *o.Ident {
		v := newIDs[i]
		o.Ident = &v
	}
}

// Procedure is an ordered sequence of instructions.
type Procedure struct {
	Ops []Op
}

// ApplyConstOffset rebases every val field in the procedure.
func (p *Procedure) ApplyConstOffset(ofs int) {
	for i := range p.Ops {
		p.Ops[i].ApplyConstOffset(ofs)
	}
}

// ApplyIdentSwaps jointly sorts old/new by old and rewrites every ident
// field in the procedure through the resulting table.
func (p *Procedure) ApplyIdentSwaps(oldIDs, newIDs []IdentID) {
	sortParallel(oldIDs, newIDs)
	for i := range p.Ops {
		p.Ops[i].ApplyIdentSwap(oldIDs, newIDs)
	}
}

func sortParallel(oldIDs, newIDs []IdentID) {
	idx := make([]int, len(oldIDs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return oldIDs[idx[a]] < oldIDs[idx[b]] })

	sortedOld := make([]IdentID, len(oldIDs))
	sortedNew := make([]IdentID, len(newIDs))
	for i, j := range idx {
		sortedOld[i] = oldIDs[j]
		sortedNew[i] = newIDs[j]
	}
	copy(oldIDs, sortedOld)
	copy(newIDs, sortedNew)
}

// Helpers for constructing Op values without littering call sites with
// address-of temporaries.

func IdentOf(id IdentID) *IdentID { return &id }
func NOf(n Quantif) *Quantif      { return &n }
func ValOf(v ConstID) *ConstID    { return &v }
func TypOf(t Type) *Type          { return &t }
