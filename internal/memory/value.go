// Package memory implements the value model, the constant pool, the
// identifier registry, and the linked-frame environment chain described by
// the execution core's data model. Value and Environment share a package
// because a Lambda value embeds a captured Environment and an Environment
// frame stores Values: in any other split one of the two packages would
// have to import the other, so the teacher's own layering precedent
// (internal/vm/value.go and internal/memory/types.go both define a
// "Value" type next to the structures that hold it) is followed here by
// keeping them together.
package memory

import (
	"fmt"
	"reflect"

	"wisp/internal/bytecode"
	"wisp/internal/errors"
)

// Value is implemented by every concrete variant of the tagged sum
// described in the data model: Pointer, Lambda, Proc, Inst, Str, Int,
// Char, Bool, Nil, and Pair.
type Value interface {
	Type() bytecode.Type
	fmt.Stringer
}

// Box is the shared, immutable cell a Pointer value points at. Frames and
// the constant pool both hand out Pointers that alias the same Box, so
// rebinding a name never mutates values already observed through another
// Pointer — it only ever replaces which Box a frame's slot refers to.
type Box struct {
	V Value
}

// Pointer is a shared handle used to represent every binding and constant
// lookup. Dereferencing is transparent to arithmetic, ordering, and
// display: by construction a Box never itself holds a Pointer, so Deref
// is always a single hop.
type Pointer struct{ Box *Box }

func (Pointer) Type() bytecode.Type { return bytecode.TPointer }
func (p Pointer) String() string    { return p.Box.V.String() }

func NewPointer(v Value) Pointer { return Pointer{Box: &Box{V: v}} }

// Lambda is a procedure paired with a snapshot of the environment chain
// that was current at the moment the closure was created.
type Lambda struct {
	Body bytecode.Procedure
	Env  Environment
}

func (Lambda) Type() bytecode.Type { return bytecode.TLambda }
func (Lambda) String() string      { return "<lambda>" }

// Proc is a procedure without a captured environment.
type Proc struct {
	Body bytecode.Procedure
}

func (Proc) Type() bytecode.Type { return bytecode.TProc }
func (Proc) String() string      { return "<proc>" }

// Inst reifies a single opcode as data; it is the product of recording.
type Inst struct {
	Op bytecode.Op
}

func (Inst) Type() bytecode.Type { return bytecode.TInst }
func (i Inst) String() string    { return i.Op.String() }

type Str string

func (Str) Type() bytecode.Type { return bytecode.TStr }
func (s Str) String() string    { return string(s) }

type Int uint32

func (Int) Type() bytecode.Type { return bytecode.TInt }
func (i Int) String() string    { return fmt.Sprintf("%d", uint32(i)) }

type Char byte

func (Char) Type() bytecode.Type { return bytecode.TChar }
func (c Char) String() string    { return string(rune(c)) }

type Bool bool

func (Bool) Type() bytecode.Type { return bytecode.TBool }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

type Nil struct{}

func (Nil) Type() bytecode.Type { return bytecode.TNil }
func (Nil) String() string      { return "nil" }

// Pair is a cons cell with boxed children.
type Pair struct {
	Car, Cdr Value
}

func (Pair) Type() bytecode.Type { return bytecode.TPair }
func (p Pair) String() string    { return fmt.Sprintf("(%s . %s)", p.Car, p.Cdr) }

// Deref unwraps a Pointer by one hop; every other variant is returned
// unchanged. Idempotent: Deref(Deref(v)) == Deref(v).
func Deref(v Value) Value {
	if p, ok := v.(Pointer); ok {
		return p.Box.V
	}
	return v
}

// IsTrue reports whether v is exactly Bool(true) after deref.
func IsTrue(v Value) bool {
	b, ok := Deref(v).(Bool)
	return ok && bool(b)
}

// IsFalse reports whether v is exactly Bool(false) after deref.
func IsFalse(v Value) bool {
	b, ok := Deref(v).(Bool)
	return ok && !bool(b)
}

// IsTruthy implements the branch instructions' "not false" rule: anything
// other than Bool(false), including Nil, is truthy.
func IsTruthy(v Value) bool {
	return !IsFalse(v)
}

// Convert renders v as the requested type. Only Str is currently
// supported as a target.
func Convert(v Value, t bytecode.Type) (Value, error) {
	switch t {
	case bytecode.TStr:
		if i, ok := Deref(v).(Int); ok {
			return Str(fmt.Sprintf("%d", uint32(i))), nil
		}
		return Str(fmt.Sprintf("%v", Deref(v))), nil
	default:
		return nil, &errors.IllegalConversion{From: Deref(v).Type(), To: t}
	}
}

func asInt(v Value) (Int, bool) {
	i, ok := Deref(v).(Int)
	return i, ok
}

// Add, Sub, Mul, Div require both operands to be Int after deref. Division
// by zero fails; other overflow follows Go's wraparound uint32 arithmetic.
func Add(a, b Value) (Value, error) { return arith("sum", a, b, func(x, y uint32) (uint32, error) { return x + y, nil }) }
func Sub(a, b Value) (Value, error) {
	return arith("subtraction", a, b, func(x, y uint32) (uint32, error) { return x - y, nil })
}
func Mul(a, b Value) (Value, error) {
	return arith("multiplication", a, b, func(x, y uint32) (uint32, error) { return x * y, nil })
}
func Div(a, b Value) (Value, error) {
	return arith("division", a, b, func(x, y uint32) (uint32, error) {
		if y == 0 {
			return 0, &errors.BadOperandTypes{Op: "division", A: bytecode.TInt, B: bytecode.TInt}
		}
		return x / y, nil
	})
}

func arith(name string, a, b Value, op func(x, y uint32) (uint32, error)) (Value, error) {
	ai, aok := asInt(a)
	bi, bok := asInt(b)
	if !aok || !bok {
		return nil, &errors.BadOperandTypes{Op: name, A: Deref(a).Type(), B: Deref(b).Type()}
	}
	r, err := op(uint32(ai), uint32(bi))
	if err != nil {
		return nil, err
	}
	return Int(r), nil
}

// Ordering is the result of Cmp.
type Ordering int

const (
	Less Ordering = iota - 1
	Equal
	Greater
)

// Cmp is defined on two Ints (natural order) and on Nil/Nil (equal). All
// other pairings fail.
func Cmp(a, b Value) (Ordering, error) {
	da, db := Deref(a), Deref(b)
	if ai, ok := da.(Int); ok {
		if bi, ok := db.(Int); ok {
			switch {
			case ai < bi:
				return Less, nil
			case ai > bi:
				return Greater, nil
			default:
				return Equal, nil
			}
		}
	}
	if _, ok := da.(Nil); ok {
		if _, ok := db.(Nil); ok {
			return Equal, nil
		}
	}
	return 0, &errors.BadOperandTypes{Op: "ordering", A: da.Type(), B: db.Type()}
}

func Gt(a, b Value) (bool, error) {
	o, err := Cmp(a, b)
	return o == Greater, err
}

func Lt(a, b Value) (bool, error) {
	o, err := Cmp(a, b)
	return o == Less, err
}

// Eq falls back to Cmp == Equal except for two Strs, which compare by
// contents.
func Eq(a, b Value) (bool, error) {
	da, db := Deref(a), Deref(b)
	if sa, ok := da.(Str); ok {
		if sb, ok := db.(Str); ok {
			return sa == sb, nil
		}
	}
	o, err := Cmp(a, b)
	return o == Equal, err
}

// Equal is structural equality: recursive on Pair, by contents on Str, by
// value on other primitives, on a Lambda by equal body plus shared
// identity of the captured Environment, and by single-hop deref for
// Pointer on all of the above.
func Equal(a, b Value) bool {
	da, db := Deref(a), Deref(b)
	if pa, ok := da.(Pair); ok {
		if pb, ok := db.(Pair); ok {
			return Equal(pa.Car, pb.Car) && Equal(pa.Cdr, pb.Cdr)
		}
		return false
	}
	switch x := da.(type) {
	case Bool:
		y, ok := db.(Bool)
		return ok && x == y
	case Char:
		y, ok := db.(Char)
		return ok && x == y
	case Lambda:
		y, ok := db.(Lambda)
		return ok && x.Env.Equal(y.Env) && reflect.DeepEqual(x.Body, y.Body)
	}
	ok, err := Eq(da, db)
	return err == nil && ok
}
