// Package errors defines the job interpreter's typed error variants and
// the RuntimeError wrapper that attaches instruction context to them. The
// shape follows the teacher repo's own internal/errors package (a typed
// error carrying structured location/context fields rather than a bare
// string), adapted from source positions to instruction ordinals since
// this core never sees source text.
package errors

import (
	"fmt"

	"github.com/google/uuid"

	"wisp/internal/bytecode"
)

// Err is implemented by every opcode-level failure. It intentionally adds
// nothing beyond the error interface; its only purpose is to keep
// "opcode failed" errors distinguishable from the RuntimeError wrapper
// that carries instruction context, mirroring the Error/RuntimeError split
// in the design this core is based on.
type Err interface {
	error
	vmError()
}

type TypeError struct {
	Expected, Actual bytecode.Type
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("expected type %s but found %s", e.Expected, e.Actual)
}
func (*TypeError) vmError() {}

type VariableNotFound struct {
	Depth int
	ID    bytecode.IdentID
}

func (e *VariableNotFound) Error() string {
	return fmt.Sprintf("variable not found in scope %d: %d", e.Depth, e.ID)
}
func (*VariableNotFound) vmError() {}

type ConstantNotFound struct {
	ID bytecode.ConstID
}

func (e *ConstantNotFound) Error() string {
	return fmt.Sprintf("constant not found: %d", e.ID)
}
func (*ConstantNotFound) vmError() {}

type IllegalStackPop struct{}

func (*IllegalStackPop) Error() string { return "illegal stack frame pop: already in root scope" }
func (*IllegalStackPop) vmError()      {}

type IllegalRegisterPop struct{}

func (*IllegalRegisterPop) Error() string {
	return "illegal register stack pop: not enough items on the operand stack"
}
func (*IllegalRegisterPop) vmError() {}

type IllegalConversion struct {
	From, To bytecode.Type
}

func (e *IllegalConversion) Error() string {
	return fmt.Sprintf("illegal conversion target: from %s to %s", e.From, e.To)
}
func (*IllegalConversion) vmError() {}

type BadOperandTypes struct {
	Op   string
	A, B bytecode.Type
}

func (e *BadOperandTypes) Error() string {
	return fmt.Sprintf("bad operand types: attempted %q on types %s and %s", e.Op, e.A, e.B)
}
func (*BadOperandTypes) vmError() {}

type BadScopeIndex struct {
	Index int
}

func (e *BadScopeIndex) Error() string {
	return fmt.Sprintf("bad scope index: %d", e.Index)
}
func (*BadScopeIndex) vmError() {}

// RuntimeErrorInSubJob wraps a failure that occurred while executing a
// nested body (an IFT/IFE branch, or a CLL n inline body) in-place.
type RuntimeErrorInSubJob struct {
	Inner *RuntimeError
}

func (e *RuntimeErrorInSubJob) Error() string {
	return fmt.Sprintf("error in sub-job: %s", e.Inner)
}
func (*RuntimeErrorInSubJob) vmError() {}
func (e *RuntimeErrorInSubJob) Unwrap() error { return e.Inner }

// RuntimeError wraps an opcode-level Err with the instruction that
// produced it, its ordinal within the running procedure, and the id of
// the job that was executing it. Instruction and Ordinal are both nil
// when the failure occurred outside of instruction dispatch (e.g.
// resolving a call target before a frame has been opened).
type RuntimeError struct {
	Instruction *bytecode.Op
	Ordinal     *int
	Job         uuid.UUID
	Err         Err
}

func (r *RuntimeError) Error() string {
	ord := "?"
	if r.Ordinal != nil {
		ord = fmt.Sprintf("%d", *r.Ordinal)
	}
	instr := "<none>"
	if r.Instruction != nil {
		instr = r.Instruction.String()
	}
	return fmt.Sprintf("job %s: instruction #%s (%s): %s", r.Job, ord, instr, r.Err)
}

func (r *RuntimeError) Unwrap() error { return r.Err }

// New wraps err with instruction context. instr/ordinal may be nil.
func New(job uuid.UUID, instr *bytecode.Op, ordinal *int, err Err) *RuntimeError {
	return &RuntimeError{Instruction: instr, Ordinal: ordinal, Job: job, Err: err}
}
