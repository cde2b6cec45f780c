package vm

import (
	"io"
	"log"
	"os"

	"github.com/google/uuid"

	"wisp/internal/bytecode"
	"wisp/internal/errors"
	"wisp/internal/memory"
)

// Job is a single operand-stack-driven execution context: one per VM
// today (the design reserves a vector of jobs, sequentially invoked; a
// second job would simply be another *Job sharing the VM's environment).
type Job struct {
	id        uuid.UUID
	env       memory.Environment
	stack     []memory.Value
	recording uint32
	logger    *log.Logger
	out       io.Writer
}

func newJob(env memory.Environment, logger *log.Logger) *Job {
	return &Job{id: uuid.New(), env: env, logger: logger, out: os.Stdout}
}

func (j *Job) logf(format string, args ...any) {
	if j.logger != nil {
		j.logger.Printf(format, args...)
	}
}

func (j *Job) push(v memory.Value) { j.stack = append(j.stack, v) }

func (j *Job) pop() (memory.Value, errors.Err) {
	if len(j.stack) == 0 {
		return nil, &errors.IllegalRegisterPop{}
	}
	v := j.stack[len(j.stack)-1]
	j.stack = j.stack[:len(j.stack)-1]
	return v, nil
}

// popN pops n values in LIFO order, then reverses them so the returned
// slice is in the values' original, bottom-to-top push order. Every
// batch opcode (CAT, CGT/CLT/CEQ, CNV, CAR/CDR, ADD/SUB/MUL/DIV) depends
// on this: it is what original_source/src/vm/mod.rs's
// `reg_stack.split_off(n)` gives for free, since split_off preserves the
// tail segment's original relative order rather than reversing it.
func (j *Job) popN(n int) ([]memory.Value, errors.Err) {
	if n < 0 || n > len(j.stack) {
		return nil, &errors.IllegalRegisterPop{}
	}
	out := make([]memory.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := j.pop()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func quantif(n *bytecode.Quantif, def uint32) uint32 {
	if n == nil {
		return def
	}
	return uint32(*n)
}

// Call resolves id against the job's environment and invokes it: this is
// the VM API's external entry point as well as the implementation of the
// CLL id opcode.
func (j *Job) Call(id bytecode.IdentID) (memory.Value, *errors.RuntimeError) {
	binding, err := j.env.Get(id)
	if err != nil {
		return nil, errors.New(j.id, nil, nil, err)
	}

	target := memory.Deref(binding)
	var proc bytecode.Procedure
	savedEnv := j.env

	switch t := target.(type) {
	case memory.Proc:
		proc = t.Body
	case memory.Lambda:
		proc = t.Body
		j.env = t.Env.Clone()
	default:
		return nil, errors.New(j.id, nil, nil, &errors.TypeError{Expected: bytecode.TLambda, Actual: target.Type()})
	}

	j.env.NewFrame()
	runErr := j.execute(proc)
	popErr := j.env.PopFrame()
	j.env = savedEnv

	if runErr != nil {
		return nil, runErr
	}
	if popErr != nil {
		return nil, errors.New(j.id, nil, nil, popErr)
	}

	result, rerr := j.pop()
	if rerr != nil {
		return nil, errors.New(j.id, nil, nil, rerr)
	}
	return result, nil
}

// execute dispatches every op in proc in order, honoring the recording
// counter, and wraps any opcode failure with the failing instruction and
// its ordinal.
func (j *Job) execute(proc bytecode.Procedure) *errors.RuntimeError {
	for i := range proc.Ops {
		op := proc.Ops[i]
		if j.recording > 0 {
			j.push(memory.Inst{Op: op})
			j.recording--
			continue
		}
		if err := j.runInstruction(op); err != nil {
			ordinal := i
			return errors.New(j.id, &op, &ordinal, err)
		}
	}
	return nil
}

// runInPlace executes proc against the job's current stack and
// environment with no frame push/pop, as IFT/IFE branches require.
// Failures are wrapped in RuntimeErrorInSubJob so the caller's own
// execute loop can re-wrap with the IFT/IFE instruction's own context.
func (j *Job) runInPlace(proc bytecode.Procedure) errors.Err {
	if err := j.execute(proc); err != nil {
		return &errors.RuntimeErrorInSubJob{Inner: err}
	}
	return nil
}

func procOf(v memory.Value) (bytecode.Procedure, bool) {
	switch t := memory.Deref(v).(type) {
	case memory.Proc:
		return t.Body, true
	case memory.Lambda:
		return t.Body, true
	default:
		return bytecode.Procedure{}, false
	}
}

func instOf(v memory.Value) (bytecode.Op, bool) {
	if i, ok := memory.Deref(v).(memory.Inst); ok {
		return i.Op, true
	}
	return bytecode.Op{}, false
}

func pairOf(v memory.Value) (memory.Pair, bool) {
	p, ok := memory.Deref(v).(memory.Pair)
	return p, ok
}

func strOf(v memory.Value) (memory.Str, bool) {
	s, ok := memory.Deref(v).(memory.Str)
	return s, ok
}

// runInstruction implements the per-opcode semantics of §4.5. It returns
// an errors.Err (never a *RuntimeError): the caller attaches instruction
// context.
func (j *Job) runInstruction(op bytecode.Op) errors.Err {
	switch op.Code {
	case bytecode.PSS:
		j.env.NewFrame()
		return nil

	case bytecode.PPS:
		return j.env.PopFrame()

	case bytecode.REC:
		j.recording = quantif(op.N, 1)
		return nil

	case bytecode.LMB, bytecode.PRC:
		n := int(quantif(op.N, 1))
		vals, err := j.popN(n)
		if err != nil {
			return err
		}
		ops := make([]bytecode.Op, n)
		for i, v := range vals {
			inst, ok := instOf(v)
			if !ok {
				return &errors.TypeError{Expected: bytecode.TInst, Actual: memory.Deref(v).Type()}
			}
			ops[i] = inst
		}
		proc := bytecode.Procedure{Ops: ops}
		if op.Code == bytecode.LMB {
			j.push(memory.Lambda{Body: proc, Env: j.env.Clone()})
		} else {
			j.push(memory.Proc{Body: proc})
		}
		return nil

	case bytecode.DVR:
		var v memory.Value
		if op.Val != nil {
			cv, err := j.env.Consts().Get(*op.Val)
			if err != nil {
				return err
			}
			v = cv
		} else {
			pv, err := j.pop()
			if err != nil {
				return err
			}
			v = pv
		}
		if op.Ident == nil {
			return &errors.BadScopeIndex{Index: -1}
		}
		j.env.Define(*op.Ident, v)
		if !op.Mute {
			bound, err := j.env.Get(*op.Ident)
			if err != nil {
				return err
			}
			j.push(bound)
		}
		return nil

	case bytecode.LVR:
		if op.Val != nil {
			v, err := j.env.Consts().Get(*op.Val)
			if err != nil {
				return err
			}
			j.push(v)
			return nil
		}
		if op.Ident == nil {
			return &errors.BadScopeIndex{Index: -1}
		}
		v, err := j.env.Get(*op.Ident)
		if err != nil {
			return err
		}
		j.push(v)
		return nil

	case bytecode.IFT, bytecode.IFE:
		cond, err := j.pop()
		if err != nil {
			return err
		}
		var elseProc bytecode.Procedure
		haveElse := false
		if op.Code == bytecode.IFE {
			ev, err := j.pop()
			if err != nil {
				return err
			}
			p, ok := procOf(ev)
			if !ok {
				return &errors.TypeError{Expected: bytecode.TProc, Actual: memory.Deref(ev).Type()}
			}
			elseProc = p
			haveElse = true
		}
		tv, err := j.pop()
		if err != nil {
			return err
		}
		thenProc, ok := procOf(tv)
		if !ok {
			return &errors.TypeError{Expected: bytecode.TProc, Actual: memory.Deref(tv).Type()}
		}
		if memory.IsTruthy(cond) {
			return j.runInPlace(thenProc)
		}
		if haveElse {
			return j.runInPlace(elseProc)
		}
		return nil

	case bytecode.CGT, bytecode.CLT, bytecode.CEQ:
		n := int(quantif(op.N, 1))
		vals, err := j.popN(n)
		if err != nil {
			return err
		}
		result := true
		for i := 1; i < len(vals); i++ {
			var ok bool
			var cerr error
			switch op.Code {
			case bytecode.CGT:
				ok, cerr = memory.Gt(vals[i-1], vals[i])
			case bytecode.CLT:
				ok, cerr = memory.Lt(vals[i-1], vals[i])
			default:
				ok, cerr = memory.Eq(vals[i-1], vals[i])
			}
			if cerr != nil {
				if verr, isErr := cerr.(errors.Err); isErr {
					return verr
				}
				return &errors.BadOperandTypes{Op: "compare", A: memory.Deref(vals[i-1]).Type(), B: memory.Deref(vals[i]).Type()}
			}
			if !ok {
				result = false
				break
			}
		}
		j.push(memory.Bool(result))
		return nil

	case bytecode.CNT:
		// Reserved, no defined semantics (spec.md §9 design notes): treated
		// as a no-op rather than an error so a unit that emits it degrades
		// gracefully instead of aborting the whole job.
		return nil

	case bytecode.CLL:
		if op.Ident != nil {
			result, rerr := j.Call(*op.Ident)
			if rerr != nil {
				return &errors.RuntimeErrorInSubJob{Inner: rerr}
			}
			j.push(result)
			return nil
		}
		n := int(quantif(op.N, 1))
		vals, err := j.popN(n)
		if err != nil {
			return err
		}
		ops := make([]bytecode.Op, n)
		for i, v := range vals {
			inst, ok := instOf(v)
			if !ok {
				return &errors.TypeError{Expected: bytecode.TInst, Actual: memory.Deref(v).Type()}
			}
			ops[i] = inst
		}
		proc := bytecode.Procedure{Ops: ops}
		j.env.NewFrame()
		runErr := j.execute(proc)
		popErr := j.env.PopFrame()
		if runErr != nil {
			return &errors.RuntimeErrorInSubJob{Inner: runErr}
		}
		if popErr != nil {
			return popErr
		}
		result, rerr := j.pop()
		if rerr != nil {
			return rerr
		}
		j.push(result)
		return nil

	case bytecode.CNV:
		typ := bytecode.TStr
		if op.Typ != nil {
			typ = *op.Typ
		}
		if op.Ident != nil {
			v, err := j.env.Get(*op.Ident)
			if err != nil {
				return err
			}
			cv, cerr := memory.Convert(v, typ)
			if cerr != nil {
				return cerr.(errors.Err)
			}
			j.push(cv)
			return nil
		}
		n := int(quantif(op.N, 1))
		vals, err := j.popN(n)
		if err != nil {
			return err
		}
		for _, v := range vals {
			cv, cerr := memory.Convert(v, typ)
			if cerr != nil {
				return cerr.(errors.Err)
			}
			j.push(cv)
		}
		return nil

	case bytecode.CAT:
		n := int(quantif(op.N, 1))
		vals, err := j.popN(n)
		if err != nil {
			return err
		}
		var out string
		for _, v := range vals {
			s, ok := strOf(v)
			if !ok {
				return &errors.TypeError{Expected: bytecode.TStr, Actual: memory.Deref(v).Type()}
			}
			out += string(s)
		}
		j.push(memory.Str(out))
		return nil

	case bytecode.CNS:
		car, err := j.pop()
		if err != nil {
			return err
		}
		cdr, err := j.pop()
		if err != nil {
			return err
		}
		j.push(memory.Pair{Car: car, Cdr: cdr})
		return nil

	case bytecode.CAR, bytecode.CDR:
		var vals []memory.Value
		if op.Ident != nil {
			v, err := j.env.Get(*op.Ident)
			if err != nil {
				return err
			}
			vals = []memory.Value{v}
		} else {
			n := int(quantif(op.N, 1))
			vs, err := j.popN(n)
			if err != nil {
				return err
			}
			vals = vs
		}
		for _, v := range vals {
			p, ok := pairOf(v)
			if !ok {
				return &errors.TypeError{Expected: bytecode.TPair, Actual: memory.Deref(v).Type()}
			}
			if op.Code == bytecode.CAR {
				j.push(p.Car)
			} else {
				j.push(p.Cdr)
			}
		}
		return nil

	case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV:
		fold := map[bytecode.OpCode]func(a, b memory.Value) (memory.Value, error){
			bytecode.ADD: memory.Add,
			bytecode.SUB: memory.Sub,
			bytecode.MUL: memory.Mul,
			bytecode.DIV: memory.Div,
		}[op.Code]

		if op.Ident != nil {
			a, err := j.env.Get(*op.Ident)
			if err != nil {
				return err
			}
			b, perr := j.pop()
			if perr != nil {
				return perr
			}
			r, ferr := fold(a, b)
			if ferr != nil {
				return ferr.(errors.Err)
			}
			j.push(r)
			return nil
		}

		n := int(quantif(op.N, 1))
		vals, err := j.popN(n)
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			j.push(memory.Nil{})
			return nil
		}
		acc := vals[0]
		for _, v := range vals[1:] {
			r, ferr := fold(acc, v)
			if ferr != nil {
				return ferr.(errors.Err)
			}
			acc = r
		}
		j.push(acc)
		return nil

	case bytecode.DSP:
		v, err := j.pop()
		if err != nil {
			return err
		}
		s, ok := strOf(v)
		if !ok {
			return &errors.TypeError{Expected: bytecode.TStr, Actual: memory.Deref(v).Type()}
		}
		j.logf("dsp: %d bytes", len(s))
		io.WriteString(j.out, string(s))
		if !op.Mute {
			j.push(memory.Nil{})
		}
		return nil

	default:
		return &errors.BadScopeIndex{Index: int(op.Code)}
	}
}
