// Package vm implements the job interpreter: the operand-stack dispatch
// loop that runs a loaded unit's procedure. It is grounded on
// original_source/src/vm/mod.rs's Job/VM split (call resolves a binding,
// swaps in a captured environment for a Lambda, wraps execution in a
// frame push/pop, and pops exactly one result) and on the teacher's
// EnhancedVM (internal/vm/vm.go) for the push/pop/dispatch-loop shape and
// the nil-safe *log.Logger convention used across the teacher's
// subsystems.
package vm

import (
	"io"
	"log"
	"os"
	"sync"

	"wisp/internal/bytecode"
	"wisp/internal/memory"
	"wisp/internal/module"
)

// VM owns the shared constant pool, identifier registry, and global
// environment, plus the jobs that execute against them. The design
// reserves a vector of jobs invoked sequentially; today only job 0 is
// ever created, since nothing in this core spawns additional jobs.
type VM struct {
	mu     sync.Mutex
	consts *memory.Constants
	idents *memory.Registry
	env    memory.Environment
	job    *Job
	logger *log.Logger
	out    io.Writer
}

// Option configures a VM at construction time, the same functional-option
// shape the teacher's command dispatch and module loader build up from.
type Option func(*VM)

// WithLogger attaches a logger for job and dispatch diagnostics. A nil
// logger (the default) silently discards them.
func WithLogger(l *log.Logger) Option {
	return func(v *VM) { v.logger = l }
}

// WithOutput overrides where DSP writes; defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(v *VM) { v.out = w }
}

// New returns a VM with empty state: one root frame, an empty constant
// pool, and an empty identifier registry.
func New(opts ...Option) *VM {
	consts := memory.NewConstants()
	idents := memory.NewRegistry()
	env := memory.New(consts, idents)

	v := &VM{consts: consts, idents: idents, env: env, out: os.Stdout}
	for _, opt := range opts {
		opt(v)
	}
	v.job = newJob(v.env, v.logger)
	if v.out != nil {
		v.job.out = v.out
	}
	return v
}

// Load merges unit into the VM's shared environment under flag and
// returns the global identifier id the unit is now bound under. Load
// takes the VM's single mutex for its whole duration: the design's
// serialization point ("no job may call load while another job is
// executing").
func (v *VM) Load(unit module.Unit, flag module.Flag) (bytecode.IdentID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, err := module.Load(&v.env, unit, flag)
	if err != nil {
		return 0, err
	}
	v.job.env = v.env
	if v.logger != nil {
		v.logger.Printf("loaded unit as ident %d (flag=%v, %d constants, %d idents)",
			id, flag, len(unit.Constants), len(unit.Idents))
	}
	return id, nil
}

// Define binds name directly in the VM's root environment, allocating a
// fresh global id the first time name is seen and reusing it on later
// calls. It gives embedding code a way to register host-provided values
// (native procedures, constants) without round-tripping them through a
// loaded Unit, the same role the teacher's registration hooks play for
// builtins wired into EnhancedVM before any module is loaded.
func (v *VM) Define(name string, value memory.Value) bytecode.IdentID {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, ok := v.idents.Lookup(name)
	if !ok {
		id = v.idents.Fresh()
		v.idents.Bind(name, id)
	}
	v.env.Define(id, value)
	v.job.env = v.env
	return id
}

// Call executes the binding named by id on job 0.
func (v *VM) Call(id bytecode.IdentID) (memory.Value, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	result, rerr := v.job.Call(id)
	if rerr != nil {
		if v.logger != nil {
			v.logger.Printf("job %s failed: %s", rerr.Job, rerr)
		}
		return nil, rerr
	}
	return result, nil
}
