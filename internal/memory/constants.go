package memory

import (
	"sync"

	"wisp/internal/bytecode"
	"wisp/internal/errors"
)

// Constants is the append-only pool shared by every unit loaded into a
// VM. A unit compiled in isolation addresses its own constants starting
// at 0; the loader rebases those offsets onto the shared pool at load
// time (see module.Load), so by the time a ConstID reaches Get it is
// already a global index.
type Constants struct {
	mu   sync.Mutex
	pool []*Box
}

// NewConstants returns an empty pool.
func NewConstants() *Constants {
	return &Constants{}
}

// Load appends v to the pool and returns its id.
func (c *Constants) Load(v Value) bytecode.ConstID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := bytecode.ConstID(len(c.pool))
	c.pool = append(c.pool, &Box{V: v})
	return id
}

// Len reports how many constants have been loaded, used by the loader to
// compute a unit's offset into the shared pool.
func (c *Constants) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pool)
}

// Get resolves id to a Pointer aliasing the pool's Box.
func (c *Constants) Get(id bytecode.ConstID) (Value, errors.Err) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(id) < 0 || int(id) >= len(c.pool) {
		return nil, &errors.ConstantNotFound{ID: id}
	}
	return Pointer{Box: c.pool[id]}, nil
}
