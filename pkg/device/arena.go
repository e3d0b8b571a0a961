package device

import (
	"errors"
	"sync"
)

// Block is a fixed-size state block handed out by an Arena.
type Block interface {
	// Reset zeroes the block.
	Reset()
}

// ErrForeignBlock indicates a block not allocated from the arena (or
// already freed) was returned to it.
var ErrForeignBlock = errors.New("block not allocated from this pool")

// Arena is a fixed-capacity allocator. All blocks are created up front
// and the arena never grows.
type Arena struct {
	name   string
	blocks []Block
	free   []int
	used   map[Block]int
	lock   sync.Mutex
}

// NewArena creates an arena with capacity blocks created by newBlock.
func NewArena(name string, capacity int, newBlock func() Block) *Arena {
	a := &Arena{
		name:   name,
		blocks: make([]Block, capacity),
		free:   make([]int, 0, capacity),
		used:   make(map[Block]int, capacity),
	}
	for n := range a.blocks {
		a.blocks[n] = newBlock()
	}
	// hand out low indices first
	for n := capacity - 1; n >= 0; n-- {
		a.free = append(a.free, n)
	}
	return a
}

// Name returns the pool name.
func (a *Arena) Name() string {
	return a.name
}

// Cap returns the fixed capacity.
func (a *Arena) Cap() int {
	return len(a.blocks)
}

// InUse returns the number of allocated blocks.
func (a *Arena) InUse() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return len(a.used)
}

// Alloc returns a zeroed block.
func (a *Arena) Alloc() (Block, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if len(a.free) == 0 {
		return nil, &PoolError{Pool: a.name, Capacity: len(a.blocks), Err: ErrPoolExhausted}
	}
	index := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	b := a.blocks[index]
	b.Reset()
	a.used[b] = index
	return b, nil
}

// Free zeroes the block and returns it to the arena.
func (a *Arena) Free(b Block) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	index, ok := a.used[b]
	if !ok {
		return &PoolError{Pool: a.name, Capacity: len(a.blocks), Err: ErrForeignBlock}
	}
	delete(a.used, b)
	b.Reset()
	a.free = append(a.free, index)
	return nil
}

// Reinit frees every block at once.
func (a *Arena) Reinit() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.free = a.free[:0]
	for n := len(a.blocks) - 1; n >= 0; n-- {
		a.blocks[n].Reset()
		a.free = append(a.free, n)
	}
	a.used = make(map[Block]int, len(a.blocks))
}
