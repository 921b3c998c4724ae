// Package pool recycles landmark buffers allocated inside a compiled
// module so the classification hot path does not call malloc per frame.
package pool

import (
	"go.uber.org/multierr"

	"github.com/ayusman/mudra/internal/module"
)

// DefaultBound is the number of idle buffers retained.
const DefaultBound = 5

// Allocator is the slice of module.Module the pool needs.
type Allocator interface {
	Malloc(size uint32) (uint32, error)
	Free(addr uint32) error
}

// Handle is the address of a buffer in the module's memory.
type Handle uint32

// Pool hands out fixed-size buffers. It is not safe for concurrent use;
// callers serialize access. Using a pool after DisposeAll panics.
type Pool struct {
	alloc    Allocator
	size     uint32
	bound    int
	idle     []Handle
	live     int
	disposed bool
}

// New creates a pool of buffers of size bytes. A bound below 1 uses
// DefaultBound.
func New(alloc Allocator, size uint32, bound int) *Pool {
	if bound < 1 {
		bound = DefaultBound
	}
	if size == 0 {
		size = module.HandBufferSize
	}
	return &Pool{alloc: alloc, size: size, bound: bound, idle: make([]Handle, 0, bound)}
}

// Acquire returns an idle buffer or allocates a new one.
func (p *Pool) Acquire() (Handle, error) {
	p.checkAlive()
	if n := len(p.idle); n > 0 {
		h := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return h, nil
	}
	addr, err := p.alloc.Malloc(p.size)
	if err != nil {
		return 0, err
	}
	p.live++
	return Handle(addr), nil
}

// Release returns h to the pool, freeing it when the pool is full.
func (p *Pool) Release(h Handle) error {
	p.checkAlive()
	if len(p.idle) < p.bound {
		p.idle = append(p.idle, h)
		return nil
	}
	if err := p.alloc.Free(uint32(h)); err != nil {
		return err
	}
	p.live--
	return nil
}

// DisposeAll frees every idle buffer and retires the pool.
func (p *Pool) DisposeAll() error {
	p.checkAlive()
	var err error
	for _, h := range p.idle {
		if freeErr := p.alloc.Free(uint32(h)); freeErr != nil {
			err = multierr.Append(err, freeErr)
			continue
		}
		p.live--
	}
	p.idle = nil
	p.disposed = true
	return err
}

// Idle returns the number of buffers waiting for reuse.
func (p *Pool) Idle() int {
	return len(p.idle)
}

// Outstanding returns the number of buffers allocated through the pool
// and not yet freed, idle or in use.
func (p *Pool) Outstanding() int {
	return p.live
}

// BufferSize returns the size of each buffer in bytes.
func (p *Pool) BufferSize() uint32 {
	return p.size
}

func (p *Pool) checkAlive() {
	if p.disposed {
		panic("pool: use after DisposeAll")
	}
}
