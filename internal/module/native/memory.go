package native

import (
	"sort"

	"github.com/pkg/errors"
)

// PageSize is the granularity in which linear memory grows.
const PageSize = 64 * 1024

// heapBase is the first address handed out by the allocator; address 0 is
// never valid.
const heapBase = 1024

const align = 8

// linearMemory is a growable byte slice addressed by uint32 offsets.
type linearMemory struct {
	buf      []byte
	maxPages uint32
}

func newLinearMemory(pages, maxPages uint32) *linearMemory {
	return &linearMemory{buf: make([]byte, pages*PageSize), maxPages: maxPages}
}

func (m *linearMemory) Size() uint32 {
	return uint32(len(m.buf))
}

func (m *linearMemory) Write(addr uint32, data []byte) error {
	if uint64(addr)+uint64(len(data)) > uint64(len(m.buf)) {
		return errors.Errorf("write of %d bytes at %#x out of bounds (size %d)", len(data), addr, len(m.buf))
	}
	copy(m.buf[addr:], data)
	return nil
}

func (m *linearMemory) Read(addr, size uint32) ([]byte, error) {
	if uint64(addr)+uint64(size) > uint64(len(m.buf)) {
		return nil, errors.Errorf("read of %d bytes at %#x out of bounds (size %d)", size, addr, len(m.buf))
	}
	out := make([]byte, size)
	copy(out, m.buf[addr:addr+size])
	return out, nil
}

// grow adds pages until the memory holds at least size bytes.
func (m *linearMemory) grow(size uint32) error {
	pages := (uint64(size) + PageSize - 1) / PageSize
	if pages > uint64(m.maxPages) {
		return errors.Errorf("memory limit reached: need %d pages, max %d", pages, m.maxPages)
	}
	if uint64(len(m.buf)) >= pages*PageSize {
		return nil
	}
	grown := make([]byte, pages*PageSize)
	copy(grown, m.buf)
	m.buf = grown
	return nil
}

type span struct {
	addr uint32
	size uint32
}

// allocator is a first-fit allocator over a linearMemory. Freed blocks are
// coalesced with their neighbours.
type allocator struct {
	mem       *linearMemory
	top       uint32
	free      []span // sorted by addr
	allocated map[uint32]uint32
}

func newAllocator(mem *linearMemory) *allocator {
	return &allocator{mem: mem, top: heapBase, allocated: make(map[uint32]uint32)}
}

func (a *allocator) malloc(size uint32) (uint32, error) {
	if size == 0 {
		return 0, errors.New("malloc of zero bytes")
	}
	size = (size + align - 1) &^ (align - 1)

	for i, s := range a.free {
		if s.size < size {
			continue
		}
		if s.size == size {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = span{addr: s.addr + size, size: s.size - size}
		}
		a.allocated[s.addr] = size
		return s.addr, nil
	}

	end := uint64(a.top) + uint64(size)
	if end > uint64(^uint32(0)) {
		return 0, errors.New("address space exhausted")
	}
	if err := a.mem.grow(uint32(end)); err != nil {
		return 0, errors.Wrapf(err, "malloc %d bytes", size)
	}
	addr := a.top
	a.top = uint32(end)
	a.allocated[addr] = size
	return addr, nil
}

func (a *allocator) release(addr uint32) error {
	size, ok := a.allocated[addr]
	if !ok {
		return errors.Errorf("free of unallocated address %#x", addr)
	}
	delete(a.allocated, addr)

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].addr > addr })
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = span{addr: addr, size: size}

	// Merge with the following span, then with the preceding one.
	if i+1 < len(a.free) && a.free[i].addr+a.free[i].size == a.free[i+1].addr {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].addr+a.free[i-1].size == a.free[i].addr {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}

	// Give a trailing free span back to the bump pointer.
	if n := len(a.free); n > 0 && a.free[n-1].addr+a.free[n-1].size == a.top {
		a.top = a.free[n-1].addr
		a.free = a.free[:n-1]
	}
	return nil
}

func (a *allocator) live() int {
	return len(a.allocated)
}
