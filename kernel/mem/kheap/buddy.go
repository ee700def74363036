// Package kheap implements the kernel heap: a buddy-system allocator over a
// fixed 16MB virtual arena. Blocks are powers of two between 64 bytes
// (order 0) and 1MB (order 14); each order keeps an intrusive free list
// threaded through the free blocks themselves, so the allocator needs no
// side storage. Callers must pass the original allocation size to Kfree:
// no per-block metadata is kept, and size mismatches, double frees and
// use-after-free are documented hazards that the allocator does not defend
// against.
package kheap

import (
	"unsafe"

	"github.com/MelloOS/MelloOS/kernel"
	"github.com/MelloOS/MelloOS/kernel/kfmt"
	"github.com/MelloOS/MelloOS/kernel/mem"
	"github.com/MelloOS/MelloOS/kernel/sync"
)

const (
	// ArenaSize is the fixed size of the heap's virtual arena.
	ArenaSize = 16 * mem.Mb

	// minBlockShift is log2 of the smallest block size (64 bytes).
	minBlockShift = 6

	// maxOrder is the largest block order; 64B << 14 = 1MB.
	maxOrder = 14

	numOrders = maxOrder + 1
)

var (
	// ErrOutOfMemory is returned when no free block of a sufficient
	// order exists at any level (exhaustion or fragmentation).
	ErrOutOfMemory = &kernel.Error{Module: "kheap", Message: "no free block large enough"}

	// ErrInvalidArgument is returned for zero-size requests, requests
	// beyond the maximum block size and misaligned frees.
	ErrInvalidArgument = &kernel.Error{Module: "kheap", Message: "invalid size or address"}

	mmLog = &kfmt.PrefixWriter{Sink: kfmt.Output, Prefix: []byte("[MM] ")}

	// heap is the singleton allocator instance; initialized once, never
	// torn down.
	heap Allocator
)

// Allocator is a buddy-system allocator over a fixed arena. Two blocks of
// equal order are buddies when their arena offsets differ only in the bit
// equal to their block size; a freed block merges with its buddy whenever
// the buddy is also free, repeatedly, until the buddy is in use or the
// maximum order is reached.
type Allocator struct {
	lock sync.IrqSpinlock

	// start is the virtual address of the first arena byte.
	start uintptr

	// freeLists holds the head block address per order; 0 means empty.
	freeLists [numOrders]uintptr

	// allocated tracks the total size of live allocations, counted in
	// block sizes.
	allocated mem.Size
}

// Init places the heap arena at the given virtual address, which must be
// aligned to the maximum block size. The backing pages must already be
// mapped. The arena starts out as a run of free maximum-order blocks.
func Init(arenaStart uintptr) *kernel.Error {
	if err := heap.init(arenaStart); err != nil {
		return err
	}
	kfmt.Fprintf(mmLog, "heap arena at 0x%16x, size %dMB, orders %d..%d (64B..1MB)\n",
		uint64(arenaStart), uint64(ArenaSize/mem.Mb), 0, maxOrder)
	return nil
}

// Kmalloc allocates a zeroed block of the smallest order that covers size.
func Kmalloc(size mem.Size) (uintptr, *kernel.Error) {
	return heap.Kmalloc(size)
}

// Kfree releases the block at addr. size must be the size passed to the
// matching Kmalloc call; the order is recomputed from it.
func Kfree(addr uintptr, size mem.Size) *kernel.Error {
	return heap.Kfree(addr, size)
}

// AllocatedBytes returns the total size of live allocations.
func AllocatedBytes() mem.Size {
	heap.lock.Acquire()
	allocated := heap.allocated
	heap.lock.Release()
	return allocated
}

func blockSize(order int) uintptr {
	return uintptr(1) << (minBlockShift + order)
}

// orderForSize returns the smallest order whose block size covers size.
func orderForSize(size mem.Size) (int, *kernel.Error) {
	if size == 0 || size > mem.Size(blockSize(maxOrder)) {
		return 0, ErrInvalidArgument
	}

	for order := 0; order <= maxOrder; order++ {
		if mem.Size(blockSize(order)) >= size {
			return order, nil
		}
	}

	return 0, ErrInvalidArgument
}

func (a *Allocator) init(arenaStart uintptr) *kernel.Error {
	if arenaStart == 0 || arenaStart&(blockSize(maxOrder)-1) != 0 {
		return ErrInvalidArgument
	}

	a.start = arenaStart
	a.allocated = 0
	for order := range a.freeLists {
		a.freeLists[order] = 0
	}

	for offset := uintptr(0); offset < uintptr(ArenaSize); offset += blockSize(maxOrder) {
		a.push(maxOrder, arenaStart+offset)
	}

	return nil
}

// Kmalloc rounds size up to the smallest covering order and services the
// request from that order's free list, splitting the smallest available
// larger block downward when the list is empty. The returned block is
// zeroed.
func (a *Allocator) Kmalloc(size mem.Size) (uintptr, *kernel.Error) {
	order, err := orderForSize(size)
	if err != nil {
		return 0, err
	}

	a.lock.Acquire()

	// Find the smallest order >= the target with a free block.
	from := order
	for from <= maxOrder && a.freeLists[from] == 0 {
		from++
	}
	if from > maxOrder {
		a.lock.Release()
		return 0, ErrOutOfMemory
	}

	block := a.pop(from)

	// Split downward, parking the upper half of each split on its own
	// free list.
	for from > order {
		from--
		a.push(from, block+blockSize(from))
	}

	a.allocated += mem.Size(blockSize(order))
	a.lock.Release()

	mem.Memset(block, 0, mem.Size(blockSize(order)))
	return block, nil
}

// Kfree recomputes the block order from the caller-supplied size, returns
// the block to its free list and coalesces it with its buddy as far up as
// possible.
func (a *Allocator) Kfree(addr uintptr, size mem.Size) *kernel.Error {
	order, err := orderForSize(size)
	if err != nil {
		return err
	}

	offset := addr - a.start
	if addr < a.start || offset >= uintptr(ArenaSize) || offset&(blockSize(order)-1) != 0 {
		return ErrInvalidArgument
	}

	a.lock.Acquire()
	a.allocated -= mem.Size(blockSize(order))

	for order < maxOrder {
		buddy := a.start + (offset ^ blockSize(order))
		if !a.remove(order, buddy) {
			break
		}

		// The merged block starts at the lower of the two buddies.
		if buddy < addr {
			addr = buddy
			offset = addr - a.start
		}
		order++
	}

	a.push(order, addr)
	a.lock.Release()
	return nil
}

// nextPtr exposes the intrusive free-list link stored in the first word of
// a free block.
func nextPtr(addr uintptr) *uintptr {
	return (*uintptr)(unsafe.Pointer(addr))
}

func (a *Allocator) push(order int, addr uintptr) {
	*nextPtr(addr) = a.freeLists[order]
	a.freeLists[order] = addr
}

func (a *Allocator) pop(order int) uintptr {
	head := a.freeLists[order]
	a.freeLists[order] = *nextPtr(head)
	return head
}

// remove unlinks addr from the given order's free list, returning false if
// the list does not contain it (i.e. the block is in use or of a different
// order).
func (a *Allocator) remove(order int, addr uintptr) bool {
	prev := &a.freeLists[order]
	for cur := *prev; cur != 0; cur = *prev {
		if cur == addr {
			*prev = *nextPtr(cur)
			return true
		}
		prev = nextPtr(cur)
	}
	return false
}
