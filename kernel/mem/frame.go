package mem

import (
	"math"

	"github.com/MelloOS/MelloOS/kernel"
)

// Frame describes a physical memory page index.
type Frame uintptr

// InvalidFrame is returned by frame allocators when no frame can be
// reserved.
const InvalidFrame = Frame(math.MaxUint64)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address of the first byte of this
// frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame containing the given physical address.
// Addresses that are not page-aligned are rounded down.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^uintptr(PageSize-1)) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address of the first byte of this page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns the Page containing the given virtual address.
// Addresses that are not page-aligned are rounded down.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^uintptr(PageSize-1)) >> PageShift)
}

// FrameAllocatorFn allocates a zeroed physical frame.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// FrameFreeFn releases a previously allocated physical frame.
type FrameFreeFn func(Frame)

var (
	frameAllocator FrameAllocatorFn
	frameFree      FrameFreeFn
)

// SetFrameAllocator registers the functions used whenever kernel code needs
// to allocate or release physical frames (e.g. the vmm package allocating
// intermediate page-table frames).
func SetFrameAllocator(allocFn FrameAllocatorFn, freeFn FrameFreeFn) {
	frameAllocator = allocFn
	frameFree = freeFn
}

// AllocFrame reserves a zeroed physical frame using the registered frame
// allocator.
func AllocFrame() (Frame, *kernel.Error) {
	return frameAllocator()
}

// FreeFrame returns a physical frame to the registered frame allocator.
func FreeFrame(frame Frame) {
	frameFree(frame)
}
