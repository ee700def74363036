// Package mm exposes the memory-management surface consumed by the startup
// glue: InitMemory wires the physical allocator, the page tables and the
// kernel heap together in their required order, and Kmalloc/Kfree delegate
// to the heap.
package mm

import (
	"unsafe"

	"github.com/MelloOS/MelloOS/kernel"
	"github.com/MelloOS/MelloOS/kernel/hal/bootinfo"
	"github.com/MelloOS/MelloOS/kernel/kfmt"
	"github.com/MelloOS/MelloOS/kernel/mem"
	"github.com/MelloOS/MelloOS/kernel/mem/kheap"
	"github.com/MelloOS/MelloOS/kernel/mem/pmm"
	"github.com/MelloOS/MelloOS/kernel/mem/vmm"
)

// kernelHeapBase is the fixed virtual address of the heap arena. The pages
// directly below and above the arena are guard pages: they are deliberately
// never mapped, so heap underflow or overflow raises a page fault instead
// of silently corrupting adjacent memory.
const kernelHeapBase = uintptr(0xffffffff90000000)

var (
	// heapArenaBase is a var so hosted tests can relocate the arena
	// into a Go-managed buffer.
	heapArenaBase = kernelHeapBase

	// Subsystem entry points, swapped out by tests.
	pmmInitFn   = pmm.Init
	vmmInitFn   = vmm.Init
	vmmMapFn    = vmm.Map
	kheapInitFn = kheap.Init
	allocFn     = pmm.AllocFrame

	mmLog = &kfmt.PrefixWriter{Sink: kfmt.Output, Prefix: []byte("[MM] ")}
)

// InitMemory brings up the whole memory subsystem from the boot contract:
// direct map registration, then the frame allocator, then the kernel
// address space, then the heap arena (with its guard pages) and finally the
// buddy allocator on top of it. Any failure is returned to the caller,
// which treats it as fatal for the boot.
func InitMemory(bi *bootinfo.BootInfo) *kernel.Error {
	mem.SetDirectMapOffset(bi.DirectMapOffset)

	if err := pmmInitFn(bi); err != nil {
		return err
	}

	if err := vmmInitFn(bi); err != nil {
		return err
	}

	if err := mapHeapArena(); err != nil {
		return err
	}

	if err := kheapInitFn(heapArenaBase); err != nil {
		return err
	}

	kfmt.Fprintf(mmLog, "guard pages at 0x%16x and 0x%16x\n",
		uint64(heapArenaBase-uintptr(mem.PageSize)),
		uint64(heapArenaBase+uintptr(kheap.ArenaSize)))
	kfmt.Fprintf(mmLog, "memory manager ready (%dMB free)\n", uint64(pmm.FreeMemory()/mem.Mb))
	return nil
}

// Kmalloc allocates a zeroed heap block covering size bytes.
func Kmalloc(size mem.Size) (unsafe.Pointer, *kernel.Error) {
	addr, err := kheap.Kmalloc(size)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(addr), nil
}

// Kfree releases a heap block previously returned by Kmalloc. size must
// match the original request.
func Kfree(ptr unsafe.Pointer, size mem.Size) *kernel.Error {
	return kheap.Kfree(uintptr(ptr), size)
}

// TotalMemory returns the amount of usable physical memory.
func TotalMemory() mem.Size {
	return pmm.TotalMemory()
}

// FreeMemory returns the amount of unallocated physical memory.
func FreeMemory() mem.Size {
	return pmm.FreeMemory()
}

// HeapAllocatedBytes returns the total size of live heap allocations.
func HeapAllocatedBytes() mem.Size {
	return kheap.AllocatedBytes()
}

// mapHeapArena backs every page of the heap arena with a fresh physical
// frame. The guard pages framing the arena are skipped on purpose and stay
// unmapped forever.
func mapHeapArena() *kernel.Error {
	firstPage := mem.PageFromAddress(heapArenaBase)
	pageCount := mem.Page(uintptr(kheap.ArenaSize) >> mem.PageShift)

	for page := firstPage; page < firstPage+pageCount; page++ {
		frame, err := allocFn()
		if err != nil {
			return err
		}
		if err := vmmMapFn(page, frame, vmm.FlagPresent|vmm.FlagRW|vmm.FlagNoExecute); err != nil {
			return err
		}
	}

	return nil
}
