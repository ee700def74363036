package vmm

import (
	"github.com/MelloOS/MelloOS/kernel"
	"github.com/MelloOS/MelloOS/kernel/cpu"
	"github.com/MelloOS/MelloOS/kernel/mem"
)

var (
	// ErrInvalidMapping is returned when unmapping or translating a
	// virtual address that no present mapping covers.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not map to a physical page"}

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}

	// flushTLBEntryFn is swapped out by tests; invlpg faults in user
	// mode.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// activeRoot is the frame holding the kernel's top-level (PML4)
	// table. It is set once by Init.
	activeRoot mem.Frame
)

// pageTableWalker receives the page table entry for each level of a walk.
// Returning false aborts the walk.
type pageTableWalker func(level uint8, pte *pageTableEntry) bool

// walk visits the page table entry chain for virtAddr, from the top-level
// table down to the leaf. Table nodes are reached through the direct
// physical memory mapping.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	tableFrame := activeRoot

	for level := uint8(0); level < pageLevels; level++ {
		entryIndex := (virtAddr >> pageLevelShifts[level]) & (tableEntries - 1)
		entryAddr := tableFrame.Address() + (entryIndex << mem.PointerShift)
		pte := (*pageTableEntry)(mem.PhysToPtr(entryAddr))

		if !walkFn(level, pte) {
			return
		}

		tableFrame = pte.Frame()
	}
}

// Map establishes a mapping from a virtual page to a physical frame with
// the given flags. Missing intermediate table nodes are allocated from the
// frame allocator (which hands them out zeroed) and linked with RW
// permissions; the leaf entry carries exactly the requested flags. The TLB
// entry for the page is invalidated.
func Map(page mem.Page, frame mem.Frame, flags PageTableEntryFlag) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(level uint8, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		// Allocate the next table node on demand.
		if !pte.HasFlags(FlagPresent) {
			var tableFrame mem.Frame
			tableFrame, err = mem.AllocFrame()
			if err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(tableFrame)
			pte.SetFlags(FlagPresent | FlagRW)
		}

		return true
	})

	return err
}

// Unmap removes the mapping for a virtual page and invalidates its TLB
// entry. Unmapping a page with no present mapping returns
// ErrInvalidMapping. Intermediate table nodes are left in place.
func Unmap(page mem.Page) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(level uint8, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			if !pte.HasFlags(FlagPresent) {
				err = ErrInvalidMapping
				return false
			}
			*pte = 0
			flushTLBEntryFn(page.Address())
			return true
		}

		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	return err
}

// Translate performs a read-only table walk and returns the physical
// address that virtAddr maps to, or ErrInvalidMapping if any level of the
// walk is absent.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		err  *kernel.Error
		phys uintptr
	)

	walk(virtAddr, func(level uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if level == pageLevels-1 {
			phys = pte.Frame().Address() + PageOffset(virtAddr)
		}
		return true
	})

	if err != nil {
		return 0, err
	}
	return phys, nil
}

// PageOffset returns the offset of virtAddr within its page.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (uintptr(mem.PageSize) - 1)
}
