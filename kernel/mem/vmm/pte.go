package vmm

import "github.com/MelloOS/MelloOS/kernel/mem"

// PageTableEntryFlag describes a flag that can be applied to a page table
// entry. The numeric encoding matches the amd64 hardware layout and must
// not be rearranged.
type PageTableEntryFlag uintptr

const (
	// FlagPresent is set when the entry points to memory that is mapped
	// in.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the mapped page may be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode code may access the page.
	FlagUserAccessible

	// FlagWriteThroughCaching selects write-through instead of
	// write-back caching.
	FlagWriteThroughCaching

	// FlagDoNotCache disables caching for the page.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when the page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when the page is modified.
	FlagDirty

	// FlagHugePage marks a 2MB mapping at the PD level. The kernel core
	// maps 4KB pages only.
	FlagHugePage

	// FlagGlobal keeps the translation cached across page table
	// switches.
	FlagGlobal

	// FlagNoExecute marks the page contents as non-executable (NX).
	FlagNoExecute = PageTableEntryFlag(1) << 63
)

// ptePhysPageMask extracts the physical address bits (12-51) from an entry.
const ptePhysPageMask = uintptr(0x000ffffffffff000)

// pageTableEntry encodes a physical frame address plus a set of
// PageTableEntryFlag bits.
type pageTableEntry uintptr

// HasFlags returns true if the entry has all the given flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) == uintptr(flags)
}

// SetFlags sets the given flags on the entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) | uintptr(flags))
}

// ClearFlags unsets the given flags on the entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) &^ uintptr(flags))
}

// Frame returns the physical frame the entry points to.
func (pte pageTableEntry) Frame() mem.Frame {
	return mem.Frame((uintptr(pte) & ptePhysPageMask) >> mem.PageShift)
}

// SetFrame points the entry at the given physical frame.
func (pte *pageTableEntry) SetFrame(frame mem.Frame) {
	*pte = pageTableEntry((uintptr(*pte) &^ ptePhysPageMask) | frame.Address())
}
