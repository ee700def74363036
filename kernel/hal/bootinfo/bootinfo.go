// Package bootinfo defines the contract between the bootloader glue and the
// kernel core. The core consumes a BootInfo value exactly once at startup;
// it never depends on how the bootloader encodes this information on the
// wire.
package bootinfo

// RegionKind describes the usability of a physical memory region.
type RegionKind uint32

const (
	// RegionUsable marks memory that the frame allocator may hand out.
	RegionUsable RegionKind = iota

	// RegionReserved marks memory owned by firmware or devices.
	RegionReserved

	// RegionKernel marks the physical memory backing the kernel image.
	RegionKernel

	// RegionBootloader marks memory still holding bootloader structures.
	RegionBootloader
)

// String implements fmt.Stringer for memory map reporting.
func (k RegionKind) String() string {
	switch k {
	case RegionUsable:
		return "usable"
	case RegionReserved:
		return "reserved"
	case RegionKernel:
		return "kernel"
	case RegionBootloader:
		return "bootloader"
	default:
		return "unknown"
	}
}

// MemoryRegion describes one entry of the physical memory map supplied by
// the bootloader. Region addresses are not guaranteed to be page-aligned.
type MemoryRegion struct {
	PhysAddress uintptr
	Length      uint64
	Kind        RegionKind
}

// SectionFlag describes the access permissions of a loaded kernel section.
type SectionFlag uint32

const (
	// SectionWritable is set for sections that may be written (.data, .bss).
	SectionWritable SectionFlag = 1 << iota

	// SectionExecutable is set for sections containing code (.text).
	SectionExecutable
)

// Section describes the virtual placement of one loaded kernel section. The
// page table code uses these entries to apply the per-section permission
// policy.
type Section struct {
	Name        string
	VirtAddress uintptr
	Size        uint64
	Flags       SectionFlag
}

// BootInfo carries everything the memory subsystem needs from the
// bootloader: the physical memory map, the offset of the direct linear
// mapping of physical memory (HHDM) and the kernel's own section layout.
type BootInfo struct {
	Regions []MemoryRegion

	// DirectMapOffset is the fixed virtual offset at which all of
	// physical memory is linearly mapped.
	DirectMapOffset uintptr

	// KernelPhysBase and KernelVirtBase describe where the kernel image
	// was loaded; virt-to-phys translation of a section address is
	// (addr - KernelVirtBase) + KernelPhysBase.
	KernelPhysBase uintptr
	KernelVirtBase uintptr

	Sections []Section
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory map entry.
// Returning false aborts the scan.
type MemRegionVisitor func(region *MemoryRegion) bool

// VisitMemRegions invokes visitor for each region of the boot memory map in
// the order reported by the bootloader.
func (bi *BootInfo) VisitMemRegions(visitor MemRegionVisitor) {
	for i := range bi.Regions {
		if !visitor(&bi.Regions[i]) {
			return
		}
	}
}

// UsableMemory returns the total number of bytes in usable regions.
func (bi *BootInfo) UsableMemory() uint64 {
	var total uint64
	for i := range bi.Regions {
		if bi.Regions[i].Kind == RegionUsable {
			total += bi.Regions[i].Length
		}
	}
	return total
}
