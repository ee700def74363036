// Package vmm implements the 4-level page table manager. It builds the
// kernel address space from the boot-supplied section layout, applies the
// fixed per-section permission policy and maintains mappings at runtime.
package vmm

import (
	"github.com/MelloOS/MelloOS/kernel"
	"github.com/MelloOS/MelloOS/kernel/cpu"
	"github.com/MelloOS/MelloOS/kernel/hal/bootinfo"
	"github.com/MelloOS/MelloOS/kernel/kfmt"
	"github.com/MelloOS/MelloOS/kernel/mem"
)

var (
	// switchPageTableFn is swapped out by tests; loading CR3 faults in
	// user mode.
	switchPageTableFn = cpu.SwitchPageTable

	mmLog = &kfmt.PrefixWriter{Sink: kfmt.Output, Prefix: []byte("[MM] ")}
)

// Init builds a fresh kernel address space: it allocates the top-level
// table, maps each kernel section with the permission policy derived from
// its flags, re-creates the direct physical memory mapping and finally
// activates the new tables.
func Init(bi *bootinfo.BootInfo) *kernel.Error {
	rootFrame, err := mem.AllocFrame()
	if err != nil {
		return err
	}
	activeRoot = rootFrame

	for i := range bi.Sections {
		sec := &bi.Sections[i]
		if err := mapKernelSection(bi, sec); err != nil {
			return err
		}
		kfmt.Fprintf(mmLog, "mapped %s [0x%16x - 0x%16x] %s\n",
			sec.Name, uint64(sec.VirtAddress), uint64(sec.VirtAddress)+sec.Size, policyName(sec.Flags))
	}

	if err := mapDirectMemory(bi); err != nil {
		return err
	}

	switchPageTableFn(activeRoot.Address())
	return nil
}

// sectionFlags translates a section's access flags into page table entry
// flags following the fixed policy: .text=RX, .rodata=R, .data/.bss=RW+NX.
func sectionFlags(flags bootinfo.SectionFlag) PageTableEntryFlag {
	pteFlags := FlagPresent

	if flags&bootinfo.SectionExecutable == 0 {
		pteFlags |= FlagNoExecute
	}
	if flags&bootinfo.SectionWritable != 0 {
		pteFlags |= FlagRW
	}

	return pteFlags
}

func policyName(flags bootinfo.SectionFlag) string {
	switch {
	case flags&bootinfo.SectionExecutable != 0:
		return "RX"
	case flags&bootinfo.SectionWritable != 0:
		return "RW+NX"
	default:
		return "R+NX"
	}
}

// mapKernelSection installs mappings for every page a section touches. The
// backing physical frames are derived from the kernel load address.
func mapKernelSection(bi *bootinfo.BootInfo, sec *bootinfo.Section) *kernel.Error {
	if sec.Size == 0 {
		return nil
	}

	flags := sectionFlags(sec.Flags)
	curPage := mem.PageFromAddress(sec.VirtAddress)
	lastPage := mem.PageFromAddress(sec.VirtAddress + uintptr(sec.Size-1))
	curFrame := mem.FrameFromAddress(sec.VirtAddress - bi.KernelVirtBase + bi.KernelPhysBase)

	for ; curPage <= lastPage; curPage, curFrame = curPage+1, curFrame+1 {
		if err := Map(curPage, curFrame, flags); err != nil {
			return err
		}
	}

	return nil
}

// mapDirectMemory re-creates the bootloader's direct linear mapping of
// physical memory inside the new address space so that PhysToPtr stays
// valid after the page table switch. All direct-map pages are RW and never
// executable.
func mapDirectMemory(bi *bootinfo.BootInfo) *kernel.Error {
	var err *kernel.Error

	bi.VisitMemRegions(func(region *bootinfo.MemoryRegion) bool {
		curFrame := mem.FrameFromAddress(region.PhysAddress)
		lastFrame := mem.FrameFromAddress(region.PhysAddress + uintptr(region.Length-1))

		for ; curFrame <= lastFrame; curFrame++ {
			page := mem.PageFromAddress(bi.DirectMapOffset + curFrame.Address())
			if err = Map(page, curFrame, FlagPresent|FlagRW|FlagNoExecute); err != nil {
				return false
			}
		}
		return true
	})

	return err
}
