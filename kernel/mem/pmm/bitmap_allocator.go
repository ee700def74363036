// Package pmm implements the physical memory manager: a bitmap allocator
// that tracks every 4KB frame between physical address 0 and the end of the
// last usable region. Set bits mark used frames; reserved holes in the
// memory map are permanently marked used.
package pmm

import (
	"math/bits"
	"unsafe"

	"github.com/MelloOS/MelloOS/kernel"
	"github.com/MelloOS/MelloOS/kernel/hal/bootinfo"
	"github.com/MelloOS/MelloOS/kernel/kfmt"
	"github.com/MelloOS/MelloOS/kernel/mem"
	"github.com/MelloOS/MelloOS/kernel/sync"
)

var (
	// ErrOutOfMemory is returned when no physical frame can satisfy an
	// allocation request.
	ErrOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of physical memory"}

	// ErrInvalidArgument is returned for zero-sized or misaligned
	// contiguous allocation requests.
	ErrInvalidArgument = &kernel.Error{Module: "pmm", Message: "invalid allocation argument"}

	errNoUsableMemory = &kernel.Error{Module: "pmm", Message: "boot memory map contains no usable region"}

	mmLog = &kfmt.PrefixWriter{Sink: kfmt.Output, Prefix: []byte("[MM] ")}

	// allocator is the singleton instance serving the kernel. It is
	// initialized once by Init and never torn down.
	allocator BitmapAllocator
)

// BitmapAllocator implements a physical frame allocator backed by a bitmap
// with one bit per frame. A cursor remembers the last allocation point so
// that monotonic allocation patterns complete in near-constant time.
type BitmapAllocator struct {
	lock sync.IrqSpinlock

	// bitmap holds one bit per frame; a set bit marks a used frame.
	bitmap []uint64

	// frameCount is the total number of frames tracked by the bitmap.
	frameCount uint64

	// usableFrames counts the frames inside usable memory regions;
	// freeFrames counts how many of those are currently unallocated.
	usableFrames uint64
	freeFrames   uint64

	// cursor is the bitmap word index where the next allocation scan
	// starts.
	cursor uint64
}

// Init sets up the physical memory manager from the boot memory map,
// registers it as the system frame allocator and logs the memory layout.
func Init(bi *bootinfo.BootInfo) *kernel.Error {
	if err := allocator.init(bi); err != nil {
		return err
	}

	mem.SetFrameAllocator(AllocFrame, FreeFrame)
	printMemoryMap(bi)
	return nil
}

// AllocFrame reserves the next free physical frame. The returned frame is
// zeroed before it is handed out.
func AllocFrame() (mem.Frame, *kernel.Error) {
	return allocator.AllocFrame()
}

// FreeFrame returns a frame to the free pool. Freeing an already-free frame
// is a logged no-op; the frame contents are not cleared until the frame is
// allocated again.
func FreeFrame(frame mem.Frame) {
	allocator.FreeFrame(frame)
}

// AllocContiguous reserves count consecutive frames whose first frame is
// aligned to alignFrames. It is intended for DMA-style requests.
func AllocContiguous(count, alignFrames uint64) (mem.Frame, *kernel.Error) {
	return allocator.AllocContiguous(count, alignFrames)
}

// TotalMemory returns the amount of usable physical memory.
func TotalMemory() mem.Size {
	return mem.Size(allocator.usableFrames) * mem.PageSize
}

// FreeMemory returns the amount of currently unallocated physical memory.
func FreeMemory() mem.Size {
	allocator.lock.Acquire()
	free := allocator.freeFrames
	allocator.lock.Release()
	return mem.Size(free) * mem.PageSize
}

// init carves the bitmap out of the first usable region that can hold it
// and marks every frame outside usable regions (plus the bitmap frames
// themselves) as used.
func (alloc *BitmapAllocator) init(bi *bootinfo.BootInfo) *kernel.Error {
	var lastFrame mem.Frame

	bi.VisitMemRegions(func(region *bootinfo.MemoryRegion) bool {
		if region.Kind != bootinfo.RegionUsable {
			return true
		}
		if end := endFrame(region); end > lastFrame {
			lastFrame = end
		}
		return true
	})

	if lastFrame == 0 {
		return errNoUsableMemory
	}

	alloc.frameCount = uint64(lastFrame)
	words := (alloc.frameCount + 63) / 64
	bitmapBytes := words << 3
	bitmapFrames := uint64((mem.Size(bitmapBytes) + mem.PageSize - 1) / mem.PageSize)

	// Place the bitmap at the start of the first usable region that can
	// hold it.
	var bitmapStart = mem.InvalidFrame
	bi.VisitMemRegions(func(region *bootinfo.MemoryRegion) bool {
		if region.Kind != bootinfo.RegionUsable {
			return true
		}
		start := startFrame(region)
		if uint64(endFrame(region)-start) >= bitmapFrames {
			bitmapStart = start
			return false
		}
		return true
	})

	if !bitmapStart.Valid() {
		return ErrOutOfMemory
	}

	alloc.bitmap = unsafe.Slice((*uint64)(mem.PhysToPtr(bitmapStart.Address())), words)

	// Mark everything used, then release the frames inside usable
	// regions.
	for i := range alloc.bitmap {
		alloc.bitmap[i] = ^uint64(0)
	}

	bi.VisitMemRegions(func(region *bootinfo.MemoryRegion) bool {
		if region.Kind != bootinfo.RegionUsable {
			return true
		}
		for frame := startFrame(region); frame < endFrame(region); frame++ {
			alloc.clearBit(frame)
			alloc.usableFrames++
		}
		return true
	})

	// The bitmap frames themselves are never handed out.
	for frame := bitmapStart; frame < bitmapStart+mem.Frame(bitmapFrames); frame++ {
		alloc.setBit(frame)
		alloc.usableFrames--
	}

	alloc.freeFrames = alloc.usableFrames
	alloc.cursor = 0
	return nil
}

// AllocFrame scans the bitmap for a free frame starting at the allocation
// cursor, wrapping around once. The worst case is a full bitmap scan.
func (alloc *BitmapAllocator) AllocFrame() (mem.Frame, *kernel.Error) {
	alloc.lock.Acquire()

	words := uint64(len(alloc.bitmap))
	for scanned := uint64(0); scanned < words; scanned++ {
		wordIdx := (alloc.cursor + scanned) % words
		word := alloc.bitmap[wordIdx]
		if word == ^uint64(0) {
			continue
		}

		bit := uint64(bits.TrailingZeros64(^word))
		frame := mem.Frame(wordIdx<<6 + bit)
		if uint64(frame) >= alloc.frameCount {
			continue
		}

		alloc.bitmap[wordIdx] |= 1 << bit
		alloc.freeFrames--
		alloc.cursor = wordIdx
		alloc.lock.Release()

		mem.Memset(uintptr(mem.PhysToPtr(frame.Address())), 0, mem.PageSize)
		return frame, nil
	}

	alloc.lock.Release()
	return mem.InvalidFrame, ErrOutOfMemory
}

// FreeFrame clears the bitmap bit for frame. Double frees are not trapped:
// freeing an already-free frame logs a warning and leaves the bitmap
// untouched.
func (alloc *BitmapAllocator) FreeFrame(frame mem.Frame) {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	if uint64(frame) >= alloc.frameCount {
		kfmt.Fprintf(mmLog, "free_frame: frame %d outside managed range; ignored\n", uint64(frame))
		return
	}

	if !alloc.testBit(frame) {
		kfmt.Fprintf(mmLog, "free_frame: frame %d already free; ignored\n", uint64(frame))
		return
	}

	alloc.clearBit(frame)
	alloc.freeFrames++
}

// AllocContiguous performs a first-fit scan for count consecutive free
// frames whose start frame is aligned to alignFrames (a power of two,
// expressed in frames).
func (alloc *BitmapAllocator) AllocContiguous(count, alignFrames uint64) (mem.Frame, *kernel.Error) {
	if count == 0 || alignFrames == 0 || alignFrames&(alignFrames-1) != 0 {
		return mem.InvalidFrame, ErrInvalidArgument
	}

	alloc.lock.Acquire()

	for start := uint64(0); start+count <= alloc.frameCount; start += alignFrames {
		run := uint64(0)
		for ; run < count; run++ {
			if alloc.testBit(mem.Frame(start + run)) {
				break
			}
		}
		if run != count {
			continue
		}

		for i := uint64(0); i < count; i++ {
			alloc.setBit(mem.Frame(start + i))
		}
		alloc.freeFrames -= count
		alloc.lock.Release()

		mem.Memset(uintptr(mem.PhysToPtr(mem.Frame(start).Address())), 0, mem.PageSize*mem.Size(count))
		return mem.Frame(start), nil
	}

	alloc.lock.Release()
	return mem.InvalidFrame, ErrOutOfMemory
}

func (alloc *BitmapAllocator) testBit(frame mem.Frame) bool {
	return alloc.bitmap[frame>>6]&(1<<(uint64(frame)&63)) != 0
}

func (alloc *BitmapAllocator) setBit(frame mem.Frame) {
	alloc.bitmap[frame>>6] |= 1 << (uint64(frame) & 63)
}

func (alloc *BitmapAllocator) clearBit(frame mem.Frame) {
	alloc.bitmap[frame>>6] &^= 1 << (uint64(frame) & 63)
}

// startFrame returns the first whole frame of a region, rounding the region
// base up to a page boundary.
func startFrame(region *bootinfo.MemoryRegion) mem.Frame {
	return mem.Frame((uint64(region.PhysAddress) + uint64(mem.PageSize) - 1) >> mem.PageShift)
}

// endFrame returns the frame just past the last whole frame of a region.
func endFrame(region *bootinfo.MemoryRegion) mem.Frame {
	return mem.Frame((uint64(region.PhysAddress) + region.Length) >> mem.PageShift)
}

// printMemoryMap logs the boot memory map along with the usable/free totals
// derived from the bitmap counts.
func printMemoryMap(bi *bootinfo.BootInfo) {
	kfmt.Fprintf(mmLog, "physical memory map:\n")
	bi.VisitMemRegions(func(region *bootinfo.MemoryRegion) bool {
		kfmt.Fprintf(mmLog, "  [0x%12x - 0x%12x] %s\n",
			uint64(region.PhysAddress),
			uint64(region.PhysAddress)+region.Length,
			region.Kind.String(),
		)
		return true
	})
	kfmt.Fprintf(mmLog, "total: %dMB, free: %dMB\n",
		uint64(TotalMemory()/mem.Mb),
		uint64(mem.Size(allocator.freeFrames)*mem.PageSize/mem.Mb),
	)
}
