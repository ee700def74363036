package pmm

import (
	"testing"
	"unsafe"

	"github.com/MelloOS/MelloOS/kernel/cpu"
	"github.com/MelloOS/MelloOS/kernel/hal/bootinfo"
	"github.com/MelloOS/MelloOS/kernel/mem"
)

// stubIrqControl replaces the interrupt toggles used by the allocator's
// spinlock with no-ops; the real instructions fault outside ring 0.
func stubIrqControl() func() {
	origEnabled := cpu.InterruptsEnabled
	origDisable, origEnable := cpu.DisableInterrupts, cpu.EnableInterrupts
	cpu.InterruptsEnabled = func() bool { return false }
	cpu.DisableInterrupts = func() {}
	cpu.EnableInterrupts = func() {}
	return func() {
		cpu.InterruptsEnabled = origEnabled
		cpu.DisableInterrupts = origDisable
		cpu.EnableInterrupts = origEnable
	}
}

// livePhysBuf keeps the active fake memory bank reachable: the allocator
// only holds raw addresses into it, which the garbage collector cannot see.
var livePhysBuf []byte

// fakePhysMemory backs the given number of physical frames with a Go-managed
// buffer and points the direct map at it, so that physical address 0 is the
// first buffer byte.
func fakePhysMemory(frames int) ([]byte, func()) {
	buf := make([]byte, frames*int(mem.PageSize))
	livePhysBuf = buf
	mem.SetDirectMapOffset(uintptr(unsafe.Pointer(&buf[0])))
	return buf, func() {
		mem.SetDirectMapOffset(0)
		livePhysBuf = nil
	}
}

func usableRegionMap(frames int) *bootinfo.BootInfo {
	return &bootinfo.BootInfo{
		Regions: []bootinfo.MemoryRegion{
			{PhysAddress: 0, Length: uint64(frames) << mem.PageShift, Kind: bootinfo.RegionUsable},
		},
	}
}

func TestAllocatorInit(t *testing.T) {
	defer stubIrqControl()()
	_, cleanup := fakePhysMemory(64)
	defer cleanup()

	var alloc BitmapAllocator
	if err := alloc.init(usableRegionMap(64)); err != nil {
		t.Fatal(err)
	}

	// One frame is claimed by the bitmap itself.
	if exp, got := uint64(63), alloc.usableFrames; got != exp {
		t.Fatalf("expected %d usable frames; got %d", exp, got)
	}
	if exp, got := alloc.usableFrames, alloc.freeFrames; got != exp {
		t.Fatalf("expected all usable frames to start out free; free %d, usable %d", got, exp)
	}
	if !alloc.testBit(mem.Frame(0)) {
		t.Fatal("expected the bitmap frame to be marked used")
	}
}

func TestAllocatorInitNoUsableMemory(t *testing.T) {
	var alloc BitmapAllocator

	bi := &bootinfo.BootInfo{
		Regions: []bootinfo.MemoryRegion{
			{PhysAddress: 0, Length: 0x10000, Kind: bootinfo.RegionReserved},
		},
	}

	if err := alloc.init(bi); err != errNoUsableMemory {
		t.Fatalf("expected error %v; got %v", errNoUsableMemory, err)
	}
}

func TestAllocFrame(t *testing.T) {
	defer stubIrqControl()()
	buf, cleanup := fakePhysMemory(64)
	defer cleanup()

	var alloc BitmapAllocator
	if err := alloc.init(usableRegionMap(64)); err != nil {
		t.Fatal(err)
	}

	// Dirty the first candidate frame so the zeroing is observable.
	frame1Start := 1 << mem.PageShift
	buf[frame1Start] = 0xde
	buf[frame1Start+100] = 0xad

	frame, err := alloc.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}
	if exp := mem.Frame(1); frame != exp {
		t.Fatalf("expected first allocation to return frame %d; got %d", exp, frame)
	}

	for i := 0; i < int(mem.PageSize); i++ {
		if buf[frame1Start+i] != 0 {
			t.Fatalf("expected allocated frame to be zeroed; byte %d is 0x%x", i, buf[frame1Start+i])
		}
	}

	// used == total - free must hold after every operation.
	checkInvariant := func(step string) {
		var used uint64
		for f := mem.Frame(0); uint64(f) < alloc.frameCount; f++ {
			if alloc.testBit(f) {
				used++
			}
		}
		// The bitmap frame is used but not counted as usable.
		if exp := alloc.usableFrames - alloc.freeFrames + 1; used != exp {
			t.Fatalf("[%s] bitmap invariant violated: %d used bits, expected %d", step, used, exp)
		}
	}
	checkInvariant("after alloc")

	alloc.FreeFrame(frame)
	checkInvariant("after free")

	// The allocation cursor makes the freed frame the next candidate.
	again, err := alloc.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}
	if again != frame {
		t.Fatalf("expected the freed frame %d to be reallocated; got %d", frame, again)
	}
	checkInvariant("after realloc")
}

func TestAllocFrameExhaustion(t *testing.T) {
	defer stubIrqControl()()
	_, cleanup := fakePhysMemory(64)
	defer cleanup()

	var alloc BitmapAllocator
	if err := alloc.init(usableRegionMap(64)); err != nil {
		t.Fatal(err)
	}

	for i := uint64(0); i < 63; i++ {
		if _, err := alloc.AllocFrame(); err != nil {
			t.Fatalf("allocation %d failed: %v", i, err)
		}
	}

	frame, err := alloc.AllocFrame()
	if err != ErrOutOfMemory {
		t.Fatalf("expected error %v once all frames are taken; got %v", ErrOutOfMemory, err)
	}
	if frame.Valid() {
		t.Fatalf("expected an invalid frame on exhaustion; got %d", frame)
	}
}

func TestFreeFrameIsIdempotent(t *testing.T) {
	defer stubIrqControl()()
	_, cleanup := fakePhysMemory(64)
	defer cleanup()

	var alloc BitmapAllocator
	if err := alloc.init(usableRegionMap(64)); err != nil {
		t.Fatal(err)
	}

	frame, err := alloc.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}

	alloc.FreeFrame(frame)
	freeBefore := alloc.freeFrames

	// Freeing an already-free frame must not inflate the free count.
	alloc.FreeFrame(frame)
	if got := alloc.freeFrames; got != freeBefore {
		t.Fatalf("expected double free to leave the free count at %d; got %d", freeBefore, got)
	}

	// Out-of-range frames are ignored as well.
	alloc.FreeFrame(mem.Frame(1 << 40))
	if got := alloc.freeFrames; got != freeBefore {
		t.Fatalf("expected out-of-range free to leave the free count at %d; got %d", freeBefore, got)
	}
}

func TestReservedHolesAreNeverAllocated(t *testing.T) {
	defer stubIrqControl()()
	_, cleanup := fakePhysMemory(48)
	defer cleanup()

	bi := &bootinfo.BootInfo{
		Regions: []bootinfo.MemoryRegion{
			{PhysAddress: 0, Length: 16 << mem.PageShift, Kind: bootinfo.RegionUsable},
			{PhysAddress: 16 << mem.PageShift, Length: 16 << mem.PageShift, Kind: bootinfo.RegionReserved},
			{PhysAddress: 32 << mem.PageShift, Length: 16 << mem.PageShift, Kind: bootinfo.RegionUsable},
		},
	}

	var alloc BitmapAllocator
	if err := alloc.init(bi); err != nil {
		t.Fatal(err)
	}

	for {
		frame, err := alloc.AllocFrame()
		if err == ErrOutOfMemory {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if frame >= 16 && frame < 32 {
			t.Fatalf("allocator handed out frame %d from a reserved hole", frame)
		}
	}
}

func TestAllocContiguous(t *testing.T) {
	defer stubIrqControl()()
	_, cleanup := fakePhysMemory(64)
	defer cleanup()

	var alloc BitmapAllocator
	if err := alloc.init(usableRegionMap(64)); err != nil {
		t.Fatal(err)
	}

	t.Run("aligned first fit", func(t *testing.T) {
		freeBefore := alloc.freeFrames

		frame, err := alloc.AllocContiguous(4, 4)
		if err != nil {
			t.Fatal(err)
		}

		if uint64(frame)%4 != 0 {
			t.Fatalf("expected start frame to be 4-frame aligned; got %d", frame)
		}
		for i := mem.Frame(0); i < 4; i++ {
			if !alloc.testBit(frame + i) {
				t.Fatalf("expected frame %d of the run to be marked used", frame+i)
			}
		}
		if exp, got := freeBefore-4, alloc.freeFrames; got != exp {
			t.Fatalf("expected free count %d; got %d", exp, got)
		}
	})

	t.Run("invalid arguments", func(t *testing.T) {
		specs := []struct{ count, align uint64 }{
			{0, 1},
			{1, 0},
			{1, 3},
		}

		for specIndex, spec := range specs {
			if _, err := alloc.AllocContiguous(spec.count, spec.align); err != ErrInvalidArgument {
				t.Errorf("[spec %d] expected error %v; got %v", specIndex, ErrInvalidArgument, err)
			}
		}
	})

	t.Run("run larger than memory", func(t *testing.T) {
		if _, err := alloc.AllocContiguous(1024, 1); err != ErrOutOfMemory {
			t.Fatalf("expected error %v; got %v", ErrOutOfMemory, err)
		}
	})
}

func TestInitRegistersFrameAllocator(t *testing.T) {
	defer stubIrqControl()()
	_, cleanup := fakePhysMemory(64)
	defer cleanup()
	defer mem.SetFrameAllocator(nil, nil)

	allocator = BitmapAllocator{}
	if err := Init(usableRegionMap(64)); err != nil {
		t.Fatal(err)
	}

	frame, err := mem.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}
	if !frame.Valid() {
		t.Fatal("expected a valid frame from the registered allocator")
	}

	if exp, got := mem.Size(63)*mem.PageSize, TotalMemory(); got != exp {
		t.Fatalf("expected total memory %d; got %d", exp, got)
	}
	if exp, got := mem.Size(62)*mem.PageSize, FreeMemory(); got != exp {
		t.Fatalf("expected free memory %d; got %d", exp, got)
	}

	mem.FreeFrame(frame)
	if exp, got := mem.Size(63)*mem.PageSize, FreeMemory(); got != exp {
		t.Fatalf("expected free memory %d after release; got %d", exp, got)
	}
}
