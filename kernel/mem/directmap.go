package mem

import "unsafe"

// directMapOffset holds the fixed virtual offset at which the bootloader
// maps all of physical memory (HHDM). It is set once during memory
// initialization. Hosted tests point it into a Go-managed buffer that stands
// in for physical memory.
var directMapOffset uintptr

// SetDirectMapOffset registers the direct-map offset reported by the
// bootloader.
func SetDirectMapOffset(offset uintptr) {
	directMapOffset = offset
}

// DirectMapOffset returns the active direct-map offset.
func DirectMapOffset() uintptr {
	return directMapOffset
}

// PhysToPtr returns a pointer through which the given physical address can
// be accessed via the direct linear mapping.
func PhysToPtr(physAddr uintptr) unsafe.Pointer {
	return unsafe.Pointer(physAddr + directMapOffset)
}

// Memset fills size bytes starting at the given virtual address with val.
func Memset(addr uintptr, val byte, size Size) {
	for i := uintptr(0); i < uintptr(size); i++ {
		*(*byte)(unsafe.Pointer(addr + i)) = val
	}
}
