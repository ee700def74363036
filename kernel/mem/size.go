// Package mem defines the elementary memory types shared by the physical
// and virtual memory managers: sizes, physical frames, virtual pages and
// the direct-map access helpers used to reach physical memory.
package mem

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)
