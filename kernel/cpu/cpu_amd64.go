// Package cpu provides access to the privileged amd64 instructions the
// kernel core depends on. Each primitive is exposed as a package-level
// function variable so that hosted tests can swap the hardware access out.
package cpu

var (
	// EnableInterrupts enables maskable interrupt delivery (sti).
	EnableInterrupts = enableInterrupts

	// DisableInterrupts suspends maskable interrupt delivery (cli).
	DisableInterrupts = disableInterrupts

	// InterruptsEnabled reports whether maskable interrupt delivery is
	// currently enabled (RFLAGS.IF).
	InterruptsEnabled = interruptsEnabled

	// Halt suspends instruction execution until the next interrupt fires.
	Halt = halt

	// FlushTLBEntry invalidates the TLB entry caching the translation
	// for the given virtual address (invlpg).
	FlushTLBEntry = flushTLBEntry

	// SwitchPageTable loads the root page table located at the given
	// physical address into CR3, flushing all non-global TLB entries.
	SwitchPageTable = switchPageTable

	// ActivePageTable returns the physical address of the root page
	// table currently loaded into CR3.
	ActivePageTable = activePageTable

	// PortWriteByte writes a uint8 value to the requested I/O port.
	PortWriteByte = portWriteByte

	// PortReadByte reads a uint8 value from the requested I/O port.
	PortReadByte = portReadByte
)

func enableInterrupts()

func disableInterrupts()

func interruptsEnabled() bool

func halt()

func flushTLBEntry(virtAddr uintptr)

func switchPageTable(rootPhysAddr uintptr)

func activePageTable() uintptr

func portWriteByte(port uint16, val uint8)

func portReadByte(port uint16) uint8
