// Package irq manages the interrupt plumbing: the 256-entry interrupt
// descriptor table, the 8259 interrupt controller pair and the dispatch of
// hardware interrupts to registered Go handlers. Vectors 0-31 carry CPU
// exceptions and are fatal unless a handler is registered; vector 32 is the
// timer line after the controller remap; the remaining vectors are unused.
package irq

import (
	"io"
	"unsafe"

	"github.com/MelloOS/MelloOS/kernel"
	"github.com/MelloOS/MelloOS/kernel/kfmt"
)

// Vector identifies one of the 256 interrupt table slots.
type Vector uint8

const (
	numVectors = 256

	// numStubs is the number of vectors with dedicated entry stubs:
	// the 32 CPU exceptions plus the timer vector.
	numStubs = 33

	// TimerVector is the slot the timer line lands on after the
	// controller remap moves hardware lines 0-15 to vectors 32-47.
	TimerVector Vector = 32

	// PageFault is raised on access to an unmapped or protected page,
	// e.g. when a guard page is touched.
	PageFault Vector = 14

	// kernelCodeSelector is the GDT selector for kernel code, installed
	// by the boot glue.
	kernelCodeSelector = 0x08

	// gateTypeInterrupt marks a present, DPL0, 64-bit interrupt gate.
	gateTypeInterrupt = 0x8e
)

var (
	errHandlerRegistered = &kernel.Error{Module: "irq", Message: "a handler is already registered for this vector"}
	errUnhandledTrap     = &kernel.Error{Module: "irq", Message: "unhandled CPU exception"}

	irqLog = &kfmt.PrefixWriter{Sink: kfmt.Output, Prefix: []byte("[IRQ] ")}

	// handlers maps vectors to their registered handlers.
	handlers [numVectors]func(*Registers)

	// idt is the live interrupt descriptor table.
	idt [numVectors]gateDescriptor

	// loadIDTFn is swapped out by tests; lidt faults in user mode.
	loadIDTFn = loadIDT

	// panicFn is swapped out by tests so fatal traps can be asserted.
	panicFn = kernel.Panic
)

// Registers is the snapshot captured by the interrupt entry stubs. The
// field order must match the stub push sequence.
type Registers struct {
	RAX, RBX, RCX, RDX, RSI, RDI, RBP uint64
	R8, R9, R10, R11                  uint64
	R12, R13, R14, R15                uint64

	// Vector holds the interrupt vector that fired. ErrCode carries the
	// CPU-pushed error code for the exceptions that produce one and is
	// zero everywhere else.
	Vector  uint64
	ErrCode uint64

	// The frame pushed by the CPU on interrupt entry.
	RIP, CS, RFlags, RSP, SS uint64
}

// DumpTo writes the register snapshot to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", r.RFlags)
}

// gateDescriptor is the amd64 interrupt gate layout.
type gateDescriptor struct {
	offsetLow  uint16
	selector   uint16
	istOffset  uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

// setGate points a descriptor at an entry stub.
func (g *gateDescriptor) setGate(stubAddr uintptr) {
	g.offsetLow = uint16(stubAddr)
	g.selector = kernelCodeSelector
	g.istOffset = 0
	g.typeAttr = gateTypeInterrupt
	g.offsetMid = uint16(stubAddr >> 16)
	g.offsetHigh = uint32(stubAddr >> 32)
	g.reserved = 0
}

// idtDescriptor is the operand layout expected by lidt.
type idtDescriptor struct {
	limit uint16
	base  uintptr
}

// Init populates the interrupt table with the entry stubs, loads it and
// remaps the interrupt controller so that hardware lines 0-15 land on
// vectors 32-47 instead of colliding with the exception range. All
// controller lines start out masked.
func Init() {
	stubTable := (*[numStubs]uintptr)(unsafe.Pointer(vectorStubTableAddr()))
	for i := 0; i < numStubs; i++ {
		idt[i].setGate(stubTable[i])
	}

	desc := idtDescriptor{
		limit: uint16(unsafe.Sizeof(idt) - 1),
		base:  uintptr(unsafe.Pointer(&idt[0])),
	}
	loadIDTFn(&desc)

	remapPIC(uint8(TimerVector), uint8(TimerVector)+8)
	maskAll()

	kfmt.Fprintf(irqLog, "interrupt table installed, controller remapped to vectors %d-%d\n",
		uint8(TimerVector), uint8(TimerVector)+15)
}

// HandleInterrupt registers handler for the given vector. At most one
// handler may be registered per vector.
func HandleInterrupt(vector Vector, handler func(*Registers)) *kernel.Error {
	if handlers[vector] != nil {
		return errHandlerRegistered
	}
	handlers[vector] = handler
	return nil
}

// dispatchInterrupt is invoked by the assembly entry stubs with the
// captured register snapshot. Unhandled exceptions dump the snapshot and
// halt; unhandled hardware interrupts are logged and dropped.
func dispatchInterrupt(regs *Registers) {
	vector := Vector(regs.Vector)

	if handler := handlers[vector]; handler != nil {
		handler(regs)
		return
	}

	if regs.Vector < 32 {
		kfmt.Fprintf(irqLog, "unhandled exception %d\n", regs.Vector)
		regs.DumpTo(irqLog)
		panicFn(errUnhandledTrap)
		return
	}

	kfmt.Fprintf(irqLog, "spurious interrupt on vector %d\n", regs.Vector)
}

// loadIDT executes lidt with the given descriptor.
func loadIDT(desc *idtDescriptor)

// vectorStubTableAddr returns the address of the assembly-side table that
// holds the entry stub address for each wired vector.
func vectorStubTableAddr() uintptr
