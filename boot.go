package main

import (
	"io"

	"github.com/MelloOS/MelloOS/kernel/hal/bootinfo"
	"github.com/MelloOS/MelloOS/kernel/kmain"
)

// Populated by the rt0 boot glue before main runs: the boot contract
// assembled from the bootloader's responses and the console writer backed by
// the serial port the bootloader configured.
var (
	bootInfo bootinfo.BootInfo
	console  io.Writer
)

// main works as a trampoline for the actual kernel entry point. It is
// intentionally defined so the Go compiler cannot optimize away the kernel
// code; the rt0 assembly jumps here after switching to 64-bit mode and
// setting up a minimal g0 so Go code can run.
//
// main is not expected to return. If it does, the rt0 code halts the CPU.
func main() {
	kmain.Kmain(&bootInfo, console)
}
