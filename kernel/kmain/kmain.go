// Package kmain contains the kernel entry point that the boot glue jumps to
// once the CPU is in 64-bit mode with the boot contract (memory map, direct
// map, kernel sections) assembled into a BootInfo.
package kmain

import (
	"io"

	"github.com/MelloOS/MelloOS/kernel"
	"github.com/MelloOS/MelloOS/kernel/cpu"
	"github.com/MelloOS/MelloOS/kernel/hal/bootinfo"
	"github.com/MelloOS/MelloOS/kernel/irq"
	"github.com/MelloOS/MelloOS/kernel/kfmt"
	"github.com/MelloOS/MelloOS/kernel/mm"
	"github.com/MelloOS/MelloOS/kernel/sched"
)

// schedulerHz is the timer interrupt frequency the kernel boots with. 100Hz
// gives a 10ms time slice.
const schedulerHz = 100

var kernelLog = &kfmt.PrefixWriter{Sink: kfmt.Output, Prefix: []byte("[KERNEL] ")}

// Kmain is the kernel entry point. It attaches the console to the log
// output, brings up memory management, the scheduler and the interrupt
// plumbing, spawns the built-in demo tasks, starts the preemption timer and
// finally parks the boot flow as the idle task.
//
// Kmain never returns; initialization failures are fatal.
func Kmain(bi *bootinfo.BootInfo, console io.Writer) {
	kfmt.SetOutputSink(console)
	kfmt.Fprintf(kernelLog, "MelloOS booting\n")

	if err := mm.InitMemory(bi); err != nil {
		kernel.Panic(err)
	}

	if err := sched.Init(); err != nil {
		kernel.Panic(err)
	}

	irq.Init()

	if _, err := sched.Spawn("demo-a", demoTask("A")); err != nil {
		kernel.Panic(err)
	}
	if _, err := sched.Spawn("demo-b", demoTask("B")); err != nil {
		kernel.Panic(err)
	}

	if err := sched.InitTimer(schedulerHz); err != nil {
		kernel.Panic(err)
	}

	kfmt.Fprintf(kernelLog, "boot complete, %d tasks, entering idle loop\n", sched.TaskCount())
	cpu.EnableInterrupts()

	for {
		cpu.Halt()
	}
}

// demoTask returns an entry function that reports liveness once per time
// slice. Two of these running side by side make the round-robin interleaving
// visible on the console.
func demoTask(name string) func() {
	return func() {
		for {
			kfmt.Fprintf(kernelLog, "task %s: tick %d, uptime %dms\n",
				name, sched.Ticks(), sched.Uptime())
			cpu.Halt()
		}
	}
}
