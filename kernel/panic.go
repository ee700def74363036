package kernel

import (
	"github.com/MelloOS/MelloOS/kernel/cpu"
	"github.com/MelloOS/MelloOS/kernel/kfmt"
)

var (
	// cpuHaltFn is overridden by tests so they can assert that Panic
	// halts the machine without actually halting the test runner.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// Panic reports an unrecoverable kernel error and halts the CPU. With no
// process isolation a fault cannot be contained, so calls to Panic never
// return.
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	kfmt.Printf("\n-----------------------------------\n")
	if err != nil {
		kfmt.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	kfmt.Printf("*** kernel panic: system halted ***")
	kfmt.Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
