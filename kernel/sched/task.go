package sched

import "github.com/MelloOS/MelloOS/kernel/mem"

// TaskID uniquely identifies a task. IDs increase monotonically and are
// never reused; the idle task always holds ID 0.
type TaskID uint32

// IdleTaskID is the ID of the built-in idle task created by Init.
const IdleTaskID TaskID = 0

// TaskState describes the lifecycle state of a task.
type TaskState uint8

const (
	// TaskReady marks a task that is runnable and waiting in the ready
	// queue (or, for the idle task, waiting to be selected).
	TaskReady TaskState = iota

	// TaskRunning marks the task currently executing. At most one task
	// is running at any instant.
	TaskRunning

	// TaskSleeping is reserved for a future blocking facility; no
	// transition into it exists today.
	TaskSleeping
)

// TaskStackSize is the size of the per-task stack carved from the kernel
// heap.
const TaskStackSize = 8 * mem.Kb

// Context is the register state preserved across a context switch: the
// callee-saved general registers of the System V amd64 ABI plus the stack
// pointer. The field order matches the layout expected by the context
// switch assembly and must not change.
type Context struct {
	R15 uint64
	R14 uint64
	R13 uint64
	R12 uint64
	RBP uint64
	RBX uint64
	RSP uint64
}

// Task is the task control block. Tasks are never destroyed: once spawned,
// a task alternates between Ready and Running forever.
type Task struct {
	ID    TaskID
	Name  string
	State TaskState

	// StackBase and StackSize delimit the heap block owned by the task;
	// Context.RSP always lies within [StackBase, StackBase+StackSize).
	StackBase uintptr
	StackSize mem.Size

	Context Context

	entry func()
}
