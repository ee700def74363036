package sched

// archContextSwitch saves the callee-saved registers and stack pointer of
// the running task into prev and resumes next from its saved context. The
// call returns on next's stack; for a freshly spawned task the first switch
// lands on the entry trampoline instead.
func archContextSwitch(prev, next *Context)

// taskTrampoline is the assembly landing pad new task stacks are seeded
// with; it calls runTaskEntry on the task's own stack. Never called from Go.
func taskTrampoline()

// taskTrampolineAddr returns the address of the assembly trampoline that
// new task stacks are seeded with.
func taskTrampolineAddr() uintptr
