// Package sched implements the preemptive round-robin scheduler: task
// creation, the bounded ready queue, timer-driven tick selection and the
// low-level context switch.
//
// Scheduling policy is pure FIFO round robin. The built-in idle task never
// enters the ready queue; Tick selects it only when no other task is
// runnable, so idle cycles do not dilute fairness between real tasks.
package sched

import (
	"unsafe"

	"github.com/MelloOS/MelloOS/kernel"
	"github.com/MelloOS/MelloOS/kernel/cpu"
	"github.com/MelloOS/MelloOS/kernel/kfmt"
	"github.com/MelloOS/MelloOS/kernel/mem/kheap"
	"github.com/MelloOS/MelloOS/kernel/sync"
)

// maxTasks bounds the task table. Tasks are never destroyed, so this is
// also the lifetime spawn limit.
const maxTasks = 64

var (
	// ErrCapacityExceeded is returned by Spawn when the task table is
	// full.
	ErrCapacityExceeded = &kernel.Error{Module: "sched", Message: "task table is full"}

	errNotInitialized = &kernel.Error{Module: "sched", Message: "scheduler used before Init"}
	errEntryReturned  = &kernel.Error{Module: "sched", Message: "task entry function returned"}

	schedLog = &kfmt.PrefixWriter{Sink: kfmt.Output, Prefix: []byte("[SCHED] ")}

	// Swapped out by tests: the real context switch manipulates raw
	// stacks, and the real allocator needs a mapped heap arena.
	switchContextFn = archContextSwitch
	kmallocFn       = kheap.Kmalloc
	panicFn         = kernel.Panic

	// scheduler is the singleton scheduler state; initialized once by
	// Init, never torn down. current starts at -1 so a Tick before Init
	// is caught instead of dereferencing the zero slot.
	scheduler = schedulerState{current: -1}
)

// schedulerState bundles everything Tick and Spawn may touch. All fields
// are guarded by lock; Spawn additionally disables interrupts while holding
// it, and Tick runs inside the timer interrupt handler where interrupts are
// already off.
type schedulerState struct {
	lock sync.Spinlock

	tasks     [maxTasks]Task
	taskCount int

	queue readyQueue

	// current is the index of the running task, or -1 before Init.
	current int

	nextID TaskID
}

// Init sets up the scheduler and creates the idle task (ID 0). The boot
// flow that called Init becomes the idle task: its context is captured by
// the first context switch out of it.
func Init() *kernel.Error {
	s := &scheduler
	s.lock.Acquire()
	defer s.lock.Release()

	s.taskCount = 0
	s.queue = readyQueue{}
	s.nextID = 0

	idle, err := s.allocTask("idle", nil)
	if err != nil {
		return err
	}
	idle.State = TaskRunning
	s.current = 0

	kfmt.Fprintf(schedLog, "scheduler ready, idle task is %d\n", uint32(idle.ID))
	return nil
}

// Spawn creates a new task that will execute entry once the scheduler
// selects it. The task receives an 8KB stack from the kernel heap and is
// appended to the ready queue. Spawn fails with ErrCapacityExceeded when
// the task table is full and propagates the heap's error when no stack can
// be allocated; in both cases existing tasks are left untouched.
func Spawn(name string, entry func()) (TaskID, *kernel.Error) {
	// Restore rather than enable on the way out: during boot Spawn runs
	// before the final global interrupt enable and must not undo the
	// masking early.
	irqsOn := cpu.InterruptsEnabled()
	cpu.DisableInterrupts()
	defer func() {
		if irqsOn {
			cpu.EnableInterrupts()
		}
	}()

	s := &scheduler
	s.lock.Acquire()
	defer s.lock.Release()

	task, err := s.allocTask(name, entry)
	if err != nil {
		return 0, err
	}

	task.State = TaskReady
	s.queue.push(task.ID)

	Metrics.TasksSpawned.Add(1)
	kfmt.Fprintf(schedLog, "spawned task %d (%s)\n", uint32(task.ID), name)
	return task.ID, nil
}

// Tick performs one round-robin scheduling step. It must only be called
// from the timer interrupt handler, which guarantees that interrupts are
// disabled for the duration of the context switch.
//
// The running task (unless it is the idle task) is marked Ready and pushed
// to the queue tail; the queue head becomes the new running task. An empty
// queue selects the idle task.
func Tick() {
	s := &scheduler
	s.lock.Acquire()

	if s.current < 0 {
		s.lock.Release()
		panicFn(errNotInitialized)
		return
	}

	prev := &s.tasks[s.current]
	if prev.ID != IdleTaskID {
		prev.State = TaskReady
		s.queue.push(prev.ID)
		Metrics.Preemptions.Add(1)
	} else {
		prev.State = TaskReady
	}

	nextIdx := 0 // idle task
	if id, ok := s.queue.pop(); ok {
		nextIdx = s.taskIndex(id)
	}

	next := &s.tasks[nextIdx]
	next.State = TaskRunning
	s.current = nextIdx

	// The lock must be dropped before switching stacks: the task being
	// resumed releases nothing on our behalf. Interrupts stay disabled
	// until the interrupt handler returns, so nothing can intervene.
	s.lock.Release()

	if prev != next {
		Metrics.CtxSwitches.Add(1)
		switchContextFn(&prev.Context, &next.Context)
	}
}

// Current returns the ID of the running task.
func Current() TaskID {
	s := &scheduler
	s.lock.Acquire()
	id := s.tasks[s.current].ID
	s.lock.Release()
	return id
}

// TaskCount returns the number of tasks in the task table, the idle task
// included.
func TaskCount() int {
	s := &scheduler
	s.lock.Acquire()
	count := s.taskCount
	s.lock.Release()
	return count
}

// allocTask reserves the next task table slot, assigns the next ID and
// carves a stack from the kernel heap. The saved context is seeded so that
// the first switch into the task returns into the entry trampoline with all
// callee-saved registers zeroed.
func (s *schedulerState) allocTask(name string, entry func()) (*Task, *kernel.Error) {
	if s.taskCount == maxTasks {
		return nil, ErrCapacityExceeded
	}

	stack, err := kmallocFn(TaskStackSize)
	if err != nil {
		return nil, err
	}

	task := &s.tasks[s.taskCount]
	*task = Task{
		ID:        s.nextID,
		Name:      name,
		State:     TaskReady,
		StackBase: stack,
		StackSize: TaskStackSize,
		entry:     entry,
	}

	// Seed the stack so the switch's final return lands on the entry
	// trampoline.
	sp := stack + uintptr(TaskStackSize) - 8
	*(*uintptr)(unsafe.Pointer(sp)) = taskTrampolineAddr()
	task.Context.RSP = uint64(sp)

	s.taskCount++
	s.nextID++
	return task, nil
}

// taskIndex returns the task table slot holding id. IDs handed out by
// allocTask always resolve; the fallback to the idle slot is defensive
// against corruption and cannot trigger through the public API.
func (s *schedulerState) taskIndex(id TaskID) int {
	for i := 0; i < s.taskCount; i++ {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return 0
}

// runTaskEntry is the Go half of the entry trampoline: the first switch
// into a freshly spawned task returns into the assembly trampoline, which
// immediately calls this function on the task's own stack. A task entry
// never returns; if one does, the kernel halts.
func runTaskEntry() {
	s := &scheduler
	s.lock.Acquire()
	entry := s.tasks[s.current].entry
	s.lock.Release()

	cpu.EnableInterrupts()
	entry()

	kernel.Panic(errEntryReturned)
}
