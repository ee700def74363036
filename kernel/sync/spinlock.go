// Package sync provides the mutual exclusion primitives used by the kernel
// core. The kernel runs a single execution context, so the only source of
// contention is interrupt-driven preemption on the same CPU.
package sync

import (
	"sync/atomic"

	"github.com/MelloOS/MelloOS/kernel/cpu"
)

// Spinlock implements a busy-wait lock. Attempting to re-acquire a lock
// already held by the running context deadlocks.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock is obtained.
func (l *Spinlock) Acquire() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
	}
}

// TryToAcquire attempts to obtain the lock without blocking and returns true
// on success.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes the lock. Releasing a free lock has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// IrqSpinlock is a Spinlock whose critical sections also run with maskable
// interrupts disabled. Every structure that a timer interrupt handler may
// touch must be guarded by an IrqSpinlock: a nested handler spinning on a
// lock held by the code it preempted could never make progress on a single
// CPU.
type IrqSpinlock struct {
	lock Spinlock

	// irqsOn records whether interrupt delivery was enabled when the
	// lock was taken, so Release restores rather than unconditionally
	// re-enables. A release from an already-masked context (early boot,
	// an outer critical section, an interrupt handler) must leave
	// interrupts masked.
	irqsOn bool
}

// Acquire saves the interrupt state, disables interrupts and obtains the
// lock.
func (l *IrqSpinlock) Acquire() {
	irqsOn := cpu.InterruptsEnabled()
	cpu.DisableInterrupts()
	l.lock.Acquire()
	l.irqsOn = irqsOn
}

// Release relinquishes the lock and restores the interrupt state saved by
// Acquire.
func (l *IrqSpinlock) Release() {
	irqsOn := l.irqsOn
	l.lock.Release()
	if irqsOn {
		cpu.EnableInterrupts()
	}
}
