package sched

import "sync/atomic"

// KernelMetrics aggregates the scheduler and timer counters. All fields are
// updated atomically; readers may sample them from any context, including
// interrupt handlers.
type KernelMetrics struct {
	// TasksSpawned counts successful Spawn calls.
	TasksSpawned atomic.Uint64

	// CtxSwitches counts context switches, i.e. ticks where the selected
	// task differed from the running one.
	CtxSwitches atomic.Uint64

	// Preemptions counts ticks that displaced a non-idle running task.
	Preemptions atomic.Uint64

	// TimerTicks counts timer interrupts received since InitTimer.
	TimerTicks atomic.Uint64
}

// Metrics is the kernel-wide counter instance.
var Metrics KernelMetrics
