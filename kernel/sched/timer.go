package sched

import (
	"github.com/MelloOS/MelloOS/kernel"
	"github.com/MelloOS/MelloOS/kernel/cpu"
	"github.com/MelloOS/MelloOS/kernel/irq"
	"github.com/MelloOS/MelloOS/kernel/kfmt"
)

// The 8253/8254 programmable interval timer.
const (
	// pitBaseFrequency is the fixed input clock of the timer chip in Hz.
	pitBaseFrequency = 1193182

	pitChannel0Port = 0x40
	pitCommandPort  = 0x43

	// pitCommandRateGen selects channel 0, lobyte/hibyte access and the
	// rate generator mode (mode 2).
	pitCommandRateGen = 0x36
)

var (
	ErrInvalidFrequency = &kernel.Error{Module: "sched", Message: "timer frequency out of range"}

	timerLog = &kfmt.PrefixWriter{Sink: kfmt.Output, Prefix: []byte("[TIMER] ")}

	// timerHz is the frequency programmed by InitTimer, used by Uptime.
	timerHz uint32
)

// pitDivisor computes the 16-bit reload value for the requested interrupt
// frequency, truncating the quotient. The achievable range is 19 to
// 1193182 Hz; anything else yields ErrInvalidFrequency.
func pitDivisor(hz uint32) (uint16, *kernel.Error) {
	if hz == 0 || hz > pitBaseFrequency {
		return 0, ErrInvalidFrequency
	}

	divisor := uint32(pitBaseFrequency) / hz
	if divisor > 0xffff {
		return 0, ErrInvalidFrequency
	}

	return uint16(divisor), nil
}

// InitTimer programs the interval timer to fire at hz interrupts per second,
// wires the scheduler tick to the timer vector and unmasks the timer line on
// the interrupt controller.
func InitTimer(hz uint32) *kernel.Error {
	divisor, err := pitDivisor(hz)
	if err != nil {
		return err
	}

	if err := irq.HandleInterrupt(irq.TimerVector, timerHandler); err != nil {
		return err
	}

	cpu.PortWriteByte(pitCommandPort, pitCommandRateGen)
	cpu.PortWriteByte(pitChannel0Port, uint8(divisor))
	cpu.PortWriteByte(pitChannel0Port, uint8(divisor>>8))

	timerHz = hz
	irq.UnmaskLine(0)

	kfmt.Fprintf(timerLog, "interval timer programmed to %d Hz (divisor %d)\n", hz, divisor)
	return nil
}

// timerHandler runs on every timer interrupt. The controller is acknowledged
// before the tick: Tick switches stacks and does not return here until this
// task is selected again, which would otherwise leave the line blocked.
func timerHandler(_ *irq.Registers) {
	Metrics.TimerTicks.Add(1)
	irq.Ack(0)
	Tick()
}

// Ticks returns the number of timer interrupts received since InitTimer.
func Ticks() uint64 {
	return Metrics.TimerTicks.Load()
}

// Uptime returns the milliseconds elapsed since InitTimer, derived from the
// tick count and the programmed frequency.
func Uptime() uint64 {
	if timerHz == 0 {
		return 0
	}
	return Metrics.TimerTicks.Load() * 1000 / uint64(timerHz)
}
