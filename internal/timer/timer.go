// Package timer implements the periodic supervisor timer: arming the
// next interrupt, counting ticks, and registering its own handler on the
// timer IRQ chain.
package timer

import (
	"github.com/Alexander-Porter/riscv-os/internal/irq"
)

// Comparator abstracts the single CSR write that arms the next timer
// interrupt, so the package can be driven by a real stimecmp write in
// cmd/kernel or by a fake clock in tests.
type Comparator interface {
	// Now returns the current time in timer ticks.
	Now() uint64
	// SetCompare arms the next interrupt to fire at or after when.
	SetCompare(when uint64)
}

// cpuComparator builds a Comparator from two plain functions. The package
// default is one whose Now always returns 0 and whose SetCompare does
// nothing, so package-level functions work without setup in a test build
// that never calls Init; cmd/kernel passes its own CSR-backed comparator
// to Init.
type cpuComparator struct {
	now        func() uint64
	setCompare func(uint64)
}

func (c cpuComparator) Now() uint64 { return c.now() }
func (c cpuComparator) SetCompare(when uint64) {
	c.setCompare(when)
}

var defaultInterval uint64 = 1_000_000

var (
	comparator Comparator = cpuComparator{now: func() uint64 { return 0 }, setCompare: func(uint64) {}}
	ticks      uint64
)

// Init wires comparator as the timer source, remembers interval as the
// spacing between ticks, registers the tick handler on the timer chain,
// and arms the first interrupt. Calling Init twice replaces the
// registered handler rather than stacking a second one, so re-Init is
// safe in tests.
func Init(c Comparator, interval uint64) {
	irq.Unregister(irq.TimerIRQ, tick)

	comparator = c
	defaultInterval = interval
	ticks = 0

	irq.Register(irq.TimerIRQ, tick, "timer")
	armNext()
}

func armNext() {
	comparator.SetCompare(comparator.Now() + defaultInterval)
}

// tick is the handler registered on the timer chain: it advances the
// tick counter and rearms the comparator for the next period. The
// interrupt dispatcher's priority gate already ensures this never nests
// with itself.
func tick(_ int) {
	ticks++
	armNext()
}

// Ticks returns the number of timer interrupts serviced since Init.
func Ticks() uint64 { return ticks }

// GetTime returns the comparator's current time.
func GetTime() uint64 { return comparator.Now() }

// SetNextTimer arms a one-off interrupt interval ticks from now, without
// changing the periodic default used by the next automatic rearm.
func SetNextTimer(interval uint64) {
	comparator.SetCompare(comparator.Now() + interval)
}
