// Package critsec implements the interrupt-disabling critical section
// shared by the buddy allocator (internal/buddy) and the interrupt
// dispatcher (internal/irq): every allocator operation and every
// registration or unregistration of a handler runs with supervisor
// interrupts off. The target is single-hart, so disabling interrupts for
// the duration of the section is sufficient serialization; there is no
// second hart to contend with.
package critsec

// DisableFn and RestoreFn are package-level function variables, the same
// injection idiom used elsewhere in this kernel for hardware-touching
// primitives, so this package's critical sections are unit-testable on a
// hosted GOOS without real supervisor CSRs. cmd/kernel wires these to
// internal/cpu's DisableInterrupts/RestoreInterrupts during boot.
var (
	DisableFn = func() uintptr { return 0 }
	RestoreFn = func(saved uintptr) {}
)

// Enter disables interrupts and returns an opaque token that must be
// passed to Leave to restore the previous interrupt-enable state.
func Enter() uintptr {
	return DisableFn()
}

// Leave restores the interrupt-enable state captured by a matching Enter.
func Leave(saved uintptr) {
	RestoreFn(saved)
}
