// Package irq implements the prioritized, shareable, nestable interrupt
// dispatcher: one chain of handlers per IRQ line, priority-gated nesting
// across lines, and the trap-cause classification that turns a raw
// scause value into a chain invocation.
package irq

import (
	"reflect"
	"unsafe"

	"github.com/Alexander-Porter/riscv-os/internal/critsec"
	"github.com/Alexander-Porter/riscv-os/internal/klist"
)

// MaxIRQNum bounds the chain table; register/unregister reject anything
// outside [0, MaxIRQNum).
const MaxIRQNum = 64

// Post-shift interrupt numbers, i.e. scause & 0xF once the interrupt bit
// has been stripped.
const (
	SoftwareIRQ = 1
	TimerIRQ    = 5
	ExternalIRQ = 9
)

// Priority is a static per-IRQ level; lower numeric value preempts
// higher.
type Priority int

const (
	High   Priority = 0
	Normal Priority = 1
	Low    Priority = 2

	// noneInFlight is one past Low: a sentinel current_priority meaning
	// "no chain is running", so any real priority gates past it.
	noneInFlight Priority = Low + 1
)

// Handler is an interrupt chain entry. irq is passed so one function can
// be registered on more than one line and still know which fired.
type Handler func(irq int)

// descriptor is allocated on the Go heap (the natural small-object
// allocator here, rather than routing interrupt registration through the
// physical page allocator) and linked into its chain intrusively. Node
// must stay the first field: descriptorOf recovers the enclosing
// descriptor from a bare *klist.Node by treating its address as the
// descriptor's address.
type descriptor struct {
	klist.Node
	handler Handler
	name    [32]byte
}

func descriptorOf(n *klist.Node) *descriptor {
	return (*descriptor)(unsafe.Pointer(n))
}

func funcPointer(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}

var chains [MaxIRQNum]klist.Node

var priorityOf [MaxIRQNum]Priority

func init() {
	for i := range priorityOf {
		priorityOf[i] = noneInFlight
	}
	priorityOf[SoftwareIRQ] = Low
	priorityOf[TimerIRQ] = Normal
	priorityOf[ExternalIRQ] = High

	for i := range chains {
		chains[i].Init()
	}
}

var currentPriority = noneInFlight

// EnableIRQLineFn, DisableIRQLineFn and EnableGlobalFn are the hardware
// hooks the dispatcher needs: per-line supervisor-interrupt-enable bits
// and the global SIE bit. cmd/kernel wires these to internal/cpu; tests
// override them to observe dispatcher behavior without real CSRs.
var (
	EnableIRQLineFn  = func(irq int) {}
	DisableIRQLineFn = func(irq int) {}
	EnableGlobalFn   = func() {}
)

// LogFn reports conditions the dispatcher wants surfaced but doesn't
// itself consider fatal (an unrecognized interrupt cause).
var LogFn = func(format string, args ...interface{}) {}

// EnableInterrupt and DisableInterrupt toggle one IRQ line's
// supervisor-interrupt-enable bit.
func EnableInterrupt(irq int)  { EnableIRQLineFn(irq) }
func DisableInterrupt(irq int) { DisableIRQLineFn(irq) }

// Register appends handler to irq's chain in O(1) and returns 0, or
// returns -1 without allocating if irq is out of range or handler is
// nil. Handlers run in registration order.
func Register(irq int, handler Handler, name string) int {
	if irq < 0 || irq >= MaxIRQNum || handler == nil {
		return -1
	}

	saved := critsec.Enter()
	defer critsec.Leave(saved)

	d := &descriptor{handler: handler}
	copy(d.name[:len(d.name)-1], name) // keep a trailing NUL for raw dumps
	d.Node.Init()
	chains[irq].PushTail(&d.Node)
	return 0
}

// Unregister detaches the first descriptor on irq's chain whose handler
// matches, preserving the head-prev-as-tail invariant for whatever
// remains (including reverting to the empty-list state).
func Unregister(irq int, handler Handler) {
	if irq < 0 || irq >= MaxIRQNum {
		return
	}

	saved := critsec.Enter()
	defer critsec.Leave(saved)

	head := &chains[irq]
	target := funcPointer(handler)
	for cur := head.Next(); cur != head; cur = cur.Next() {
		if funcPointer(descriptorOf(cur).handler) == target {
			cur.Remove()
			return
		}
	}
}

func runChain(irq int) {
	head := &chains[irq]
	for cur := head.Next(); cur != head; cur = cur.Next() {
		descriptorOf(cur).handler(irq)
	}
}

// HandleInterruptChain runs irq's chain under priority gating: if a chain
// of the same or higher priority is already in flight, this call is
// rejected outright. Otherwise the in-flight priority is raised, this
// line is disabled to block same-line re-entry, global interrupts are
// turned back on so a strictly higher line can preempt, the chain runs,
// and both are restored on the way out.
func HandleInterruptChain(irq int) {
	p := priorityOf[irq]

	saved := critsec.Enter()
	if p >= currentPriority {
		critsec.Leave(saved)
		return
	}
	old := currentPriority
	currentPriority = p
	DisableIRQLineFn(irq)
	critsec.Leave(saved)

	EnableGlobalFn()
	runChain(irq)

	saved = critsec.Enter()
	EnableIRQLineFn(irq)
	currentPriority = old
	critsec.Leave(saved)
}

// DevIntr classifies a trap's scause value. A clear high bit means an
// exception, reported as 0. A recognized interrupt runs its chain and
// returns its IRQ number; an unrecognized one is logged and also
// reported as 0, which the caller treats as an exception and panics on.
// clearSoftwarePending is invoked before dispatch when the cause is the
// software line, per its documented pending-bit contract.
func DevIntr(scause uint64, clearSoftwarePending func()) int {
	if scause>>63 == 0 {
		return 0
	}

	irqNum := int(scause & 0xF)
	switch irqNum {
	case SoftwareIRQ:
		clearSoftwarePending()
	case TimerIRQ, ExternalIRQ:
	default:
		LogFn("unrecognized interrupt cause=%x\n", scause)
		return 0
	}

	HandleInterruptChain(irqNum)
	return irqNum
}
