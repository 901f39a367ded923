// Package trap implements the supervisor-mode trap body and exception
// taxonomy: the Go side of the assembly trap-entry contract, and the
// exception classifier that services kernel-range page faults through
// the physical allocator and internal/sv39. The kernel trap frame layout
// those assembly stubs agree on lives in internal/trapframe; the
// interrupt-chain/priority machinery a recognized interrupt cause is
// routed to lives in internal/irq.
//
// All hardware access goes through function-variable seams, so every
// branch in here is unit-testable without real CSRs.
package trap

import (
	kernel "github.com/Alexander-Porter/riscv-os"
	"github.com/Alexander-Porter/riscv-os/internal/irq"
	"github.com/Alexander-Porter/riscv-os/internal/kmem"
	"github.com/Alexander-Porter/riscv-os/internal/sv39"
)

// Supervisor exception cause codes (scause with the interrupt bit clear).
const (
	CauseIllegalInstruction uint64 = 2
	CauseBreakpoint         uint64 = 3
	CauseUserEcall          uint64 = 8
	CauseSupervisorEcall    uint64 = 9
	CauseMachineEcall       uint64 = 11
	CauseFetchPageFault     uint64 = 12
	CauseLoadPageFault      uint64 = 13
	CauseStorePageFault     uint64 = 15
)

func errOutOfMemory() *kernel.Error {
	return &kernel.Error{Module: "trap", Message: "out of memory servicing page fault"}
}

func errUnhandledPageFault(tval uintptr) *kernel.Error {
	return &kernel.Error{Module: "trap", Message: "unhandled page fault"}
}

func errUnhandledException(cause uint64) *kernel.Error {
	return &kernel.Error{Module: "trap", Message: "unhandled exception"}
}

// ReadSepcFn, ReadSstatusFn, ReadScauseFn and ReadStvalFn are the CSR
// reads KernelTrap needs; WriteSepcFn/WriteSstatusFn write the (possibly
// handler-modified) values back before the assembly stub executes sret.
// cmd/kernel wires these to internal/cpu; tests override them directly.
var (
	ReadSepcFn     = func() uint64 { return 0 }
	ReadSstatusFn  = func() uint64 { return sstatusSPP }
	ReadScauseFn   = func() uint64 { return 0 }
	ReadStvalFn    = func() uintptr { return 0 }
	WriteSepcFn    = func(uint64) {}
	WriteSstatusFn = func(uint64) {}
)

// ClearSoftwarePendingFn clears the software-interrupt-pending bit; wired
// to internal/cpu's sip accessors, and passed through to irq.DevIntr.
var ClearSoftwarePendingFn = func() {}

// PanicFn is called on every unrecoverable condition this package
// classifies. Defaults to kernel.Panic; tests override it to observe a
// panic without actually halting.
var PanicFn = kernel.Panic

// LogFn reports diagnostic detail ahead of a panic, so the console shows
// the faulting cause/epc/tval even when the panic message itself is
// terse.
var LogFn = func(format string, args ...interface{}) {}

const (
	sstatusSIE = uint64(1) << 1
	sstatusSPP = uint64(1) << 8
)

// AllocPageFn and FreePageFn let the page-fault path call into
// internal/buddy without this package importing it directly — the same
// indirection internal/sv39 uses, so trap stays testable without a real
// physical region.
type AllocPageFn func() (uintptr, *kernel.Error)
type FreePageFn func(uintptr)

// KernelPagetableFn returns the live kernel root page table; cmd/kernel
// wires it to whatever sv39.KVMInit returned.
var KernelPagetableFn = func() sv39.PageTable { return 0 }

// EntryAllocPageFn and EntryFreePageFn are the page-fault allocator hooks
// Entry passes through to KernelTrap. They exist as package vars (rather
// than parameters) because Entry is called from assembly with no
// arguments: kernelvec_riscv64.s only knows how to CALL a niladic Go
// function after saving registers. cmd/kernel wires both to
// internal/buddy during boot.
var (
	EntryAllocPageFn = func() (uintptr, *kernel.Error) { return 0, errOutOfMemory() }
	EntryFreePageFn  = func(uintptr) {}
)

// Entry is the Go-side trap entry point called by the assembly stub in
// kernelvec_riscv64.s once it has saved the trap frame. It is the
// niladic adapter KernelTrap needs to be reachable from assembly.
func Entry() {
	KernelTrap(EntryAllocPageFn, EntryFreePageFn)
}

var (
	nestedLevel int
)

// NestedLevel reports the current trap-nesting depth, for debug dumps.
func NestedLevel() int { return nestedLevel }

// WriteStvecFn installs the trap vector base address; cmd/kernel wires it
// to internal/cpu's stvec write.
var WriteStvecFn = func(uintptr) {}

// Init resets the trap subsystem's nesting bookkeeping. The handler
// chains themselves live in internal/irq and are ready at package init.
func Init() { nestedLevel = 0 }

// KernelTrap is the Go entry point the assembly trap stub calls after
// saving registers. It asserts the trap came from supervisor mode with
// interrupts disabled, classifies it via irq.DevIntr (interrupts) or
// HandleException (exceptions), and writes sepc/sstatus back so the
// assembly stub resumes at the right place with the right mode — the
// dispatcher may have re-enabled interrupts mid-chain, and KernelTrap
// does not second-guess that; it only restores what it itself read.
func KernelTrap(allocPage AllocPageFn, freePage FreePageFn) {
	sepc := ReadSepcFn()
	sstatus := ReadSstatusFn()
	scause := ReadScauseFn()

	if sstatus&sstatusSPP == 0 {
		PanicFn(&kernel.Error{Module: "trap", Message: "kerneltrap: not from supervisor mode"})
	}
	if sstatus&sstatusSIE != 0 {
		PanicFn(&kernel.Error{Module: "trap", Message: "kerneltrap: interrupts enabled"})
	}

	nestedLevel++
	if irq.DevIntr(scause, ClearSoftwarePendingFn) == 0 {
		HandleException(scause, sepc, ReadStvalFn(), allocPage, freePage)
	}
	nestedLevel--

	WriteSepcFn(sepc)
	WriteSstatusFn(sstatus)
}

// HandleException classifies a non-interrupt scause and either services
// it (page faults, via HandlePageFault) or panics. ECALLs, illegal
// instructions and breakpoints are recognized but not implemented: they
// are logged and panic.
func HandleException(cause uint64, epc uint64, tval uintptr, allocPage AllocPageFn, freePage FreePageFn) {
	switch cause {
	case CauseUserEcall, CauseSupervisorEcall, CauseMachineEcall:
		LogFn("ecall (cause=%d) received, syscalls are not implemented\n", cause)
		PanicFn(errUnhandledException(cause))
	case CauseIllegalInstruction:
		LogFn("illegal instruction at epc=%x\n", epc)
		PanicFn(errUnhandledException(cause))
	case CauseBreakpoint:
		LogFn("breakpoint at epc=%x\n", epc)
		PanicFn(errUnhandledException(cause))
	case CauseFetchPageFault, CauseLoadPageFault, CauseStorePageFault:
		HandlePageFault(cause, epc, tval, allocPage, freePage)
	default:
		LogFn("unrecognized exception cause=%d epc=%x tval=%x\n", cause, epc, tval)
		PanicFn(errUnhandledException(cause))
	}
}

// HandlePageFault services a page fault within the kernel's managed
// range by allocating and mapping a zeroed frame at the faulting page,
// then returning so the assembly stub retries the faulting instruction.
// A fault address outside [KERNBASE, PHYSTOP) is not demand-paged — user
// space isn't implemented — and panics as an unhandled page fault.
func HandlePageFault(cause uint64, epc uint64, tval uintptr, allocPage AllocPageFn, freePage FreePageFn) {
	if tval < kmem.KERNBASE || tval >= kmem.PHYSTOP {
		LogFn("page fault outside kernel range: tval=%x epc=%x\n", tval, epc)
		PanicFn(errUnhandledPageFault(tval))
		return
	}

	faultPage := tval &^ (kmem.PGSIZE - 1)

	pa, err := allocPage()
	if err != nil {
		PanicFn(errOutOfMemory())
		return
	}
	kernel.Memset(pa, 0, kmem.PGSIZE)

	pt := KernelPagetableFn()
	mapErr := sv39.MapPages(pt, faultPage, kmem.PGSIZE, pa, sv39.PteR|sv39.PteW, func() (uintptr, *kernel.Error) {
		return allocPage()
	})
	if mapErr != nil {
		freePage(pa)
		PanicFn(mapErr)
	}
}
