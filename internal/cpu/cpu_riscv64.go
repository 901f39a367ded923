// Package cpu wraps the RISC-V supervisor CSRs and hart control
// instructions this kernel needs. Each function's Go signature is
// forward-declared here with no body; the implementation lives in the
// companion _riscv64.s file. The _riscv64 filename suffix restricts
// compilation to GOARCH=riscv64 on its own, no build tag required.
//
// Every exported function here is pure hardware access with no branching
// logic of its own, so none of it is unit-tested directly: callers
// (critsec, internal/irq, internal/sv39, internal/timer) depend on it only
// through function-variable injection points that tests override instead.
package cpu

// DisableInterrupts clears sstatus.SIE and returns the previous value of
// the whole sstatus register so it can be restored verbatim later.
func DisableInterrupts() uintptr

// RestoreInterrupts writes saved back into sstatus, as captured by a prior
// DisableInterrupts call.
func RestoreInterrupts(saved uintptr)

// EnableInterrupts unconditionally sets sstatus.SIE. The interrupt
// dispatcher calls this when entering a handler chain: the in-flight IRQ
// line has just been disabled, so re-enabling SIE lets a
// strictly-higher-priority line preempt without risking same-line
// re-entrance.
func EnableInterrupts()

// InterruptsEnabled reports whether sstatus.SIE is currently set.
func InterruptsEnabled() bool

// Halt parks the hart in a wfi loop. Panic never returns past this call.
func Halt()

// ReadSstatus and WriteSstatus access the sstatus CSR directly.
func ReadSstatus() uint64
func WriteSstatus(v uint64)

// ReadSepc and WriteSepc access the sepc CSR.
func ReadSepc() uint64
func WriteSepc(v uint64)

// ReadScause reads the scause CSR.
func ReadScause() uint64

// ReadStval reads the stval CSR (the faulting address for page faults).
func ReadStval() uint64

// ReadSie and WriteSie access the supervisor interrupt-enable CSR, whose
// STIE/SEIE/SSIE bits gate the timer/external/software lines individually.
func ReadSie() uint64
func WriteSie(v uint64)

// ReadSip and WriteSip access the supervisor interrupt-pending CSR.
func ReadSip() uint64
func WriteSip(v uint64)

// WriteStvec installs the trap vector base address.
func WriteStvec(v uintptr)

// ReadTime reads the time CSR (a free-running counter driven by the
// platform's CLINT, readable from supervisor mode).
func ReadTime() uint64

// WriteStimecmp programs the next supervisor-timer interrupt via the Sstc
// extension's stimecmp CSR.
func WriteStimecmp(v uint64)

// WriteSatp installs a new root page table and mode into satp.
func WriteSatp(v uint64)

// ReadSatp reads the current satp value.
func ReadSatp() uint64

// SfenceVMA flushes the entire TLB (rs1=rs2=zero flushes all entries and
// all ASIDs).
func SfenceVMA()
