// Command kernel is the boot glue between the firmware handoff and the
// idle loop: it wires every hardware function-variable seam exposed by
// internal/critsec, internal/irq, internal/sv39, internal/trap and
// internal/timer to internal/cpu and internal/uart, brings up the
// physical allocator and the kernel's own address space, arms the timer,
// and parks the hart. Each stage is checked before the next begins:
// console, dispatcher, buddy, page table, timer.
package main

import (
	kernel "github.com/Alexander-Porter/riscv-os"
	"github.com/Alexander-Porter/riscv-os/internal/buddy"
	"github.com/Alexander-Porter/riscv-os/internal/cpu"
	"github.com/Alexander-Porter/riscv-os/internal/critsec"
	"github.com/Alexander-Porter/riscv-os/internal/irq"
	"github.com/Alexander-Porter/riscv-os/internal/kfmt"
	"github.com/Alexander-Porter/riscv-os/internal/kmem"
	"github.com/Alexander-Porter/riscv-os/internal/sv39"
	"github.com/Alexander-Porter/riscv-os/internal/timer"
	"github.com/Alexander-Porter/riscv-os/internal/trap"
	"github.com/Alexander-Porter/riscv-os/internal/uart"
)

// etext and kernelEnd return linker-provided addresses; their bodies
// live in linkvars_riscv64.s, the same forward-declaration idiom
// internal/cpu uses for its assembly-backed CSR accessors.
func etext() uintptr
func kernelEnd() uintptr

var errMainReturned = &kernel.Error{Module: "kmain", Message: "main returned"}

var console uart.Port

// cpuComparator adapts internal/cpu's time/stimecmp CSRs to
// timer.Comparator.
type cpuComparator struct{}

func (cpuComparator) Now() uint64            { return cpu.ReadTime() }
func (cpuComparator) SetCompare(when uint64) { cpu.WriteStimecmp(when) }

func wireHooks() {
	kernel.PrintFn = kfmt.Printf
	kernel.HaltFn = cpu.Halt

	critsec.DisableFn = cpu.DisableInterrupts
	critsec.RestoreFn = cpu.RestoreInterrupts

	irq.EnableIRQLineFn = func(line int) {
		cpu.WriteSie(cpu.ReadSie() | uint64(1)<<uint(line))
	}
	irq.DisableIRQLineFn = func(line int) {
		cpu.WriteSie(cpu.ReadSie() &^ (uint64(1) << uint(line)))
	}
	irq.EnableGlobalFn = cpu.EnableInterrupts
	irqLog := &kfmt.PrefixWriter{Sink: &console, Prefix: []byte("irq: ")}
	irq.LogFn = func(format string, args ...interface{}) {
		kfmt.Fprintf(irqLog, format, args...)
	}

	sv39.WriteSatpFn = cpu.WriteSatp
	sv39.SfenceVMAFn = cpu.SfenceVMA

	trap.WriteStvecFn = cpu.WriteStvec
	trap.ReadSepcFn = cpu.ReadSepc
	trap.ReadSstatusFn = cpu.ReadSstatus
	trap.ReadScauseFn = cpu.ReadScause
	trap.ReadStvalFn = func() uintptr { return uintptr(cpu.ReadStval()) }
	trap.WriteSepcFn = cpu.WriteSepc
	trap.WriteSstatusFn = cpu.WriteSstatus
	trap.ClearSoftwarePendingFn = func() {
		cpu.WriteSip(cpu.ReadSip() &^ (uint64(1) << uint(irq.SoftwareIRQ)))
	}
	trapLog := &kfmt.PrefixWriter{Sink: &console, Prefix: []byte("trap: ")}
	trap.LogFn = func(format string, args ...interface{}) {
		kfmt.Fprintf(trapLog, format, args...)
	}
	trap.EntryAllocPageFn = buddy.AllocPage
	trap.EntryFreePageFn = buddy.FreePage
}

// main is the only Go symbol the rt0 assembly calls, after it has set up
// a minimal g0 and a stack large enough for Go code to run on. It is not
// expected to return; if it does, the rt0 code halts the hart.
//
//go:noinline
func main() {
	console.Base = kmem.UART0
	console.Init()
	kfmt.SetOutputSink(&console)
	kfmt.Printf("booting\n")

	wireHooks()

	if err := buddy.Init(kmem.PGROUNDUP(kernelEnd()), kmem.PHYSTOP); err != nil {
		kernel.Panic(err)
	}

	root, err := sv39.KVMInit(buddy.AllocPage, etext(), kmem.PHYSTOP)
	if err != nil {
		kernel.Panic(err)
	}
	trap.KernelPagetableFn = func() sv39.PageTable { return root }

	trap.Init()
	trap.InitHart()
	sv39.KVMInitHart(root)

	timer.Init(cpuComparator{}, kmem.TimerInterval)
	irq.EnableInterrupt(irq.TimerIRQ)
	irq.EnableGlobalFn()

	kfmt.Printf("boot complete\n")

	for {
		cpu.Halt()
	}

	// unreachable; kept so main.go's control flow mirrors Kmain's own
	// "never returns" contract rather than relying on the for{} above
	// alone.
	kernel.Panic(errMainReturned)
}
