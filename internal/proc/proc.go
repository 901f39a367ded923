// Package proc holds the process control block this kernel keeps just
// enough of to define the trap frame's owner and the supervisor
// address-space layout around it. Scheduling, user-mode execution and
// syscall dispatch are not implemented; this package is the placeholder
// table a future scheduler would build on.
package proc

import (
	"github.com/Alexander-Porter/riscv-os/internal/sv39"
	"github.com/Alexander-Porter/riscv-os/internal/trapframe"
)

// State is a process's lifecycle stage.
type State int

const (
	Unused State = iota
	Used
	Sleeping
	Runnable
	Running
	Zombie
)

func (s State) String() string {
	switch s {
	case Unused:
		return "UNUSED"
	case Used:
		return "USED"
	case Sleeping:
		return "SLEEPING"
	case Runnable:
		return "RUNNABLE"
	case Running:
		return "RUNNING"
	case Zombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

// MaxProcs bounds the process table; this kernel has no scheduler to fill
// it, but the slots exist so the trap frame owner and per-process
// address-space fields have somewhere concrete to live.
const MaxProcs = 64

// Process is the process control block: pid, state, kernel stack, memory
// size, page table, trap frame pointer, saved context, and name — and
// nothing a scheduler would additionally need, since there is none.
type Process struct {
	PID       int
	State     State
	KStack    uintptr
	Sz        uintptr
	Pagetable sv39.PageTable
	Trapframe *trapframe.Frame
	Context   trapframe.Context
	Name      [16]byte
}

var table [MaxProcs]Process

// Alloc finds an UNUSED slot, marks it USED, assigns it pid, and returns
// it, or nil if the table is full. The kernel never actually schedules
// these processes; this exists so KernelPagetableFn-style wiring and
// trap-frame ownership have a concrete home to be exercised by tests.
func Alloc(pid int, name string) *Process {
	for i := range table {
		if table[i].State == Unused {
			p := &table[i]
			p.PID = pid
			p.State = Used
			copy(p.Name[:], name)
			return p
		}
	}
	return nil
}

// Free resets p to UNUSED, dropping its pagetable/trapframe references
// without freeing the memory behind them — that is the caller's
// responsibility, mirroring sv39's leaf-ownership convention.
func Free(p *Process) {
	*p = Process{}
}

// Find returns the table slot with the given pid, or nil.
func Find(pid int) *Process {
	for i := range table {
		if table[i].State != Unused && table[i].PID == pid {
			return &table[i]
		}
	}
	return nil
}
