// Package trapframe defines the fixed-layout register save areas shared
// with the assembly trap-entry stub (internal/trap). The field order and
// byte offsets are an external contract: the assembly save/restore code
// indexes into these structs by constant offset, not by field name, so
// reordering or resizing a field here silently breaks trap entry.
package trapframe

// Frame is the 288-byte, 36-slot kernel trap frame saved by the assembly
// stub on every trap taken from kernel mode. Offsets are listed in bytes
// for cross-reference against the assembly.
type Frame struct {
	KernelSatp   uint64 // 0
	KernelSp     uint64 // 8
	KernelTrap   uint64 // 16
	Epc          uint64 // 24
	KernelHartid uint64 // 32
	Ra           uint64 // 40
	Sp           uint64 // 48
	Gp           uint64 // 56
	Tp           uint64 // 64
	T0           uint64 // 72
	T1           uint64 // 80
	T2           uint64 // 88
	S0           uint64 // 96
	S1           uint64 // 104
	A0           uint64 // 112
	A1           uint64 // 120
	A2           uint64 // 128
	A3           uint64 // 136
	A4           uint64 // 144
	A5           uint64 // 152
	A6           uint64 // 160
	A7           uint64 // 168
	S2           uint64 // 176
	S3           uint64 // 184
	S4           uint64 // 192
	S5           uint64 // 200
	S6           uint64 // 208
	S7           uint64 // 216
	S8           uint64 // 224
	S9           uint64 // 232
	S10          uint64 // 240
	S11          uint64 // 248
	T3           uint64 // 256
	T4           uint64 // 264
	T5           uint64 // 272
	T6           uint64 // 280
}

// Size is the trap frame's fixed byte size, checked against unsafe.Sizeof
// in trapframe_test.go so a field addition is caught immediately rather
// than silently desynchronizing from the assembly stub.
const Size = 288

// Print dumps the general-purpose registers to the active console via
// printf, in the same a0..a7/s0..s11/t0..t6 grouping the assembly stub
// uses to save them.
func (f *Frame) Print(printf func(format string, args ...interface{})) {
	printf("ra  = %16x sp  = %16x gp  = %16x tp  = %16x\n", f.Ra, f.Sp, f.Gp, f.Tp)
	printf("t0  = %16x t1  = %16x t2  = %16x\n", f.T0, f.T1, f.T2)
	printf("s0  = %16x s1  = %16x\n", f.S0, f.S1)
	printf("a0  = %16x a1  = %16x a2  = %16x a3  = %16x\n", f.A0, f.A1, f.A2, f.A3)
	printf("a4  = %16x a5  = %16x a6  = %16x a7  = %16x\n", f.A4, f.A5, f.A6, f.A7)
	printf("s2  = %16x s3  = %16x s4  = %16x s5  = %16x\n", f.S2, f.S3, f.S4, f.S5)
	printf("s6  = %16x s7  = %16x s8  = %16x s9  = %16x\n", f.S6, f.S7, f.S8, f.S9)
	printf("s10 = %16x s11 = %16x\n", f.S10, f.S11)
	printf("t3  = %16x t4  = %16x t5  = %16x t6  = %16x\n", f.T3, f.T4, f.T5, f.T6)
	printf("epc = %16x\n", f.Epc)
}

// Context holds the callee-saved registers for a cooperative context
// switch: ra, sp, and s0..s11. It is unused by the single-hart idle loop
// today but is kept as the landing spot for process switching, matching
// the process record's "saved context" field.
type Context struct {
	Ra  uint64
	Sp  uint64
	S0  uint64
	S1  uint64
	S2  uint64
	S3  uint64
	S4  uint64
	S5  uint64
	S6  uint64
	S7  uint64
	S8  uint64
	S9  uint64
	S10 uint64
	S11 uint64
}
