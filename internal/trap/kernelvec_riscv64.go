package trap

import "reflect"

// Kernelvec is the trap vector itself, implemented in
// kernelvec_riscv64.s. InitHart takes its address and installs it into
// stvec; Go code never calls it directly. The declaration lives in this
// architecture-named file with its assembly body, so hosted test builds
// of the rest of the package never see a bodiless function.
func Kernelvec()

// InitHart points the current hart's stvec at the assembly trap vector.
// The vector's address comes out of the Kernelvec func value — Go has no
// other portable way to name an assembly-only symbol's address from Go
// source. Call only after the allocator hooks are wired: the first trap
// taken may already be a page fault that allocates.
func InitHart() {
	WriteStvecFn(reflect.ValueOf(Kernelvec).Pointer())
}
