// Package kernel provides the glue every other package in this module
// depends on: the error type used throughout the core (since the Go
// allocator is not available until the buddy allocator has bootstrapped
// itself, we cannot use errors.New), and raw memory primitives that stand
// in for libc's memset/memmove.
package kernel

import (
	"reflect"
	"unsafe"
)

// Error describes a kernel-level error. Kernel errors are pointers to this
// structure, built where they are raised (by small per-package constructor
// functions or inline) or, in a few places, kept in a package-level
// variable; nothing here depends on errors.New.
type Error struct {
	// Module names the subsystem that raised the error.
	Module string
	// Message describes what went wrong.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "[" + e.Module + "] " + e.Message
}

// Memset sets size bytes starting at addr to value.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: addr,
	}))

	target[0] = value
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}

// Memmove copies size bytes from src to dst. The regions are allowed to
// overlap: dst and src may both point into the same managed physical
// region, so this routine picks a copy direction that's safe either way.
func Memmove(dst, src uintptr, size uintptr) {
	if size == 0 || dst == src {
		return
	}

	dstSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{Len: int(size), Cap: int(size), Data: dst}))
	srcSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{Len: int(size), Cap: int(size), Data: src}))

	if dst < src || dst >= src+size {
		copy(dstSlice, srcSlice)
		return
	}

	for i := int(size) - 1; i >= 0; i-- {
		dstSlice[i] = srcSlice[i]
	}
}
