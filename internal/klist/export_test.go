package klist

import "unsafe"

func nodeAddr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
