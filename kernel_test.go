package kernel

import "testing"

func TestKernelError(t *testing.T) {
	err := &Error{Module: "foo", Message: "error message"}

	if exp := "[foo] error message"; err.Error() != exp {
		t.Fatalf("expected Error() to return %q; got %q", exp, err.Error())
	}
}

func TestMemset(t *testing.T) {
	buf := make([]byte, 37)
	for i := range buf {
		buf[i] = 0xAA
	}

	addr := sliceAddr(buf)
	Memset(addr, 0x42, uintptr(len(buf)))

	for i, b := range buf {
		if b != 0x42 {
			t.Fatalf("byte %d: expected 0x42, got 0x%02x", i, b)
		}
	}

	// zero-length call must not panic or touch memory.
	Memset(addr, 0xFF, 0)
	if buf[0] != 0x42 {
		t.Fatal("zero-size Memset modified memory")
	}
}

func TestMemmoveNonOverlapping(t *testing.T) {
	src := []byte("hello, buddy")
	dst := make([]byte, len(src))

	Memmove(sliceAddr(dst), sliceAddr(src), uintptr(len(src)))

	if string(dst) != string(src) {
		t.Fatalf("expected dst to contain %q, got %q", src, dst)
	}
}

func TestMemmoveOverlappingForward(t *testing.T) {
	// dst starts 2 bytes after src, inside the same buffer: a forward
	// byte-by-byte copy using the naive direction would corrupt data.
	buf := append([]byte(nil), "ABCDEFGHIJ"...)
	base := sliceAddr(buf)

	Memmove(base+2, base, 6)

	if got, exp := string(buf), "ABABCDEFIJ"; got != exp {
		t.Fatalf("expected %q, got %q", exp, got)
	}
}

func TestMemmoveOverlappingBackward(t *testing.T) {
	buf := append([]byte(nil), "ABCDEFGHIJ"...)
	base := sliceAddr(buf)

	Memmove(base, base+2, 6)

	if got, exp := string(buf), "CDEFGHGHIJ"; got != exp {
		t.Fatalf("expected %q, got %q", exp, got)
	}
}

func TestMemmoveSameAddrNoop(t *testing.T) {
	buf := []byte("same")
	Memmove(sliceAddr(buf), sliceAddr(buf), uintptr(len(buf)))
	if string(buf) != "same" {
		t.Fatal("no-op Memmove mutated buffer")
	}
}
