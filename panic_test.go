package kernel

import "testing"

func TestPanic(t *testing.T) {
	defer func() { HaltFn = func() { select {} } }()
	defer func() { PrintFn = func(string, ...interface{}) {} }()

	var halted bool
	HaltFn = func() { halted = true }

	var got string
	PrintFn = func(format string, args ...interface{}) {
		got += sprintfStub(format, args...)
	}

	t.Run("with error", func(t *testing.T) {
		halted, got = false, ""
		Panic(&Error{Module: "test", Message: "panic test"})

		exp := "\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got != exp {
			t.Fatalf("expected:\n%q\ngot:\n%q", exp, got)
		}
		if !halted {
			t.Fatal("expected HaltFn to be called")
		}
	})

	t.Run("with plain string", func(t *testing.T) {
		halted, got = false, ""
		Panic("boom")

		exp := "\n-----------------------------------\n[rt] unrecoverable error: boom\n*** kernel panic: system halted ***\n-----------------------------------\n"
		if got != exp {
			t.Fatalf("expected:\n%q\ngot:\n%q", exp, got)
		}
		if !halted {
			t.Fatal("expected HaltFn to be called")
		}
	})
}

// sprintfStub is a tiny stand-in for fmt.Sprintf so this package-level test
// does not need to import the hosted fmt package (the real kfmt package
// under internal/kfmt is what ships in the kernel image).
func sprintfStub(format string, args ...interface{}) string {
	out := make([]byte, 0, len(format))
	ai := 0
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			switch format[i+1] {
			case 's':
				out = append(out, args[ai].(string)...)
				ai++
				i++
				continue
			}
		}
		out = append(out, format[i])
	}
	return string(out)
}
