package kernel

// HaltFn is called by Panic after printing the failure banner. It is a
// package variable (rather than a direct call to an assembly WFI loop) so
// tests can override it and observe a halt without parking the process.
var HaltFn = func() { select {} }

// PrintFn is used by Panic to emit the failure banner. It defaults to a
// no-op so this package has no dependency on kfmt; cmd/kernel wires it to
// kfmt.Printf during boot.
var PrintFn = func(format string, args ...interface{}) {}

// Panic prints the supplied error, if any, and halts the hart. Calls to
// Panic never return.
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		err = &Error{Module: "rt", Message: t}
	case error:
		err = &Error{Module: "rt", Message: t.Error()}
	default:
		err = &Error{Module: "rt", Message: "unknown cause"}
	}

	PrintFn("\n-----------------------------------\n")
	PrintFn("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	PrintFn("*** kernel panic: system halted ***\n")
	PrintFn("-----------------------------------\n")

	HaltFn()
}
