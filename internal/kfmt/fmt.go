// Package kfmt provides a minimal, allocation-free Printf/Fprintf for use
// before (and after) the Go runtime's own formatting machinery is safe to
// call. Before the buddy allocator has bootstrapped itself nothing in this
// kernel may allocate, so this is a hand-rolled formatter supporting only
// the small set of verbs the rest of the kernel actually needs: %d, %x,
// %o, %s, %t. Output accumulates in a ring buffer until a real sink (the
// UART console) is attached.
package kfmt

import (
	"io"
)

const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numFmtBuf  [maxBufSize]byte
	singleByte = []byte{' '}

	// earlyBuf accumulates Printf output before SetOutputSink is called
	// (i.e. before the UART console is attached).
	earlyBuf ringBuffer

	outputSink io.Writer
)

// SetOutputSink directs all future Printf output to w, first draining
// anything accumulated in the early ring buffer into w.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyBuf)
	}
}

// Printf writes a formatted string to the active output sink (or the early
// ring buffer, if no sink has been attached yet).
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes to w explicitly; w == nil targets
// the early ring buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		nextCh                       byte
		argIndex                     int
		blockStart, blockEnd, padLen int
		fmtLen                       = len(format)
	)

	for blockEnd < fmtLen {
		nextCh = format[blockEnd]
		if nextCh != '%' {
			blockEnd++
			continue
		}

		for i := blockStart; i < blockEnd; i++ {
			singleByte[0] = format[i]
			doWrite(w, singleByte)
		}

		padLen = 0
		blockEnd++
	parseFmt:
		for ; blockEnd < fmtLen; blockEnd++ {
			nextCh = format[blockEnd]
			switch {
			case nextCh == '%':
				singleByte[0] = '%'
				doWrite(w, singleByte)
				break parseFmt
			case nextCh >= '0' && nextCh <= '9':
				padLen = (padLen * 10) + int(nextCh-'0')
				continue
			case nextCh == 'd' || nextCh == 'x' || nextCh == 'o' || nextCh == 's' || nextCh == 't':
				if argIndex >= len(args) {
					doWrite(w, errMissingArg)
					break parseFmt
				}
				switch nextCh {
				case 'o':
					fmtInt(w, args[argIndex], 8, padLen)
				case 'd':
					fmtInt(w, args[argIndex], 10, padLen)
				case 'x':
					fmtInt(w, args[argIndex], 16, padLen)
				case 's':
					fmtString(w, args[argIndex], padLen)
				case 't':
					fmtBool(w, args[argIndex])
				}
				argIndex++
				break parseFmt
			default:
				doWrite(w, errNoVerb)
				break parseFmt
			}
		}
		blockStart, blockEnd = blockEnd+1, blockEnd+1
	}

	for i := blockStart; i < blockEnd; i++ {
		singleByte[0] = format[i]
		doWrite(w, singleByte)
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	if !ok {
		doWrite(w, errWrongArgType)
		return
	}
	if b {
		doWrite(w, trueValue)
	} else {
		doWrite(w, falseValue)
	}
}

func fmtString(w io.Writer, v interface{}, padLen int) {
	switch s := v.(type) {
	case string:
		fmtRepeat(w, ' ', padLen-len(s))
		for i := 0; i < len(s); i++ {
			singleByte[0] = s[i]
			doWrite(w, singleByte)
		}
	case []byte:
		fmtRepeat(w, ' ', padLen-len(s))
		doWrite(w, s)
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtRepeat(w io.Writer, ch byte, count int) {
	singleByte[0] = ch
	for i := 0; i < count; i++ {
		doWrite(w, singleByte)
	}
}

func fmtInt(w io.Writer, v interface{}, base, padLen int) {
	var (
		sval             int64
		uval             uint64
		divider          uint64
		remainder        uint64
		padCh            byte
		left, right, end int
	)

	if padLen >= maxBufSize {
		padLen = maxBufSize - 1
	}

	switch base {
	case 8:
		divider, padCh = 8, '0'
	case 10:
		divider, padCh = 10, ' '
	case 16:
		divider, padCh = 16, '0'
	}

	switch t := v.(type) {
	case uint8:
		uval = uint64(t)
	case uint16:
		uval = uint64(t)
	case uint32:
		uval = uint64(t)
	case uint64:
		uval = t
	case uintptr:
		uval = uint64(t)
	case int8:
		sval = int64(t)
	case int16:
		sval = int64(t)
	case int32:
		sval = int64(t)
	case int64:
		sval = t
	case int:
		sval = int64(t)
	default:
		doWrite(w, errWrongArgType)
		return
	}

	if sval < 0 {
		uval = uint64(-sval)
	} else if sval > 0 {
		uval = uint64(sval)
	}

	for right < maxBufSize {
		remainder = uval % divider
		if remainder < 10 {
			numFmtBuf[right] = byte(remainder) + '0'
		} else {
			numFmtBuf[right] = byte(remainder-10) + 'a'
		}
		right++
		uval /= divider
		if uval == 0 {
			break
		}
	}

	for ; right-left < padLen; right++ {
		numFmtBuf[right] = padCh
	}

	if sval < 0 {
		for end = right - 1; numFmtBuf[end] == ' '; end-- {
		}
		if end == right-1 {
			right++
		}
		numFmtBuf[end+1] = '-'
	}

	end = right
	for right = right - 1; left < right; left, right = left+1, right-1 {
		numFmtBuf[left], numFmtBuf[right] = numFmtBuf[right], numFmtBuf[left]
	}

	doWrite(w, numFmtBuf[0:end])
}

func doWrite(w io.Writer, p []byte) {
	if w != nil {
		w.Write(p)
		return
	}
	earlyBuf.Write(p)
}
