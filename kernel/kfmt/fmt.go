// Package kfmt provides formatted output primitives that are safe to use
// from any point of the kernel lifecycle: no memory is allocated while
// formatting and output produced before a console sink is registered is kept
// in a ring buffer.
package kfmt

import "io"

// maxNumBuf is large enough for a 64-bit value formatted in base 8.
const maxNumBuf = 22

var (
	errMissingArg = []byte("%!(MISSING)")
	errBadVerb    = []byte("%!(NOVERB)")
	errBadType    = []byte("%!(WRONGTYPE)")
	trueValue     = []byte("true")
	falseValue    = []byte("false")

	// earlyBuf captures Printf output emitted before SetOutputSink is
	// called with a working console writer.
	earlyBuf ringBuffer

	// outputSink is the writer that receives Printf output. While nil,
	// output is redirected to earlyBuf.
	outputSink io.Writer

	// Output is an io.Writer that always routes writes to the currently
	// active sink (or the early boot buffer). Subsystems that want tagged
	// output wrap it with a PrefixWriter.
	Output io.Writer = sinkProxy{}
)

type sinkProxy struct{}

// Write routes p to the registered output sink, or to the early boot ring
// buffer if no sink has been registered yet.
func (sinkProxy) Write(p []byte) (int, error) {
	if outputSink == nil {
		return earlyBuf.Write(p)
	}
	return outputSink.Write(p)
}

// SetOutputSink registers the writer that receives all Printf output and
// drains any output that accumulated in the early boot buffer into it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyBuf)
	}
}

// Printf formats its arguments and writes them to the active output sink.
//
// The supported verb subset is: %s (string, []byte), %d, %x, %o (any
// built-in integer type), %t (bool) and %%. An optional decimal width may
// precede the verb; %d and %s pad with spaces on the left while %x and %o
// pad with zeroes. Formatting never allocates.
func Printf(format string, args ...interface{}) {
	Fprintf(Output, format, args...)
}

// Fprintf behaves like Printf but writes the formatted output to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		nextArg int
		buf     [1]byte
	)

	for i := 0; i < len(format); {
		if format[i] != '%' {
			buf[0] = format[i]
			w.Write(buf[:])
			i++
			continue
		}

		// Scan the optional width that follows '%'
		i++
		width := 0
		for ; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			width = width*10 + int(format[i]-'0')
		}

		if i == len(format) {
			w.Write(errBadVerb)
			return
		}

		verb := format[i]
		i++

		if verb == '%' {
			buf[0] = '%'
			w.Write(buf[:])
			continue
		}

		if nextArg >= len(args) {
			w.Write(errMissingArg)
			continue
		}
		arg := args[nextArg]
		nextArg++

		switch verb {
		case 's':
			fmtString(w, arg, width)
		case 'd':
			fmtInt(w, arg, 10, width)
		case 'x':
			fmtInt(w, arg, 16, width)
		case 'o':
			fmtInt(w, arg, 8, width)
		case 't':
			fmtBool(w, arg)
		default:
			w.Write(errBadVerb)
		}
	}
}

func fmtBool(w io.Writer, arg interface{}) {
	v, isBool := arg.(bool)
	if !isBool {
		w.Write(errBadType)
		return
	}
	if v {
		w.Write(trueValue)
		return
	}
	w.Write(falseValue)
}

func fmtString(w io.Writer, arg interface{}, width int) {
	var buf [1]byte

	switch v := arg.(type) {
	case string:
		for pad := width - len(v); pad > 0; pad-- {
			buf[0] = ' '
			w.Write(buf[:])
		}
		// Writing the string as a whole would require a conversion to
		// []byte which triggers an allocation.
		for i := 0; i < len(v); i++ {
			buf[0] = v[i]
			w.Write(buf[:])
		}
	case []byte:
		for pad := width - len(v); pad > 0; pad-- {
			buf[0] = ' '
			w.Write(buf[:])
		}
		w.Write(v)
	default:
		w.Write(errBadType)
	}
}

func fmtInt(w io.Writer, arg interface{}, base, width int) {
	var (
		v        uint64
		negative bool
	)

	switch t := arg.(type) {
	case uint8:
		v = uint64(t)
	case uint16:
		v = uint64(t)
	case uint32:
		v = uint64(t)
	case uint64:
		v = t
	case uint:
		v = uint64(t)
	case uintptr:
		v = uint64(t)
	case int8:
		negative, v = t < 0, uint64(abs64(int64(t)))
	case int16:
		negative, v = t < 0, uint64(abs64(int64(t)))
	case int32:
		negative, v = t < 0, uint64(abs64(int64(t)))
	case int64:
		negative, v = t < 0, uint64(abs64(t))
	case int:
		negative, v = t < 0, uint64(abs64(int64(t)))
	default:
		w.Write(errBadType)
		return
	}

	var (
		digits  = "0123456789abcdef"
		numBuf  [maxNumBuf]byte
		numLen  int
		buf     [1]byte
		ub      = uint64(base)
		padByte = byte(' ')
	)

	if base == 16 || base == 8 {
		padByte = '0'
	}

	for {
		numLen++
		numBuf[maxNumBuf-numLen] = digits[v%ub]
		v /= ub
		if v == 0 {
			break
		}
	}

	if negative {
		numLen++
		numBuf[maxNumBuf-numLen] = '-'
	}

	for pad := width - numLen; pad > 0; pad-- {
		buf[0] = padByte
		w.Write(buf[:])
	}

	w.Write(numBuf[maxNumBuf-numLen:])
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
