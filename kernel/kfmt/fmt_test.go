package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { printfn("no args") },
			"no args",
		},
		// bool values
		{
			func() { printfn("%t", true) },
			"true",
		},
		{
			func() { printfn("%41t", false) },
			"false",
		},
		// strings and byte slices
		{
			func() { printfn("%s arg", "STRING") },
			"STRING arg",
		},
		{
			func() { printfn("%s arg", []byte("BYTE SLICE")) },
			"BYTE SLICE arg",
		},
		{
			func() { printfn("'%4s' arg with padding", "ABC") },
			"' ABC' arg with padding",
		},
		{
			func() { printfn("'%4s' arg longer than padding", "ABCDE") },
			"'ABCDE' arg longer than padding",
		},
		// uints
		{
			func() { printfn("uint arg: %d", uint8(10)) },
			"uint arg: 10",
		},
		{
			func() { printfn("uint arg: %o", uint16(0777)) },
			"uint arg: 777",
		},
		{
			func() { printfn("uint arg: 0x%x", uint32(0xbadf00d)) },
			"uint arg: 0xbadf00d",
		},
		{
			func() { printfn("uint arg with padding: '%10d'", uint64(123)) },
			"uint arg with padding: '       123'",
		},
		{
			func() { printfn("uint arg with padding: '%4o'", uint64(0777)) },
			"uint arg with padding: '0777'",
		},
		{
			func() { printfn("uint arg with padding: '0x%10x'", uint64(0xbadf00d)) },
			"uint arg with padding: '0x000badf00d'",
		},
		// pointers
		{
			func() { printfn("uintptr 0x%x", uintptr(0xb8000)) },
			"uintptr 0xb8000",
		},
		// ints
		{
			func() { printfn("int arg: %d", int8(-10)) },
			"int arg: -10",
		},
		{
			func() { printfn("int arg: %d", int16(123)) },
			"int arg: 123",
		},
		{
			func() { printfn("int arg with padding: '%6d'", int32(-123)) },
			"int arg with padding: '  -123'",
		},
		{
			func() { printfn("int arg: %d", int64(-12345678)) },
			"int arg: -12345678",
		},
		{
			func() { printfn("int arg: %x", int(0x7f)) },
			"int arg: 7f",
		},
		// escaped percent
		{
			func() { printfn("100%%") },
			"100%",
		},
		// error cases
		{
			func() { printfn("more verbs than args: %d %d", 1) },
			"more verbs than args: 1 %!(MISSING)",
		},
		{
			func() { printfn("unsupported verb: %v", 1) },
			"unsupported verb: %!(NOVERB)",
		},
		{
			func() { printfn("unterminated: %") },
			"unterminated: %!(NOVERB)",
		},
		{
			func() { printfn("%d", "not a number") },
			"%!(WRONGTYPE)",
		},
		{
			func() { printfn("%s", 42) },
			"%!(WRONGTYPE)",
		},
		{
			func() { printfn("%t", 42) },
			"%!(WRONGTYPE)",
		},
	}

	var buf bytes.Buffer
	outputSink = &buf

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()
		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected output %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestEarlyBufferedOutput(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyBuf = ringBuffer{}
	}()

	outputSink = nil
	Printf("early %s output: %d\n", "boot", 42)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "early boot output: 42\n", buf.String(); got != exp {
		t.Fatalf("expected early output %q to be drained into the sink; got %q", exp, got)
	}

	// Output after sink registration must bypass the ring buffer.
	buf.Reset()
	Printf("late output")
	if exp, got := "late output", buf.String(); got != exp {
		t.Fatalf("expected output %q; got %q", exp, got)
	}
}
