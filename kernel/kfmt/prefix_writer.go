package kfmt

import "io"

// PrefixWriter is an io.Writer that injects a fixed prefix at the beginning
// of every line it forwards to its sink. The kernel subsystems use it to tag
// their log output (e.g. "[MM] ", "[SCHED] ").
type PrefixWriter struct {
	// Sink receives the prefixed output.
	Sink io.Writer

	// Prefix is injected at the start of each line.
	Prefix []byte

	bytesAfterPrefix int
}

// Write forwards p to the sink, inserting the configured prefix after every
// newline. The returned byte count excludes the injected prefixes.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written, start int

	if w.bytesAfterPrefix == 0 && len(p) != 0 {
		w.Sink.Write(w.Prefix)
	}

	for cur := 0; cur < len(p); cur++ {
		if p[cur] != '\n' {
			continue
		}

		n, err := w.Sink.Write(p[start : cur+1])
		written += n
		if err != nil {
			return written, err
		}

		w.bytesAfterPrefix = 0
		start = cur + 1
		if start != len(p) {
			w.Sink.Write(w.Prefix)
		}
	}

	if start < len(p) {
		n, err := w.Sink.Write(p[start:])
		written += n
		w.bytesAfterPrefix += n
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
