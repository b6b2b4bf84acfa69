package vm

import (
	"bufio"
	"io"
	"strings"
)

// OutputSink receives the single observable output operation of the
// VM: one stringified value per Emit instruction. Consumer-supplied,
// so a CLI, an embedding host, or a test can each capture output their
// own way without the VM caring which.
type OutputSink interface {
	Emit(s string) error
}

// WriterSink adapts any io.Writer into an OutputSink, appending a
// newline after each emitted value -- the default behavior a CLI wants
// when printing program output line by line.
type WriterSink struct {
	w *bufio.Writer
}

// NewWriterSink wraps w, flushing eagerly after every Emit so output is
// visible immediately rather than buffered until the VM halts.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: bufio.NewWriter(w)}
}

func (s *WriterSink) Emit(line string) error {
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

// StringSink accumulates Emit output in memory, joined by newlines --
// the shape pkg/embed's RunFile/RunSource need to return accumulated
// output as a single string.
type StringSink struct {
	b strings.Builder
}

func (s *StringSink) Emit(line string) error {
	if s.b.Len() > 0 {
		s.b.WriteByte('\n')
	}
	s.b.WriteString(line)
	return nil
}

// String returns everything emitted so far.
func (s *StringSink) String() string { return s.b.String() }
