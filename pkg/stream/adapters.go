package stream

import (
	"bytes"
	"io"
)

// ReaderInput adapts an io.Reader into an Input capability.
type ReaderInput struct {
	r      io.Reader
	closed bool
}

// NewReaderInput wraps r. If r also implements io.Closer, Close is forwarded.
func NewReaderInput(r io.Reader) *ReaderInput {
	return &ReaderInput{r: r}
}

// Read reads from the wrapped reader.
func (in *ReaderInput) Read(p []byte) (int, error) {
	if in == nil || in.r == nil || in.closed {
		return 0, io.EOF
	}
	return in.r.Read(p)
}

// Close marks the input closed and forwards to the wrapped reader if it
// implements io.Closer.
func (in *ReaderInput) Close() error {
	if in == nil || in.closed {
		return nil
	}
	in.closed = true
	if c, ok := in.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// WriterOutput adapts an io.Writer into an Output capability.
type WriterOutput struct {
	w      io.Writer
	closed bool
}

// NewWriterOutput wraps w. If w also implements io.Closer, Close is forwarded.
func NewWriterOutput(w io.Writer) *WriterOutput {
	return &WriterOutput{w: w}
}

// Write writes to the wrapped writer.
func (out *WriterOutput) Write(p []byte) (int, error) {
	if out == nil || out.w == nil || out.closed {
		return 0, io.ErrClosedPipe
	}
	return out.w.Write(p)
}

// Close marks the output closed and forwards to the wrapped writer if it
// implements io.Closer.
func (out *WriterOutput) Close() error {
	if out == nil || out.closed {
		return nil
	}
	out.closed = true
	if c, ok := out.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewBytesInput returns an Input reading from an in-memory buffer.
func NewBytesInput(data []byte) *ReaderInput {
	return NewReaderInput(bytes.NewReader(data))
}

// BufferOutput is an Output capability collecting written bytes in memory.
type BufferOutput struct {
	buf    bytes.Buffer
	closed bool
}

// Write appends p to the buffer.
func (out *BufferOutput) Write(p []byte) (int, error) {
	if out == nil || out.closed {
		return 0, io.ErrClosedPipe
	}
	return out.buf.Write(p)
}

// Close marks the buffer closed. Bytes remain readable.
func (out *BufferOutput) Close() error {
	if out == nil {
		return nil
	}
	out.closed = true
	return nil
}

// Bytes returns the collected bytes.
func (out *BufferOutput) Bytes() []byte {
	if out == nil {
		return nil
	}
	return out.buf.Bytes()
}

// String returns the collected bytes as a string.
func (out *BufferOutput) String() string {
	if out == nil {
		return ""
	}
	return out.buf.String()
}
