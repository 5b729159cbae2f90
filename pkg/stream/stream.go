// Package stream defines the byte-stream capabilities consumed and produced
// by the XML transport adapters. Capabilities are supplied and owned by the
// caller; adapters borrow them for their own lifetime and close them exactly
// once during teardown.
package stream

import (
	"errors"
	"fmt"
)

// Input is an abstract byte source. Read fills p and reports the number of
// bytes read; implementations signal failure through the returned error.
// Close is called exactly once when the consuming adapter is torn down and
// indicates no further Read will be issued.
type Input interface {
	Read(p []byte) (int, error)
	Close() error
}

// Output is an abstract byte sink, the write-side mirror of Input.
type Output interface {
	Write(p []byte) (int, error)
	Close() error
}

// ErrNegativeCount reports a capability that returned a negative byte count
// without an error. The contract treats this as a generic I/O failure.
var ErrNegativeCount = errors.New("stream capability returned negative count")

// PanicError carries a panic value recovered at the capability boundary.
// The adapters convert panics raised inside capability code into this error
// so the failure can cross the engine without unwinding through it.
type PanicError struct {
	Value any
}

// Error formats the recovered panic value.
func (e *PanicError) Error() string {
	if e == nil {
		return "stream panic <nil>"
	}
	return fmt.Sprintf("panic in stream capability: %v", e.Value)
}
