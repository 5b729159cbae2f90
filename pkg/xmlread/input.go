package xmlread

import (
	"io"

	"github.com/jacoelho/kpxml/pkg/stream"
)

// captureInput feeds the decoder from a stream capability and records the
// first capability failure before handing the engine a plain error. The
// engine cannot carry rich errors through its read path; the recorded value
// is re-raised by the adapter with priority over whatever the engine made
// of the failed read.
type captureInput struct {
	src     stream.Input
	pending error
}

func (c *captureInput) Read(p []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n = 0
			err = &stream.PanicError{Value: r}
			if c.pending == nil {
				c.pending = err
			}
		}
	}()
	n, err = c.src.Read(p)
	if n < 0 {
		n = 0
		if err == nil {
			err = stream.ErrNegativeCount
		}
	}
	if err != nil && err != io.EOF && c.pending == nil {
		c.pending = err
	}
	return n, err
}

// takePending returns and clears the recorded capability error.
func (c *captureInput) takePending() error {
	err := c.pending
	c.pending = nil
	return err
}
