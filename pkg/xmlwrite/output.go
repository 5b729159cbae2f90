package xmlwrite

import (
	"github.com/jacoelho/kpxml/pkg/stream"
)

// captureOutput feeds the writer's bytes to the output capability while
// recording the first capability failure. A panic out of capability code is
// recovered here and converted; engine-side code only ever sees plain
// errors.
type captureOutput struct {
	dst     stream.Output
	pending error
}

func (c *captureOutput) Write(p []byte) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &stream.PanicError{Value: rec}
			n = 0
			c.record(err)
		}
	}()
	n, err = c.dst.Write(p)
	if err == nil && n < 0 {
		err = stream.ErrNegativeCount
		n = 0
	}
	if err != nil {
		c.record(err)
	}
	return n, err
}

// record keeps only the first failure. Later errors are usually knock-on
// effects of the first one.
func (c *captureOutput) record(err error) {
	if c.pending == nil {
		c.pending = err
	}
}

func (c *captureOutput) takePending() error {
	err := c.pending
	c.pending = nil
	return err
}
