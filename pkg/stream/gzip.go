package stream

import (
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
)

// KeePass2 wraps its inner XML payload in a gzip stream. These adapters let
// the XML bridge consume and produce that layer without owning the codec.

var errNilStream = errors.New("nil stream capability")

// GzipInput decompresses a gzip-wrapped Input capability.
type GzipInput struct {
	src    Input
	zr     *gzip.Reader
	closed bool
}

// NewGzipInput wraps src. The gzip header is read eagerly so a corrupt
// header fails at construction rather than on the first Read.
func NewGzipInput(src Input) (*GzipInput, error) {
	if src == nil {
		return nil, errNilStream
	}
	zr, err := gzip.NewReader(inputReader{src})
	if err != nil {
		return nil, err
	}
	return &GzipInput{src: src, zr: zr}, nil
}

// Read returns decompressed bytes.
func (in *GzipInput) Read(p []byte) (int, error) {
	if in == nil || in.zr == nil || in.closed {
		return 0, io.EOF
	}
	return in.zr.Read(p)
}

// Close closes the gzip layer and then the wrapped capability, exactly once.
func (in *GzipInput) Close() error {
	if in == nil || in.closed {
		return nil
	}
	in.closed = true
	zerr := in.zr.Close()
	if err := in.src.Close(); err != nil {
		return err
	}
	return zerr
}

// GzipOutput compresses written bytes into a gzip-wrapped Output capability.
type GzipOutput struct {
	dst    Output
	zw     *gzip.Writer
	closed bool
}

// NewGzipOutput wraps dst with the given gzip compression level.
func NewGzipOutput(dst Output, level int) (*GzipOutput, error) {
	if dst == nil {
		return nil, errNilStream
	}
	zw, err := gzip.NewWriterLevel(outputWriter{dst}, level)
	if err != nil {
		return nil, err
	}
	return &GzipOutput{dst: dst, zw: zw}, nil
}

// Write compresses p into the wrapped capability.
func (out *GzipOutput) Write(p []byte) (int, error) {
	if out == nil || out.zw == nil || out.closed {
		return 0, io.ErrClosedPipe
	}
	return out.zw.Write(p)
}

// Close flushes the gzip trailer and closes the wrapped capability, exactly
// once. The trailer write happens before the capability close so a full
// gzip member is always emitted on the success path.
func (out *GzipOutput) Close() error {
	if out == nil || out.closed {
		return nil
	}
	out.closed = true
	zerr := out.zw.Close()
	if err := out.dst.Close(); err != nil {
		return err
	}
	return zerr
}

type inputReader struct {
	in Input
}

func (r inputReader) Read(p []byte) (int, error) {
	n, err := r.in.Read(p)
	if n < 0 {
		if err == nil {
			err = ErrNegativeCount
		}
		n = 0
	}
	return n, err
}

type outputWriter struct {
	out Output
}

func (w outputWriter) Write(p []byte) (int, error) {
	n, err := w.out.Write(p)
	if n < 0 {
		if err == nil {
			err = ErrNegativeCount
		}
		n = 0
	}
	return n, err
}
