// Package xmlwrite emits XML incrementally to an abstract output capability.
// Capability errors always take priority over engine-side write errors: an
// error (or panic) raised inside the capability surfaces unchanged from the
// operation that triggered it, and the capability is still closed exactly
// once on teardown.
package xmlwrite

import (
	"encoding/base64"
	"errors"
	"fmt"

	kperrors "github.com/jacoelho/kpxml/errors"
	"github.com/jacoelho/kpxml/pkg/stream"
	"github.com/jacoelho/kpxml/pkg/xmltok"
)

var (
	errNilOutput   = errors.New("nil stream output")
	errInvalidName = errors.New("invalid xml name")

	// ErrWriterPoisoned reports use of a writer after a failure surfaced.
	// Only Close is valid on a poisoned writer.
	ErrWriterPoisoned = errors.New("xml writer poisoned by previous error")
	// ErrWriterClosed reports use of a writer after Close.
	ErrWriterClosed = errors.New("xml writer closed")
	// ErrNoOpenElement reports an end element or content write with no
	// element open.
	ErrNoOpenElement = errors.New("no open element")
	// ErrAttributeAfterContent reports an attribute written outside the
	// attribute phase of a start tag.
	ErrAttributeAfterContent = errors.New("attribute written after element content")
)

// Options are writer configuration options.
type Options struct {
	indent    int
	indentSet bool
}

// WithIndent enables pretty printing with n spaces per nesting level.
// Zero disables indentation.
func WithIndent(n int) Options {
	return Options{indent: n, indentSet: true}
}

// JoinOptions merges the given options, with later values winning.
func JoinOptions(opts ...Options) Options {
	var merged Options
	for _, o := range opts {
		if o.indentSet {
			merged.indent = o.indent
			merged.indentSet = true
		}
	}
	return merged
}

type frame struct {
	name    string
	content bool
	child   bool
}

// Writer emits one XML document to an output capability. Every operation
// hands its bytes to the capability before returning, so a capability
// failure surfaces from the operation that caused it. It is driven by a
// single goroutine and must not be shared.
type Writer struct {
	out       *captureOutput
	buf       []byte
	stack     []frame
	indent    int
	attrPhase bool
	poisoned  bool
	closed    bool
}

// NewWriter creates a writer over the output capability. The capability is
// borrowed: the caller keeps ownership, and the writer closes it exactly
// once when Close is called.
func NewWriter(out stream.Output, opts ...Options) (*Writer, error) {
	if out == nil {
		return nil, errNilOutput
	}
	merged := JoinOptions(opts...)
	indent := 0
	if merged.indentSet && merged.indent > 0 {
		indent = merged.indent
	}
	return &Writer{
		out:    &captureOutput{dst: out},
		indent: indent,
	}, nil
}

// SetIndent enables pretty printing with n spaces per nesting level.
// Zero or negative disables indentation. Takes effect for tags written
// afterwards.
func (w *Writer) SetIndent(n int) {
	if w == nil {
		return
	}
	if n < 0 {
		n = 0
	}
	w.indent = n
}

// WriteStartDocument emits the XML declaration. Empty arguments default to
// version "1.0", encoding "utf-8" and standalone "yes".
func (w *Writer) WriteStartDocument(version, encoding, standalone string) error {
	if err := w.usable(); err != nil {
		return err
	}
	if version == "" {
		version = "1.0"
	}
	if encoding == "" {
		encoding = "utf-8"
	}
	if standalone == "" {
		standalone = "yes"
	}
	w.buf = append(w.buf, `<?xml version="`...)
	w.buf = append(w.buf, version...)
	w.buf = append(w.buf, `" encoding="`...)
	w.buf = append(w.buf, encoding...)
	w.buf = append(w.buf, `" standalone="`...)
	w.buf = append(w.buf, standalone...)
	w.buf = append(w.buf, `"?>`...)
	w.buf = append(w.buf, '\n')
	return w.flushOp()
}

// WriteStartElement opens an element. Attributes may be written until the
// first content or child element.
func (w *Writer) WriteStartElement(name string) error {
	if err := w.usable(); err != nil {
		return err
	}
	if !xmltok.ValidName(name) {
		return w.seqErr(fmt.Errorf("%w: %q", errInvalidName, name))
	}
	w.closeAttrPhase()
	if n := len(w.stack); n > 0 {
		parent := &w.stack[n-1]
		parent.child = true
		if w.indent > 0 && !parent.content {
			w.writeIndent(n)
		}
	}
	w.buf = append(w.buf, '<')
	w.buf = append(w.buf, name...)
	w.attrPhase = true
	w.stack = append(w.stack, frame{name: name})
	return w.flushOp()
}

// WriteAttribute writes an attribute on the currently open start tag. Once
// any content or child element has been written the attribute phase is over
// and further attributes are a sequence error.
func (w *Writer) WriteAttribute(name, value string) error {
	if err := w.usable(); err != nil {
		return err
	}
	if !w.attrPhase {
		return w.seqErr(ErrAttributeAfterContent)
	}
	if !xmltok.ValidName(name) {
		return w.seqErr(fmt.Errorf("%w: %q", errInvalidName, name))
	}
	w.buf = append(w.buf, ' ')
	w.buf = append(w.buf, name...)
	w.buf = append(w.buf, `="`...)
	w.buf = appendEscapedAttr(w.buf, value)
	w.buf = append(w.buf, '"')
	return w.flushOp()
}

// WriteString writes escaped character data inside the open element.
func (w *Writer) WriteString(text string) error {
	if err := w.usable(); err != nil {
		return err
	}
	if len(w.stack) == 0 {
		return w.seqErr(ErrNoOpenElement)
	}
	w.closeAttrPhase()
	w.buf = appendEscapedText(w.buf, text)
	if len(text) > 0 {
		w.stack[len(w.stack)-1].content = true
	}
	return w.flushOp()
}

// WriteBase64 writes data base64-encoded inside the open element. Empty
// data emits nothing but still ends the attribute phase.
func (w *Writer) WriteBase64(data []byte) error {
	if err := w.usable(); err != nil {
		return err
	}
	if len(w.stack) == 0 {
		return w.seqErr(ErrNoOpenElement)
	}
	w.closeAttrPhase()
	if len(data) == 0 {
		return w.flushOp()
	}
	n := len(w.buf)
	w.buf = append(w.buf, make([]byte, base64.StdEncoding.EncodedLen(len(data)))...)
	base64.StdEncoding.Encode(w.buf[n:], data)
	w.stack[len(w.stack)-1].content = true
	return w.flushOp()
}

// WriteEndElement closes the innermost open element. An element with
// neither content nor children is emitted self-closing.
func (w *Writer) WriteEndElement() error {
	if err := w.usable(); err != nil {
		return err
	}
	if len(w.stack) == 0 {
		return w.seqErr(ErrNoOpenElement)
	}
	top := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	if w.attrPhase {
		w.buf = append(w.buf, '/', '>')
		w.attrPhase = false
		return w.flushOp()
	}
	if w.indent > 0 && top.child && !top.content {
		w.writeIndent(len(w.stack))
	}
	w.buf = append(w.buf, '<', '/')
	w.buf = append(w.buf, top.name...)
	w.buf = append(w.buf, '>')
	return w.flushOp()
}

// WriteEndDocument closes any elements still open and terminates the
// document with a newline.
func (w *Writer) WriteEndDocument() error {
	if err := w.usable(); err != nil {
		return err
	}
	for len(w.stack) > 0 {
		if err := w.WriteEndElement(); err != nil {
			return err
		}
	}
	w.buf = append(w.buf, '\n')
	return w.flushOp()
}

// Element opens an element and returns a guard that closes it. The guard is
// safe under defer on every exit path: it emits the end element exactly
// once, and suppresses it entirely when the writer has failed in between.
func (w *Writer) Element(name string) (*ElementGuard, error) {
	if err := w.WriteStartElement(name); err != nil {
		return nil, err
	}
	return &ElementGuard{w: w}, nil
}

// Close closes the borrowed output capability exactly once. It is safe to
// call after an error, and a panic from the capability's own Close is
// converted rather than propagated.
func (w *Writer) Close() (err error) {
	if w == nil || w.closed {
		return nil
	}
	w.closed = true
	defer func() {
		if rec := recover(); rec != nil {
			err = &stream.PanicError{Value: rec}
		}
	}()
	return w.out.dst.Close()
}

// ElementGuard closes one element opened via Element.
type ElementGuard struct {
	w      *Writer
	closed bool
}

// Close emits the matching end element. Closing twice is a no-op, and the
// end tag is suppressed when the writer is poisoned or already closed.
func (g *ElementGuard) Close() error {
	if g == nil || g.closed {
		return nil
	}
	g.closed = true
	if g.w == nil || g.w.poisoned || g.w.closed {
		return nil
	}
	return g.w.WriteEndElement()
}

func (w *Writer) usable() error {
	if w == nil || w.out == nil {
		return errNilOutput
	}
	if w.closed {
		return ErrWriterClosed
	}
	if w.poisoned {
		return ErrWriterPoisoned
	}
	return nil
}

func (w *Writer) closeAttrPhase() {
	if w.attrPhase {
		w.buf = append(w.buf, '>')
		w.attrPhase = false
	}
}

func (w *Writer) writeIndent(level int) {
	w.buf = append(w.buf, '\n')
	for i := 0; i < level*w.indent; i++ {
		w.buf = append(w.buf, ' ')
	}
}

// flushOp hands the bytes built by one operation to the capability. The
// capability error is the root cause and wins over whatever the engine side
// would report. Any failure poisons the writer.
func (w *Writer) flushOp() error {
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.out.Write(w.buf)
	w.buf = w.buf[:0]
	if err == nil {
		return nil
	}
	w.poisoned = true
	if pending := w.out.takePending(); pending != nil {
		return pending
	}
	return kperrors.Wrap(kperrors.DomainWriter, kperrors.CodeIO, 0, 0, err)
}

// seqErr reports a caller sequencing error. These mirror exception
// semantics: the writer is unusable afterwards.
func (w *Writer) seqErr(err error) error {
	w.poisoned = true
	return kperrors.Wrap(kperrors.DomainWriter, kperrors.CodeWriteSequence, 0, 0, err)
}

func appendEscapedText(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch b := s[i]; b {
		case '&':
			buf = append(buf, "&amp;"...)
		case '<':
			buf = append(buf, "&lt;"...)
		case '>':
			buf = append(buf, "&gt;"...)
		case '\r':
			buf = append(buf, "&#xD;"...)
		default:
			buf = append(buf, b)
		}
	}
	return buf
}

func appendEscapedAttr(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch b := s[i]; b {
		case '&':
			buf = append(buf, "&amp;"...)
		case '<':
			buf = append(buf, "&lt;"...)
		case '>':
			buf = append(buf, "&gt;"...)
		case '"':
			buf = append(buf, "&quot;"...)
		case '\t':
			buf = append(buf, "&#x9;"...)
		case '\n':
			buf = append(buf, "&#xA;"...)
		case '\r':
			buf = append(buf, "&#xD;"...)
		default:
			buf = append(buf, b)
		}
	}
	return buf
}
