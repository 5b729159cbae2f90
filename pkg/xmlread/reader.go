// Package xmlread turns a pull XML token stream over an abstract input
// capability into a cursor traversal API for an expected tag-by-tag grammar.
// Capability errors always take priority over engine parse errors: an error
// (or panic) raised inside the capability surfaces unchanged from the
// operation that triggered it, and the capability is still closed exactly
// once on teardown.
package xmlread

import (
	"errors"
	"io"
	"strings"

	kperrors "github.com/jacoelho/kpxml/errors"
	"github.com/jacoelho/kpxml/pkg/stream"
	"github.com/jacoelho/kpxml/pkg/xmltok"
)

// Option configures the reader.
// Construct options via helpers in pkg/xmltok.
type Option = xmltok.Options

var (
	errNilInput = errors.New("nil stream input")

	// ErrReaderPoisoned reports use of a reader after a failure surfaced.
	// Only Close is valid on a poisoned reader.
	ErrReaderPoisoned = errors.New("xml reader poisoned by previous error")
	// ErrReaderClosed reports use of a reader after Close.
	ErrReaderClosed = errors.New("xml reader closed")
	// ErrNotStartElement reports an operation that requires the cursor to be
	// on a start element. This is a caller logic error, not a parse error.
	ErrNotStartElement = errors.New("current node is not a start element")
)

// Reader is a cursor over the token stream of one XML document.
// It is driven by a single goroutine and must not be shared.
type Reader struct {
	in       *captureInput
	dec      *xmltok.Decoder
	tok      xmltok.Token
	started  bool
	eof      bool
	poisoned bool
	closed   bool
}

// NewReader creates a reader over the input capability. The capability is
// borrowed: the caller keeps ownership, and the reader closes it exactly
// once when Close is called.
func NewReader(in stream.Input, opts ...Option) (*Reader, error) {
	if in == nil {
		return nil, errNilInput
	}
	capture := &captureInput{src: in}
	return &Reader{
		in:  capture,
		dec: xmltok.NewDecoder(capture, opts...),
	}, nil
}

// Read advances the cursor to the next token, skipping whitespace-only
// character data between elements. It returns false at the end of the
// document. A pending capability error is re-raised in preference to any
// engine parse error.
func (r *Reader) Read() (bool, error) {
	if err := r.usable(); err != nil {
		return false, err
	}
	if r.eof {
		return false, nil
	}
	for {
		tok, err := r.dec.ReadToken()
		if err == io.EOF {
			r.eof = true
			r.started = false
			return false, nil
		}
		if err != nil {
			return false, r.fail(err)
		}
		if tok.Kind == xmltok.KindCharData && isWhitespaceOnly(tok.Text) {
			continue
		}
		r.tok = tok
		r.started = true
		return true, nil
	}
}

// ExpectRead advances the cursor and reports a parse error if the document
// ended where the grammar requires another token.
func (r *Reader) ExpectRead() error {
	ok, err := r.Read()
	if err != nil {
		return err
	}
	if !ok {
		return kperrors.New(kperrors.DomainParser, kperrors.CodeUnexpectedEOF,
			r.tok.Line, r.tok.Column, "unexpected end of document")
	}
	return nil
}

// Next skips the current element's subtree and advances to the following
// token. A self-closing element has no subtree to descend into. It returns
// false at the end of the document.
func (r *Reader) Next() (bool, error) {
	if err := r.usable(); err != nil {
		return false, err
	}
	if r.started && r.tok.Kind == xmltok.KindStartElement {
		if r.tok.SelfClosing {
			// Consume the synthetic end token only.
			if ok, err := r.Read(); err != nil || !ok {
				return false, err
			}
		} else {
			depth := r.tok.Depth
			for {
				ok, err := r.Read()
				if err != nil {
					return false, err
				}
				if !ok {
					return false, nil
				}
				if r.tok.Kind == xmltok.KindEndElement && r.tok.Depth == depth {
					break
				}
			}
		}
	}
	return r.Read()
}

// ExpectNext skips to the next token after the current subtree and reports
// a parse error if the document ended instead.
func (r *Reader) ExpectNext() error {
	ok, err := r.Next()
	if err != nil {
		return err
	}
	if !ok {
		return kperrors.New(kperrors.DomainParser, kperrors.CodeUnexpectedEOF,
			r.tok.Line, r.tok.Column, "unexpected end of document")
	}
	return nil
}

// ExpectLocalNameElement reports a parse error unless the cursor is on a
// start element whose local name equals name. The cursor does not move, so
// a mismatch leaves traversal intact.
func (r *Reader) ExpectLocalNameElement(name string) error {
	if err := r.usable(); err != nil {
		return err
	}
	if !r.started || r.tok.Kind != xmltok.KindStartElement {
		return kperrors.Newf(kperrors.DomainParser, kperrors.CodeUnexpectedElement,
			r.tok.Line, r.tok.Column, "expected element %q, got %s", name, r.tok.Kind)
	}
	if got := r.tok.LocalName(); got != name {
		return kperrors.Newf(kperrors.DomainParser, kperrors.CodeUnexpectedElement,
			r.tok.Line, r.tok.Column, "expected element %q, got %q", name, got)
	}
	return nil
}

// Attribute looks up an attribute on the current start element by name.
// Absence is not an error.
func (r *Reader) Attribute(name string) (string, bool) {
	if r == nil || !r.started || r.tok.Kind != xmltok.KindStartElement {
		return "", false
	}
	return r.tok.Attribute(name)
}

// ReadString reads the text content of the current element up to its
// matching end element, concatenating character data and CDATA sections.
// The cursor is left on the end element. A child element inside the content
// is a parse error.
func (r *Reader) ReadString() (string, error) {
	if err := r.usable(); err != nil {
		return "", err
	}
	if !r.started || r.tok.Kind != xmltok.KindStartElement {
		return "", ErrNotStartElement
	}
	if r.tok.SelfClosing {
		// Move onto the synthetic end token so the cursor position matches
		// the non-empty case.
		tok, err := r.dec.ReadToken()
		if err != nil {
			return "", r.fail(err)
		}
		r.tok = tok
		return "", nil
	}
	depth := r.tok.Depth
	var sb strings.Builder
	for {
		tok, err := r.dec.ReadToken()
		if err == io.EOF {
			return "", r.fail(xmltok.ErrUnexpectedEOF)
		}
		if err != nil {
			return "", r.fail(err)
		}
		switch tok.Kind {
		case xmltok.KindCharData, xmltok.KindCDATA:
			sb.WriteString(tok.Text)
		case xmltok.KindStartElement:
			r.poisoned = true
			return "", kperrors.Newf(kperrors.DomainParser, kperrors.CodeUnexpectedElement,
				tok.Line, tok.Column, "unexpected child element %q in text content", tok.Name)
		case xmltok.KindEndElement:
			if tok.Depth == depth {
				r.tok = tok
				return sb.String(), nil
			}
		}
	}
}

// LineNumber reports the 1-based line of the current token.
func (r *Reader) LineNumber() int {
	if r == nil {
		return 0
	}
	return r.tok.Line
}

// ColumnNumber reports the 1-based column of the current token.
func (r *Reader) ColumnNumber() int {
	if r == nil {
		return 0
	}
	return r.tok.Column
}

// IsEmpty reports whether the current node is a self-closing element.
func (r *Reader) IsEmpty() bool {
	return r != nil && r.started && r.tok.Kind == xmltok.KindStartElement && r.tok.SelfClosing
}

// Depth reports the nesting depth of the current token.
func (r *Reader) Depth() int {
	if r == nil {
		return 0
	}
	return r.tok.Depth
}

// LocalName returns the current element name with any prefix removed.
func (r *Reader) LocalName() string {
	if r == nil {
		return ""
	}
	return r.tok.LocalName()
}

// Name returns the raw, possibly prefixed name of the current token.
func (r *Reader) Name() string {
	if r == nil {
		return ""
	}
	return r.tok.Name
}

// Attributes returns the attributes of the current start element in
// document order. The slice is only valid until the cursor moves.
func (r *Reader) Attributes() []xmltok.Attr {
	if r == nil || !r.started || r.tok.Kind != xmltok.KindStartElement {
		return nil
	}
	return r.tok.Attrs
}

// Text returns the character data of the current token.
func (r *Reader) Text() string {
	if r == nil {
		return ""
	}
	return r.tok.Text
}

// NodeType reports the kind of the current token.
func (r *Reader) NodeType() xmltok.Kind {
	if r == nil {
		return xmltok.KindNone
	}
	return r.tok.Kind
}

// Close closes the borrowed input capability exactly once. It is safe to
// call after an error, and a panic from the capability's own Close is
// converted rather than propagated.
func (r *Reader) Close() (err error) {
	if r == nil || r.closed {
		return nil
	}
	r.closed = true
	defer func() {
		if rec := recover(); rec != nil {
			err = &stream.PanicError{Value: rec}
		}
	}()
	return r.in.src.Close()
}

func (r *Reader) usable() error {
	if r == nil || r.dec == nil {
		return errNilInput
	}
	if r.closed {
		return ErrReaderClosed
	}
	if r.poisoned {
		return ErrReaderPoisoned
	}
	return nil
}

// fail resolves an engine error against the pending capability error. The
// capability error is the root cause and wins; the engine error it provoked
// is discarded. Either way the reader is poisoned.
func (r *Reader) fail(err error) error {
	r.poisoned = true
	if pending := r.in.takePending(); pending != nil {
		return pending
	}
	return translateEngineError(err)
}

func translateEngineError(err error) error {
	line, column := 0, 0
	var syntaxErr *xmltok.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, column = syntaxErr.Line, syntaxErr.Column
	}
	code := kperrors.CodeSyntax
	switch {
	case errors.Is(err, xmltok.ErrTokenTooLarge), errors.Is(err, xmltok.ErrDepthLimit):
		code = kperrors.CodeNoMemory
	case errors.Is(err, xmltok.ErrUnexpectedEOF):
		code = kperrors.CodeUnexpectedEOF
	case errors.Is(err, xmltok.ErrEncodingMismatch), errors.Is(err, xmltok.ErrUnsupportedEncoding):
		code = kperrors.CodeEncodingMismatch
	}
	return kperrors.Wrap(kperrors.DomainParser, code, line, column, err)
}

func isWhitespaceOnly(text string) bool {
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}
