package xmltok

import (
	"errors"
	"fmt"
)

var (
	errNilReader          = errors.New("nil XML reader")
	errInvalidName        = errors.New("invalid XML name")
	errInvalidEntity      = errors.New("invalid entity reference")
	errInvalidCharRef     = errors.New("invalid character reference")
	errInvalidChar        = errors.New("invalid XML character")
	errInvalidToken       = errors.New("invalid XML token")
	errInvalidComment     = errors.New("invalid XML comment")
	errInvalidPI          = errors.New("invalid XML processing instruction")
	errInvalidAttr        = errors.New("invalid attribute")
	errDuplicateAttr      = errors.New("duplicate attribute name")
	errMismatchedEndTag   = errors.New("mismatched end element")
	errMultipleRoots      = errors.New("multiple root elements")
	errContentOutsideRoot = errors.New("content outside root element")
	errMissingRoot        = errors.New("missing root element")
	errMisplacedXMLDecl   = errors.New("XML declaration not at start")
	errAttrLimit          = errors.New("attribute count exceeds MaxAttrs")
)

// Exported sentinels let the adapter layer classify engine failures
// without depending on message text.
var (
	// ErrUnexpectedEOF reports input that ended inside a token or before the
	// root element was closed.
	ErrUnexpectedEOF = errors.New("unexpected EOF")
	// ErrEncodingMismatch reports a declared encoding that disagrees with the
	// encoding announced by the caller.
	ErrEncodingMismatch = errors.New("declared encoding does not match announced encoding")
	// ErrUnsupportedEncoding reports an encoding the decoder cannot read.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	// ErrTokenTooLarge reports a token whose accumulated size exceeds
	// MaxTokenSize. Surfaced as an allocation-class failure.
	ErrTokenTooLarge = errors.New("token exceeds MaxTokenSize")
	// ErrDepthLimit reports element nesting beyond MaxDepth.
	ErrDepthLimit = errors.New("element depth exceeds MaxDepth")
)

// SyntaxError reports a well-formedness error with location context.
type SyntaxError struct {
	Offset int64
	Line   int
	Column int
	Err    error
}

// Error formats the syntax error with location and cause.
func (e *SyntaxError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("xml syntax error at line %d, column %d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("xml syntax error at offset %d: %v", e.Offset, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SyntaxError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
