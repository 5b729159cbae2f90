// Package errors defines the owned error values surfaced by the XML
// transport bridge. An XMLError is a snapshot taken at the moment of
// failure; it never references decoder or writer internals, which are
// overwritten by the next operation.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Domain identifies which part of the bridge reported an error.
type Domain int

const (
	// DomainNone marks an error with no recorded origin.
	DomainNone Domain = iota
	// DomainParser marks malformed-input errors from the reader engine.
	DomainParser
	// DomainWriter marks invalid-write-sequence errors from the writer.
	DomainWriter
	// DomainIO marks failures of the underlying stream capability.
	DomainIO
)

// String returns a stable name for the domain, suitable for debugging.
func (d Domain) String() string {
	switch d {
	case DomainNone:
		return "None"
	case DomainParser:
		return "Parser"
	case DomainWriter:
		return "Writer"
	case DomainIO:
		return "IO"
	default:
		return "Unknown"
	}
}

// Code classifies an XML bridge error.
type Code string

const (
	// CodeSyntax indicates malformed XML input.
	CodeSyntax Code = "xml-syntax"
	// CodeUnexpectedEOF indicates the document ended before the grammar allowed it.
	CodeUnexpectedEOF Code = "xml-unexpected-eof"
	// CodeUnexpectedElement indicates a token did not match the expected grammar.
	CodeUnexpectedElement Code = "xml-unexpected-element"
	// CodeEncodingMismatch indicates the declared encoding disagrees with the
	// encoding announced by the caller.
	CodeEncodingMismatch Code = "xml-encoding-mismatch"
	// CodeWriteSequence indicates an emission call arrived in an invalid state.
	CodeWriteSequence Code = "xml-write-sequence"
	// CodeIO indicates a stream capability failure.
	CodeIO Code = "xml-io"
	// CodeNoMemory indicates an allocation or buffer-limit failure, kept
	// distinct from malformed-input conditions.
	CodeNoMemory Code = "xml-no-memory"
)

// Severity mirrors the engine's error levels.
type Severity int

const (
	// SeverityWarning marks a recoverable diagnostic.
	SeverityWarning Severity = iota + 1
	// SeverityError marks a failure of the current operation.
	SeverityError
	// SeverityFatal marks a failure after which the session is unusable.
	SeverityFatal
)

// ErrNoMemory is the sentinel for allocation and buffer-limit failures.
// Tested with errors.Is; XMLError values carrying CodeNoMemory wrap it.
var ErrNoMemory = errors.New("out of memory")

// XMLError is an owned snapshot of a bridge failure: domain, code, and
// location copied out at capture time. It is a terminal diagnostic value;
// equality is not defined.
type XMLError struct {
	Domain   Domain
	Code     Code
	Severity Severity
	Line     int
	Column   int
	// Source names the input the failure came from, when known.
	Source  string
	Message string
	Err     error
}

// Error formats the error with code, message, and location context.
func (e *XMLError) Error() string {
	if e == nil {
		return "xml error <nil>"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Line > 0 && e.Column > 0 {
		b.WriteString(fmt.Sprintf(" at line %d, column %d", e.Line, e.Column))
	}
	if e.Source != "" {
		b.WriteString(" in ")
		b.WriteString(e.Source)
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *XMLError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds an XMLError with a code, message, and location.
func New(domain Domain, code Code, line, column int, msg string) *XMLError {
	e := &XMLError{
		Domain:   domain,
		Code:     code,
		Severity: SeverityFatal,
		Line:     line,
		Column:   column,
		Message:  msg,
	}
	if code == CodeNoMemory {
		e.Err = ErrNoMemory
	}
	return e
}

// Newf formats a message and builds an XMLError.
func Newf(domain Domain, code Code, line, column int, format string, args ...any) *XMLError {
	return New(domain, code, line, column, fmt.Sprintf(format, args...))
}

// Wrap builds an XMLError around a cause, preserving it for errors.Is checks.
func Wrap(domain Domain, code Code, line, column int, err error) *XMLError {
	e := New(domain, code, line, column, errMessage(err))
	if code != CodeNoMemory {
		e.Err = err
	} else if err != nil && !errors.Is(err, ErrNoMemory) {
		e.Err = fmt.Errorf("%w: %w", ErrNoMemory, err)
	}
	return e
}

// AsXMLError extracts an XMLError from an error chain.
func AsXMLError(err error) (*XMLError, bool) {
	if err == nil {
		return nil, false
	}
	var xmlErr *XMLError
	if errors.As(err, &xmlErr) && xmlErr != nil {
		return xmlErr, true
	}
	return nil, false
}

func errMessage(err error) string {
	if err == nil {
		return "unknown XML error"
	}
	return err.Error()
}
