// Package kpxml bridges abstract byte-stream capabilities to a streaming
// XML cursor reader and an incremental XML writer, preserving capability
// errors across the engine boundary. It targets KeePass2 password-database
// XML transport; cryptography and the outer container format stay external.
package kpxml

import (
	"github.com/jacoelho/kpxml/pkg/stream"
	"github.com/jacoelho/kpxml/pkg/xmlread"
	"github.com/jacoelho/kpxml/pkg/xmltok"
	"github.com/jacoelho/kpxml/pkg/xmlwrite"
)

// ReaderOptions configures document reading. See pkg/xmltok for helpers.
type ReaderOptions = xmltok.Options

// WriterOptions configures document writing. See pkg/xmlwrite for helpers.
type WriterOptions = xmlwrite.Options

// NewReader opens a cursor reader over the input capability with the given
// resource limits.
func NewReader(in stream.Input, limits ParseLimits, opts ...ReaderOptions) (*xmlread.Reader, error) {
	resolved, err := resolveParseLimits(limits)
	if err != nil {
		return nil, err
	}
	merged := append(resolved.options(), opts...)
	return xmlread.NewReader(in, merged...)
}

// NewWriter opens an incremental writer over the output capability.
func NewWriter(out stream.Output, opts ...WriterOptions) (*xmlwrite.Writer, error) {
	return xmlwrite.NewWriter(out, opts...)
}

// Copy pipes the rest of the reader's document into the writer, preserving
// element structure, attributes and text. Insignificant whitespace between
// elements is dropped, so the writer's indent settings control the output
// layout. Neither side is closed.
func Copy(w *xmlwrite.Writer, r *xmlread.Reader) error {
	for {
		ok, err := r.Read()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch r.NodeType() {
		case xmltok.KindStartElement:
			if err := w.WriteStartElement(r.Name()); err != nil {
				return err
			}
			for _, attr := range r.Attributes() {
				if err := w.WriteAttribute(attr.Name, attr.Value); err != nil {
					return err
				}
			}
		case xmltok.KindEndElement:
			if err := w.WriteEndElement(); err != nil {
				return err
			}
		case xmltok.KindCharData, xmltok.KindCDATA:
			if err := w.WriteString(r.Text()); err != nil {
				return err
			}
		}
	}
}
