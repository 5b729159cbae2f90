package xmltok

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

const defaultBufferSize = 32 * 1024

// Decoder streams XML tokens from a byte source. It tracks 1-based line and
// column positions and the element nesting depth exactly as reported in the
// emitted tokens. A Decoder is not safe for concurrent use.
type Decoder struct {
	br         *bufio.Reader
	opts       decoderOptions
	stack      []string
	pendingEnd Token
	line       int
	column     int
	offset     int64
	bomLen     int64
	rootSeen   bool
	bomChecked bool
	hasPending bool
	err        error
}

// NewDecoder creates a new XML decoder for the reader.
func NewDecoder(r io.Reader, opts ...Options) *Decoder {
	dec := &Decoder{}
	dec.Reset(r, opts...)
	return dec
}

// Reset prepares the decoder for reading from r with new options.
func (d *Decoder) Reset(r io.Reader, opts ...Options) {
	if d == nil {
		return
	}
	d.opts = resolveOptions(JoinOptions(opts...))
	if d.br == nil {
		d.br = bufio.NewReaderSize(r, defaultBufferSize)
	} else {
		d.br.Reset(r)
	}
	d.stack = d.stack[:0]
	d.hasPending = false
	d.pendingEnd = Token{}
	d.line = 1
	d.column = 1
	d.offset = 0
	d.bomLen = 0
	d.rootSeen = false
	d.bomChecked = false
	d.err = nil
	if label := d.opts.encoding; label != "" && normalizeEncoding(label) != "utf-8" {
		d.err = &SyntaxError{Err: fmt.Errorf("%w: %q", ErrUnsupportedEncoding, label)}
	}
}

// Depth reports the number of currently open elements.
func (d *Decoder) Depth() int {
	if d == nil {
		return 0
	}
	return len(d.stack)
}

// InputOffset returns the current byte position in the input stream.
func (d *Decoder) InputOffset() int64 {
	if d == nil {
		return 0
	}
	return d.offset
}

// ReadToken returns the next token. io.EOF is returned after the root
// element has been closed and the input is exhausted. Any other error is
// sticky: further calls return the same error.
func (d *Decoder) ReadToken() (Token, error) {
	if d == nil || d.br == nil {
		return Token{}, errNilReader
	}
	if d.err != nil {
		return Token{}, d.err
	}
	tok, err := d.readToken()
	if err != nil {
		d.err = err
		return Token{}, err
	}
	return tok, nil
}

func (d *Decoder) readToken() (Token, error) {
	if d.hasPending {
		d.hasPending = false
		return d.pendingEnd, nil
	}
	if !d.bomChecked {
		if err := d.checkBOM(); err != nil {
			return Token{}, err
		}
	}
	for {
		line, column, offset := d.line, d.column, d.offset
		b, err := d.peek()
		if err == io.EOF {
			if len(d.stack) > 0 {
				return Token{}, d.syntaxErr(line, column, offset, ErrUnexpectedEOF)
			}
			if !d.rootSeen {
				return Token{}, d.syntaxErr(line, column, offset, errMissingRoot)
			}
			return Token{}, io.EOF
		}
		if err != nil {
			return Token{}, d.syntaxErr(line, column, offset, err)
		}
		var tok Token
		var emit bool
		if b == '<' {
			tok, emit, err = d.readMarkup(line, column, offset)
		} else {
			tok, emit, err = d.readText(line, column, offset)
		}
		if err != nil {
			return Token{}, err
		}
		if emit {
			return tok, nil
		}
	}
}

func (d *Decoder) readMarkup(line, column int, offset int64) (Token, bool, error) {
	if _, err := d.readByte(); err != nil { // '<'
		return Token{}, false, d.syntaxErr(line, column, offset, err)
	}
	b, err := d.peek()
	if err != nil {
		return Token{}, false, d.syntaxErr(line, column, offset, eofErr(err))
	}
	switch b {
	case '/':
		return d.readEndTag(line, column, offset)
	case '!':
		return d.readBang(line, column, offset)
	case '?':
		return d.readPI(line, column, offset)
	default:
		return d.readStartTag(line, column, offset)
	}
}

func (d *Decoder) readStartTag(line, column int, offset int64) (Token, bool, error) {
	name, err := d.readName()
	if err != nil {
		return Token{}, false, d.syntaxErr(line, column, offset, err)
	}
	var attrs []Attr
	selfClosing := false
	for {
		if err := d.skipWhitespace(); err != nil {
			return Token{}, false, d.syntaxErr(line, column, offset, eofErr(err))
		}
		b, err := d.peek()
		if err != nil {
			return Token{}, false, d.syntaxErr(line, column, offset, eofErr(err))
		}
		if b == '>' {
			_, _ = d.readByte()
			break
		}
		if b == '/' {
			_, _ = d.readByte()
			if err := d.expectByte('>'); err != nil {
				return Token{}, false, d.syntaxErr(line, column, offset, err)
			}
			selfClosing = true
			break
		}
		attr, err := d.readAttr()
		if err != nil {
			return Token{}, false, d.syntaxErr(line, column, offset, err)
		}
		for _, existing := range attrs {
			if existing.Name == attr.Name {
				return Token{}, false, d.syntaxErr(line, column, offset,
					fmt.Errorf("%w: %q", errDuplicateAttr, attr.Name))
			}
		}
		attrs = append(attrs, attr)
		if len(attrs) > d.opts.maxAttrs {
			return Token{}, false, d.syntaxErr(line, column, offset, errAttrLimit)
		}
	}

	depth := len(d.stack)
	if depth == 0 && d.rootSeen {
		return Token{}, false, d.syntaxErr(line, column, offset, errMultipleRoots)
	}
	if depth == 0 {
		d.rootSeen = true
	}
	tok := Token{
		Kind:        KindStartElement,
		Name:        name,
		Attrs:       attrs,
		SelfClosing: selfClosing,
		Depth:       depth,
		Line:        line,
		Column:      column,
	}
	if selfClosing {
		d.pendingEnd = Token{
			Kind:   KindEndElement,
			Name:   name,
			Depth:  depth,
			Line:   line,
			Column: column,
		}
		d.hasPending = true
		return tok, true, nil
	}
	if len(d.stack)+1 > d.opts.maxDepth {
		return Token{}, false, d.syntaxErr(line, column, offset, ErrDepthLimit)
	}
	d.stack = append(d.stack, name)
	return tok, true, nil
}

func (d *Decoder) readEndTag(line, column int, offset int64) (Token, bool, error) {
	_, _ = d.readByte() // '/'
	name, err := d.readName()
	if err != nil {
		return Token{}, false, d.syntaxErr(line, column, offset, err)
	}
	if err := d.skipWhitespace(); err != nil {
		return Token{}, false, d.syntaxErr(line, column, offset, eofErr(err))
	}
	if err := d.expectByte('>'); err != nil {
		return Token{}, false, d.syntaxErr(line, column, offset, err)
	}
	if len(d.stack) == 0 {
		return Token{}, false, d.syntaxErr(line, column, offset,
			fmt.Errorf("%w: </%s> with no open element", errMismatchedEndTag, name))
	}
	open := d.stack[len(d.stack)-1]
	if open != name {
		return Token{}, false, d.syntaxErr(line, column, offset,
			fmt.Errorf("%w: expected </%s>, got </%s>", errMismatchedEndTag, open, name))
	}
	d.stack = d.stack[:len(d.stack)-1]
	return Token{
		Kind:   KindEndElement,
		Name:   name,
		Depth:  len(d.stack),
		Line:   line,
		Column: column,
	}, true, nil
}

func (d *Decoder) readBang(line, column int, offset int64) (Token, bool, error) {
	_, _ = d.readByte() // '!'
	b, err := d.peek()
	if err != nil {
		return Token{}, false, d.syntaxErr(line, column, offset, eofErr(err))
	}
	switch b {
	case '-':
		text, err := d.readComment()
		if err != nil {
			return Token{}, false, d.syntaxErr(line, column, offset, err)
		}
		if !d.opts.emitComments {
			return Token{}, false, nil
		}
		return Token{
			Kind:   KindComment,
			Text:   text,
			Depth:  len(d.stack),
			Line:   line,
			Column: column,
		}, true, nil
	case '[':
		text, err := d.readCDATA()
		if err != nil {
			return Token{}, false, d.syntaxErr(line, column, offset, err)
		}
		if len(d.stack) == 0 {
			return Token{}, false, d.syntaxErr(line, column, offset, errContentOutsideRoot)
		}
		return Token{
			Kind:   KindCDATA,
			Text:   text,
			Depth:  len(d.stack),
			Line:   line,
			Column: column,
		}, true, nil
	default:
		if err := d.skipDirective(); err != nil {
			return Token{}, false, d.syntaxErr(line, column, offset, err)
		}
		return Token{}, false, nil
	}
}

func (d *Decoder) readComment() (string, error) {
	for _, want := range []byte("--") {
		if err := d.expectByte(want); err != nil {
			return "", errInvalidComment
		}
	}
	var sb strings.Builder
	dashes := 0
	for {
		b, err := d.readByte()
		if err != nil {
			return "", eofErr(err)
		}
		if b == '>' && dashes >= 2 {
			text := sb.String()
			return text[:len(text)-2], nil
		}
		if b == '-' {
			dashes++
		} else {
			if dashes >= 2 {
				return "", errInvalidComment
			}
			dashes = 0
		}
		sb.WriteByte(b)
		if sb.Len() > d.opts.maxTokenSize {
			return "", ErrTokenTooLarge
		}
	}
}

func (d *Decoder) readCDATA() (string, error) {
	for _, want := range []byte("[CDATA[") {
		if err := d.expectByte(want); err != nil {
			return "", errInvalidToken
		}
	}
	var sb strings.Builder
	brackets := 0
	for {
		b, err := d.readByte()
		if err != nil {
			return "", eofErr(err)
		}
		if b == '>' && brackets >= 2 {
			text := sb.String()
			text = text[:len(text)-2]
			if err := validateXMLChars([]byte(text)); err != nil {
				return "", err
			}
			return text, nil
		}
		if b == ']' {
			brackets++
		} else {
			brackets = 0
		}
		sb.WriteByte(b)
		if sb.Len() > d.opts.maxTokenSize {
			return "", ErrTokenTooLarge
		}
	}
}

func (d *Decoder) skipDirective() error {
	depth := 0
	var quote byte
	seen := 0
	for {
		b, err := d.readByte()
		if err != nil {
			return eofErr(err)
		}
		seen++
		if seen > d.opts.maxTokenSize {
			return ErrTokenTooLarge
		}
		if quote != 0 {
			if b == quote {
				quote = 0
			}
			continue
		}
		switch b {
		case '\'', '"':
			quote = b
		case '[':
			depth++
		case ']':
			depth--
		case '>':
			if depth <= 0 {
				return nil
			}
		}
	}
}

func (d *Decoder) readPI(line, column int, offset int64) (Token, bool, error) {
	_, _ = d.readByte() // '?'
	target, err := d.readName()
	if err != nil {
		return Token{}, false, d.syntaxErr(line, column, offset, errInvalidPI)
	}
	if target == "xml" {
		if offset != d.bomLen {
			return Token{}, false, d.syntaxErr(line, column, offset, errMisplacedXMLDecl)
		}
		if err := d.readXMLDecl(); err != nil {
			return Token{}, false, d.syntaxErr(line, column, offset, err)
		}
		return Token{}, false, nil
	}
	var sb strings.Builder
	question := false
	for {
		b, err := d.readByte()
		if err != nil {
			return Token{}, false, d.syntaxErr(line, column, offset, eofErr(err))
		}
		if b == '>' && question {
			break
		}
		question = b == '?'
		sb.WriteByte(b)
		if sb.Len() > d.opts.maxTokenSize {
			return Token{}, false, d.syntaxErr(line, column, offset, ErrTokenTooLarge)
		}
	}
	if !d.opts.emitPI {
		return Token{}, false, nil
	}
	text := strings.TrimSuffix(sb.String(), "?")
	return Token{
		Kind:   KindPI,
		Name:   target,
		Text:   strings.TrimLeft(text, " \t\r\n"),
		Depth:  len(d.stack),
		Line:   line,
		Column: column,
	}, true, nil
}

func (d *Decoder) readXMLDecl() error {
	var version, encoding string
	for {
		if err := d.skipWhitespace(); err != nil {
			return eofErr(err)
		}
		b, err := d.peek()
		if err != nil {
			return eofErr(err)
		}
		if b == '?' {
			_, _ = d.readByte()
			if err := d.expectByte('>'); err != nil {
				return err
			}
			break
		}
		attr, err := d.readAttr()
		if err != nil {
			return err
		}
		switch attr.Name {
		case "version":
			version = attr.Value
		case "encoding":
			encoding = attr.Value
		case "standalone":
			// Accepted and ignored; document standalone status does not
			// affect tokenization.
		default:
			return fmt.Errorf("%w: unexpected declaration attribute %q", errInvalidToken, attr.Name)
		}
	}
	if version != "" && !strings.HasPrefix(version, "1.") {
		return fmt.Errorf("%w: unsupported XML version %q", errInvalidToken, version)
	}
	if encoding == "" {
		return nil
	}
	declared := normalizeEncoding(encoding)
	if announced := d.opts.encoding; announced != "" && normalizeEncoding(announced) != declared {
		return fmt.Errorf("%w: declared %q, announced %q", ErrEncodingMismatch, encoding, announced)
	}
	if declared != "utf-8" {
		return fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}
	return nil
}

func (d *Decoder) readText(line, column int, offset int64) (Token, bool, error) {
	var sb strings.Builder
	for {
		b, err := d.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Token{}, false, d.syntaxErr(line, column, offset, err)
		}
		if b == '<' {
			break
		}
		_, _ = d.readByte()
		if b == '&' {
			if err := d.readEntity(&sb); err != nil {
				return Token{}, false, d.syntaxErr(line, column, offset, err)
			}
		} else {
			sb.WriteByte(b)
		}
		if sb.Len() > d.opts.maxTokenSize {
			return Token{}, false, d.syntaxErr(line, column, offset, ErrTokenTooLarge)
		}
	}
	text := sb.String()
	if len(d.stack) == 0 {
		if !isWhitespaceBytes([]byte(text)) {
			return Token{}, false, d.syntaxErr(line, column, offset, errContentOutsideRoot)
		}
		return Token{}, false, nil
	}
	if err := validateXMLChars([]byte(text)); err != nil {
		return Token{}, false, d.syntaxErr(line, column, offset, err)
	}
	return Token{
		Kind:   KindCharData,
		Text:   text,
		Depth:  len(d.stack),
		Line:   line,
		Column: column,
	}, true, nil
}

func (d *Decoder) readAttr() (Attr, error) {
	name, err := d.readName()
	if err != nil {
		return Attr{}, fmt.Errorf("%w: %w", errInvalidAttr, err)
	}
	if err := d.skipWhitespace(); err != nil {
		return Attr{}, eofErr(err)
	}
	if err := d.expectByte('='); err != nil {
		return Attr{}, fmt.Errorf("%w: missing '=' after %q", errInvalidAttr, name)
	}
	if err := d.skipWhitespace(); err != nil {
		return Attr{}, eofErr(err)
	}
	quote, err := d.readByte()
	if err != nil {
		return Attr{}, eofErr(err)
	}
	if quote != '\'' && quote != '"' {
		return Attr{}, fmt.Errorf("%w: unquoted value for %q", errInvalidAttr, name)
	}
	var sb strings.Builder
	for {
		b, err := d.readByte()
		if err != nil {
			return Attr{}, eofErr(err)
		}
		if b == quote {
			break
		}
		if b == '<' {
			return Attr{}, fmt.Errorf("%w: '<' in value of %q", errInvalidAttr, name)
		}
		if b == '&' {
			if err := d.readEntity(&sb); err != nil {
				return Attr{}, err
			}
		} else {
			sb.WriteByte(b)
		}
		if sb.Len() > d.opts.maxTokenSize {
			return Attr{}, ErrTokenTooLarge
		}
	}
	value := sb.String()
	if err := validateXMLChars([]byte(value)); err != nil {
		return Attr{}, err
	}
	return Attr{Name: name, Value: value}, nil
}

// readEntity decodes one entity or character reference. The leading '&' has
// already been consumed.
func (d *Decoder) readEntity(sb *strings.Builder) error {
	var ref strings.Builder
	for {
		b, err := d.readByte()
		if err != nil {
			return eofErr(err)
		}
		if b == ';' {
			break
		}
		ref.WriteByte(b)
		if ref.Len() > 16 {
			return errInvalidEntity
		}
	}
	name := ref.String()
	if name == "" {
		return errInvalidEntity
	}
	if name[0] == '#' {
		return decodeCharRef(name[1:], sb)
	}
	switch name {
	case "lt":
		sb.WriteByte('<')
	case "gt":
		sb.WriteByte('>')
	case "amp":
		sb.WriteByte('&')
	case "apos":
		sb.WriteByte('\'')
	case "quot":
		sb.WriteByte('"')
	default:
		return fmt.Errorf("%w: &%s;", errInvalidEntity, name)
	}
	return nil
}

func decodeCharRef(digits string, sb *strings.Builder) error {
	if digits == "" {
		return errInvalidCharRef
	}
	base := 10
	if digits[0] == 'x' || digits[0] == 'X' {
		base = 16
		digits = digits[1:]
	}
	n, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		return errInvalidCharRef
	}
	r := rune(n)
	if !utf8.ValidRune(r) || !isValidXMLChar(r) {
		return fmt.Errorf("%w: #%s", errInvalidCharRef, digits)
	}
	sb.WriteRune(r)
	return nil
}

func (d *Decoder) readName() (string, error) {
	b, err := d.peek()
	if err != nil {
		return "", eofErr(err)
	}
	if !isNameStartByte(b) && b < utf8.RuneSelf {
		return "", fmt.Errorf("%w: unexpected %q", errInvalidName, string(rune(b)))
	}
	var sb strings.Builder
	for {
		b, err := d.peek()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		// Multi-byte runes are accepted liberally; the KeePass2 grammar
		// itself only uses ASCII names.
		if !isNameByte(b) && b < utf8.RuneSelf {
			break
		}
		_, _ = d.readByte()
		sb.WriteByte(b)
		if sb.Len() > d.opts.maxTokenSize {
			return "", ErrTokenTooLarge
		}
	}
	if sb.Len() == 0 {
		return "", errInvalidName
	}
	name := sb.String()
	if err := validateXMLChars([]byte(name)); err != nil {
		return "", fmt.Errorf("%w: %q", errInvalidName, name)
	}
	return name, nil
}

func (d *Decoder) skipWhitespace() error {
	for {
		b, err := d.peek()
		if err == io.EOF {
			return io.EOF
		}
		if err != nil {
			return err
		}
		if !isWhitespace(b) {
			return nil
		}
		_, _ = d.readByte()
	}
}

func (d *Decoder) expectByte(want byte) error {
	b, err := d.readByte()
	if err != nil {
		return eofErr(err)
	}
	if b != want {
		return fmt.Errorf("%w: expected %q, got %q", errInvalidToken, string(rune(want)), string(rune(b)))
	}
	return nil
}

func (d *Decoder) checkBOM() error {
	d.bomChecked = true
	head, err := d.br.Peek(3)
	if err != nil && len(head) < 2 {
		return nil
	}
	if len(head) >= 2 {
		if (head[0] == 0xFE && head[1] == 0xFF) || (head[0] == 0xFF && head[1] == 0xFE) {
			return d.syntaxErr(d.line, d.column, d.offset,
				fmt.Errorf("%w: UTF-16 input", ErrUnsupportedEncoding))
		}
	}
	if len(head) == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = d.br.Discard(3)
		d.offset = 3
		d.bomLen = 3
	}
	return nil
}

func (d *Decoder) peek() (byte, error) {
	head, err := d.br.Peek(1)
	if err != nil {
		return 0, err
	}
	return head[0], nil
}

func (d *Decoder) readByte() (byte, error) {
	b, err := d.br.ReadByte()
	if err != nil {
		return 0, err
	}
	d.offset++
	if b == '\n' {
		d.line++
		d.column = 1
	} else {
		d.column++
	}
	return b, nil
}

func (d *Decoder) syntaxErr(line, column int, offset int64, err error) error {
	var syntaxErr *SyntaxError
	if errors.As(err, &syntaxErr) {
		return err
	}
	return &SyntaxError{
		Offset: offset,
		Line:   line,
		Column: column,
		Err:    err,
	}
}

func eofErr(err error) error {
	if err == io.EOF {
		return ErrUnexpectedEOF
	}
	return err
}
