package xmlread

import (
	"errors"
	"strings"
	"testing"

	kperrors "github.com/jacoelho/kpxml/errors"
	"github.com/jacoelho/kpxml/pkg/stream"
	"github.com/jacoelho/kpxml/pkg/xmltok"
)

const keepassDoc = `<?xml version="1.0" encoding="utf-8"?>
<KeePassFile>
	<Meta>
		<Generator>kpxml</Generator>
		<HeaderHash>AAAA</HeaderHash>
	</Meta>
	<Root>
		<Group>
			<Name>General</Name>
			<Entry>
				<String Key="Title" Protected="False">demo</String>
			</Entry>
			<DeletedObjects/>
		</Group>
	</Root>
</KeePassFile>
`

func newTestReader(t *testing.T, doc string, opts ...Option) *Reader {
	t.Helper()
	r, err := NewReader(stream.NewBytesInput([]byte(doc)), opts...)
	if err != nil {
		t.Fatalf("NewReader error = %v", err)
	}
	t.Cleanup(func() {
		if err := r.Close(); err != nil {
			t.Fatalf("Close error = %v", err)
		}
	})
	return r
}

func TestTraversal(t *testing.T) {
	r := newTestReader(t, keepassDoc)

	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	if err := r.ExpectLocalNameElement("KeePassFile"); err != nil {
		t.Fatalf("ExpectLocalNameElement error = %v", err)
	}
	if got := r.Depth(); got != 0 {
		t.Fatalf("Depth = %d, want 0", got)
	}

	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	if err := r.ExpectLocalNameElement("Meta"); err != nil {
		t.Fatalf("ExpectLocalNameElement error = %v", err)
	}
	if got := r.Depth(); got != 1 {
		t.Fatalf("Depth = %d, want 1", got)
	}

	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	if err := r.ExpectLocalNameElement("Generator"); err != nil {
		t.Fatalf("ExpectLocalNameElement error = %v", err)
	}
	value, err := r.ReadString()
	if err != nil {
		t.Fatalf("ReadString error = %v", err)
	}
	if value != "kpxml" {
		t.Fatalf("ReadString = %q, want kpxml", value)
	}
	if r.NodeType() != xmltok.KindEndElement {
		t.Fatalf("NodeType after ReadString = %v, want EndElement", r.NodeType())
	}

	// Sibling skip: from Generator's end element to HeaderHash.
	if err := r.ExpectNext(); err != nil {
		t.Fatalf("ExpectNext error = %v", err)
	}
	if err := r.ExpectLocalNameElement("HeaderHash"); err != nil {
		t.Fatalf("ExpectLocalNameElement error = %v", err)
	}
}

func TestExpectLocalNameElementMismatchDoesNotAdvance(t *testing.T) {
	r := newTestReader(t, `<Root><Bar/></Root>`)
	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	err := r.ExpectLocalNameElement("Foo")
	if err == nil {
		t.Fatalf("ExpectLocalNameElement(Foo) = nil, want error")
	}
	xmlErr, ok := kperrors.AsXMLError(err)
	if !ok || xmlErr.Code != kperrors.CodeUnexpectedElement {
		t.Fatalf("error = %v, want CodeUnexpectedElement", err)
	}
	// Still positioned on Bar; traversal continues untouched.
	if err := r.ExpectLocalNameElement("Bar"); err != nil {
		t.Fatalf("ExpectLocalNameElement(Bar) error = %v", err)
	}
}

func TestSelfClosingElement(t *testing.T) {
	r := newTestReader(t, `<Root><Empty/><After/></Root>`)
	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	if err := r.ExpectLocalNameElement("Empty"); err != nil {
		t.Fatalf("ExpectLocalNameElement error = %v", err)
	}
	if !r.IsEmpty() {
		t.Fatalf("IsEmpty = false, want true")
	}
	// Next over a self-closing node must not descend: it lands directly on
	// the sibling.
	if err := r.ExpectNext(); err != nil {
		t.Fatalf("ExpectNext error = %v", err)
	}
	if err := r.ExpectLocalNameElement("After"); err != nil {
		t.Fatalf("ExpectLocalNameElement error = %v", err)
	}
}

func TestNextSkipsSubtree(t *testing.T) {
	r := newTestReader(t, `<Root><A><Deep><Deeper/></Deep></A><B/></Root>`)
	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	if err := r.ExpectLocalNameElement("A"); err != nil {
		t.Fatalf("ExpectLocalNameElement error = %v", err)
	}
	if err := r.ExpectNext(); err != nil {
		t.Fatalf("ExpectNext error = %v", err)
	}
	if err := r.ExpectLocalNameElement("B"); err != nil {
		t.Fatalf("ExpectLocalNameElement error = %v", err)
	}
}

func TestReadStringVariants(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"plain", `<Root><V>hello</V></Root>`, "hello"},
		{"entities", `<Root><V>a&amp;b</V></Root>`, "a&b"},
		{"cdata", `<Root><V>pre<![CDATA[<raw>]]>post</V></Root>`, "pre<raw>post"},
		{"whitespace value", "<Root><V>  </V></Root>", "  "},
		{"empty element", `<Root><V/></Root>`, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestReader(t, tc.doc)
			if err := r.ExpectRead(); err != nil {
				t.Fatalf("ExpectRead error = %v", err)
			}
			if err := r.ExpectRead(); err != nil {
				t.Fatalf("ExpectRead error = %v", err)
			}
			got, err := r.ReadString()
			if err != nil {
				t.Fatalf("ReadString error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("ReadString = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestReadStringChildElement(t *testing.T) {
	r := newTestReader(t, `<Root><V>text<Child/></V></Root>`)
	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	_, err := r.ReadString()
	if err == nil {
		t.Fatalf("ReadString = nil error, want unexpected child element")
	}
	xmlErr, ok := kperrors.AsXMLError(err)
	if !ok || xmlErr.Code != kperrors.CodeUnexpectedElement {
		t.Fatalf("error = %v, want CodeUnexpectedElement", err)
	}
	if _, err := r.Read(); !errors.Is(err, ErrReaderPoisoned) {
		t.Fatalf("Read after failure = %v, want %v", err, ErrReaderPoisoned)
	}
}

func TestReadStringRequiresStartElement(t *testing.T) {
	r := newTestReader(t, `<Root>text</Root>`)
	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	// Cursor is on the text node now.
	if _, err := r.ReadString(); !errors.Is(err, ErrNotStartElement) {
		t.Fatalf("ReadString = %v, want %v", err, ErrNotStartElement)
	}
}

func TestAttributes(t *testing.T) {
	r := newTestReader(t, `<Root><String Key="Title" Protected="False"/></Root>`)
	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	if err := r.ExpectRead(); err != nil {
		t.Fatalf("ExpectRead error = %v", err)
	}
	if value, ok := r.Attribute("Key"); !ok || value != "Title" {
		t.Fatalf("Attribute(Key) = %q, %v, want Title, true", value, ok)
	}
	if value, ok := r.Attribute("Protected"); !ok || value != "False" {
		t.Fatalf("Attribute(Protected) = %q, %v", value, ok)
	}
	if _, ok := r.Attribute("Missing"); ok {
		t.Fatalf("Attribute(Missing) = true, want false")
	}
}

func TestEndOfDocument(t *testing.T) {
	r := newTestReader(t, `<Root/>`)
	for i := 0; i < 2; i++ {
		if err := r.ExpectRead(); err != nil {
			t.Fatalf("ExpectRead %d error = %v", i, err)
		}
	}
	ok, err := r.Read()
	if err != nil || ok {
		t.Fatalf("Read at EOF = %v, %v, want false, nil", ok, err)
	}
	if err := r.ExpectRead(); err == nil {
		t.Fatalf("ExpectRead at EOF = nil, want unexpected EOF")
	}
}

func TestMalformedInput(t *testing.T) {
	r := newTestReader(t, `<Root><Oops></Root>`)
	var err error
	for err == nil {
		_, err = r.Read()
	}
	xmlErr, ok := kperrors.AsXMLError(err)
	if !ok {
		t.Fatalf("error = %v, want *errors.XMLError", err)
	}
	if xmlErr.Domain != kperrors.DomainParser {
		t.Fatalf("Domain = %v, want Parser", xmlErr.Domain)
	}
	if xmlErr.Line == 0 {
		t.Fatalf("Line = 0, want location from engine")
	}
}

type failingInput struct {
	data   []byte
	err    error
	panics bool
	closes int
}

func (f *failingInput) Read(p []byte) (int, error) {
	if len(f.data) > 0 {
		n := copy(p, f.data)
		f.data = f.data[n:]
		return n, nil
	}
	if f.panics {
		panic("capability exploded")
	}
	return 0, f.err
}

func (f *failingInput) Close() error {
	f.closes++
	return nil
}

func TestCapabilityErrorPriority(t *testing.T) {
	capErr := errors.New("disk on fire")
	in := &failingInput{data: []byte(`<Root><Unterminated`), err: capErr}
	r, err := NewReader(in)
	if err != nil {
		t.Fatalf("NewReader error = %v", err)
	}

	var readErr error
	for readErr == nil {
		_, readErr = r.Read()
	}
	// The engine sees a truncated document and reports its own parse error;
	// the capability error is the root cause and must win, unwrapped.
	if readErr != capErr {
		t.Fatalf("error = %v, want the capability error itself", readErr)
	}

	if _, err := r.Read(); !errors.Is(err, ErrReaderPoisoned) {
		t.Fatalf("Read after capability error = %v, want %v", err, ErrReaderPoisoned)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close error = %v", err)
	}
	if in.closes != 1 {
		t.Fatalf("capability closes = %d, want exactly 1", in.closes)
	}
}

func TestCapabilityPanicCaptured(t *testing.T) {
	in := &failingInput{data: []byte(`<Root>`), panics: true}
	r, err := NewReader(in)
	if err != nil {
		t.Fatalf("NewReader error = %v", err)
	}
	var readErr error
	for readErr == nil {
		_, readErr = r.Read()
	}
	var panicErr *stream.PanicError
	if !errors.As(readErr, &panicErr) {
		t.Fatalf("error = %v (%T), want *stream.PanicError", readErr, readErr)
	}
	if panicErr.Value != "capability exploded" {
		t.Fatalf("panic value = %v, want capability exploded", panicErr.Value)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if in.closes != 1 {
		t.Fatalf("capability closes = %d, want exactly 1", in.closes)
	}
}

func TestEncodingMismatchSurfaced(t *testing.T) {
	doc := `<?xml version="1.0" encoding="latin1"?><Root/>`
	r := newTestReader(t, doc, xmltok.WithEncoding("utf-8"))
	_, err := r.Read()
	xmlErr, ok := kperrors.AsXMLError(err)
	if !ok || xmlErr.Code != kperrors.CodeEncodingMismatch {
		t.Fatalf("error = %v, want CodeEncodingMismatch", err)
	}
}

func TestLimitErrorsAreNoMemory(t *testing.T) {
	doc := `<Root>` + strings.Repeat("x", 1024) + `</Root>`
	r := newTestReader(t, doc, xmltok.MaxTokenSize(64))
	var err error
	for err == nil {
		_, err = r.Read()
	}
	if !errors.Is(err, kperrors.ErrNoMemory) {
		t.Fatalf("error = %v, want ErrNoMemory class", err)
	}
}

func TestUseAfterClose(t *testing.T) {
	r, err := NewReader(stream.NewBytesInput([]byte(`<Root/>`)))
	if err != nil {
		t.Fatalf("NewReader error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if _, err := r.Read(); !errors.Is(err, ErrReaderClosed) {
		t.Fatalf("Read after Close = %v, want %v", err, ErrReaderClosed)
	}
}

type closePanicInput struct {
	failingInput
}

func (c *closePanicInput) Close() error {
	c.closes++
	panic("close blew up")
}

func TestClosePanicConverted(t *testing.T) {
	in := &closePanicInput{}
	in.data = []byte(`<Root/>`)
	r, err := NewReader(in)
	if err != nil {
		t.Fatalf("NewReader error = %v", err)
	}
	closeErr := r.Close()
	var panicErr *stream.PanicError
	if !errors.As(closeErr, &panicErr) {
		t.Fatalf("Close error = %v, want *stream.PanicError", closeErr)
	}
	if in.closes != 1 {
		t.Fatalf("closes = %d, want 1", in.closes)
	}
}
