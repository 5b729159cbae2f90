package xmltok

// Attr is a single attribute on a start element, with entities resolved.
type Attr struct {
	Name  string
	Value string
}

// Token is one parse event produced by the decoder. The contained strings
// are owned by the token and stay valid after the next ReadToken call.
type Token struct {
	Kind        Kind
	Name        string
	Attrs       []Attr
	Text        string
	SelfClosing bool
	Depth       int
	Line        int
	Column      int
}

// LocalName returns the element name with any namespace prefix removed.
func (t Token) LocalName() string {
	return localName(t.Name)
}

// Attribute looks up an attribute by its raw (possibly prefixed) name.
func (t Token) Attribute(name string) (string, bool) {
	for _, attr := range t.Attrs {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

func localName(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			return name[i+1:]
		}
	}
	return name
}
