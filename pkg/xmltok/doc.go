// Package xmltok is a pull XML tokenizer tuned for the KeePass2 document
// grammar: elements, attributes, character data, and CDATA, with exact line,
// column, and depth accounting. Self-closing elements produce a start token
// flagged SelfClosing followed by a synthetic end token at the same depth.
package xmltok
