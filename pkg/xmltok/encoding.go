package xmltok

import "strings"

// normalizeEncoding folds the common spellings of a charset label.
// US-ASCII input is a strict UTF-8 subset, so it shares the utf-8 path.
func normalizeEncoding(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case "utf8", "utf-8":
		return "utf-8"
	case "ascii", "us-ascii":
		return "utf-8"
	}
	return label
}
