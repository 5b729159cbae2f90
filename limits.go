package kpxml

import (
	"cmp"
	"fmt"

	"github.com/jacoelho/kpxml/pkg/xmltok"
)

const (
	defaultMaxDepth     = 256
	defaultMaxAttrs     = 256
	defaultMaxTokenSize = 4 << 20
)

// ParseLimits bound resource usage while reading untrusted documents.
// Zero values select the defaults.
type ParseLimits struct {
	MaxDepth     int
	MaxAttrs     int
	MaxTokenSize int
}

func resolveParseLimits(l ParseLimits) (ParseLimits, error) {
	if l.MaxDepth < 0 {
		return ParseLimits{}, fmt.Errorf("xml max depth must be >= 0")
	}
	if l.MaxAttrs < 0 {
		return ParseLimits{}, fmt.Errorf("xml max attrs must be >= 0")
	}
	if l.MaxTokenSize < 0 {
		return ParseLimits{}, fmt.Errorf("xml max token size must be >= 0")
	}
	return ParseLimits{
		MaxDepth:     defaultLimit(l.MaxDepth, defaultMaxDepth),
		MaxAttrs:     defaultLimit(l.MaxAttrs, defaultMaxAttrs),
		MaxTokenSize: defaultLimit(l.MaxTokenSize, defaultMaxTokenSize),
	}, nil
}

func (l ParseLimits) options() []xmltok.Options {
	return []xmltok.Options{
		xmltok.MaxDepth(defaultLimit(l.MaxDepth, defaultMaxDepth)),
		xmltok.MaxAttrs(defaultLimit(l.MaxAttrs, defaultMaxAttrs)),
		xmltok.MaxTokenSize(defaultLimit(l.MaxTokenSize, defaultMaxTokenSize)),
	}
}

func defaultLimit(value, fallback int) int {
	return cmp.Or(value, fallback)
}
