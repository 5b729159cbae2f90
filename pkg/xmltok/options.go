package xmltok

// Options holds decoder configuration values.
// The zero value means no overrides.
type Options struct {
	encoding     string
	maxDepth     int
	maxAttrs     int
	maxTokenSize int
	emitComments bool
	emitPI       bool

	encodingSet     bool
	maxDepthSet     bool
	maxAttrsSet     bool
	maxTokenSizeSet bool
	emitCommentsSet bool
	emitPISet       bool
}

// JoinOptions combines multiple option sets into one in declaration order.
// Later options override earlier ones when set.
func JoinOptions(srcs ...Options) Options {
	var merged Options
	for _, src := range srcs {
		merged.merge(src)
	}
	return merged
}

func (opts *Options) merge(src Options) {
	if src.encodingSet {
		opts.encoding = src.encoding
		opts.encodingSet = true
	}
	if src.maxDepthSet {
		opts.maxDepth = src.maxDepth
		opts.maxDepthSet = true
	}
	if src.maxAttrsSet {
		opts.maxAttrs = src.maxAttrs
		opts.maxAttrsSet = true
	}
	if src.maxTokenSizeSet {
		opts.maxTokenSize = src.maxTokenSize
		opts.maxTokenSizeSet = true
	}
	if src.emitCommentsSet {
		opts.emitComments = src.emitComments
		opts.emitCommentsSet = true
	}
	if src.emitPISet {
		opts.emitPI = src.emitPI
		opts.emitPISet = true
	}
}

// WithEncoding announces the encoding the input is expected to carry.
// A non-matching declaration in the document is a syntax error.
func WithEncoding(label string) Options {
	return Options{encoding: label, encodingSet: true}
}

// MaxDepth limits element nesting. Zero means the default limit.
func MaxDepth(value int) Options {
	return Options{maxDepth: value, maxDepthSet: true}
}

// MaxAttrs limits the attribute count per element. Zero means the default.
func MaxAttrs(value int) Options {
	return Options{maxAttrs: value, maxAttrsSet: true}
}

// MaxTokenSize limits the byte size of a single token. Zero means the default.
func MaxTokenSize(value int) Options {
	return Options{maxTokenSize: value, maxTokenSizeSet: true}
}

// EmitComments controls whether comment tokens are emitted.
func EmitComments(value bool) Options {
	return Options{emitComments: value, emitCommentsSet: true}
}

// EmitPI controls whether processing instruction tokens are emitted.
func EmitPI(value bool) Options {
	return Options{emitPI: value, emitPISet: true}
}

type decoderOptions struct {
	encoding     string
	maxDepth     int
	maxAttrs     int
	maxTokenSize int
	emitComments bool
	emitPI       bool
}

const (
	defaultMaxDepth     = 256
	defaultMaxAttrs     = 256
	defaultMaxTokenSize = 4 << 20
)

func resolveOptions(joined Options) decoderOptions {
	opts := decoderOptions{
		encoding:     joined.encoding,
		maxDepth:     joined.maxDepth,
		maxAttrs:     joined.maxAttrs,
		maxTokenSize: joined.maxTokenSize,
		emitComments: joined.emitComments,
		emitPI:       joined.emitPI,
	}
	if opts.maxDepth <= 0 {
		opts.maxDepth = defaultMaxDepth
	}
	if opts.maxAttrs <= 0 {
		opts.maxAttrs = defaultMaxAttrs
	}
	if opts.maxTokenSize <= 0 {
		opts.maxTokenSize = defaultMaxTokenSize
	}
	return opts
}
