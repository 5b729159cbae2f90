// Command kpxmlfmt reformats a KeePass2 XML document: it reads the input
// through the stream bridge and re-emits it with configurable indentation,
// optionally gzip-wrapped on either side.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jacoelho/kpxml"
	kperrors "github.com/jacoelho/kpxml/errors"
	"github.com/jacoelho/kpxml/pkg/stream"
	"github.com/jacoelho/kpxml/pkg/xmlwrite"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).With().Timestamp().Logger()
	cmd := newRootCmd(&logger, stdin, stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("reformat failed")
		return 1
	}
	return 0
}

type options struct {
	indent       int
	gzipIn       bool
	gzipOut      bool
	output       string
	maxDepth     int
	maxAttrs     int
	maxTokenSize int
}

func newRootCmd(logger *zerolog.Logger, stdin io.Reader, stdout io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "kpxmlfmt [input.xml]",
		Short:         "Reformat a KeePass2 XML document",
		Long:          "Reads a KeePass2 XML document and re-emits it with configurable indentation.\nWith no input argument, or with \"-\", reads standard input.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) == 1 {
				input = args[0]
			}
			return reformat(logger, stdin, stdout, input, opts)
		},
	}
	cmd.Flags().IntVar(&opts.indent, "indent", 2, "spaces per nesting level, 0 for compact output")
	cmd.Flags().BoolVar(&opts.gzipIn, "gzip-in", false, "input is gzip-compressed")
	cmd.Flags().BoolVar(&opts.gzipOut, "gzip-out", false, "gzip-compress the output")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "output file, \"-\" for standard output")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", 0, "maximum element nesting depth, 0 for the default")
	cmd.Flags().IntVar(&opts.maxAttrs, "max-attrs", 0, "maximum attributes per element, 0 for the default")
	cmd.Flags().IntVar(&opts.maxTokenSize, "max-token-size", 0, "maximum token size in bytes, 0 for the default")
	return cmd
}

func reformat(logger *zerolog.Logger, stdin io.Reader, stdout io.Writer, input string, opts options) (err error) {
	in, err := openInput(stdin, input, opts.gzipIn)
	if err != nil {
		return err
	}
	out, err := openOutput(stdout, opts.output, opts.gzipOut)
	if err != nil {
		_ = in.Close()
		return err
	}

	limits := kpxml.ParseLimits{
		MaxDepth:     opts.maxDepth,
		MaxAttrs:     opts.maxAttrs,
		MaxTokenSize: opts.maxTokenSize,
	}
	reader, err := kpxml.NewReader(in, limits)
	if err != nil {
		_ = in.Close()
		_ = out.Close()
		return err
	}
	writer, err := kpxml.NewWriter(out, xmlwrite.WithIndent(opts.indent))
	if err != nil {
		_ = reader.Close()
		_ = out.Close()
		return err
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if closeErr := reader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	logger.Debug().Str("input", input).Str("output", opts.output).Int("indent", opts.indent).Msg("reformatting")

	if err := writer.WriteStartDocument("", "", ""); err != nil {
		return annotate(err, input)
	}
	if err := kpxml.Copy(writer, reader); err != nil {
		return annotate(err, input)
	}
	return annotate(writer.WriteEndDocument(), opts.output)
}

// annotate records which file a structured error came from.
func annotate(err error, source string) error {
	if xmlErr, ok := kperrors.AsXMLError(err); ok && xmlErr.Source == "" {
		xmlErr.Source = source
	}
	return err
}

func openInput(stdin io.Reader, path string, gzipped bool) (stream.Input, error) {
	var in stream.Input
	if path == "-" {
		in = stream.NewReaderInput(stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		in = stream.NewReaderInput(f)
	}
	if !gzipped {
		return in, nil
	}
	gz, err := stream.NewGzipInput(in)
	if err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("open gzip input: %w", err)
	}
	return gz, nil
}

func openOutput(stdout io.Writer, path string, gzipped bool) (stream.Output, error) {
	var out stream.Output
	if path == "-" {
		out = stream.NewWriterOutput(stdout)
	} else {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}
		out = stream.NewWriterOutput(f)
	}
	if !gzipped {
		return out, nil
	}
	gz, err := stream.NewGzipOutput(out, -1)
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("open gzip output: %w", err)
	}
	return gz, nil
}
