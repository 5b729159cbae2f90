package main

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReformatStdinToStdout(t *testing.T) {
	stdin := strings.NewReader(`<KeePassFile><Meta><Generator>demo</Generator></Meta></KeePassFile>`)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--indent", "2"}, stdin, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	want := `<?xml version="1.0" encoding="utf-8" standalone="yes"?>` + "\n" +
		"<KeePassFile>\n  <Meta>\n    <Generator>demo</Generator>\n  </Meta>\n</KeePassFile>\n"
	assert.Equal(t, want, stdout.String())
}

func TestReformatCompact(t *testing.T) {
	stdin := strings.NewReader("<Root>\n  <A/>\n</Root>")
	var stdout, stderr bytes.Buffer

	code := run([]string{"--indent", "0"}, stdin, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.Equal(t, `<?xml version="1.0" encoding="utf-8" standalone="yes"?>`+"\n<Root><A/></Root>\n", stdout.String())
}

func TestReformatFiles(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.xml")
	outPath := filepath.Join(dir, "out.xml")
	require.NoError(t, os.WriteFile(inPath, []byte(`<Root><V>x</V></Root>`), 0o600))

	var stdout, stderr bytes.Buffer
	code := run([]string{"--output", outPath, inPath}, nil, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<V>x</V>")
}

func TestReformatGzip(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.xml.gz")
	outPath := filepath.Join(dir, "out.xml.gz")

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, err := zw.Write([]byte(`<KeePassFile><Root/></KeePassFile>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(inPath, compressed.Bytes(), 0o600))

	var stdout, stderr bytes.Buffer
	code := run([]string{"--gzip-in", "--gzip-out", "--output", outPath, inPath}, nil, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "<KeePassFile>")
}

func TestReformatMalformedInput(t *testing.T) {
	stdin := strings.NewReader(`<Root><Broken></Root>`)
	var stdout, stderr bytes.Buffer

	code := run(nil, stdin, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "reformat failed")
}

func TestMissingInputFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{filepath.Join(t.TempDir(), "absent.xml")}, nil, &stdout, &stderr)
	assert.Equal(t, 1, code)
}
