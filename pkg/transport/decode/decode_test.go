package decode_test

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-ajax/pkg/transport/decode"
)

func TestEncoding(t *testing.T) {
	t.Parallel()

	var gzipped bytes.Buffer
	gw := gzip.NewWriter(&gzipped)
	_, err := gw.Write([]byte("hello gzip"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	var brotlied bytes.Buffer
	bw := brotli.NewWriter(&brotlied)
	_, err = bw.Write([]byte("hello brotli"))
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	cases := []struct {
		name     string
		encoding string
		body     []byte
		expected string
	}{
		{name: "identity", encoding: "", body: []byte("plain"), expected: "plain"},
		{name: "gzip", encoding: "GZIP", body: gzipped.Bytes(), expected: "hello gzip"},
		{name: "br", encoding: "br", body: brotlied.Bytes(), expected: "hello brotli"},
	}
	for _, tc := range cases {
		r, err := decode.Encoding(io.NopCloser(bytes.NewReader(tc.body)), tc.encoding)
		require.NoError(t, err, tc.name)
		out, err := io.ReadAll(r)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.expected, string(out), tc.name)
		assert.NoError(t, r.Close(), tc.name)
	}
}

func TestEncoding_Invalid(t *testing.T) {
	t.Parallel()

	_, err := decode.Encoding(io.NopCloser(strings.NewReader("foo")), "gzip")
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "cannot decode gzip")
	}

	_, err = decode.Encoding(io.NopCloser(strings.NewReader("foo")), "compress")
	if assert.Error(t, err) {
		assert.Equal(t, `unsupported content encoding "compress"`, err.Error())
	}
}

func TestCharset(t *testing.T) {
	t.Parallel()

	// "žluťoučký" in ISO-8859-2
	latin2 := []byte{0xBE, 0x6C, 0x75, 0xBB, 0x6F, 0x75, 0xE8, 0x6B, 0xFD}
	r, err := decode.Charset(io.NopCloser(bytes.NewReader(latin2)), `text/html; charset="ISO-8859-2"`)
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "žluťoučký", string(out))

	// UTF-8 and missing charset are not modified
	for _, contentType := range []string{"text/plain", "text/plain; charset=utf-8", ""} {
		r, err = decode.Charset(io.NopCloser(strings.NewReader("žluťoučký")), contentType)
		require.NoError(t, err)
		out, err = io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "žluťoučký", string(out), contentType)
	}

	_, err = decode.Charset(io.NopCloser(strings.NewReader("foo")), "text/plain; charset=unknown-charset")
	assert.Error(t, err)
}
