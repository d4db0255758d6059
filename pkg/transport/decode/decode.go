// Package decode converts a raw response body to UTF-8 text.
package decode

import (
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

// AcceptEncoding lists encodings supported by the Body function.
const AcceptEncoding = "gzip, deflate, br"

// Body removes the Content-Encoding and converts the charset declared in the Content-Type to UTF-8.
func Body(body io.ReadCloser, contentEncoding, contentType string) (io.ReadCloser, error) {
	decoded, err := Encoding(body, contentEncoding)
	if err != nil {
		return nil, err
	}
	return Charset(decoded, contentType)
}

// Encoding removes the Content-Encoding from the body.
func Encoding(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		r, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("cannot decode gzip: %w", err)
		}
		return readCloser{Reader: r, closers: []io.Closer{r, body}}, nil
	case "deflate":
		r, err := zlib.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("cannot decode deflate: %w", err)
		}
		return readCloser{Reader: r, closers: []io.Closer{r, body}}, nil
	case "br":
		return readCloser{Reader: brotli.NewReader(body), closers: []io.Closer{body}}, nil
	default:
		return nil, fmt.Errorf(`unsupported content encoding "%s"`, contentEncoding)
	}
}

// Charset converts the body to UTF-8.
// The charset is taken from the Content-Type, UTF-8 bodies and bodies without a charset are not modified.
func Charset(body io.ReadCloser, contentType string) (io.ReadCloser, error) {
	label := charsetLabel(contentType)
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return body, nil
	}
	enc, name := charset.Lookup(label)
	if enc == nil {
		return nil, fmt.Errorf(`unsupported charset "%s"`, label)
	}
	if name == "utf-8" {
		return body, nil
	}
	return readCloser{Reader: enc.NewDecoder().Reader(body), closers: []io.Closer{body}}, nil
}

func charsetLabel(contentType string) string {
	for _, part := range strings.Split(contentType, ";")[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), "charset") {
			return strings.Trim(strings.TrimSpace(v), `"'`)
		}
	}
	return ""
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r readCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
