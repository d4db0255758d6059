// Package counter measures response bodies read by the Transport.
package counter

import (
	"errors"
	"fmt"
	"io"
)

// LimitExceededError is returned by the ReadCloser, if more than the limit bytes is read.
type LimitExceededError struct {
	Limit int64
}

func (e LimitExceededError) Error() string {
	return fmt.Sprintf("response body exceeds the limit of %d bytes", e.Limit)
}

// OnClose is called once, when the body is closed.
// The err is the first read error other than io.EOF or the close error.
type OnClose func(bytes int64, err error)

// ReadCloser wraps a response body to count read bytes and to enforce an optional size limit.
type ReadCloser struct {
	wrapped io.ReadCloser
	limit   int64
	onClose OnClose
	bytes   int64
	readErr error
	closed  bool
}

// NewReadCloser wraps the body, limit <= 0 means no limit.
func NewReadCloser(wrapped io.ReadCloser, limit int64, onClose OnClose) *ReadCloser {
	return &ReadCloser{wrapped: wrapped, limit: limit, onClose: onClose}
}

func (r *ReadCloser) Bytes() int64 {
	return r.bytes
}

func (r *ReadCloser) Read(b []byte) (int, error) {
	if r.readErr != nil && !errors.Is(r.readErr, io.EOF) {
		return 0, r.readErr
	}
	n, err := r.wrapped.Read(b)
	r.bytes += int64(n)
	if r.limit > 0 && r.bytes > r.limit {
		n -= int(r.bytes - r.limit)
		r.bytes = r.limit
		err = LimitExceededError{Limit: r.limit}
	}
	if err != nil && r.readErr == nil {
		r.readErr = err
	}
	return n, err
}

func (r *ReadCloser) Close() error {
	closeErr := r.wrapped.Close()
	if !r.closed && r.onClose != nil {
		r.closed = true
		var onCloseErr error
		if r.readErr != nil && !errors.Is(r.readErr, io.EOF) {
			onCloseErr = r.readErr
		} else {
			onCloseErr = closeErr
		}
		r.onClose(r.bytes, onCloseErr)
	}
	return closeErr
}
