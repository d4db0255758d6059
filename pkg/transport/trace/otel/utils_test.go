package otel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSuccess(t *testing.T) {
	t.Parallel()
	assert.True(t, isSuccess(200, nil))
	assert.True(t, isSuccess(304, nil))
	assert.False(t, isSuccess(0, nil))
	assert.False(t, isSuccess(404, nil))
	assert.False(t, isSuccess(500, nil))
	assert.False(t, isSuccess(200, errors.New("some error")))
}

func TestRedactor(t *testing.T) {
	t.Parallel()
	r := newConfig([]Option{WithRedactedQueryParam("Secret"), WithRedactedHeaders("X-Api-Token")}).redact

	assert.Equal(t, "https://example.com/foo?a=1&secret=****", r.url("https://example.com/foo?a=1&secret=abc"))
	assert.Equal(t, "https://example.com/foo?SECRET=****&b=2", r.url("https://example.com/foo?SECRET=abc&b=2"))
	assert.Equal(t, "https://example.com/foo", r.url("https://example.com/foo"))
	assert.Equal(t, "%%invalid", r.url("%%invalid"))

	assert.Equal(t, "****", r.header("x-api-token", []string{"abc"}))
	assert.Equal(t, "****", r.header("Authorization", []string{"Bearer abc"}))
	assert.Equal(t, "a;b", r.header("Accept", []string{"a", "b"}))
}
