package ajax

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab...", truncate("abc", 2))
	// "é" is 2 bytes, the cut does not split it
	assert.Equal(t, "a...", truncate("aéb", 2))
	assert.Equal(t, "aé...", truncate("aéb", 3))
}

func TestParseError_Error_ValidUTF8(t *testing.T) {
	t.Parallel()

	text := "x" + strings.Repeat("é", 40)
	err := newParseError("body", text, errors.New("unexpected end"))
	msg := err.Error()
	assert.True(t, utf8.ValidString(msg), msg)
	assert.Contains(t, msg, `SyntaxError: badly formed body "x`)
	assert.Contains(t, msg, `é..."`)
}
