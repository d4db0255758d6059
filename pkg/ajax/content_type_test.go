package ajax

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsJsonContentType(t *testing.T) {
	t.Parallel()

	assert.False(t, isJSONContentType(""))
	assert.False(t, isJSONContentType(" "))
	assert.False(t, isJSONContentType("foo"))
	assert.False(t, isJSONContentType("text/plain"))
	assert.False(t, isJSONContentType("application/yaml"))
	assert.False(t, isJSONContentType("application/vnd.foo.api+yaml"))
	assert.False(t, isJSONContentType("application/json-foo"))
	assert.False(t, isJSONContentType("application/foo-json"))

	assert.True(t, isJSONContentType("application/json"))
	assert.True(t, isJSONContentType("Application/JSON"))
	assert.True(t, isJSONContentType("application/json; charset=utf-8"))
	assert.True(t, isJSONContentType("application/vnd.foo.api+json"))
	assert.True(t, isJSONContentType("application/x-resource+json"))
}

func TestIsJavaScriptContentType(t *testing.T) {
	t.Parallel()

	assert.False(t, isJavaScriptContentType(""))
	assert.False(t, isJavaScriptContentType("text/html"))
	assert.False(t, isJavaScriptContentType("application/json"))
	assert.False(t, isJavaScriptContentType("text/typescript"))

	assert.True(t, isJavaScriptContentType("text/javascript"))
	assert.True(t, isJavaScriptContentType("application/javascript"))
	assert.True(t, isJavaScriptContentType("application/x-javascript"))
	assert.True(t, isJavaScriptContentType("text/ecmascript"))
	assert.True(t, isJavaScriptContentType(" TEXT/JavaScript; charset=utf-8 "))
}

func TestIsXMLContentType(t *testing.T) {
	t.Parallel()

	assert.False(t, isXMLContentType(""))
	assert.False(t, isXMLContentType("text/html"))
	assert.False(t, isXMLContentType("application/xmlfoo"))

	assert.True(t, isXMLContentType("text/xml"))
	assert.True(t, isXMLContentType("application/xml; charset=utf-8"))
	assert.True(t, isXMLContentType("application/atom+xml"))
}
