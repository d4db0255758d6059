package ajax

import (
	"mime"
	"regexp"
	"strings"
)

const (
	ContentTypeApplicationJSON       = "application/json"
	ContentTypeApplicationJSONRegexp = `^application/([a-zA-Z0-9\.\-]+\+)?json$`
	ContentTypeJavaScriptRegexp      = `^\s*(text|application)/(x-)?(java|ecma)script(;.*)?\s*$`
	ContentTypeXMLRegexp             = `^(text|application)/([a-zA-Z0-9\.\-]+\+)?xml$`
)

var (
	jsonContentTypeRegexp = regexp.MustCompile(ContentTypeApplicationJSONRegexp)
	jsContentTypeRegexp   = regexp.MustCompile(`(?i)` + ContentTypeJavaScriptRegexp)
	xmlContentTypeRegexp  = regexp.MustCompile(ContentTypeXMLRegexp)
)

// mediaType returns the lower-cased media type without parameters.
func mediaType(contentType string) string {
	if v, _, err := mime.ParseMediaType(contentType); err == nil {
		return v
	}
	v, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(v))
}

func isJSONContentType(contentType string) bool {
	return jsonContentTypeRegexp.MatchString(mediaType(contentType))
}

func isJavaScriptContentType(contentType string) bool {
	return jsContentTypeRegexp.MatchString(contentType)
}

func isXMLContentType(contentType string) bool {
	return xmlContentTypeRegexp.MatchString(mediaType(contentType))
}
