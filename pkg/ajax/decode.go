package ajax

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/keboola/go-ajax/pkg/transport"
)

// secureJSONRegexp matches the "/*-secure- ... */" wrapper of JSON responses.
var secureJSONRegexp = regexp.MustCompile(`(?s)^/\*-secure-\s*(.*?)\s*\*/\s*$`)

// unfilterJSON removes the secure wrapper, if present.
func unfilterJSON(text string) string {
	if m := secureJSONRegexp.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		return m[1]
	}
	return text
}

func (r *Response) decodeBodyJSON() (any, error) {
	mode := r.request.options.EvalJSON
	if !mode.enabled() || r.state < transport.Loading {
		return nil, nil
	}
	if mode != EvalForce && !isJSONContentType(r.ContentType()) {
		return nil, nil
	}
	text := unfilterJSON(r.text)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return r.request.parseJSON("body", text, mode == EvalForce)
}

func (r *Response) decodeHeaderJSON() (any, error) {
	text, _ := r.Header(HeaderJSON)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return r.request.parseJSON(HeaderJSON+" header", text, true)
}

// parseJSON decodes the text.
// Sanitized text must be a strict JSON, otherwise the ParseError is always returned.
// Unsanitized text is evaluated as an expression, a failure is returned only if raise is set.
func (req *Request) parseJSON(source, text string, raise bool) (any, error) {
	if req.sanitizeJSON() {
		var value any
		if !json.Valid([]byte(text)) {
			return nil, newParseError(source, text, errors.New("invalid JSON"))
		}
		if err := json.UnmarshalFromString(text, &value); err != nil {
			return nil, newParseError(source, text, err)
		}
		return value, nil
	}

	value, err := req.evaluateJSON(text)
	if err != nil {
		if raise {
			return nil, newParseError(source, text, err)
		}
		req.logger.Debug("cannot decode JSON", zap.String("source", source), zap.Error(err))
		return nil, nil
	}
	return value, nil
}

func (req *Request) evaluateJSON(text string) (any, error) {
	if req.client.evaluator != nil {
		return req.client.evaluator.EvaluateJSON(text)
	}
	var value any
	if err := json.UnmarshalFromString(text, &value); err != nil {
		return nil, err
	}
	return value, nil
}

func (req *Request) sanitizeJSON() bool {
	return boolValue(req.options.SanitizeJSON, false) || !req.IsSameOrigin()
}
