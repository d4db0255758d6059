package otel

import (
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/propagation"
)

const maskedAttrValue = "****"

type config struct {
	propagator propagation.TextMapPropagator
	redact     redactor
}

// redactor masks secrets in URLs and headers before they become span attributes.
// Keys are stored in lower case.
type redactor struct {
	queryParams map[string]bool
	headers     map[string]bool
}

type Option func(*config)

// WithPropagators injects the trace context to headers of each sent HTTP request, including retries.
func WithPropagators(v propagation.TextMapPropagator) Option {
	return func(c *config) {
		c.propagator = v
	}
}

// WithRedactedQueryParam masks values of the query parameters in the reported URLs.
func WithRedactedQueryParam(params ...string) Option {
	return func(c *config) {
		addLower(c.redact.queryParams, params)
	}
}

// WithRedactedHeaders masks values of the request and response headers.
// Authorization and cookie headers are always masked.
func WithRedactedHeaders(headers ...string) Option {
	return func(c *config) {
		addLower(c.redact.headers, headers)
	}
}

func newConfig(opts []Option) config {
	cfg := config{redact: redactor{queryParams: map[string]bool{}, headers: map[string]bool{}}}
	addLower(cfg.redact.headers, []string{
		"Authorization", "WWW-Authenticate",
		"Proxy-Authenticate", "Proxy-Authorization",
		"Cookie", "Set-Cookie",
	})
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func addLower(set map[string]bool, keys []string) {
	for _, k := range keys {
		set[strings.ToLower(k)] = true
	}
}

func (r redactor) header(name string, values []string) string {
	if r.headers[strings.ToLower(name)] {
		return maskedAttrValue
	}
	return strings.Join(values, ";")
}

// url masks the redacted query parameters in place, so the order of parameters is kept.
// An unparsable URL is returned unchanged.
func (r redactor) url(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.RawQuery != "" && len(r.queryParams) > 0 {
		pairs := strings.Split(u.RawQuery, "&")
		for i, pair := range pairs {
			key, _, _ := strings.Cut(pair, "=")
			name, err := url.QueryUnescape(key)
			if err != nil {
				name = key
			}
			if r.queryParams[strings.ToLower(name)] {
				pairs[i] = key + "=" + maskedAttrValue
			}
		}
		u.RawQuery = strings.Join(pairs, "&")
	}
	return u.String()
}
