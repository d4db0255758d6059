package otel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/semconv/v1.18.0/httpconv"
)

const attrHTTPURL = attribute.Key("http.url")

// attributes of one transport request, the HTTP part is replaced on each redirect and retry.
// The "span" sets are too detailed to be used as metric dimensions.
type attributes struct {
	redact redactor

	transport    []attribute.KeyValue
	request      []attribute.KeyValue
	requestSpan  []attribute.KeyValue
	response     []attribute.KeyValue
	responseSpan []attribute.KeyValue
	outcome      []attribute.KeyValue
}

func newAttributes(redact redactor, method, rawURL string) *attributes {
	v := &attributes{redact: redact}
	v.transport = append(v.transport,
		attribute.String("transport.method", method),
		attribute.String("transport.url.full", redact.url(rawURL)),
	)
	if u, err := url.Parse(rawURL); err == nil {
		path, err := url.PathUnescape(u.Path)
		if err != nil {
			path = u.Path
		}
		v.transport = append(v.transport,
			attribute.String("transport.url.path", path),
			attribute.String("transport.url.host", u.Host),
		)
	}
	return v
}

// withResponse returns transport attributes extended by the last HTTP response.
func (v *attributes) withResponse() []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(v.transport)+len(v.response))
	return append(append(out, v.transport...), v.response...)
}

func (v *attributes) onRequest(req *http.Request) {
	v.request, v.requestSpan = nil, nil
	if req == nil {
		return
	}
	for _, attr := range httpconv.ClientRequest(req) {
		if attr.Key == attrHTTPURL {
			attr = attrHTTPURL.String(v.redact.url(req.URL.String()))
		}
		v.request = append(v.request, attr)
	}
	// User-Agent is already reported by httpconv
	v.requestSpan = v.headers("http.header.", req.Header, "user-agent")
}

func (v *attributes) onResponse(res *http.Response, err error) {
	v.response, v.responseSpan = nil, nil
	status := 0
	if res != nil {
		status = res.StatusCode
		v.response = httpconv.ClientResponse(res)
		v.responseSpan = v.headers("http.response.header.", res.Header, "")
	}

	var netErr net.Error
	isNetErr := errors.As(err, &netErr)
	v.outcome = []attribute.KeyValue{
		attribute.Bool("http.response.isSuccess", isSuccess(status, err)),
		attribute.Bool("http.response.error.has", err != nil),
		attribute.Bool("http.response.error.net", isNetErr),
		attribute.Bool("http.response.error.timeout", isNetErr && netErr.Timeout()),
		attribute.Bool("http.response.error.cancelled", errors.Is(err, context.Canceled)),
		attribute.Bool("http.response.error.deadline_exceeded", errors.Is(err, context.DeadlineExceeded)),
	}
}

// headers converts the header to sorted attributes, the skip key is omitted.
func (v *attributes) headers(prefix string, header http.Header, skip string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(header))
	for name, values := range header {
		key := strings.ToLower(name)
		if key == skip {
			continue
		}
		out = append(out, attribute.String(prefix+key, v.redact.header(key, values)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
