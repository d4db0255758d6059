package ajax

import (
	"net/http"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/tidwall/gjson"

	"github.com/keboola/go-ajax/pkg/transport"
)

// HeaderJSON is the name of the response header with an additional JSON payload.
const HeaderJSON = "X-JSON"

// Response is a snapshot of the request progress, taken when a state has been dispatched.
//
// Status and headers are available from the HeadersReceived state, the body text from the Loading state.
// Decoded XML and JSON values are computed on the first access.
type Response struct {
	request      *Request
	xmlProvider  transport.XMLProvider
	state        transport.ReadyState
	status       int
	statusText   string
	header       http.Header
	text         string
	transportErr error

	xml        lazy[*xmlquery.Node]
	json       lazy[any]
	headerJSON lazy[any]
}

// newResponse reads the current values of the transport.
func newResponse(req *Request, t transport.Transport, state transport.ReadyState) *Response {
	res := &Response{request: req, state: state, header: make(http.Header)}
	if t == nil {
		return res
	}
	if state >= transport.HeadersReceived {
		res.status = t.Status()
		res.statusText = t.StatusText()
		if h := t.AllResponseHeaders(); h != nil {
			res.header = h.Clone()
		}
	}
	if state >= transport.Loading {
		res.text = t.ResponseText()
		if p, ok := t.(transport.XMLProvider); ok {
			res.xmlProvider = p
		}
	}
	if state == transport.Done {
		res.transportErr = t.Err()
	}
	return res
}

// failedResponse is the final response of a request, which could not be sent.
func failedResponse(req *Request, err error) *Response {
	return &Response{request: req, state: transport.Done, header: make(http.Header), transportErr: err}
}

func (r *Response) Request() *Request {
	return r.request
}

func (r *Response) ReadyState() transport.ReadyState {
	return r.state
}

func (r *Response) Status() int {
	return r.status
}

func (r *Response) StatusText() string {
	return r.statusText
}

// Header returns the first value of the response header.
func (r *Response) Header(name string) (string, bool) {
	values := r.header.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// AllHeaders returns a copy of the response headers.
func (r *Response) AllHeaders() http.Header {
	return r.header.Clone()
}

func (r *Response) ContentType() string {
	v, _ := r.Header("Content-Type")
	return v
}

// Text returns the raw body.
func (r *Response) Text() string {
	return r.text
}

// Err returns the transport error, if any.
func (r *Response) Err() error {
	return r.transportErr
}

// Success returns true for status 0, 2xx and 304, if no transport error occurred.
func (r *Response) Success() bool {
	if r.transportErr != nil {
		return false
	}
	return r.status == 0 || (r.status >= 200 && r.status < 300) || r.status == http.StatusNotModified
}

// XML returns the parsed XML body, nil if the response is not an XML document.
func (r *Response) XML() (*xmlquery.Node, error) {
	return r.xml.get(func() (*xmlquery.Node, error) {
		if r.state < transport.Loading {
			return nil, nil
		}
		if r.xmlProvider != nil {
			return r.xmlProvider.ResponseXML()
		}
		if !isXMLContentType(r.ContentType()) || strings.TrimSpace(r.text) == "" {
			return nil, nil
		}
		doc, err := xmlquery.Parse(strings.NewReader(r.text))
		if err != nil {
			return nil, newParseError("XML", r.text, err)
		}
		return doc, nil
	})
}

// JSON returns the decoded body according to the EvalJSON and SanitizeJSON options.
// The value has the encoding/json form: map[string]any, []any, float64, string, bool or nil.
func (r *Response) JSON() (any, error) {
	return r.json.get(r.decodeBodyJSON)
}

// HeaderJSON returns the decoded X-JSON header, nil if it is not present.
func (r *Response) HeaderJSON() (any, error) {
	return r.headerJSON.get(r.decodeHeaderJSON)
}

// Get returns a value from the body by the gjson path, for example "items.0.name".
func (r *Response) Get(path string) gjson.Result {
	return gjson.Get(unfilterJSON(r.text), path)
}
