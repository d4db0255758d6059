package ajax

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/keboola/go-ajax/pkg/transport"
)

const (
	// MethodOverrideParam is appended to parameters of a request with a method other than GET and POST.
	MethodOverrideParam  = "_method"
	MethodOverrideHeader = "X-HTTP-Method-Override"
	DefaultAccept        = "text/javascript, text/html, application/xml, text/xml, */*"
)

// Request is one in-flight or completed request.
type Request struct {
	id        string
	client    Client
	logger    *zap.Logger
	options   Options
	url       string
	method    string
	params    Params
	body      string
	transport transport.Transport
	done      chan struct{}

	lock           sync.Mutex
	started        bool
	state          transport.ReadyState
	complete       bool
	response       *Response
	headerJSONDone bool
	headerJSON     any
	headerJSONErr  error
	errs           *multierror.Error
}

func (c Client) start(rawURL string, opts Options) (*Request, error) {
	r := &Request{
		id:      uuid.NewString(),
		client:  c,
		options: opts,
		url:     rawURL,
		method:  strings.ToLower(strings.TrimSpace(opts.Method)),
		done:    make(chan struct{}),
	}
	if r.method == "" {
		r.method = strings.ToLower(DefaultMethod)
	}
	r.logger = c.logger.Named("ajax").With(zap.String("request", r.id))

	// Normalize parameters, a query string is sent as it is
	var query string
	if raw, ok := opts.Parameters.(string); ok {
		query = raw
		r.params = ParseQuery(raw)
	} else {
		params, err := ParseParams(opts.Parameters)
		if err != nil {
			return nil, fmt.Errorf(`cannot create request "%s": %w`, rawURL, err)
		}
		r.params = params
		query = params.Encode()
	}

	// Method override
	var overridden string
	if r.method != "get" && r.method != "post" {
		overridden = r.method
		param := Params{{Key: MethodOverrideParam, Value: r.method}}
		r.params = append(r.params, param...)
		if query != "" {
			query += "&"
		}
		query += param.Encode()
		r.method = "post"
	}

	if r.method == "get" {
		if query != "" {
			if strings.Contains(r.url, "?") {
				r.url += "&" + query
			} else {
				r.url += "?" + query
			}
		}
	} else {
		r.body = opts.PostBody
		if r.body == "" {
			r.body = query
		}
	}

	r.send(overridden)

	if !r.Asynchronous() {
		return r, r.Err()
	}
	return r, nil
}

func (r *Request) send(overridden string) {
	async := r.Asynchronous()
	r.logger.Debug("request created", zap.String("method", r.Method()), zap.String("url", r.url), zap.Bool("async", async))

	// Create
	res := newResponse(r, nil, transport.Unsent)
	r.lock.Lock()
	r.response = res
	r.lock.Unlock()
	r.callback(EventCreate, res, nil)
	r.dispatch(EventCreate, res, nil)

	// Resolve URL and transcode body
	targetURL, err := resolveURL(r.client.origin, r.url)
	if err != nil {
		r.abort(err)
		return
	}
	body, err := r.encodeBody()
	if err != nil {
		r.abort(err)
		return
	}

	r.transport = r.client.factory()
	t := r.transport
	t.OnReadyStateChange(func(state transport.ReadyState) {
		res := newResponse(r, t, state)
		if async {
			r.client.loop.Post(func() { r.respondToReadyState(res) })
		} else {
			r.respondToReadyState(res)
		}
	})

	if err := t.Open(r.Method(), targetURL, async); err != nil {
		r.abort(err)
		return
	}
	for name, value := range r.requestHeaders(overridden) {
		t.SetRequestHeader(name, value)
	}
	var sendBody string
	if r.method == "post" {
		sendBody = body
	}
	if err := t.Send(sendBody); err != nil {
		r.abort(err)
		return
	}
}

// abort completes a request, which could not be sent.
func (r *Request) abort(err error) {
	err = &TransportError{Method: r.Method(), URL: r.url, err: err}
	res := failedResponse(r, err)
	if r.Asynchronous() {
		r.client.loop.Post(func() { r.respondToReadyState(res) })
	} else {
		r.respondToReadyState(res)
	}
}

func (r *Request) encodeBody() (string, error) {
	if r.method != "post" || r.body == "" {
		return r.body, nil
	}
	encoding := strings.TrimSpace(r.options.Encoding)
	if encoding == "" || strings.EqualFold(encoding, DefaultEncoding) || strings.EqualFold(encoding, "utf8") {
		return r.body, nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return "", fmt.Errorf(`unsupported encoding "%s": %w`, encoding, err)
	}
	out, err := enc.NewEncoder().String(r.body)
	if err != nil {
		return "", fmt.Errorf(`cannot encode body to "%s": %w`, encoding, err)
	}
	return out, nil
}

func (r *Request) requestHeaders(overridden string) map[string]string {
	headers := map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Accept":           DefaultAccept,
	}
	if r.method == "post" {
		contentType := r.options.ContentType
		if contentType == "" {
			contentType = DefaultContentType
		}
		if r.options.Encoding != "" {
			contentType += "; charset=" + r.options.Encoding
		}
		headers["Content-Type"] = contentType
	}
	if overridden != "" {
		headers[MethodOverrideHeader] = strings.ToUpper(overridden)
	}
	for name, value := range r.options.RequestHeaders {
		headers[name] = value
	}
	return headers
}

// respondToReadyState dispatches the state, if it is newer than the last dispatched state.
func (r *Request) respondToReadyState(res *Response) {
	state := res.state
	r.lock.Lock()
	if r.complete || (r.started && state <= r.state) {
		r.lock.Unlock()
		return
	}
	r.started = true
	r.state = state
	r.response = res
	if state == transport.Done {
		r.complete = true
	}
	r.lock.Unlock()

	r.logger.Debug("ready state changed", zap.Stringer("state", state), zap.Int("status", res.status))
	headerJSON := r.decodeHeaderJSON(res)
	event := StateEvent(state)

	if state == transport.Done {
		r.onDone(res, headerJSON)
	}

	r.callback(event, res, headerJSON)
	r.dispatch(event, res, headerJSON)

	if state == transport.Done {
		r.logger.Debug("request completed", zap.Int("status", res.status), zap.Bool("success", res.Success()))
		close(r.done)
	}
}

func (r *Request) onDone(res *Response, headerJSON any) {
	// Body JSON is decoded before callbacks, so parse errors are reported in order
	if r.options.EvalJSON.enabled() {
		if _, err := res.JSON(); err != nil {
			r.dispatchException(err)
		}
	}

	if err := res.Err(); err != nil {
		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			err = &TransportError{Method: r.Method(), URL: r.url, err: err}
		}
		r.dispatchException(err)
	}

	// Status callback or success/failure
	if cb, found := r.options.OnStatus[res.status]; found && cb != nil {
		r.call(StatusEvent(res.status), cb, res, headerJSON)
	} else if res.Success() {
		r.call(EventSuccess, r.options.OnSuccess, res, headerJSON)
	} else {
		r.call(EventFailure, r.options.OnFailure, res, headerJSON)
	}
	r.dispatch(StatusEvent(res.status), res, headerJSON)

	// Scripts
	if r.shouldEvalJS(res) {
		r.evalResponse(res)
	}
}

func (r *Request) shouldEvalJS(res *Response) bool {
	switch r.options.EvalJS {
	case EvalForce:
		return true
	case EvalDisabled:
		return false
	default:
		return r.IsSameOrigin() && isJavaScriptContentType(res.ContentType())
	}
}

func (r *Request) evalResponse(res *Response) {
	if r.client.evaluator == nil {
		r.logger.Debug("script evaluation skipped, evaluator is not set")
		return
	}
	if err := r.client.evaluator.Evaluate(unfilterJSON(res.text)); err != nil {
		r.dispatchException(err)
	}
}

// decodeHeaderJSON decodes the X-JSON header once per request, a parse error is dispatched once.
func (r *Request) decodeHeaderJSON(res *Response) any {
	if res.state < transport.HeadersReceived {
		return nil
	}

	r.lock.Lock()
	if r.headerJSONDone {
		value, err := r.headerJSON, r.headerJSONErr
		r.lock.Unlock()
		res.headerJSON.set(value, err)
		return value
	}
	r.lock.Unlock()

	value, err := res.HeaderJSON()
	r.lock.Lock()
	r.headerJSONDone = true
	r.headerJSON, r.headerJSONErr = value, err
	r.lock.Unlock()

	if err != nil {
		r.dispatchException(err)
		return nil
	}
	return value
}

// callback calls the per-request callback of the lifecycle event.
func (r *Request) callback(event Event, res *Response, headerJSON any) {
	r.call(event, r.options.callback(event), res, headerJSON)
}

func (r *Request) call(event Event, cb Callback, res *Response, headerJSON any) {
	if cb == nil {
		return
	}
	if err := callHandler(event, func() error { return cb(res, headerJSON) }); err != nil {
		r.dispatchException(err)
	}
}

// dispatch notifies global responders, their errors are logged.
func (r *Request) dispatch(event Event, res *Response, headerJSON any) {
	if err := r.client.responders.Dispatch(event, r, res, headerJSON); err != nil {
		r.logger.Warn("responder failed", zap.String("event", string(event)), zap.Error(err))
	}
}

// dispatchException passes the error to the OnException callback.
// Without the callback, the error is recorded and returned by Err and Wait.
func (r *Request) dispatchException(err error) {
	if handler := r.options.OnException; handler != nil {
		if panicErr := callHandler(EventException, func() error { handler(r, err); return nil }); panicErr != nil {
			r.record(panicErr)
		}
	} else {
		r.logger.Error("request exception", zap.Error(err))
		r.record(err)
	}
	if err := r.client.responders.DispatchException(r, err); err != nil {
		r.logger.Warn("exception responder failed", zap.Error(err))
	}
}

func (r *Request) record(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.errs = multierror.Append(r.errs, err)
}

// ID is a unique identifier of the request.
func (r *Request) ID() string {
	return r.id
}

// URL returns the request URL, GET parameters included. Relative URL is not resolved.
func (r *Request) URL() string {
	return r.url
}

// Method returns the HTTP method sent to the transport.
func (r *Request) Method() string {
	return strings.ToUpper(r.method)
}

// Options returns a copy of the merged request options, maps and pointers included.
func (r *Request) Options() Options {
	return Options{}.Merge(r.options)
}

// Parameters returns the normalized request parameters, including the method override.
func (r *Request) Parameters() Params {
	return append(Params(nil), r.params...)
}

// Body returns the request body, empty for GET requests.
func (r *Request) Body() string {
	return r.body
}

func (r *Request) Asynchronous() bool {
	return boolValue(r.options.Asynchronous, true)
}

// ReadyState returns the last dispatched state.
func (r *Request) ReadyState() transport.ReadyState {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state
}

// Response returns the snapshot of the last dispatched state.
func (r *Request) Response() *Response {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.response
}

// Success reports whether the last dispatched response is successful.
func (r *Request) Success() bool {
	return r.Response().Success()
}

// IsSameOrigin reports whether the request URL has the origin of the Client document.
func (r *Request) IsSameOrigin() bool {
	return isSameOrigin(r.client.origin, r.url)
}

// Done is closed, when all callbacks of the completed request have been called.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Err returns recorded exceptions.
func (r *Request) Err() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return errorOrNil(r.errs)
}

// Wait drives the Client Loop until the request is completed, then recorded exceptions are returned.
// It must not be called from a callback.
func (r *Request) Wait(ctx context.Context) error {
	if err := r.client.loop.RunUntil(ctx, r.done); err != nil {
		return err
	}
	return r.Err()
}

// WaitAll waits for all requests, all recorded exceptions are returned.
func WaitAll(ctx context.Context, requests ...*Request) error {
	var errs *multierror.Error
	for _, r := range requests {
		if r == nil {
			continue
		}
		if err := r.Wait(ctx); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errorOrNil(errs)
}
