package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/keboola/go-ajax/pkg/transport/counter"
	"github.com/keboola/go-ajax/pkg/transport/decode"
	"github.com/keboola/go-ajax/pkg/transport/trace"
)

// httpTransport implements Transport by the native http.Client.
type httpTransport struct {
	client Client

	lock           sync.Mutex
	state          ReadyState
	method         string
	url            *url.URL
	async          bool
	sent           bool
	requestHeader  http.Header
	status         int
	statusText     string
	responseHeader http.Header
	responseText   string
	err            error
	listeners      []func(ReadyState)
}

func (t *httpTransport) Open(method, rawURL string, async bool) error {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" || strings.ContainsAny(method, " \t\r\n()<>@,;:\\\"/[]?={}") {
		return fmt.Errorf(`invalid method "%s"`, method)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf(`invalid url "%s": %w`, rawURL, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf(`url "%s" is not absolute`, rawURL)
	}

	t.lock.Lock()
	if t.state != Unsent {
		t.lock.Unlock()
		return fmt.Errorf(`transport is already opened`)
	}
	t.method = method
	t.url = u
	t.async = async
	t.lock.Unlock()

	t.setState(Opened)
	return nil
}

func (t *httpTransport) SetRequestHeader(name, value string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.state == Opened && !t.sent {
		t.requestHeader.Set(name, value)
	}
}

func (t *httpTransport) Send(body string) error {
	t.lock.Lock()
	if t.state != Opened || t.sent {
		t.lock.Unlock()
		return fmt.Errorf(`transport must be opened and not sent, state is "%s"`, t.state)
	}
	t.sent = true
	async := t.async
	t.lock.Unlock()

	if async {
		go t.send(body)
	} else {
		t.send(body)
	}
	return nil
}

func (t *httpTransport) ReadyState() ReadyState {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.state
}

func (t *httpTransport) Status() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.status
}

func (t *httpTransport) StatusText() string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.statusText
}

func (t *httpTransport) ResponseText() string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.responseText
}

func (t *httpTransport) ResponseHeader(name string) (string, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	values := t.responseHeader.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return strings.Join(values, ", "), true
}

func (t *httpTransport) AllResponseHeaders() http.Header {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.responseHeader.Clone()
}

func (t *httpTransport) Err() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.err
}

func (t *httpTransport) OnReadyStateChange(fn func(state ReadyState)) {
	if fn == nil {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.listeners = append(t.listeners, fn)
}

// setState stores the state and notifies listeners outside the lock.
func (t *httpTransport) setState(state ReadyState) {
	t.lock.Lock()
	t.state = state
	listeners := append([]func(ReadyState){}, t.listeners...)
	t.lock.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}

func (t *httpTransport) fail(err error) {
	t.lock.Lock()
	t.err = err
	t.status = 0
	t.statusText = ""
	t.lock.Unlock()
	t.setState(Done)
}

func (t *httpTransport) send(body string) {
	c := t.client
	ctx := c.ctx
	method, reqURL := t.method, t.url.String()

	// Init trace
	var tc *trace.ClientTrace
	if c.traceFactory != nil {
		ctx, tc = c.traceFactory(ctx, method, reqURL)
		if tc != nil {
			ctx = httptrace.WithClientTrace(ctx, &tc.ClientTrace)
			if tc.ReadyStateChange != nil {
				tc.ReadyStateChange(int(Opened))
				t.OnReadyStateChange(func(state ReadyState) { tc.ReadyStateChange(int(state)) })
			}
		}
	}

	var bodyBytes int64
	var processErr error
	if tc != nil && tc.RequestProcessed != nil {
		defer func() {
			tc.RequestProcessed(t.Status(), bodyBytes, processErr)
		}()
	}

	// Concurrency limit
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			processErr = fmt.Errorf(`request %s "%s" failed: %w`, method, reqURL, err)
			t.fail(processErr)
			return
		}
		defer c.sem.Release(1)
	}

	// Create request
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		processErr = err
		t.fail(err)
		return
	}
	for k, values := range c.header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	t.lock.Lock()
	for k, values := range t.requestHeader {
		req.Header.Del(k) // request header replaces the common one
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	t.lock.Unlock()
	if body != "" || method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		}
		req.Body, _ = req.GetBody()
		req.ContentLength = int64(len(body))
	}

	// Send request
	nativeClient := http.Client{
		Timeout:   c.retry.TotalRequestTimeout,
		Transport: retryTransport{wrapped: c.transport, retry: c.retry, trace: tc},
	}
	startedAt := time.Now()
	res, err := nativeClient.Do(req)
	if err != nil {
		processErr = handleSendError(startedAt, c.retry.TotalRequestTimeout, req, err)
		t.fail(processErr)
		return
	}

	// Headers received
	t.lock.Lock()
	t.status = res.StatusCode
	t.statusText = statusText(res)
	t.responseHeader = res.Header.Clone()
	t.lock.Unlock()
	t.setState(HeadersReceived)

	// Body
	t.setState(Loading)
	text, n, err := readBody(res, c.maxResponseSize)
	bodyBytes = n
	if err != nil {
		processErr = fmt.Errorf(`cannot read response body of request %s "%s": %w`, method, reqURL, err)
		t.fail(processErr)
		return
	}
	t.lock.Lock()
	t.responseText = text
	t.lock.Unlock()
	t.setState(Done)
}

func readBody(res *http.Response, limit int64) (text string, bytes int64, err error) {
	if res.Body == nil {
		return "", 0, nil
	}
	defer res.Body.Close()

	decoded, err := decode.Body(res.Body, res.Header.Get("Content-Encoding"), res.Header.Get("Content-Type"))
	if err != nil {
		return "", 0, err
	}
	measured := counter.NewReadCloser(decoded, limit, nil)
	defer measured.Close()

	var b strings.Builder
	if _, err := io.Copy(&b, measured); err != nil {
		return "", measured.Bytes(), err
	}
	return b.String(), measured.Bytes(), nil
}

// statusText returns the reason phrase without the status code.
func statusText(res *http.Response) string {
	code := strconv.Itoa(res.StatusCode)
	if text := strings.TrimSpace(strings.TrimPrefix(res.Status, code)); text != "" {
		return text
	}
	return http.StatusText(res.StatusCode)
}

// handleSendError replaces low-level timeout and cancellation errors by a readable message
// and formats the error as request METHOD "URL" failed.
func handleSendError(startedAt time.Time, clientTimeout time.Duration, req *http.Request, err error) error {
	var reason error
	var netErr net.Error
	deadline, hasDeadline := req.Context().Deadline()
	switch {
	case hasDeadline && errors.Is(err, context.DeadlineExceeded):
		reason = fmt.Errorf("timeout after %s", deadline.Sub(startedAt))
	case errors.Is(err, context.Canceled):
		reason = fmt.Errorf("canceled after %s", time.Since(startedAt))
	case errors.As(err, &netErr) && netErr.Timeout() && strings.Contains(err.Error(), "Client.Timeout exceeded"):
		reason = fmt.Errorf("timeout after %s", clientTimeout)
	case errors.As(err, &netErr) && netErr.Timeout():
		reason = fmt.Errorf("timeout after %s", time.Since(startedAt))
	}
	if reason != nil {
		err = &url.Error{Op: req.Method, URL: req.URL.String(), Err: reason}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf(`request %s "%s" failed: %w`, strings.ToUpper(urlErr.Op), urlErr.URL, urlErr.Err)
	}
	return err
}

// retryTransport sends the request again while the retry condition holds, each attempt is traced.
type retryTransport struct {
	wrapped http.RoundTripper
	retry   RetryConfig
	trace   *trace.ClientTrace
}

func (rt retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	delays := rt.retry.NewBackoff()
	for attempt := 1; ; attempt++ {
		rt.onStart(req)
		res, err := rt.wrapped.RoundTrip(req)
		rt.onDone(res, err)

		if !rt.shouldRetry(attempt, req, res, err) {
			return res, err
		}
		delay := delays.NextBackOff()
		if delay == backoff.Stop {
			return res, err
		}
		rt.onRetry(attempt, delay)

		// The response is replaced by the next attempt.
		if res != nil && res.Body != nil {
			_, _ = io.Copy(io.Discard, res.Body)
			_ = res.Body.Close()
		}
		if req.GetBody != nil {
			if req.Body, err = req.GetBody(); err != nil {
				return nil, fmt.Errorf("cannot rewind body: %w", err)
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

func (rt retryTransport) shouldRetry(attempt int, req *http.Request, res *http.Response, err error) bool {
	return rt.retry.Condition != nil && attempt <= rt.retry.Count && rt.retry.Condition(req, res, err)
}

func (rt retryTransport) onStart(req *http.Request) {
	if rt.trace != nil && rt.trace.HTTPRequestStart != nil {
		rt.trace.HTTPRequestStart(req)
	}
}

func (rt retryTransport) onDone(res *http.Response, err error) {
	if rt.trace != nil && rt.trace.HTTPRequestDone != nil {
		rt.trace.HTTPRequestDone(res, err)
	}
}

func (rt retryTransport) onRetry(attempt int, delay time.Duration) {
	if rt.trace != nil && rt.trace.HTTPRequestRetry != nil {
		rt.trace.HTTPRequestRetry(attempt, delay)
	}
}
