package transport

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/sync/semaphore"

	"github.com/keboola/go-ajax/pkg/transport/decode"
	"github.com/keboola/go-ajax/pkg/transport/trace"
)

// DefaultUserAgent is sent, if no other User-Agent is configured.
const DefaultUserAgent = "keboola-go-ajax"

// Client is a configurable factory of Transport objects backed by the native http.Client.
// It supports retry, tracing, concurrency limit and body decoding.
//
// Client is immutable, each With* method returns a modified clone.
type Client struct {
	ctx             context.Context
	transport       http.RoundTripper
	header          http.Header
	retry           RetryConfig
	traceFactory    trace.Factory
	sem             *semaphore.Weighted
	maxResponseSize int64
}

// New creates a new Client.
func New() Client {
	c := Client{ctx: context.Background(), transport: DefaultTransport(), header: make(http.Header), retry: NoRetry()}
	c.header.Set("User-Agent", DefaultUserAgent)
	c.header.Set("Accept-Encoding", decode.AcceptEncoding)
	return c
}

// WithContext returns a clone of the Client with a base context of all requests set.
// Cancellation of the context aborts in-flight requests, they end with a network error.
func (c Client) WithContext(ctx context.Context) Client {
	if ctx == nil {
		panic(fmt.Errorf("context cannot be nil"))
	}
	c.ctx = ctx
	return c
}

// WithUserAgent returns a clone of the Client with user agent set.
func (c Client) WithUserAgent(v string) Client {
	return c.WithHeader("User-Agent", v)
}

// WithHeader returns a clone of the Client with common header set.
func (c Client) WithHeader(key, value string) Client {
	c.header = c.header.Clone()
	c.header.Set(key, value)
	return c
}

// WithHeaders returns a clone of the Client with common headers set.
func (c Client) WithHeaders(headers map[string]string) Client {
	c.header = c.header.Clone()
	for k, v := range headers {
		c.header.Set(k, v)
	}
	return c
}

// WithTransport returns a clone of the Client with a HTTP round tripper set.
func (c Client) WithTransport(transport http.RoundTripper) Client {
	if transport == nil {
		panic(fmt.Errorf("transport cannot be nil"))
	}
	c.transport = transport
	return c
}

// WithTokenSource returns a clone of the Client, which authorizes requests by the OAuth2 token source.
// The current round tripper is wrapped, so WithTransport must be called before WithTokenSource.
func (c Client) WithTokenSource(src oauth2.TokenSource) Client {
	if src == nil {
		panic(fmt.Errorf("token source cannot be nil"))
	}
	c.transport = &oauth2.Transport{Source: src, Base: c.transport}
	return c
}

// WithRetry returns a clone of the Client with retry config set.
func (c Client) WithRetry(retry RetryConfig) Client {
	c.retry = retry
	return c
}

// WithConcurrencyLimit returns a clone of the Client, which sends at most n requests at once.
// Other requests wait before sending, in the Opened state.
func (c Client) WithConcurrencyLimit(n int64) Client {
	if n <= 0 {
		c.sem = nil
	} else {
		c.sem = semaphore.NewWeighted(n)
	}
	return c
}

// WithMaxResponseSize returns a clone of the Client with a limit of the decoded response body.
// A larger body ends the request with a network error.
func (c Client) WithMaxResponseSize(bytes int64) Client {
	c.maxResponseSize = bytes
	return c
}

// WithTrace returns a clone of the Client with the trace factory set. Previous factories are replaced.
func (c Client) WithTrace(fn trace.Factory) Client {
	c.traceFactory = fn
	return c
}

// AndTrace returns a clone of the Client with the trace factory added.
// Hooks of the previous factories are called first.
func (c Client) AndTrace(fn trace.Factory) Client {
	oldFactory := c.traceFactory
	if oldFactory == nil {
		c.traceFactory = fn
		return c
	}
	c.traceFactory = func(ctx context.Context, method, url string) (context.Context, *trace.ClientTrace) {
		ctx, oldTrace := oldFactory(ctx, method, url)
		ctx, newTrace := fn(ctx, method, url)
		if newTrace == nil {
			return ctx, oldTrace
		}
		newTrace.Compose(oldTrace)
		return ctx, newTrace
	}
	return c
}

// Factory returns a Transport factory, which creates transports with the current configuration.
func (c Client) Factory() Factory {
	return func() Transport {
		return c.NewTransport()
	}
}

// NewTransport creates a new Transport in the Unsent state.
func (c Client) NewTransport() Transport {
	if c.transport == nil {
		panic(fmt.Errorf("client value is not initialized"))
	}
	return &httpTransport{client: c, requestHeader: make(http.Header)}
}
