// Package ajax implements an asynchronous request engine.
//
// A Client issues requests by a transport.Factory, tracks their progress through ready states
// and dispatches lifecycle events to per-request callbacks and global Responders.
// Responses are decoded according to the content type: text, XML, JSON and scripts.
// The Updater variant splices the response into a document.Sink.
//
// Asynchronous notifications are executed by the Client Loop,
// which must be driven by Request.Wait, WaitAll, Client.Run or Client.RunPending.
package ajax

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/keboola/go-ajax/pkg/document"
	"github.com/keboola/go-ajax/pkg/script"
	"github.com/keboola/go-ajax/pkg/transport"
)

// Client is the configuration of the request engine.
//
// Client is immutable, each With* method returns a modified clone.
// Clones share the Responders registry and the Loop.
type Client struct {
	factory       transport.Factory
	responders    *Responders
	loop          *Loop
	origin        *url.URL
	sink          document.Sink
	evaluator     script.Evaluator
	autoEvaluator bool // evaluator is created by the Client and follows the document
	logger        *zap.Logger
	defaults      Options
}

// New creates a new Client with the default HTTP transport, an empty Responders registry and a JavaScript evaluator.
func New() Client {
	c := Client{
		factory:       transport.New().Factory(),
		responders:    NewResponders(),
		loop:          NewLoop(),
		logger:        zap.NewNop(),
		defaults:      DefaultOptions(),
		autoEvaluator: true,
	}
	return c.withAutoEvaluator()
}

// WithTransport returns a clone of the Client with the transport factory set.
func (c Client) WithTransport(factory transport.Factory) Client {
	if factory == nil {
		panic(fmt.Errorf("transport factory cannot be nil"))
	}
	c.factory = factory
	return c
}

// WithHTTPClient returns a clone of the Client, which sends requests by the configured HTTP client.
func (c Client) WithHTTPClient(httpClient transport.Client) Client {
	return c.WithTransport(httpClient.Factory())
}

// WithResponders returns a clone of the Client with the global responders registry set.
func (c Client) WithResponders(responders *Responders) Client {
	if responders == nil {
		panic(fmt.Errorf("responders cannot be nil"))
	}
	c.responders = responders
	return c
}

// WithLoop returns a clone of the Client with the notifications loop set.
func (c Client) WithLoop(loop *Loop) Client {
	if loop == nil {
		panic(fmt.Errorf("loop cannot be nil"))
	}
	c.loop = loop
	return c
}

// WithOrigin returns a clone of the Client with the document origin set, for example "https://example.com".
// Relative URLs are resolved against the origin, it is also used by the same-origin check.
func (c Client) WithOrigin(origin string) Client {
	u, err := ParseOrigin(origin)
	if err != nil {
		panic(err)
	}
	c.origin = u
	return c
}

// WithDocument returns a clone of the Client with the document set. It is the target of Updater requests.
// The default evaluator is bound to the document.
func (c Client) WithDocument(sink document.Sink) Client {
	c.sink = sink
	return c.withAutoEvaluator()
}

// WithEvaluator returns a clone of the Client with the script evaluator set.
// Nil disables script evaluation, unsanitized JSON is then decoded strictly.
func (c Client) WithEvaluator(evaluator script.Evaluator) Client {
	c.evaluator = evaluator
	c.autoEvaluator = false
	return c
}

// WithLogger returns a clone of the Client with the logger set.
func (c Client) WithLogger(logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.logger = logger
	return c.withAutoEvaluator()
}

// WithDefaults returns a clone of the Client with the default options of all requests modified.
func (c Client) WithDefaults(opts Options) Client {
	c.defaults = c.defaults.Merge(opts)
	return c
}

func (c Client) withAutoEvaluator() Client {
	if c.autoEvaluator {
		c.evaluator = script.NewGoja(c.sink, script.WithLogger(c.logger))
	}
	return c
}

func (c Client) Responders() *Responders {
	return c.responders
}

func (c Client) Loop() *Loop {
	return c.loop
}

func (c Client) Document() document.Sink {
	return c.sink
}

func (c Client) Defaults() Options {
	return c.defaults
}

// ActiveRequestCount returns the number of created and not yet completed requests.
func (c Client) ActiveRequestCount() int {
	return c.responders.ActiveRequestCount()
}

// Run executes asynchronous notifications until the context is done.
func (c Client) Run(ctx context.Context) error {
	return c.loop.Run(ctx)
}

// RunPending executes queued asynchronous notifications and returns their count.
func (c Client) RunPending() int {
	return c.loop.RunPending()
}

// NewRequest creates and starts a request.
//
// A synchronous request is completed when the method returns,
// the returned error contains exceptions not handled by the OnException callback.
// Exceptions of an asynchronous request are returned by Request.Wait.
func (c Client) NewRequest(rawURL string, opts Options) (*Request, error) {
	return c.start(rawURL, c.defaults.Merge(opts))
}

// IsSameOrigin reports whether the URL has the origin of the Client document.
func (c Client) IsSameOrigin(rawURL string) bool {
	return isSameOrigin(c.origin, rawURL)
}
