// Package transport provides the request/response capability used by the ajax engine.
//
// A Transport is a single use, XMLHttpRequest-like object:
// it is opened, optionally configured with request headers and sent exactly once.
// Progress is reported by ReadyState notifications registered by OnReadyStateChange.
//
// Client is the default implementation of the Transport factory,
// it is based on the standard net/http package and contains retry, tracing and decoding support.
package transport

import (
	"net/http"

	"github.com/antchfx/xmlquery"
)

// ReadyState is the progress of a Transport.
type ReadyState int

const (
	// Unsent - the transport has been created, Open has not been called yet.
	Unsent ReadyState = iota
	// Opened - Open has been called.
	Opened
	// HeadersReceived - the response status and headers are available.
	HeadersReceived
	// Loading - the response body is being received.
	Loading
	// Done - the request is complete, successfully or not.
	Done
)

func (s ReadyState) String() string {
	switch s {
	case Unsent:
		return "Unsent"
	case Opened:
		return "Opened"
	case HeadersReceived:
		return "HeadersReceived"
	case Loading:
		return "Loading"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Transport performs one HTTP request.
//
// Status, StatusText and response headers are available from the HeadersReceived state,
// ResponseText is available from the Loading state.
// A network failure is reported by the Done state with status 0 and a non-nil Err.
type Transport interface {
	// Open sets method and absolute URL of the request.
	Open(method, url string, async bool) error
	// SetRequestHeader sets a request header, it must be called between Open and Send.
	SetRequestHeader(name, value string)
	// Send starts the request. In the synchronous mode, it returns after the Done state is reached.
	Send(body string) error
	ReadyState() ReadyState
	Status() int
	StatusText() string
	ResponseText() string
	ResponseHeader(name string) (string, bool)
	AllResponseHeaders() http.Header
	// Err returns the network error, if any.
	Err() error
	// OnReadyStateChange registers a listener of state notifications.
	// In the asynchronous mode, the listener is called from a background goroutine.
	OnReadyStateChange(fn func(state ReadyState))
}

// Factory creates a new Transport for each request.
type Factory func() Transport

// XMLProvider is an optional Transport capability, it provides an already parsed XML document of the response.
type XMLProvider interface {
	ResponseXML() (*xmlquery.Node, error)
}
