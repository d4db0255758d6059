// Package trace extends the httptrace.ClientTrace with hooks of the transport.Client.
// A custom ClientTrace definition can be registered in the transport.Client by the WithTrace and AndTrace methods.
package trace

import (
	"context"
	"net/http"
	"net/http/httptrace"
	"reflect"
	"time"
)

// Factory creates ClientTrace hooks for a request.
// The returned context is used for the request, nil ClientTrace means no tracing.
type Factory func(ctx context.Context, method, url string) (context.Context, *ClientTrace)

// ClientTrace is a set of hooks to run at various stages of an outgoing request.
type ClientTrace struct {
	httptrace.ClientTrace // native, low level trace
	// HTTPRequestStart is called when the request begins. It includes redirects and retries.
	HTTPRequestStart func(request *http.Request)
	// HTTPRequestDone is called when the response headers are received. It includes redirects and retries.
	HTTPRequestDone func(response *http.Response, err error)
	// HTTPRequestRetry is called before retry delay.
	HTTPRequestRetry func(attempt int, delay time.Duration)
	// ReadyStateChange is called on each notification of the transport.
	ReadyStateChange func(state int)
	// RequestProcessed is called when the response body is read or the request failed.
	RequestProcessed func(status int, bodyBytes int64, err error)
}

// Compose chains hooks of the other trace into t, hooks of the other trace run first.
// A hook missing in t is taken from the other trace as is.
func (t *ClientTrace) Compose(other *ClientTrace) {
	if other == nil {
		return
	}
	native := t.ClientTrace
	chainHooks(reflect.ValueOf(&native).Elem(), reflect.ValueOf(&other.ClientTrace).Elem())
	t.ClientTrace = native
	chainHooks(reflect.ValueOf(t).Elem(), reflect.ValueOf(other).Elem())
}

// chainHooks replaces each func field of dst by a func calling the src field and then the original dst field.
func chainHooks(dst, src reflect.Value) {
	for i := 0; i < dst.NumField(); i++ {
		field := dst.Field(i)
		if field.Kind() != reflect.Func {
			continue
		}
		first := src.Field(i)
		switch {
		case first.IsNil():
			continue
		case field.IsNil():
			field.Set(first)
			continue
		}
		// Copies break the cycle, the new func must not call itself.
		firstFn := reflect.ValueOf(first.Interface())
		secondFn := reflect.ValueOf(field.Interface())
		field.Set(reflect.MakeFunc(field.Type(), func(args []reflect.Value) []reflect.Value {
			firstFn.Call(args)
			return secondFn.Call(args)
		}))
	}
}
