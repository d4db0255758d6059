package ajax

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Handler is a global responder callback.
type Handler func(req *Request, res *Response, headerJSON any) error

// Responder is a set of optional global callbacks, called for each request of the Client.
// Nil handlers are skipped.
type Responder struct {
	OnCreate        Handler
	OnUninitialized Handler
	OnLoading       Handler
	OnLoaded        Handler
	OnInteractive   Handler
	OnComplete      Handler
	// OnStatus handlers are dispatched by the status event, for example "on404".
	OnStatus    map[int]Handler
	OnException func(req *Request, err error)
}

func (r *Responder) handler(event Event) Handler {
	switch event {
	case EventCreate:
		return r.OnCreate
	case EventUninitialized:
		return r.OnUninitialized
	case EventLoading:
		return r.OnLoading
	case EventLoaded:
		return r.OnLoaded
	case EventInteractive:
		return r.OnInteractive
	case EventComplete:
		return r.OnComplete
	default:
		if code, ok := event.statusCode(); ok {
			return r.OnStatus[code]
		}
		return nil
	}
}

// Responders is a registry of global responders.
//
// The registry always contains the default responder,
// which maintains the number of active requests.
// It is safe for concurrent use.
type Responders struct {
	lock       sync.Mutex
	items      []*Responder
	defaultOne *Responder
	active     int
}

// NewResponders creates a registry with the default responder.
func NewResponders() *Responders {
	r := &Responders{}
	r.defaultOne = &Responder{
		OnCreate: func(*Request, *Response, any) error {
			r.lock.Lock()
			defer r.lock.Unlock()
			r.active++
			return nil
		},
		OnComplete: func(*Request, *Response, any) error {
			r.lock.Lock()
			defer r.lock.Unlock()
			if r.active > 0 {
				r.active--
			}
			return nil
		},
	}
	r.items = []*Responder{r.defaultOne}
	return r
}

// ActiveRequestCount returns the number of created and not yet completed requests.
func (r *Responders) ActiveRequestCount() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.active
}

// Register adds the responder, if it is not already registered.
func (r *Responders) Register(responder *Responder) {
	if responder == nil {
		return
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, item := range r.items {
		if item == responder {
			return
		}
	}
	r.items = append(r.items, responder)
}

// Unregister removes the responder, if it is registered. The default responder cannot be removed.
func (r *Responders) Unregister(responder *Responder) {
	if responder == nil || responder == r.defaultOne {
		return
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	for i, item := range r.items {
		if item == responder {
			items := make([]*Responder, 0, len(r.items)-1)
			items = append(items, r.items[:i]...)
			r.items = append(items, r.items[i+1:]...)
			return
		}
	}
}

// Clear removes all responders except the default one.
func (r *Responders) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.items = []*Responder{r.defaultOne}
}

// Len returns the number of registered responders, including the default one.
func (r *Responders) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.items)
}

// Dispatch calls the event handler of each responder.
// Responders registered during the dispatch are not called in that pass.
// Errors and panics do not stop the dispatch, they are returned together at the end.
func (r *Responders) Dispatch(event Event, req *Request, res *Response, headerJSON any) error {
	var errs *multierror.Error
	for _, item := range r.snapshot() {
		handler := item.handler(event)
		if handler == nil {
			continue
		}
		if err := callHandler(event, func() error { return handler(req, res, headerJSON) }); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errorOrNil(errs)
}

// DispatchException calls the exception handler of each responder.
// Recovered panics are returned.
func (r *Responders) DispatchException(req *Request, err error) error {
	var errs *multierror.Error
	for _, item := range r.snapshot() {
		handler := item.OnException
		if handler == nil {
			continue
		}
		if panicErr := callHandler(EventException, func() error { handler(req, err); return nil }); panicErr != nil {
			errs = multierror.Append(errs, panicErr)
		}
	}
	return errorOrNil(errs)
}

func (r *Responders) snapshot() []*Responder {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]*Responder(nil), r.items...)
}

// callHandler converts a returned error or a panic to the CallbackError.
func callHandler(event Event, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = newPanicError(event, recovered)
		}
	}()
	if err := fn(); err != nil {
		return newCallbackError(event, err)
	}
	return nil
}
