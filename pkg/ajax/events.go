package ajax

import (
	"strconv"

	"github.com/keboola/go-ajax/pkg/transport"
)

// Event is a name of a request lifecycle notification.
type Event string

const (
	EventCreate        Event = "onCreate"
	EventUninitialized Event = "onUninitialized"
	EventLoading       Event = "onLoading"
	EventLoaded        Event = "onLoaded"
	EventInteractive   Event = "onInteractive"
	EventComplete      Event = "onComplete"
	EventSuccess       Event = "onSuccess"
	EventFailure       Event = "onFailure"
	EventException     Event = "onException"
)

// StatusEvent returns the name of the event dispatched for the HTTP status code, for example "on404".
func StatusEvent(code int) Event {
	return Event("on" + strconv.Itoa(code))
}

// StateEvent maps the transport state to the event name.
func StateEvent(state transport.ReadyState) Event {
	switch state {
	case transport.Unsent:
		return EventUninitialized
	case transport.Opened:
		return EventLoading
	case transport.HeadersReceived:
		return EventLoaded
	case transport.Loading:
		return EventInteractive
	case transport.Done:
		return EventComplete
	default:
		return ""
	}
}

// statusCode returns the code of a status event, for example 404 for "on404".
func (e Event) statusCode() (int, bool) {
	if len(e) < 3 || e[:2] != "on" {
		return 0, false
	}
	code, err := strconv.Atoi(string(e[2:]))
	if err != nil {
		return 0, false
	}
	return code, true
}
