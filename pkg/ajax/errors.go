package ajax

import (
	"fmt"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
)

// ParseError is returned, if the response JSON or XML cannot be decoded.
type ParseError struct {
	// Source is the decoded part of the response: "body", "X-JSON header" or "XML".
	Source string
	Text   string
	err    error
}

func newParseError(source, text string, err error) *ParseError {
	return &ParseError{Source: source, Text: text, err: err}
}

// Name returns the script-compatible name of the error.
func (e *ParseError) Name() string {
	return "SyntaxError"
}

func (e *ParseError) Error() string {
	return fmt.Sprintf(`%s: badly formed %s "%s": %s`, e.Name(), e.Source, truncate(e.Text, 64), e.err)
}

func (e *ParseError) Unwrap() error {
	return e.err
}

// TransportError wraps a failure of the underlying transport.
type TransportError struct {
	Method string
	URL    string
	err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf(`request %s "%s" failed: %s`, e.Method, e.URL, e.err)
}

func (e *TransportError) Unwrap() error {
	return e.err
}

// CallbackError wraps an error returned by a callback or a recovered panic.
type CallbackError struct {
	Event Event
	Panic bool
	err   error
}

func newCallbackError(event Event, err error) *CallbackError {
	return &CallbackError{Event: event, err: err}
}

func newPanicError(event Event, recovered any) *CallbackError {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("%v", recovered)
	}
	return &CallbackError{Event: event, Panic: true, err: err}
}

func (e *CallbackError) Error() string {
	if e.Panic {
		return fmt.Sprintf(`callback "%s" panicked: %s`, e.Event, e.err)
	}
	return fmt.Sprintf(`callback "%s" failed: %s`, e.Event, e.err)
}

func (e *CallbackError) Unwrap() error {
	return e.err
}

// errorOrNil unwraps a multierror with a single error.
func errorOrNil(err *multierror.Error) error {
	if err != nil && len(err.Errors) == 1 {
		return err.Errors[0]
	}
	return err.ErrorOrNil()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Cut at a rune boundary
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}
