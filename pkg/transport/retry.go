package transport

import (
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RequestTimeout is the default total timeout of one request, retries included.
const RequestTimeout = 60 * time.Second

// RetryConfig configures retries of the Client.
// Zero Count disables retries.
type RetryConfig struct {
	Condition           RetryCondition
	Count               int
	TotalRequestTimeout time.Duration
	WaitTimeStart       time.Duration
	WaitTimeMax         time.Duration
}

// RetryCondition reports whether the request should be sent again.
// The response is nil on a network error.
type RetryCondition func(request *http.Request, response *http.Response, err error) bool

// NoRetry is the default of the Client, each request is sent once, as a browser does.
func NoRetry() RetryConfig {
	return RetryConfig{TotalRequestTimeout: RequestTimeout}
}

// DefaultRetry retries idempotent requests 3 times, waiting from 100ms up to 2s.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		Condition:           DefaultRetryCondition(),
		Count:               3,
		TotalRequestTimeout: RequestTimeout,
		WaitTimeStart:       100 * time.Millisecond,
		WaitTimeMax:         2 * time.Second,
	}
}

// TestingRetry is the DefaultRetry with 1ms waits.
func TestingRetry() RetryConfig {
	v := DefaultRetry()
	v.WaitTimeStart = time.Millisecond
	v.WaitTimeMax = time.Millisecond
	return v
}

// DefaultRetryCondition retries GET, HEAD and OPTIONS requests on a network error
// or on a temporary HTTP status. A request with an overridden method is sent as POST, so it is not retried.
func DefaultRetryCondition() RetryCondition {
	return func(request *http.Request, response *http.Response, err error) bool {
		if !isIdempotent(request.Method) {
			return false
		}
		if response == nil || response.StatusCode == 0 {
			return err != nil && !isUnknownHost(err)
		}
		return isTemporaryStatus(response.StatusCode)
	}
}

func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// isUnknownHost errors are permanent, a retry cannot help.
func isUnknownHost(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such host") || strings.Contains(msg, "No address associated with hostname")
}

func isTemporaryStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// NewBackoff returns the exponential backoff between attempts, without randomization.
func (c RetryConfig) NewBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.WaitTimeStart
	b.MaxInterval = c.WaitTimeMax
	b.MaxElapsedTime = c.TotalRequestTimeout
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}
