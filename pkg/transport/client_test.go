package transport_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	. "github.com/keboola/go-ajax/pkg/transport"
)

// stateRecorder collects ready state notifications, it is safe for concurrent use.
type stateRecorder struct {
	lock   sync.Mutex
	states []ReadyState
	done   chan struct{}
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{done: make(chan struct{})}
}

func (r *stateRecorder) OnChange(state ReadyState) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.states = append(r.states, state)
	if state == Done {
		close(r.done)
	}
}

func (r *stateRecorder) States() []ReadyState {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]ReadyState{}, r.states...)
}

func TestNew(t *testing.T) {
	t.Parallel()
	c := New()
	assert.NotNil(t, c)
	assert.Equal(t, Unsent, c.NewTransport().ReadyState())
}

func TestTransport_Sync(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", `https://example.com/foo`, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "XMLHttpRequest", req.Header.Get("X-Requested-With"))
		assert.Equal(t, DefaultUserAgent, req.Header.Get("User-Agent"))
		res := httpmock.NewStringResponse(http.StatusOK, "hello")
		res.Header.Set("Content-Type", "text/plain")
		res.Header.Add("X-Foo", "a")
		res.Header.Add("X-Foo", "b")
		return res, nil
	})

	recorder := newStateRecorder()
	tr := New().WithTransport(mock).NewTransport()
	tr.OnReadyStateChange(recorder.OnChange)
	require.NoError(t, tr.Open("get", "https://example.com/foo", false))
	tr.SetRequestHeader("X-Requested-With", "XMLHttpRequest")
	require.NoError(t, tr.Send(""))

	// Synchronous send returns after the Done state
	assert.Equal(t, []ReadyState{Opened, HeadersReceived, Loading, Done}, recorder.States())
	assert.Equal(t, Done, tr.ReadyState())
	assert.Equal(t, http.StatusOK, tr.Status())
	assert.Equal(t, "OK", tr.StatusText())
	assert.Equal(t, "hello", tr.ResponseText())
	assert.NoError(t, tr.Err())
	v, found := tr.ResponseHeader("x-foo")
	assert.True(t, found)
	assert.Equal(t, "a, b", v)
	_, found = tr.ResponseHeader("X-Missing")
	assert.False(t, found)
	assert.Equal(t, "text/plain", tr.AllResponseHeaders().Get("Content-Type"))
	assert.Equal(t, 1, mock.GetCallCountInfo()["GET https://example.com/foo"])
}

func TestTransport_Async(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("POST", `https://example.com/foo`, func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		assert.NoError(t, err)
		return httpmock.NewStringResponse(http.StatusCreated, "body="+string(body)), nil
	})

	recorder := newStateRecorder()
	tr := New().WithTransport(mock).NewTransport()
	tr.OnReadyStateChange(recorder.OnChange)
	require.NoError(t, tr.Open("POST", "https://example.com/foo", true))
	require.NoError(t, tr.Send("a=1&b=2"))

	select {
	case <-recorder.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
	assert.Equal(t, []ReadyState{Opened, HeadersReceived, Loading, Done}, recorder.States())
	assert.Equal(t, http.StatusCreated, tr.Status())
	assert.Equal(t, "body=a=1&b=2", tr.ResponseText())
}

func TestTransport_NetworkError(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", `https://example.com/foo`, httpmock.NewErrorResponder(errors.New("connection refused")))

	recorder := newStateRecorder()
	tr := New().WithTransport(mock).NewTransport()
	tr.OnReadyStateChange(recorder.OnChange)
	require.NoError(t, tr.Open("GET", "https://example.com/foo", false))
	require.NoError(t, tr.Send(""))

	assert.Equal(t, []ReadyState{Opened, Done}, recorder.States())
	assert.Equal(t, 0, tr.Status())
	assert.Equal(t, "", tr.ResponseText())
	if assert.Error(t, tr.Err()) {
		assert.Equal(t, `request GET "https://example.com/foo" failed: connection refused`, tr.Err().Error())
	}
}

func TestTransport_InvalidUsage(t *testing.T) {
	t.Parallel()

	tr := New().WithTransport(httpmock.NewMockTransport()).NewTransport()
	assert.Error(t, tr.Send(""))
	assert.Error(t, tr.Open("GET", "/relative", true))
	assert.Error(t, tr.Open("GE T", "https://example.com", true))
	require.NoError(t, tr.Open("GET", "https://example.com", true))
	assert.Error(t, tr.Open("GET", "https://example.com", true))
}

func TestTransport_Decode(t *testing.T) {
	t.Parallel()

	var gzipped bytes.Buffer
	w := gzip.NewWriter(&gzipped)
	_, err := w.Write([]byte("compressed content"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", `https://example.com/gzip`, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "gzip, deflate, br", req.Header.Get("Accept-Encoding"))
		res := httpmock.NewBytesResponse(http.StatusOK, gzipped.Bytes())
		res.Header.Set("Content-Encoding", "gzip")
		return res, nil
	})
	mock.RegisterResponder("GET", `https://example.com/latin2`, func(req *http.Request) (*http.Response, error) {
		res := httpmock.NewBytesResponse(http.StatusOK, []byte{0xBE, 0x6C, 0x75, 0xBB, 0x6F, 0x75, 0xE8, 0x6B, 0xFD})
		res.Header.Set("Content-Type", "text/plain; charset=iso-8859-2")
		return res, nil
	})

	c := New().WithTransport(mock)

	tr := c.NewTransport()
	require.NoError(t, tr.Open("GET", "https://example.com/gzip", false))
	require.NoError(t, tr.Send(""))
	assert.Equal(t, "compressed content", tr.ResponseText())

	tr = c.NewTransport()
	require.NoError(t, tr.Open("GET", "https://example.com/latin2", false))
	require.NoError(t, tr.Send(""))
	assert.Equal(t, "žluťoučký", tr.ResponseText())
}

func TestTransport_MaxResponseSize(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", `https://example.com/big`, httpmock.NewStringResponder(http.StatusOK, strings.Repeat("x", 100)))

	tr := New().WithTransport(mock).WithMaxResponseSize(10).NewTransport()
	require.NoError(t, tr.Open("GET", "https://example.com/big", false))
	require.NoError(t, tr.Send(""))
	assert.Equal(t, Done, tr.ReadyState())
	assert.Equal(t, 0, tr.Status())
	if assert.Error(t, tr.Err()) {
		assert.Contains(t, tr.Err().Error(), "response body exceeds the limit of 10 bytes")
	}
}

func TestTransport_Retry(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", `https://example.com/foo`, httpmock.ResponderFromMultipleResponses([]*http.Response{
		{StatusCode: http.StatusServiceUnavailable, Body: io.NopCloser(strings.NewReader(""))},
		{StatusCode: http.StatusTooManyRequests, Body: io.NopCloser(strings.NewReader(""))},
		{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("OK"))},
	}))
	mock.RegisterResponder("POST", `https://example.com/foo`, httpmock.NewStringResponder(http.StatusServiceUnavailable, "unavailable"))

	c := New().WithTransport(mock).WithRetry(TestingRetry())

	tr := c.NewTransport()
	require.NoError(t, tr.Open("GET", "https://example.com/foo", false))
	require.NoError(t, tr.Send(""))
	assert.Equal(t, http.StatusOK, tr.Status())
	assert.Equal(t, "OK", tr.ResponseText())
	assert.Equal(t, 3, mock.GetCallCountInfo()["GET https://example.com/foo"])

	// POST is not retried
	tr = c.NewTransport()
	require.NoError(t, tr.Open("POST", "https://example.com/foo", false))
	require.NoError(t, tr.Send("foo=bar"))
	assert.Equal(t, http.StatusServiceUnavailable, tr.Status())
	assert.Equal(t, 1, mock.GetCallCountInfo()["POST https://example.com/foo"])
}

func TestClient_WithHeader(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", `https://example.com`, func(req *http.Request) (*http.Response, error) {
		return httpmock.NewStringResponse(http.StatusOK, req.Header.Get("X-Common")+"|"+req.Header.Get("User-Agent")), nil
	})

	base := New().WithTransport(mock)
	c := base.WithHeader("X-Common", "1").WithUserAgent("my-agent")

	tr := c.NewTransport()
	require.NoError(t, tr.Open("GET", "https://example.com", false))
	tr.SetRequestHeader("X-Common", "2")
	require.NoError(t, tr.Send(""))
	assert.Equal(t, "2|my-agent", tr.ResponseText())

	// Original client is not modified
	tr = base.NewTransport()
	require.NoError(t, tr.Open("GET", "https://example.com", false))
	require.NoError(t, tr.Send(""))
	assert.Equal(t, "|"+DefaultUserAgent, tr.ResponseText())
}

func TestClient_WithTokenSource(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", `https://example.com`, func(req *http.Request) (*http.Response, error) {
		return httpmock.NewStringResponse(http.StatusOK, req.Header.Get("Authorization")), nil
	})

	c := New().WithTransport(mock).WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "my-token"}))
	tr := c.NewTransport()
	require.NoError(t, tr.Open("GET", "https://example.com", false))
	require.NoError(t, tr.Send(""))
	assert.Equal(t, "Bearer my-token", tr.ResponseText())
}

func TestClient_WithConcurrencyLimit(t *testing.T) {
	t.Parallel()

	var lock sync.Mutex
	var inFlight, maxInFlight int
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", `https://example.com`, func(req *http.Request) (*http.Response, error) {
		lock.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		lock.Unlock()
		time.Sleep(5 * time.Millisecond)
		lock.Lock()
		inFlight--
		lock.Unlock()
		return httpmock.NewStringResponse(http.StatusOK, "OK"), nil
	})

	c := New().WithTransport(mock).WithConcurrencyLimit(2)
	var recorders []*stateRecorder
	for i := 0; i < 10; i++ {
		recorder := newStateRecorder()
		recorders = append(recorders, recorder)
		tr := c.NewTransport()
		tr.OnReadyStateChange(recorder.OnChange)
		require.NoError(t, tr.Open("GET", "https://example.com", true))
		require.NoError(t, tr.Send(""))
	}
	for _, recorder := range recorders {
		<-recorder.done
	}
	assert.LessOrEqual(t, maxInFlight, 2)
	assert.Equal(t, 10, mock.GetCallCountInfo()["GET https://example.com"])
}

func TestClient_WithContext(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", `https://example.com`, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := New().WithTransport(mock).WithContext(ctx).NewTransport()
	require.NoError(t, tr.Open("GET", "https://example.com", false))
	require.NoError(t, tr.Send(""))
	assert.Equal(t, 0, tr.Status())
	assert.Error(t, tr.Err())
}
