package trace_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-ajax/pkg/transport"
	"github.com/keboola/go-ajax/pkg/transport/trace"
)

func TestDumpTracer(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("POST", `https://example.com/form`, func(req *http.Request) (*http.Response, error) {
		res := httpmock.NewStringResponse(http.StatusOK, "saved")
		res.Status = "200 OK"
		res.Proto, res.ProtoMajor, res.ProtoMinor = "HTTP/1.1", 1, 1
		res.Header.Set("Content-Type", "text/plain")
		return res, nil
	})

	var logs strings.Builder
	c := transport.New().
		WithTransport(mock).
		WithUserAgent("test").
		WithTrace(trace.DumpTracer(&logs))

	tr := c.NewTransport()
	require.NoError(t, tr.Open("POST", "https://example.com/form", false))
	tr.SetRequestHeader("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	require.NoError(t, tr.Send("foo=bar"))

	out := logs.String()
	assert.Contains(t, out, ">>>>>> HTTP DUMP\nPOST /form HTTP/1.1\nHost: example.com\n")
	assert.Contains(t, out, "User-Agent: test")
	assert.Contains(t, out, "Content-Type: application/x-www-form-urlencoded; charset=UTF-8")
	assert.Contains(t, out, "foo=bar\n------\n")
	assert.Contains(t, out, "------\nHTTP/1.1 200 OK\n")
	assert.Contains(t, out, "<<<<<< HTTP DUMP END\n")
	assert.Regexp(t, `>>>>>> HTTP REQUEST PROCESSED \| POST https://example.com/form 200 \| BODY: 5B \| ERROR: <nil> \| HEADERS AT: \S+ \| DONE AT: \S+\n$`, out)
}
