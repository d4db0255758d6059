package trace_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-ajax/pkg/transport"
	"github.com/keboola/go-ajax/pkg/transport/trace"
)

func TestClientTrace_Compose(t *testing.T) {
	t.Parallel()

	var calls []string
	older := &trace.ClientTrace{
		HTTPRequestStart: func(*http.Request) { calls = append(calls, "older start") },
		RequestProcessed: func(int, int64, error) { calls = append(calls, "older processed") },
	}
	older.GotFirstResponseByte = func() { calls = append(calls, "older first byte") }
	newer := &trace.ClientTrace{
		HTTPRequestStart: func(*http.Request) { calls = append(calls, "newer start") },
		HTTPRequestDone:  func(*http.Response, error) { calls = append(calls, "newer done") },
	}

	newer.Compose(older)
	newer.HTTPRequestStart(nil)
	newer.HTTPRequestDone(nil, nil)
	newer.RequestProcessed(200, 0, nil)
	newer.GotFirstResponseByte()
	assert.Equal(t, []string{
		"older start",
		"newer start",
		"newer done",
		"older processed",
		"older first byte",
	}, calls)

	// Nil is ignored
	newer.Compose(nil)
}

func TestClient_AndTrace(t *testing.T) {
	t.Parallel()

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(http.StatusOK, "OK"))

	var lock sync.Mutex
	var logs []string
	log := func(format string, a ...any) {
		lock.Lock()
		defer lock.Unlock()
		logs = append(logs, fmt.Sprintf(format, a...))
	}
	factory := func(name string) trace.Factory {
		return func(ctx context.Context, method, url string) (context.Context, *trace.ClientTrace) {
			log("%s factory %s %s", name, method, url)
			return ctx, &trace.ClientTrace{
				ReadyStateChange: func(state int) { log("%s state %d", name, state) },
				RequestProcessed: func(status int, bodyBytes int64, err error) {
					log("%s processed %d %d %v", name, status, bodyBytes, err)
				},
			}
		}
	}

	c := transport.New().WithTransport(mock).WithTrace(factory("first")).AndTrace(factory("second"))
	tr := c.NewTransport()
	require.NoError(t, tr.Open("GET", "https://example.com", false))
	require.NoError(t, tr.Send(""))

	expected := `
first factory GET https://example.com
second factory GET https://example.com
first state 1
second state 1
first state 2
second state 2
first state 3
second state 3
first state 4
second state 4
first processed 200 2 <nil>
second processed 200 2 <nil>
`
	assert.Equal(t, strings.TrimSpace(expected), strings.Join(logs, "\n"))
}
