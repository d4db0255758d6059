package trace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"sync/atomic"
	"time"
)

// lineLogger is shared by all requests of one LogTracer, so lines of concurrent requests are not interleaved.
type lineLogger struct {
	lock   sync.Mutex
	wr     io.Writer
	lastID atomic.Uint64
}

// requestLog writes lines of one request, each prefixed by the request number.
type requestLog struct {
	out         *lineLogger
	id          uint64
	method, url string

	connectAt, startAt, headersAt time.Time
}

// LogTracer writes one line per request phase to the writer.
func LogTracer(wr io.Writer) Factory {
	out := &lineLogger{wr: wr}
	return func(ctx context.Context, method, url string) (context.Context, *ClientTrace) {
		r := &requestLog{out: out, id: out.lastID.Add(1), method: method, url: url}
		return ctx, &ClientTrace{
			ClientTrace: httptrace.ClientTrace{
				ConnectStart: func(string, string) { r.connectAt = time.Now() },
				GotConn:      r.gotConn,
			},
			ReadyStateChange: r.readyStateChange,
			HTTPRequestStart: r.start,
			HTTPRequestDone:  r.done,
			HTTPRequestRetry: r.retry,
			RequestProcessed: r.processed,
		}
	}
}

func (r *requestLog) gotConn(info httptrace.GotConnInfo) {
	desc := fmt.Sprintf("new conn | %s", time.Since(r.connectAt))
	if info.Reused {
		desc = "reused conn"
		if info.WasIdle {
			desc += fmt.Sprintf(" (was idle=%s)", info.IdleTime)
		}
	}
	r.printf(`CONN  %s "%s" | %s`, r.method, r.url, desc)
}

func (r *requestLog) readyStateChange(state int) {
	if name := readyStateName(state); name != "" {
		r.printf(`STATE %s "%s" | %s`, r.method, r.url, name)
	}
}

func (r *requestLog) start(req *http.Request) {
	r.startAt = time.Now()
	r.printf(`START %s "%s"`, req.Method, req.URL.String())
}

func (r *requestLog) done(res *http.Response, err error) {
	r.headersAt = time.Now()
	status := 0
	if err == nil && res != nil {
		status = res.StatusCode
	}
	r.printf(`DONE  %s "%s" | %d | %s%s`, r.method, r.url, status, r.headersAt.Sub(r.startAt), errSuffix(err))
}

func (r *requestLog) retry(attempt int, delay time.Duration) {
	r.printf(`RETRY %s "%s" | %dx | %s`, r.method, r.url, attempt, delay)
}

func (r *requestLog) processed(status int, bodyBytes int64, err error) {
	r.printf(`BODY  %s "%s" | %d | %dB | %s%s`, r.method, r.url, status, bodyBytes, time.Since(r.headersAt), errSuffix(err))
}

func (r *requestLog) printf(format string, a ...any) {
	r.out.lock.Lock()
	defer r.out.lock.Unlock()
	_, _ = fmt.Fprintf(r.out.wr, "HTTP_REQUEST[%04d] %s\n", r.id, fmt.Sprintf(format, a...))
}

func readyStateName(state int) string {
	switch state {
	case 0:
		return "UNSENT"
	case 1:
		return "OPENED"
	case 2:
		return "HEADERS"
	case 3:
		return "LOADING"
	case 4:
		return "DONE"
	default:
		return ""
	}
}

func errSuffix(err error) string {
	if err == nil {
		return ""
	}
	return " | error=" + err.Error()
}
