package trace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	dumpMaxLength = 2000
	dumpFullEnv   = "HTTP_DUMP_TRACE_FULL"
)

// requestDump collects the dump of one request, it is written at once when the response headers arrive.
type requestDump struct {
	lock        *sync.Mutex
	wr          io.Writer
	method, url string

	request   string
	status    int
	startAt   time.Time
	headersAt time.Time
}

// DumpTracer dumps HTTP request and response headers to the writer.
// The output may contain unmasked tokens, do not use it in production!
func DumpTracer(wr io.Writer) Factory {
	lock := &sync.Mutex{}
	return func(ctx context.Context, method, url string) (context.Context, *ClientTrace) {
		d := &requestDump{lock: lock, wr: wr, method: method, url: url}
		return ctx, &ClientTrace{
			HTTPRequestStart: d.start,
			HTTPRequestDone:  d.done,
			HTTPRequestRetry: d.retry,
			RequestProcessed: d.processed,
		}
	}
}

func (d *requestDump) start(req *http.Request) {
	d.startAt = time.Now()
	out, _ := httputil.DumpRequestOut(req, req.GetBody != nil)
	d.request = truncateDump(string(out))
}

func (d *requestDump) done(res *http.Response, err error) {
	lines := []string{"", ">>>>>> HTTP DUMP", d.request, "------"}
	switch {
	case err != nil:
		lines = append(lines, "ERROR: "+err.Error())
	case res != nil:
		d.headersAt = time.Now()
		d.status = res.StatusCode
		// The body is streamed to the transport, only headers are dumped.
		if out, err := httputil.DumpResponse(res, false); err == nil {
			lines = append(lines, strings.TrimSpace(string(out)))
		} else {
			lines = append(lines, "cannot dump response headers: "+err.Error())
		}
	}
	d.println(append(lines, "<<<<<< HTTP DUMP END")...)
}

func (d *requestDump) retry(attempt int, delay time.Duration) {
	d.println("", fmt.Sprintf(">>>>>> HTTP RETRY | ATTEMPT: %d | DELAY: %s | %s %s %d", attempt, delay, d.method, d.url, d.status))
}

func (d *requestDump) processed(status int, bodyBytes int64, err error) {
	d.println("", fmt.Sprintf(
		">>>>>> HTTP REQUEST PROCESSED | %s %s %d | BODY: %dB | ERROR: %v | HEADERS AT: %s | DONE AT: %s",
		d.method, d.url, status, bodyBytes, err, d.headersAt.Sub(d.startAt), time.Since(d.startAt),
	))
}

func (d *requestDump) println(lines ...string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	for _, line := range lines {
		_, _ = fmt.Fprintln(d.wr, strings.ReplaceAll(line, "\r\n", "\n"))
	}
}

func truncateDump(v string) string {
	v = strings.TrimSpace(v)
	if len(v) <= dumpMaxLength || os.Getenv(dumpFullEnv) == "true" { //nolint:forbidigo
		return v
	}
	return v[:dumpMaxLength] + "\n... (set env " + dumpFullEnv + "=true to see full output)"
}
