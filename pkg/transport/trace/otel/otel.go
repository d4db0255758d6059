// Package otel reports OpenTelemetry spans and metrics of transport.Client requests.
//
// Each transport request gets a "keboola.go.ajax.transport.request" span. It covers all redirects,
// retries and the body reading. Child spans:
//   - "http.request" for each sent HTTP request, with "http.dns", "http.getconn", "http.connect",
//     "http.tls", "http.headers" and "http.send" children from the net/http/httptrace hooks.
//   - "keboola.go.ajax.transport.retry.delay" for each wait before a retry.
//   - "keboola.go.ajax.transport.body.read" from the Loading ready state to the end of the body.
//
// Metrics are prefixed "keboola.go.ajax.transport." and "keboola.go.ajax.http.".
package otel

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelMetric "go.opentelemetry.io/otel/metric"
	metricNoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/keboola/go-ajax/pkg/transport/trace"
)

const (
	instrumentationName = "github.com/keboola/go-ajax/transport"
	transportPrefix     = "keboola.go.ajax.transport."
	httpPrefix          = "keboola.go.ajax.http."
	readyStateLoading   = 3
)

// Span names.
const (
	spanTransportRequest = transportPrefix + "request"
	spanBodyRead         = transportPrefix + "body.read"
	spanRetryDelay       = transportPrefix + "retry.delay"
	spanHTTPRequest      = "http.request"
	spanDNS              = "http.dns"
	spanGetConn          = "http.getconn"
	spanConnect          = "http.connect"
	spanTLS              = "http.tls"
	spanHeaders          = "http.headers"
	spanSend             = "http.send"
)

// Attribute keys.
const (
	attrResourceName       = attribute.Key("resource.name")
	attrSpanKind           = attribute.Key("span.kind") // DataDog
	attrSpanType           = attribute.Key("span.type") // DataDog
	attrStatus             = attribute.Key("transport.status")
	attrReadyState         = attribute.Key("transport.ready_state")
	attrRetryAttempt       = attribute.Key("transport.retry.attempt")
	attrRetryDelayMs       = attribute.Key("transport.retry.delay_ms")
	attrRetryDelay         = attribute.Key("transport.retry.delay_string")
	attrReadBytes          = attribute.Key("http.read_bytes")
	attrDNSAddrs           = attribute.Key("http.dns.addrs")
	attrRemoteAddr         = attribute.Key("http.remote")
	attrLocalAddr          = attribute.Key("http.local")
	attrConnReused         = attribute.Key("http.conn.reused")
	attrConnWasIdle        = attribute.Key("http.conn.wasidle")
	attrConnIdleTime       = attribute.Key("http.conn.idletime")
	attrConnStartNetwork   = attribute.Key("http.conn.start.network")
	attrConnDoneNetwork    = attribute.Key("http.conn.done.network")
	attrConnDoneAddr       = attribute.Key("http.conn.done.addr")
	attrSpanKindClient     = "client"
	attrSpanTypeHTTPClient = "http"
)

// NewTrace creates a trace.Factory reporting spans and metrics of transport requests.
// Nil providers are replaced by noop providers.
func NewTrace(tracerProvider otelTrace.TracerProvider, meterProvider otelMetric.MeterProvider, opts ...Option) trace.Factory {
	cfg := newConfig(opts)
	if tracerProvider == nil {
		tracerProvider = noop.NewTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = metricNoop.NewMeterProvider()
	}
	tracer := tracerProvider.Tracer(instrumentationName)
	m := newMeters(meterProvider.Meter(instrumentationName))

	return func(ctx context.Context, method, rawURL string) (context.Context, *trace.ClientTrace) {
		r := &requestTrace{
			config: cfg,
			tracer: tracer,
			meters: m,
			attrs:  newAttributes(cfg.redact, method, rawURL),
		}
		return r.start(ctx), r.hooks()
	}
}

// requestTrace holds the state of one transport request.
// Hooks of a request are never called concurrently.
type requestTrace struct {
	config config
	tracer otelTrace.Tracer
	meters *meters
	attrs  *attributes

	ctx       context.Context
	startTime time.Time
	root      otelTrace.Span
	bodyRead  otelTrace.Span
	delay     otelTrace.Span

	httpCtx   context.Context
	httpStart time.Time
	http      otelTrace.Span
	dns       otelTrace.Span
	getConn   otelTrace.Span
	connect   otelTrace.Span
	tls       otelTrace.Span
	headers   otelTrace.Span
	send      otelTrace.Span
}

func (r *requestTrace) start(ctx context.Context) context.Context {
	r.startTime = time.Now()
	r.meters.requestInFlight.Add(ctx, 1, otelMetric.WithAttributes(r.attrs.transport...))
	r.ctx, r.root = r.tracer.Start(ctx, spanTransportRequest,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(attrSpanKind.String(attrSpanKindClient), attrSpanType.String(attrSpanTypeHTTPClient)),
		otelTrace.WithAttributes(r.attrs.transport...),
	)
	r.httpCtx = r.ctx
	return r.ctx
}

func (r *requestTrace) hooks() *trace.ClientTrace {
	return &trace.ClientTrace{
		ClientTrace: httptrace.ClientTrace{
			DNSStart:          r.dnsStart,
			DNSDone:           r.dnsDone,
			GetConn:           r.getConnStart,
			GotConn:           r.gotConn,
			ConnectStart:      r.connectStart,
			ConnectDone:       r.connectDone,
			TLSHandshakeStart: r.tlsStart,
			TLSHandshakeDone:  r.tlsDone,
			WroteHeaderField:  r.wroteHeaderField,
			WroteHeaders:      r.wroteHeaders,
			WroteRequest:      r.wroteRequest,
		},
		HTTPRequestStart: r.httpRequestStart,
		HTTPRequestDone:  r.httpRequestDone,
		HTTPRequestRetry: r.retry,
		ReadyStateChange: r.readyStateChange,
		RequestProcessed: r.processed,
	}
}

// child starts a span under the current HTTP request, or under the root span between requests.
func (r *requestTrace) child(name string, attrs ...attribute.KeyValue) otelTrace.Span {
	_, span := r.tracer.Start(r.httpCtx, name, otelTrace.WithSpanKind(otelTrace.SpanKindClient), otelTrace.WithAttributes(attrs...))
	return span
}

// end finishes the span, if any, and clears the reference.
func end(span *otelTrace.Span, err error, opts ...otelTrace.SpanEndOption) {
	if *span == nil {
		return
	}
	if err != nil {
		(*span).RecordError(err)
		(*span).SetStatus(codes.Error, err.Error())
	}
	(*span).End(opts...)
	*span = nil
}

func (r *requestTrace) readyStateChange(state int) {
	if r.root == nil {
		return
	}
	r.root.AddEvent("ready state change", otelTrace.WithAttributes(attrReadyState.Int(state)))
	if state == readyStateLoading && r.bodyRead == nil {
		_, r.bodyRead = r.tracer.Start(r.ctx, spanBodyRead,
			otelTrace.WithSpanKind(otelTrace.SpanKindClient),
			otelTrace.WithAttributes(r.attrs.response...),
		)
	}
}

func (r *requestTrace) processed(status int, bodyBytes int64, err error) {
	// Dimensions of the -1 must match the +1 in start.
	r.meters.requestInFlight.Add(r.ctx, -1, otelMetric.WithAttributes(r.attrs.transport...))
	measured := otelMetric.WithAttributes(r.attrs.withResponse()...)
	r.meters.requestDuration.Record(r.ctx, millis(time.Since(r.startTime)), measured)
	r.meters.bodySize.Add(r.ctx, bodyBytes, measured)

	end(&r.delay, nil)
	if r.bodyRead != nil {
		r.bodyRead.SetAttributes(attrReadBytes.Int64(bodyBytes))
		end(&r.bodyRead, err)
	}
	if r.root != nil {
		r.root.SetAttributes(attrStatus.Int(status))
		r.root.SetAttributes(r.attrs.response...)
		r.root.SetAttributes(r.attrs.responseSpan...)
		end(&r.root, err, otelTrace.WithStackTrace(err != nil))
	}
}

func (r *requestTrace) httpRequestStart(req *http.Request) {
	end(&r.delay, nil)

	r.httpStart = time.Now()
	r.attrs.onRequest(req)
	r.httpCtx, r.http = r.tracer.Start(r.ctx, spanHTTPRequest,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(attrSpanKind.String(attrSpanKindClient), attrSpanType.String(attrSpanTypeHTTPClient)),
		otelTrace.WithAttributes(r.attrs.request...),
		otelTrace.WithAttributes(r.attrs.requestSpan...),
	)
	if req != nil {
		r.http.SetAttributes(attrResourceName.String(req.URL.Path))
		if r.config.propagator != nil {
			r.config.propagator.Inject(r.httpCtx, propagation.HeaderCarrier(req.Header))
		}
	}

	r.meters.httpInFlight.Add(r.ctx, 1, otelMetric.WithAttributes(r.attrs.request...))
}

func (r *requestTrace) httpRequestDone(res *http.Response, err error) {
	elapsed := millis(time.Since(r.httpStart))
	r.attrs.onResponse(res, err)

	r.meters.httpInFlight.Add(r.ctx, -1, otelMetric.WithAttributes(r.attrs.request...))
	r.meters.httpDuration.Record(r.ctx, elapsed,
		otelMetric.WithAttributes(r.attrs.request...),
		otelMetric.WithAttributes(r.attrs.response...),
		otelMetric.WithAttributes(r.attrs.outcome...),
	)

	if r.http == nil {
		return
	}
	r.http.SetAttributes(r.attrs.response...)
	r.http.SetAttributes(r.attrs.responseSpan...)
	if err == nil && res != nil && res.StatusCode >= http.StatusBadRequest {
		err = fmt.Errorf(`HTTP status code: %d %s`, res.StatusCode, http.StatusText(res.StatusCode))
	}
	end(&r.http, err)
	r.httpCtx = r.ctx
}

// retry starts the delay span, it is ended by the next HTTP request or by the end of the transport request.
func (r *requestTrace) retry(attempt int, delay time.Duration) {
	end(&r.delay, nil)
	_, r.delay = r.tracer.Start(r.ctx, spanRetryDelay,
		otelTrace.WithSpanKind(otelTrace.SpanKindClient),
		otelTrace.WithAttributes(r.attrs.request...),
		otelTrace.WithAttributes(r.attrs.response...),
		otelTrace.WithAttributes(
			attrRetryAttempt.Int(attempt),
			attrRetryDelayMs.Int64(delay.Milliseconds()),
			attrRetryDelay.String(delay.String()),
		),
	)
}

func (r *requestTrace) dnsStart(info httptrace.DNSStartInfo) {
	r.dns = r.child(spanDNS, semconv.NetHostName(info.Host))
}

func (r *requestTrace) dnsDone(info httptrace.DNSDoneInfo) {
	if r.dns == nil {
		return
	}
	addrs := make([]string, 0, len(info.Addrs))
	for _, addr := range info.Addrs {
		addrs = append(addrs, addr.String())
	}
	r.dns.SetAttributes(attrDNSAddrs.String(strings.Join(addrs, ";")))
	end(&r.dns, info.Err)
}

func (r *requestTrace) getConnStart(host string) {
	r.getConn = r.child(spanGetConn, semconv.NetHostName(host))
}

func (r *requestTrace) gotConn(info httptrace.GotConnInfo) {
	if r.getConn == nil {
		return
	}
	if info.Conn != nil {
		r.getConn.SetAttributes(
			attrRemoteAddr.String(info.Conn.RemoteAddr().String()),
			attrLocalAddr.String(info.Conn.LocalAddr().String()),
		)
	}
	r.getConn.SetAttributes(attrConnReused.Bool(info.Reused), attrConnWasIdle.Bool(info.WasIdle))
	if info.WasIdle {
		r.getConn.SetAttributes(attrConnIdleTime.String(info.IdleTime.String()))
	}
	end(&r.getConn, nil)
}

func (r *requestTrace) connectStart(network, addr string) {
	r.connect = r.child(spanConnect, attrRemoteAddr.String(addr), attrConnStartNetwork.String(network))
}

func (r *requestTrace) connectDone(network, addr string, err error) {
	if r.connect == nil {
		return
	}
	r.connect.SetAttributes(attrConnDoneAddr.String(addr), attrConnDoneNetwork.String(network))
	end(&r.connect, err)
}

// tlsStart is not called when http2.Transport is used directly, without the upgrade from http.Transport.
func (r *requestTrace) tlsStart() {
	r.tls = r.child(spanTLS)
}

func (r *requestTrace) tlsDone(_ tls.ConnectionState, err error) {
	end(&r.tls, err)
}

func (r *requestTrace) wroteHeaderField(_ string, _ []string) {
	if r.headers == nil {
		r.headers = r.child(spanHeaders)
	}
}

func (r *requestTrace) wroteHeaders() {
	end(&r.headers, nil)
	r.send = r.child(spanSend)
}

func (r *requestTrace) wroteRequest(info httptrace.WroteRequestInfo) {
	end(&r.send, info.Err)
}
