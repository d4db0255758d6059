// Package otel provides an ajax.Responder, which reports OpenTelemetry spans and metrics of requests.
//
//   - A span "keboola.go.ajax.request" covers each request from the onCreate to the onComplete event.
//   - Each dispatched ready state is recorded as a span event.
//   - Exceptions are recorded as span errors.
//   - Metrics names start with "keboola.go.ajax." (meterPrefix const).
//
// Low-level HTTP telemetry is provided by the transport/trace/otel package.
package otel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelMetric "go.opentelemetry.io/otel/metric"
	metricNoop "go.opentelemetry.io/otel/metric/noop"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/keboola/go-ajax/pkg/ajax"
)

const (
	traceAppName      = "github.com/keboola/go-ajax"
	meterPrefix       = "keboola.go.ajax."
	requestSpanName   = meterPrefix + "request"
	attrRequestID     = attribute.Key("ajax.request.id")
	attrAsync         = attribute.Key("ajax.request.async")
	attrSameOrigin    = attribute.Key("ajax.request.same_origin")
	attrSuccess       = attribute.Key("ajax.response.success")
	attrReadyState    = attribute.Key("ajax.ready_state")
	attrExceptionType = attribute.Key("ajax.exception.type")
	maskedAttrValue   = "****"
)

type config struct {
	ctx                 context.Context
	redactedQueryParams map[string]struct{}
}

type Option func(*config)

// WithContext sets the parent context of request spans.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		c.ctx = ctx
	}
}

func WithRedactedQueryParam(params ...string) Option {
	return func(c *config) {
		for _, p := range params {
			c.redactedQueryParams[p] = struct{}{}
		}
	}
}

type meters struct {
	inFlight   otelMetric.Int64UpDownCounter
	duration   otelMetric.Float64Histogram
	exceptions otelMetric.Int64Counter
}

type requestTelemetry struct {
	ctx       context.Context
	span      otelTrace.Span
	startTime time.Time
	attrs     []attribute.KeyValue
}

// NewResponder creates a responder, it must be registered to the ajax.Responders.
// Nil providers are replaced by noop providers.
func NewResponder(tracerProvider otelTrace.TracerProvider, meterProvider otelMetric.MeterProvider, opts ...Option) *ajax.Responder {
	cfg := config{ctx: context.Background(), redactedQueryParams: make(map[string]struct{})}
	for _, o := range opts {
		o(&cfg)
	}
	if tracerProvider == nil {
		tracerProvider = noop.NewTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = metricNoop.NewMeterProvider()
	}
	tracer := tracerProvider.Tracer(traceAppName)
	meter := meterProvider.Meter(traceAppName)
	m := meters{
		inFlight:   mustInstrument(meter.Int64UpDownCounter(meterPrefix+"request.in_flight", otelMetric.WithDescription("Ajax: in flight requests."))),
		duration:   mustInstrument(meter.Float64Histogram(meterPrefix+"request.duration", otelMetric.WithDescription("Ajax: requests duration, including callbacks."), otelMetric.WithUnit("ms"))),
		exceptions: mustInstrument(meter.Int64Counter(meterPrefix+"request.exceptions", otelMetric.WithDescription("Ajax: dispatched exceptions."))),
	}

	var lock sync.Mutex
	requests := make(map[*ajax.Request]*requestTelemetry)
	get := func(req *ajax.Request) *requestTelemetry {
		lock.Lock()
		defer lock.Unlock()
		return requests[req]
	}
	stateEvent := func(req *ajax.Request, res *ajax.Response, _ any) error {
		if rt := get(req); rt != nil {
			rt.span.AddEvent(res.ReadyState().String(), otelTrace.WithAttributes(attrReadyState.Int(int(res.ReadyState()))))
		}
		return nil
	}

	return &ajax.Responder{
		OnCreate: func(req *ajax.Request, _ *ajax.Response, _ any) error {
			attrs := []attribute.KeyValue{
				semconv.HTTPMethodKey.String(req.Method()),
				attrSameOrigin.Bool(req.IsSameOrigin()),
				attrAsync.Bool(req.Asynchronous()),
			}
			ctx, span := tracer.Start(
				cfg.ctx,
				requestSpanName,
				otelTrace.WithSpanKind(otelTrace.SpanKindClient),
				otelTrace.WithAttributes(attrs...),
				otelTrace.WithAttributes(
					attrRequestID.String(req.ID()),
					semconv.HTTPURLKey.String(redactURL(cfg, req.URL())),
				),
			)
			m.inFlight.Add(ctx, 1, otelMetric.WithAttributes(attrs...))

			lock.Lock()
			defer lock.Unlock()
			requests[req] = &requestTelemetry{ctx: ctx, span: span, startTime: time.Now(), attrs: attrs}
			return nil
		},
		OnLoading:     stateEvent,
		OnLoaded:      stateEvent,
		OnInteractive: stateEvent,
		OnComplete: func(req *ajax.Request, res *ajax.Response, _ any) error {
			lock.Lock()
			rt := requests[req]
			delete(requests, req)
			lock.Unlock()
			if rt == nil {
				return nil
			}

			elapsedTime := float64(time.Since(rt.startTime)) / float64(time.Millisecond)
			resAttrs := []attribute.KeyValue{
				semconv.HTTPStatusCodeKey.Int(res.Status()),
				attrSuccess.Bool(res.Success()),
			}

			// Metrics
			m.inFlight.Add(rt.ctx, -1, otelMetric.WithAttributes(rt.attrs...)) // same attributes/dimensions as in OnCreate!
			m.duration.Record(rt.ctx, elapsedTime, otelMetric.WithAttributes(rt.attrs...), otelMetric.WithAttributes(resAttrs...))

			// Tracing
			rt.span.SetAttributes(resAttrs...)
			if !res.Success() {
				err := res.Err()
				if err == nil {
					err = fmt.Errorf(`HTTP status code: %d %s`, res.Status(), res.StatusText())
				}
				rt.span.RecordError(err)
				rt.span.SetStatus(codes.Error, err.Error())
			}
			rt.span.End()
			return nil
		},
		OnException: func(req *ajax.Request, err error) {
			attrs := []attribute.KeyValue{attrExceptionType.String(fmt.Sprintf("%T", err))}
			ctx := cfg.ctx
			if rt := get(req); rt != nil {
				ctx = rt.ctx
				rt.span.RecordError(err, otelTrace.WithAttributes(attrs...))
			}
			m.exceptions.Add(ctx, 1, otelMetric.WithAttributes(attrs...))
		},
	}
}

func redactURL(cfg config, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" || len(cfg.redactedQueryParams) == 0 {
		return rawURL
	}
	pairs := strings.Split(u.RawQuery, "&")
	for i, pair := range pairs {
		key, _, _ := strings.Cut(pair, "=")
		if _, found := cfg.redactedQueryParams[key]; found {
			pairs[i] = key + "=" + maskedAttrValue
		}
	}
	u.RawQuery = strings.Join(pairs, "&")
	return u.String()
}

func mustInstrument[T any](instrument T, err error) T {
	if err != nil {
		panic(err)
	}
	return instrument
}
