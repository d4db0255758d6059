package otel

import otelMetric "go.opentelemetry.io/otel/metric"

// meters are shared by all requests of one trace factory.
type meters struct {
	// transport level, one measurement per transport request
	requestInFlight otelMetric.Int64UpDownCounter
	requestDuration otelMetric.Float64Histogram
	bodySize        otelMetric.Int64Counter
	// HTTP level, one measurement per redirect and retry
	httpInFlight otelMetric.Int64UpDownCounter
	httpDuration otelMetric.Float64Histogram
}

func newMeters(m otelMetric.Meter) *meters {
	return &meters{
		requestInFlight: mustInstrument(m.Int64UpDownCounter(
			transportPrefix+"request.in_flight",
			otelMetric.WithDescription("Transport: in flight requests."),
		)),
		requestDuration: mustInstrument(m.Float64Histogram(
			transportPrefix+"request.duration",
			otelMetric.WithDescription("Transport: requests duration, including body."),
			otelMetric.WithUnit("ms"),
		)),
		bodySize: mustInstrument(m.Int64Counter(
			transportPrefix+"response.body.size",
			otelMetric.WithDescription("Transport: received body bytes."),
			otelMetric.WithUnit("By"),
		)),
		httpInFlight: mustInstrument(m.Int64UpDownCounter(
			httpPrefix+"request.in_flight",
			otelMetric.WithDescription("HTTP request: in flight requests."),
		)),
		httpDuration: mustInstrument(m.Float64Histogram(
			httpPrefix+"request.duration",
			otelMetric.WithDescription("HTTP request: time to response headers, body excluded."),
			otelMetric.WithUnit("ms"),
		)),
	}
}
