package otel_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/keboola/go-ajax/pkg/ajax"
	"github.com/keboola/go-ajax/pkg/ajax/otel"
	"github.com/keboola/go-ajax/pkg/ajaxtest"
)

func TestResponder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	traceExporter := tracetest.NewInMemoryExporter()
	tracerProvider := trace.NewTracerProvider(trace.WithSyncer(traceExporter))
	reader := metric.NewManualReader()
	meterProvider := metric.NewMeterProvider(metric.WithReader(reader))

	c, mock, _ := ajaxtest.NewMockedClient()
	mock.RegisterResponder(http.MethodGet, ajaxtest.MockedOrigin+"/missing", httpmock.NewStringResponder(http.StatusNotFound, "not found"))
	c.Responders().Register(otel.NewResponder(tracerProvider, meterProvider, otel.WithRedactedQueryParam("token")))

	// Success
	_, err := c.NewRequest("/fixtures/content.html", ajax.Options{
		Asynchronous: ajax.Bool(false),
		Parameters:   map[string]string{"pet": "monkey", "token": "secret"},
	})
	require.NoError(t, err)

	// Failure
	_, err = c.NewRequest("/missing", ajax.Options{Asynchronous: ajax.Bool(false)})
	require.NoError(t, err)

	spans := traceExporter.GetSpans()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "keboola.go.ajax.request", ok.Name)
	assert.Equal(t, codes.Unset, ok.Status.Code)
	assert.Equal(t, "/fixtures/content.html?pet=monkey&token=****", attrValue(ok.Attributes, "http.url"))
	assert.Equal(t, int64(200), attrValue(ok.Attributes, "http.status_code"))
	assert.Equal(t, true, attrValue(ok.Attributes, "ajax.request.same_origin"))
	var events []string
	for _, e := range ok.Events {
		events = append(events, e.Name)
	}
	dump := spew.NewDefaultConfig()
	dump.DisablePointerAddresses = true
	dump.DisableCapacities = true
	assert.Equal(t, []string{"Opened", "HeadersReceived", "Loading"}, events, dump.Sdump(ok.Events))

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status.Code)
	assert.Equal(t, "HTTP status code: 404 Not Found", failed.Status.Description)
	assert.Equal(t, false, attrValue(failed.Attributes, "ajax.response.success"))

	// Metrics
	all := &metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(ctx, all))
	require.Len(t, all.ScopeMetrics, 1)
	for _, m := range all.ScopeMetrics[0].Metrics {
		if m.Name == "keboola.go.ajax.request.in_flight" {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, point := range sum.DataPoints {
				assert.Equal(t, int64(0), point.Value)
			}
		}
	}
}

func TestResponder_Exception(t *testing.T) {
	t.Parallel()

	traceExporter := tracetest.NewInMemoryExporter()
	tracerProvider := trace.NewTracerProvider(trace.WithSyncer(traceExporter))

	c, _, _ := ajaxtest.NewMockedClient()
	c.Responders().Register(otel.NewResponder(tracerProvider, nil))

	_, err := c.NewRequest("/fixtures/data.json", ajax.Options{
		Asynchronous: ajax.Bool(false),
		OnComplete: func(*ajax.Response, any) error {
			return assert.AnError
		},
	})
	require.Error(t, err)

	spans := traceExporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 4)
	assert.Equal(t, "exception", spans[0].Events[3].Name)
}

func attrValue(attrs []attribute.KeyValue, key string) any {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsInterface()
		}
	}
	return nil
}
