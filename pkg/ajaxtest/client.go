// Package ajaxtest contains helpers for tests of the ajax engine: a fixture server and test clients.
package ajaxtest

import (
	"net/http"
	"os"

	"github.com/jarcoal/httpmock"
	"go.uber.org/zap"

	"github.com/keboola/go-ajax/pkg/ajax"
	"github.com/keboola/go-ajax/pkg/document"
	"github.com/keboola/go-ajax/pkg/transport"
	"github.com/keboola/go-ajax/pkg/transport/trace"
)

// MockedOrigin is the origin of the client created by NewMockedClient.
const MockedOrigin = "http://localhost"

var testTransport = transport.DefaultTransport() //nolint:gochecknoglobals

// NewTestHTTPClient creates the HTTP client for tests.
//
// If the TEST_HTTP_CLIENT_VERBOSE environment variable is set to "true",
// then all HTTP requests and responses are dumped to stdout.
//
// Output may contain unmasked tokens, do not use it in production.
func NewTestHTTPClient() transport.Client {
	c := transport.New().WithTransport(testTransport)
	if os.Getenv("TEST_HTTP_CLIENT_VERBOSE") == "true" {
		c = c.WithTrace(trace.DumpTracer(os.Stdout))
	}
	return c
}

// NewTestDocument creates a document with the "content" and "content2" elements.
func NewTestDocument() *document.HTML {
	return document.MustParseHTML(TestPage)
}

// NewTestClient creates the Client for requests to the origin, for example a httptest.Server URL.
// The Client has its own Responders registry and Loop.
func NewTestClient(origin string, logger *zap.Logger) (ajax.Client, *document.HTML) {
	doc := NewTestDocument()
	c := ajax.New().
		WithHTTPClient(NewTestHTTPClient()).
		WithOrigin(origin).
		WithLogger(logger).
		WithDocument(doc)
	return c, doc
}

// NewMockedClient creates the Client with mocked HTTP transport, the origin is MockedOrigin.
// StaticFixtures are registered under the /fixtures/ path.
func NewMockedClient() (ajax.Client, *httpmock.MockTransport, *document.HTML) {
	mockTransport := httpmock.NewMockTransport()
	RegisterFixtures(mockTransport, MockedOrigin)
	doc := NewTestDocument()
	c := ajax.New().
		WithHTTPClient(NewTestHTTPClient().WithTransport(mockTransport)).
		WithOrigin(MockedOrigin).
		WithDocument(doc)
	return c, mockTransport, doc
}

// RegisterFixtures registers StaticFixtures to the mock.
func RegisterFixtures(mock *httpmock.MockTransport, origin string) {
	for name, fixture := range StaticFixtures() {
		fixture := fixture
		mock.RegisterResponder(http.MethodGet, origin+"/fixtures/"+name, func(req *http.Request) (*http.Response, error) {
			res := httpmock.NewStringResponse(http.StatusOK, fixture.Body)
			res.Header.Set("Content-Type", fixture.ContentType)
			res.Request = req
			return res, nil
		})
	}
}
