package ajaxtest

const (
	// HelloJS replaces content of the "content" element.
	HelloJS = `$("content").update("<H2>Hello world!</H2>");`
	// Sentence is the body of the content.html fixture.
	Sentence = "Pack my box with <em>five dozen</em> liquor jugs! Oh, how <strong>quickly</strong> daft jumping zebras vex..."
	// DataJSON is the body of the data.json fixture, it is served as a plain text.
	DataJSON = `{"test": 123}`
	// InvalidJSON is a script smuggled into a JSON response.
	InvalidJSON = `{});window.attacked = true;({}`
	// TestPage is the default test document.
	TestPage = `<html><head></head><body><div id="content"></div><div id="content2"></div></body></html>`
)

// Parameters of the /response endpoint. The "responseBody" and "responseStatus" keys
// set the body and the status, other keys are sent as response headers.
var (
	FixtureJS = map[string]string{
		"responseBody": HelloJS,
		"Content-Type": "           text/javascript     ",
	}
	FixtureHTML = map[string]string{
		"responseBody": Sentence,
	}
	FixtureXML = map[string]string{
		"responseBody": `<?xml version="1.0" encoding="UTF-8" ?><name attr="foo">bar</name>`,
		"Content-Type": "application/xml",
	}
	FixtureJSON = map[string]string{
		"responseBody": "{\n\r\"test\": 123}",
		"Content-Type": "application/json",
	}
	FixtureJSONWithoutContentType = map[string]string{
		"responseBody": `{"test": 123}`,
	}
	FixtureInvalidJSON = map[string]string{
		"responseBody": InvalidJSON,
		"Content-Type": "application/json",
	}
	FixtureHeaderJSON = map[string]string{
		"X-JSON": `{"test": "hello #????"}`,
	}
)

// StaticFixture is a static file served under the /fixtures/ path.
type StaticFixture struct {
	ContentType string
	Body        string
}

// StaticFixtures returns files of the /fixtures/ path.
func StaticFixtures() map[string]StaticFixture {
	return map[string]StaticFixture{
		"hello.js":     {ContentType: "text/javascript", Body: HelloJS},
		"content.html": {ContentType: "text/html; charset=utf-8", Body: Sentence},
		"empty.html":   {ContentType: "text/html; charset=utf-8", Body: ""},
		"data.json":    {ContentType: "text/plain; charset=utf-8", Body: DataJSON},
	}
}
