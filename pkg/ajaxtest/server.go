package ajaxtest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// InspectResult is the body of the /inspect endpoint response.
type InspectResult struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// NewRouter creates a router of the fixture server:
//   - GET /fixtures/{name} serves StaticFixtures.
//   - /response writes a response configured by the request parameters.
//   - /inspect writes the received request as a JSON.
func NewRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/fixtures/{name}", handleFixture)
	r.HandleFunc("/response", handleResponse)
	r.HandleFunc("/inspect", handleInspect)
	return r
}

// NewServer starts the fixture server, it must be closed by the caller.
func NewServer() *httptest.Server {
	return httptest.NewServer(NewRouter())
}

func handleFixture(w http.ResponseWriter, r *http.Request) {
	fixture, found := StaticFixtures()[chi.URLParam(r, "name")]
	if !found {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", fixture.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, fixture.Body)
}

func handleResponse(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	var body string
	for key, values := range params {
		value := values[len(values)-1]
		switch key {
		case "responseBody":
			body = value
		case "responseStatus":
			if v, err := strconv.Atoi(value); err == nil {
				status = v
			}
		case "_method", "_":
			// ignored
		default:
			w.Header().Set(key, value)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func handleInspect(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result := InspectResult{
		Method:  r.Method,
		URL:     r.URL.String(),
		Headers: make(map[string]string),
		Body:    string(body),
	}
	for key, values := range r.Header {
		result.Headers[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

// requestParams merges query and form parameters.
func requestParams(r *http.Request) (url.Values, error) {
	params := r.URL.Query()
	if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, err
		}
		for key, values := range form {
			params[key] = append(params[key], values...)
		}
	}
	return params, nil
}
