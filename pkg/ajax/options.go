package ajax

import (
	"reflect"

	"github.com/keboola/go-ajax/pkg/document"
)

const (
	DefaultMethod      = "GET"
	DefaultContentType = "application/x-www-form-urlencoded"
	DefaultEncoding    = "UTF-8"
)

// EvalMode controls automatic evaluation of the response body.
type EvalMode int

const (
	// EvalDefault - the mode is not set, it behaves as EvalEnabled.
	EvalDefault EvalMode = iota
	// EvalEnabled - the body is evaluated only if the content type matches.
	EvalEnabled
	// EvalDisabled - the body is never evaluated.
	EvalDisabled
	// EvalForce - the body is evaluated regardless of the content type.
	EvalForce
)

func (m EvalMode) String() string {
	switch m {
	case EvalDefault, EvalEnabled:
		return "enabled"
	case EvalDisabled:
		return "disabled"
	case EvalForce:
		return "force"
	default:
		return "unknown"
	}
}

func (m EvalMode) enabled() bool {
	return m != EvalDisabled
}

// Callback is called on a request lifecycle event.
// The headerJSON is the decoded X-JSON response header, nil if it is not present.
// A returned error is handled as an exception.
type Callback func(res *Response, headerJSON any) error

// ExceptionHandler handles errors raised during the request processing.
type ExceptionHandler func(req *Request, err error)

// Options of a request. Zero value of each field means "not set".
//
// Options are merged by Merge, set fields of the right side win.
type Options struct {
	Method       string
	Asynchronous *bool
	// Parameters - string, Params, []Param, *orderedmap.OrderedMap, map[string]string, map[string]any or url.Values.
	Parameters     any
	ContentType    string
	Encoding       string
	PostBody       string
	RequestHeaders map[string]string
	EvalJS         EvalMode
	EvalJSON       EvalMode
	SanitizeJSON   *bool

	// Updater only options
	Insertion   document.Position
	EvalScripts *bool

	OnCreate        Callback
	OnUninitialized Callback
	OnLoading       Callback
	OnLoaded        Callback
	OnInteractive   Callback
	OnComplete      Callback
	OnSuccess       Callback
	OnFailure       Callback
	OnStatus        map[int]Callback
	OnException     ExceptionHandler
}

// DefaultOptions returns base options of each request.
func DefaultOptions() Options {
	return Options{
		Method:       DefaultMethod,
		Asynchronous: Bool(true),
		ContentType:  DefaultContentType,
		Encoding:     DefaultEncoding,
		EvalJS:       EvalEnabled,
		EvalJSON:     EvalEnabled,
		SanitizeJSON: Bool(false),
		EvalScripts:  Bool(false),
	}
}

// Merge returns a copy of the options with set fields of the other options applied.
// Maps are replaced, not merged. Pointers and maps are copied, neither of the values is modified.
func (o Options) Merge(other Options) Options {
	var out Options
	dst := reflect.ValueOf(&out).Elem()
	for _, src := range []reflect.Value{reflect.ValueOf(o), reflect.ValueOf(other)} {
		for i := 0; i < src.NumField(); i++ {
			if field := src.Field(i); !field.IsZero() {
				dst.Field(i).Set(cloneValue(field))
			}
		}
	}
	return out
}

// cloneValue copies pointers and maps, so the merged options don't share them with the source.
func cloneValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Ptr:
		clone := reflect.New(v.Type().Elem())
		clone.Elem().Set(v.Elem())
		return clone
	case reflect.Map:
		clone := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), iter.Value())
		}
		return clone
	default:
		return v
	}
}

// Bool returns a pointer to the value.
func Bool(v bool) *bool {
	return &v
}

func boolValue(v *bool, defaultValue bool) bool {
	if v == nil {
		return defaultValue
	}
	return *v
}

// callback returns the per-request callback of the lifecycle event.
func (o *Options) callback(event Event) Callback {
	switch event {
	case EventCreate:
		return o.OnCreate
	case EventUninitialized:
		return o.OnUninitialized
	case EventLoading:
		return o.OnLoading
	case EventLoaded:
		return o.OnLoaded
	case EventInteractive:
		return o.OnInteractive
	case EventComplete:
		return o.OnComplete
	default:
		return nil
	}
}
