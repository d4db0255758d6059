package ajax

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/keboola/go-utils/pkg/orderedmap"
	"github.com/spf13/cast"
)

// Param is one key/value pair of the request parameters.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered list of request parameters, duplicate keys are allowed.
type Params []Param

// ParseParams converts supported parameter values to Params.
//
// Supported values are: string (a query string), Params, []Param, *orderedmap.OrderedMap,
// map[string]string, map[string]any, url.Values and nil.
// Keys of the maps are sorted, the ordered map keeps its order.
// Slice values are expanded to repeated keys.
func ParseParams(v any) (Params, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return ParseQuery(v), nil
	case Params:
		return append(Params(nil), v...), nil
	case []Param:
		return append(Params(nil), v...), nil
	case *orderedmap.OrderedMap:
		var out Params
		if v == nil {
			return nil, nil
		}
		for _, key := range v.Keys() {
			value, _ := v.Get(key)
			params, err := paramValues(key, value)
			if err != nil {
				return nil, err
			}
			out = append(out, params...)
		}
		return out, nil
	case url.Values:
		return ParseParams(map[string][]string(v))
	case map[string][]string:
		var out Params
		for _, key := range sortedKeys(v) {
			for _, value := range v[key] {
				out = append(out, Param{Key: key, Value: value})
			}
		}
		return out, nil
	case map[string]string:
		var out Params
		for _, key := range sortedKeys(v) {
			out = append(out, Param{Key: key, Value: v[key]})
		}
		return out, nil
	case map[string]any:
		var out Params
		for _, key := range sortedKeys(v) {
			params, err := paramValues(key, v[key])
			if err != nil {
				return nil, err
			}
			out = append(out, params...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf(`unsupported parameters type "%T"`, v)
	}
}

// ParseQuery parses the query string, invalid escape sequences are kept as they are.
func ParseQuery(query string) Params {
	query = strings.TrimPrefix(strings.TrimSpace(query), "?")
	var out Params
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		out = append(out, Param{Key: unescape(key), Value: unescape(value)})
	}
	return out
}

// Add returns the params with the pair appended.
func (p Params) Add(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// Get returns the first value of the key.
func (p Params) Get(key string) (string, bool) {
	for _, item := range p {
		if item.Key == key {
			return item.Value, true
		}
	}
	return "", false
}

// Values returns all values of the key in the original order.
func (p Params) Values(key string) []string {
	var out []string
	for _, item := range p {
		if item.Key == key {
			out = append(out, item.Value)
		}
	}
	return out
}

// Encode returns the params in the query string form, order and duplicates are preserved.
func (p Params) Encode() string {
	var b strings.Builder
	for i, item := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(item.Key))
		b.WriteByte('=')
		b.WriteString(escape(item.Value))
	}
	return b.String()
}

func (p Params) String() string {
	return p.Encode()
}

func paramValues(key string, value any) (Params, error) {
	if value == nil {
		return Params{{Key: key}}, nil
	}
	rv := reflect.ValueOf(value)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make(Params, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			str, err := cast.ToStringE(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf(`cannot cast parameter "%s": %w`, key, err)
			}
			out = append(out, Param{Key: key, Value: str})
		}
		return out, nil
	}
	str, err := cast.ToStringE(value)
	if err != nil {
		return nil, fmt.Errorf(`cannot cast parameter "%s": %w`, key, err)
	}
	return Params{{Key: key, Value: str}}, nil
}

// escape percent-encodes the value, space is encoded as %20.
func escape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

func unescape(v string) string {
	if out, err := url.QueryUnescape(v); err == nil {
		return out
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
