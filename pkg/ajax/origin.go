package ajax

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseOrigin parses an origin, for example "https://example.com:8080". Path, query and fragment are ignored.
func ParseOrigin(v string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf(`invalid origin "%s": %w`, v, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf(`invalid origin "%s": scheme and host are required`, v)
	}
	return &url.URL{Scheme: strings.ToLower(u.Scheme), Host: strings.ToLower(u.Host)}, nil
}

// isSameOrigin reports whether the target is same-origin with the origin.
// A target without a scheme is always same-origin.
func isSameOrigin(origin *url.URL, target string) bool {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return false
	}
	if u.Scheme == "" {
		return true
	}
	if origin == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, origin.Scheme) &&
		strings.EqualFold(u.Hostname(), origin.Hostname()) &&
		effectivePort(u) == effectivePort(origin)
}

// resolveURL returns an absolute URL of the target, relative targets are resolved against the origin.
func resolveURL(origin *url.URL, target string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return "", fmt.Errorf(`invalid URL "%s": %w`, target, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if origin == nil {
		return "", fmt.Errorf(`cannot resolve relative URL "%s": origin is not set`, target)
	}
	return origin.ResolveReference(u).String(), nil
}

func effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}
