package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Limits of connections opened by the round trippers of this package.
type Limits struct {
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	// PingTimeout is used by the HTTP2Transport for idle connection health checks.
	PingTimeout     time.Duration
	MaxConnsPerHost int
}

// DefaultLimits are used by the DefaultTransport and the HTTP2Transport.
func DefaultLimits() Limits {
	return Limits{
		DialTimeout:           3 * time.Second,
		KeepAlive:             15 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		PingTimeout:           5 * time.Second,
		MaxConnsPerHost:       16,
	}
}

func (l Limits) dialer() *net.Dialer {
	return &net.Dialer{Timeout: l.DialTimeout, KeepAlive: l.KeepAlive}
}

// DefaultTransport returns the round tripper of New clients, HTTP2 is attempted.
func DefaultTransport() http.RoundTripper {
	return DefaultLimits().Transport()
}

// HTTP2Transport returns a round tripper speaking only HTTP2 over TLS.
func HTTP2Transport() http.RoundTripper {
	return DefaultLimits().HTTP2Transport()
}

// Transport returns a http.Transport with the limits applied.
// Compression is disabled, Content-Encoding is negotiated and decoded by the Transport of this package.
func (l Limits) Transport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           l.dialer().DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   l.TLSHandshakeTimeout,
		ResponseHeaderTimeout: l.ResponseHeaderTimeout,
		IdleConnTimeout:       l.IdleConnTimeout,
		MaxConnsPerHost:       l.MaxConnsPerHost,
		MaxIdleConnsPerHost:   l.MaxConnsPerHost,
		DisableCompression:    true,
	}
}

// HTTP2Transport returns a http2.Transport with the limits applied.
func (l Limits) HTTP2Transport() *http2.Transport {
	dialer := l.dialer()
	return &http2.Transport{
		DialTLS: func(network, addr string, cfg *tls.Config) (net.Conn, error) {
			return tls.DialWithDialer(dialer, network, addr, cfg)
		},
		DisableCompression: true,
		ReadIdleTimeout:    l.PingTimeout,
		PingTimeout:        l.PingTimeout,
		WriteByteTimeout:   l.PingTimeout,
	}
}
