// Package transport builds the outbound HTTP clients used for the storefront API.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// NewHTTPClient returns a client with the given timeout. When chromeTLS is set
// the client presents a Chrome TLS fingerprint, which some CDNs in front of the
// storefront API require before they stop throttling server-side callers.
func NewHTTPClient(timeout time.Duration, chromeTLS bool) *http.Client {
	if !chromeTLS {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{Timeout: timeout, Transport: NewChromeTransport(timeout)}
}

// NewChromeTransport creates an http.RoundTripper that negotiates h2 or
// http/1.1 over a uTLS connection using HelloChrome_Auto.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr, true)
		},
	}

	h1Transport := &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr, false)
		},
		ForceAttemptHTTP2: false,
	}

	return &chromeTransport{h2: h2Transport, h1: h1Transport}
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 first and falls back to HTTP/1.1, which also covers
// plain http URLs. A failed h2 attempt is replayed over h1 only when the
// request never left the client or the method is safe to repeat.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "https" {
		resp, err := t.h2.RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		if !replayable(req, err) {
			return nil, err
		}
		if req.Body != nil && req.Body != http.NoBody {
			if req.GetBody == nil {
				return nil, err
			}
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, fmt.Errorf("rewind body after h2 failure: %w", bodyErr)
			}
			req = req.Clone(req.Context())
			req.Body = body
		}
	}
	return t.h1.RoundTrip(req)
}

// connectError marks failures that happened before any request bytes were sent.
type connectError struct {
	err error
}

func (e *connectError) Error() string { return e.err.Error() }
func (e *connectError) Unwrap() error { return e.err }

var errNoH2 = errors.New("server did not negotiate h2")

func replayable(req *http.Request, err error) bool {
	var connErr *connectError
	if errors.As(err, &connErr) {
		return true
	}
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string, requireH2 bool) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, &connectError{err: fmt.Errorf("dial: %w", err)}
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, &connectError{err: fmt.Errorf("tls handshake: %w", err)}
	}
	if requireH2 && tlsConn.ConnectionState().NegotiatedProtocol != http2.NextProtoTLS {
		tlsConn.Close()
		return nil, &connectError{err: errNoH2}
	}

	return tlsConn, nil
}
