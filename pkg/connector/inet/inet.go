package inet

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ledgerpay/payment-sdk/internal/log"
	"github.com/ledgerpay/payment-sdk/pkg/connector"
	"github.com/ledgerpay/payment-sdk/pkg/protocol"
)

func ReadWithContext(ctx context.Context, r io.Reader, p []byte) ([]byte, error) {
	bytesRead := 0
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, err := r.Read(p[bytesRead:])
		bytesRead += n
		if err == io.EOF {
			return p[:bytesRead], nil
		}
		if err != nil {
			return p[:bytesRead], err
		}
		if bytesRead == len(p) {
			return p[:bytesRead], nil
		}
	}
}

// ErrClosed is returned by Send after Close.
var ErrClosed = protocol.NewError("connection closed", false, false)

// idempotent reports whether repeating a request with this method has no further effect.
func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// neverSent returns true if err shows the request could not have reached the server.
func neverSent(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// badCertificate returns true if err is a TLS verification failure. Repeating the request
// fails the same way.
func badCertificate(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) || errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) || errors.As(err, &invalidErr)
}

// temporary returns true for network failures. A *url.Error implements net.Error itself, so it
// is unwrapped first; what remains (such as an unsupported scheme) is not a network condition.
func temporary(err error) bool {
	if badCertificate(err) {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func classify(method string, err error) error {
	sent := !neverSent(err)
	return &protocol.TransportError{
		Err:               err,
		PossibleSuccess:   sent && !idempotent(method),
		PossibleTemporary: temporary(err),
	}
}

// redact returns rawURL without its query string, which may carry an access token.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid URL>"
	}
	u.RawQuery = ""
	return u.String()
}

// Connection implements the connector.Connector interface over HTTPS.
type Connection struct {
	client    *http.Client
	closed    chan struct{}
	closeOnce sync.Once
}

// NewConnection creates a Connection. If client is nil, a client with connector.DefaultTimeout
// is used.
func NewConnection(client *http.Client) *Connection {
	if client == nil {
		client = &http.Client{Timeout: connector.DefaultTimeout}
	}
	return &Connection{client: client, closed: make(chan struct{})}
}

func (c *Connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Send implements connector.Connector. Non-2xx responses are returned without error; the caller
// decides how to interpret them.
func (c *Connection) Send(ctx context.Context, req *connector.Request) (*connector.Response, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	request, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &protocol.TransportError{Err: err, PossibleSuccess: false, PossibleTemporary: false}
	}
	for name, values := range req.Header {
		for _, v := range values {
			request.Header.Add(name, v)
		}
	}

	log.Debug("Sending %s %s (%d bytes)", req.Method, redact(req.URL), len(req.Body))
	start := time.Now()
	result, err := c.client.Do(request)
	if err != nil {
		return nil, classify(req.Method, err)
	}
	defer result.Body.Close()

	buffer := make([]byte, connector.MaxResponseLength+1)
	buffer, err = ReadWithContext(ctx, result.Body, buffer)
	if err != nil {
		return nil, &protocol.TransportError{Err: err, PossibleSuccess: !idempotent(req.Method), PossibleTemporary: false}
	}
	if len(buffer) == connector.MaxResponseLength+1 {
		return nil, &protocol.TransportError{Err: protocol.ErrResponseTooLarge, PossibleSuccess: true, PossibleTemporary: false}
	}

	log.Debug("Server returned %d: %s (%d bytes in %s)", result.StatusCode, http.StatusText(result.StatusCode), len(buffer), time.Since(start))
	return &connector.Response{
		StatusCode: result.StatusCode,
		Header:     result.Header,
		Body:       buffer,
	}, nil
}

// Close implements connector.Connector.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.client.CloseIdleConnections()
	})
}
