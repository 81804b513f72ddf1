package connector

import (
	"context"
	"net/http"
	"time"
)

// MaxResponseLength caps the maximum byte-length of responses that connectors must support.
const MaxResponseLength = 1 << 20

// DefaultTimeout bounds a single round-trip when the caller's context has no deadline.
const DefaultTimeout = 60 * time.Second

// Request is a fully-formed HTTP request. Body and URL are sent exactly as given, since the
// signature covers their bytes.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a raw HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Connector delivers requests to the payment API.
type Connector interface {
	// Send transmits req and returns the server's response regardless of its status code.
	//
	// Depending on the error, the server may have received and even acted on the request. For
	// some errors, such as network timeouts, the client will not be able to determine if this is
	// the case. If the returned error implements the protocol.Error interface, then the client may
	// be able to determine if the request was received by using the appropriate methods.
	//
	// Implementations must be thread safe.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Close releases idle connections.
	//
	// Repeated calls to Close() must be idempotent.
	Close()
}
