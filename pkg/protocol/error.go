package protocol

import (
	"errors"
	"fmt"

	"github.com/ledgerpay/payment-sdk/internal/authentication"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// MayHaveSucceeded returns true if the Error was triggered by a request that might have been
	// applied by the server. For example, if a client times out while waiting for the response to
	// a POST, then the client cannot tell if the request was received. (Not all timeouts mean the
	// request MayHaveSucceeded, so the common Timeout() error interface is not appropriate here).
	MayHaveSucceeded() bool

	// Temporary returns true if the Error might be the result of a transient condition, such as
	// a dropped connection or a 503 from a load balancer.
	Temporary() bool
}

var (
	// ErrKeyFormat indicates persisted key material is malformed, uses the wrong version tag, or
	// names a curve other than secp256k1.
	ErrKeyFormat = authentication.ErrKeyFormat
	// ErrEntropy indicates the secure random source failed while generating a key.
	ErrEntropy = authentication.ErrEntropy
	// ErrSignature indicates the key could not produce a signature. This does not occur for a
	// key in a valid state.
	ErrSignature = authentication.ErrSignature
	// ErrInvalidPublicKey indicates an encoded public key is not a point on secp256k1.
	ErrInvalidPublicKey = authentication.ErrInvalidPublicKey
	// ErrNoIdentity indicates a request needs a signature but the client has no private key.
	ErrNoIdentity = errors.New("no private key available")
	// ErrResponseTooLarge indicates the server sent more data than the client will buffer.
	ErrResponseTooLarge = errors.New("response exceeded maximum length")
)

// Kind is a stable, machine-readable classification of errors returned by this module.
type Kind string

const (
	KindNone                Kind = ""
	KindKeyFormat           Kind = "KeyFormat"
	KindEntropy             Kind = "Entropy"
	KindSignature           Kind = "Signature"
	KindInvalidPublicKey    Kind = "InvalidPublicKey"
	KindTokenNotFound       Kind = "TokenNotFound"
	KindClientAuthorization Kind = "ClientAuthorization"
	KindRemoteProtocol      Kind = "RemoteProtocol"
	KindRemote              Kind = "Remote"
	KindTransport           Kind = "Transport"
	KindUnknown             Kind = "Unknown"
)

// KindOf returns the Kind of the outermost recognized error in err's chain. A
// ClientAuthorizationError is reported as such even though it wraps a more specific cause.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		authzErr    *ClientAuthorizationError
		notFoundErr *TokenNotFoundError
		remoteErr   *RemoteProtocolError
		failure     *Failure
		transport   *TransportError
	)
	switch {
	case errors.As(err, &authzErr):
		return KindClientAuthorization
	case errors.As(err, &notFoundErr):
		return KindTokenNotFound
	case errors.Is(err, ErrKeyFormat):
		return KindKeyFormat
	case errors.Is(err, ErrEntropy):
		return KindEntropy
	case errors.Is(err, ErrSignature):
		return KindSignature
	case errors.Is(err, ErrInvalidPublicKey):
		return KindInvalidPublicKey
	case errors.As(err, &remoteErr):
		return KindRemoteProtocol
	case errors.As(err, &failure):
		return KindRemote
	case errors.As(err, &transport):
		return KindTransport
	}
	return KindUnknown
}

// TokenNotFoundError is returned when no access token has been stored for a facade. Callers
// routinely check for this to decide whether a facade still needs to be authorized.
type TokenNotFoundError struct {
	Facade string
}

func (e *TokenNotFoundError) Error() string {
	return fmt.Sprintf("no access token stored for facade %q", e.Facade)
}

// IsTokenNotFound returns true if err indicates a missing facade token.
func IsTokenNotFound(err error) bool {
	var notFound *TokenNotFoundError
	return errors.As(err, &notFound)
}

// ClientAuthorizationError wraps any failure that occurs while exchanging a pairing code or
// requesting one. Code holds the remote service's machine-readable code, if it supplied one.
type ClientAuthorizationError struct {
	Code string
	Err  error
}

func (e *ClientAuthorizationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("client authorization failed (%s): %s", e.Code, e.Err)
	}
	return fmt.Sprintf("client authorization failed: %s", e.Err)
}

func (e *ClientAuthorizationError) Unwrap() error {
	return e.Err
}

// RemoteProtocolError indicates a response could not be parsed into the expected shape.
type RemoteProtocolError struct {
	Reason string
	Err    error
}

func (e *RemoteProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected response from server: %s: %s", e.Reason, e.Err)
	}
	return "unexpected response from server: " + e.Reason
}

func (e *RemoteProtocolError) Unwrap() error {
	return e.Err
}

func (e *RemoteProtocolError) MayHaveSucceeded() bool {
	return true
}

func (e *RemoteProtocolError) Temporary() bool {
	return false
}

// TransportError is returned when a request could not be delivered or its response could not be
// read.
type TransportError struct {
	Err               error
	PossibleSuccess   bool
	PossibleTemporary bool
}

// NewError creates a TransportError with the given classification.
func NewError(message string, mayHaveSucceeded bool, temporary bool) error {
	return &TransportError{Err: errors.New(message), PossibleSuccess: mayHaveSucceeded, PossibleTemporary: temporary}
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) MayHaveSucceeded() bool {
	return e.PossibleSuccess
}

func (e *TransportError) Temporary() bool {
	return e.PossibleTemporary
}

// MayHaveSucceeded returns true if err indicates the request may have been applied but the client
// did not receive confirmation from the server.
func MayHaveSucceeded(err error) bool {
	var e Error
	if errors.As(err, &e) && e.MayHaveSucceeded() {
		return true
	}
	return false
}

// Temporary returns true if err indicates the request failed due to possibly transient conditions
// that do not require user action to resolve.
func Temporary(err error) bool {
	var e Error
	if errors.As(err, &e) && e.Temporary() {
		return true
	}
	return false
}

// ShouldRetry returns true if the client could safely reissue the request that triggered err.
// The client never retries on its own.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var e Error
	if errors.As(err, &e) {
		if e.MayHaveSucceeded() {
			return false
		}
		if e.Temporary() {
			return true
		}
	}
	return false
}
