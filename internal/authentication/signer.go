package authentication

import (
	"encoding/hex"
)

// SignedRequest holds the values a client attaches to an authenticated HTTP request.
type SignedRequest struct {
	// CanonicalMessage is the exact byte sequence that was signed.
	CanonicalMessage []byte
	SignatureHex     string
	PublicKeyHex     string
}

// CanonicalMessage returns the bytes that must be signed for a request to url. Body-bearing
// requests (POST, PUT) sign the URL immediately followed by the body; other requests sign the URL
// alone. Callers must transmit exactly these bytes.
func CanonicalMessage(url string, body []byte) []byte {
	message := make([]byte, 0, len(url)+len(body))
	message = append(message, url...)
	return append(message, body...)
}

// SignRequest signs canonicalMessage with key. No normalization is applied to the message.
func SignRequest(key PrivateKey, canonicalMessage []byte) (SignedRequest, error) {
	if key == nil {
		return SignedRequest{}, newError(CodeSignature, "no private key available")
	}
	signature, err := key.Sign(canonicalMessage)
	if err != nil {
		return SignedRequest{}, err
	}
	return SignedRequest{
		CanonicalMessage: canonicalMessage,
		SignatureHex:     hex.EncodeToString(signature),
		PublicKeyHex:     hex.EncodeToString(key.PublicBytes()),
	}, nil
}
