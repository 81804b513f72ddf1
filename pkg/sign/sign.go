// Package sign creates JWS attestations signed with a client identity key.
//
// An attestation lets a third party confirm that a message came from the holder of a particular
// identity without contacting the API. The issuer ("iss") claim is the SIN of the signing key and
// the "pub" claim carries the public key, so the token is self-verifying: [Verify] checks both
// the signature and that the SIN matches the embedded key.
package sign

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ledgerpay/payment-sdk/internal/authentication"
	"github.com/ledgerpay/payment-sdk/pkg/protocol"
)

const publicKeyClaim = "pub"

var (
	ErrMissingPublicKey = errors.New("token does not carry a public key")
	ErrIssuerMismatch   = errors.New("issuer does not match public key")
)

// now is replaced in tests.
var now = time.Now

// Message returns a JWS with the provided claims, signed by privateKey.
//
// The function overwrites the issuer ("iss"), "pub" and issued-at ("iat") claims, and the audience
// ("aud") claim when audience is non-empty. The caller's map is not modified.
func Message(privateKey protocol.PrivateKey, audience string, claims jwt.MapClaims) (string, error) {
	if privateKey == nil {
		return "", protocol.ErrNoIdentity
	}
	out := make(jwt.MapClaims, len(claims)+4)
	for k, v := range claims {
		out[k] = v
	}
	out["iss"] = privateKey.Identity()
	out[publicKeyClaim] = protocol.PublicKeyHex(privateKey)
	out["iat"] = jwt.NewNumericDate(now())
	if audience != "" {
		out["aud"] = audience
	}
	return jwt.NewWithClaims(authentication.ES256K(), out).SignedString(privateKey)
}

// Verify checks a token created by Message and returns its claims. If audience is non-empty, the
// token must be addressed to it.
func Verify(token, audience string) (jwt.MapClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{authentication.AlgES256K}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(now),
	}
	if audience != "" {
		options = append(options, jwt.WithAudience(audience))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		publicHex, ok := claims[publicKeyClaim].(string)
		if !ok {
			return nil, ErrMissingPublicKey
		}
		publicBytes, err := hex.DecodeString(publicHex)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingPublicKey, err)
		}
		identity, err := authentication.IdentityFromPublicBytes(publicBytes)
		if err != nil {
			return nil, err
		}
		if issuer, err := claims.GetIssuer(); err != nil || issuer != identity {
			return nil, ErrIssuerMismatch
		}
		return publicBytes, nil
	}, options...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
