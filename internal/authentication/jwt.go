package authentication

// Signs and verifies JWS attestations using the client's identity key.

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/golang-jwt/jwt/v5"
)

// AlgES256K is the RFC 8812 algorithm name for ECDSA over secp256k1 with SHA-256.
const AlgES256K = "ES256K"

const scalarLength = 32

// SigningMethodES256K implements jwt.SigningMethod. Signatures are the fixed-width R || S
// concatenation required by JWS, not DER.
type SigningMethodES256K struct{}

var es256k SigningMethodES256K // Singleton used for RegisterSigningMethod

func init() {
	jwt.RegisterSigningMethod(AlgES256K, func() jwt.SigningMethod { return &es256k })
}

// ES256K returns the registered signing method.
func ES256K() jwt.SigningMethod {
	return &es256k
}

// Verify expects key to be an encoded public key ([]byte).
func (s *SigningMethodES256K) Verify(signingString string, signature []byte, key interface{}) error {
	publicBytes, ok := key.([]byte)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	public, err := secp256k1.ParsePubKey(publicBytes)
	if err != nil {
		return jwt.ErrInvalidKey
	}
	if len(signature) != 2*scalarLength {
		return jwt.ErrSignatureInvalid
	}
	var r, sc secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[:scalarLength]); overflow {
		return jwt.ErrSignatureInvalid
	}
	if overflow := sc.SetByteSlice(signature[scalarLength:]); overflow {
		return jwt.ErrSignatureInvalid
	}
	digest := sha256.Sum256([]byte(signingString))
	if !ecdsa.NewSignature(&r, &sc).Verify(digest[:], public) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}

// Sign expects key to be a PrivateKey.
func (s *SigningMethodES256K) Sign(signingString string, key interface{}) ([]byte, error) {
	skey, ok := key.(PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	der, err := skey.Sign([]byte(signingString))
	if err != nil {
		return nil, err
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return nil, wrapError(CodeSignature, "unexpected signature encoding", err)
	}
	r, sc := sig.R(), sig.S()
	out := make([]byte, 2*scalarLength)
	r.PutBytesUnchecked(out[:scalarLength])
	sc.PutBytesUnchecked(out[scalarLength:])
	return out, nil
}

func (s *SigningMethodES256K) Alg() string {
	return AlgES256K
}
