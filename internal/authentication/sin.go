package authentication

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // RIPEMD-160 is fixed by the identity format.
)

const (
	sinVersion       = 0x0F
	sinTypeEphemeral = 0x02
	checksumLength   = 4
)

// DeriveIdentity returns the SIN for an encoded public key:
//
//	base58(0x0F || 0x02 || RIPEMD160(SHA256(pub)) || checksum)
//
// where checksum is the first four bytes of SHA256(SHA256(prefix || hash)).
func DeriveIdentity(publicKeyBytes []byte) string {
	digest := sha256.Sum256(publicKeyBytes)
	h := ripemd160.New()
	h.Write(digest[:])

	payload := make([]byte, 0, 2+ripemd160.Size+checksumLength)
	payload = append(payload, sinVersion, sinTypeEphemeral)
	payload = h.Sum(payload)

	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	payload = append(payload, second[:checksumLength]...)
	return Base58Encode(payload)
}

// Base58Encode encodes b with the Bitcoin alphabet. Each leading zero byte becomes a leading '1'.
func Base58Encode(b []byte) string {
	return base58.Encode(b)
}

// IdentityFromPublicBytes derives the SIN for an encoded public key in either SEC1 form. The key
// is normalized to its compressed encoding first, matching NativeKey.Identity.
func IdentityFromPublicBytes(publicKeyBytes []byte) (string, error) {
	public, err := secp256k1.ParsePubKey(publicKeyBytes)
	if err != nil {
		return "", wrapError(CodeInvalidPublicKey, "", err)
	}
	return DeriveIdentity(public.SerializeCompressed()), nil
}
