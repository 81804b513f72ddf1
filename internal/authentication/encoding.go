package authentication

import (
	encoding_asn1 "encoding/asn1"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Keys are persisted as an RFC 5915 ECPrivateKey structure:
//
//	ECPrivateKey ::= SEQUENCE {
//	  version        INTEGER { ecPrivkeyVer1(1) },
//	  privateKey     OCTET STRING,
//	  parameters [0] ECParameters {{ NamedCurve }},
//	  publicKey  [1] BIT STRING OPTIONAL
//	}
//
// The curve identifier is mandatory here even though RFC 5915 makes it optional.

const ecPrivateKeyVersion = 1

var (
	oidSecp256k1   = encoding_asn1.ObjectIdentifier{1, 3, 132, 0, 10}
	tagParameters  = asn1.Tag(0).Constructed().ContextSpecific()
	tagPublicPoint = asn1.Tag(1).Constructed().ContextSpecific()
)

// MarshalBinary encodes n as DER. The embedded public point uses n's current compression setting.
func (n *NativeKey) MarshalBinary() ([]byte, error) {
	if !n.usable() {
		return nil, newError(CodeKeyFormat, "private key has been erased")
	}
	scalar := n.private.Serialize()
	defer clear(scalar)

	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(ecPrivateKeyVersion)
		b.AddASN1OctetString(scalar)
		b.AddASN1(tagParameters, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidSecp256k1)
		})
		b.AddASN1(tagPublicPoint, func(b *cryptobyte.Builder) {
			b.AddASN1BitString(n.PublicBytes())
		})
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, wrapError(CodeKeyFormat, "failed to encode private key", err)
	}
	return der, nil
}

// UnmarshalPrivateKey parses a DER-encoded ECPrivateKey. If the structure omits the public point,
// it is recomputed from the scalar; if present, it must match the scalar and its encoding
// determines the key's compression setting.
func UnmarshalPrivateKey(der []byte) (*NativeKey, error) {
	var (
		input      = cryptobyte.String(der)
		body       cryptobyte.String
		version    int64
		scalar     []byte
		params     cryptobyte.String
		hasParams  bool
		curve      encoding_asn1.ObjectIdentifier
		publicPart cryptobyte.String
		hasPublic  bool
	)
	if !input.ReadASN1(&body, asn1.SEQUENCE) || !input.Empty() {
		return nil, newError(CodeKeyFormat, "expected a single ECPrivateKey sequence")
	}
	if !body.ReadASN1Integer(&version) {
		return nil, newError(CodeKeyFormat, "missing version field")
	}
	if version != ecPrivateKeyVersion {
		return nil, newError(CodeKeyFormat, fmt.Sprintf("unsupported version %d", version))
	}
	if !body.ReadASN1Bytes(&scalar, asn1.OCTET_STRING) {
		return nil, newError(CodeKeyFormat, "missing private scalar")
	}
	if !body.ReadOptionalASN1(&params, &hasParams, tagParameters) {
		return nil, newError(CodeKeyFormat, "malformed curve parameters")
	}
	if !hasParams {
		return nil, newError(CodeKeyFormat, "missing curve identifier")
	}
	if !params.ReadASN1ObjectIdentifier(&curve) || !params.Empty() {
		return nil, newError(CodeKeyFormat, "curve parameters must be a named curve")
	}
	if !curve.Equal(oidSecp256k1) {
		return nil, newError(CodeKeyFormat, fmt.Sprintf("unsupported curve %s", curve))
	}
	if !body.ReadOptionalASN1(&publicPart, &hasPublic, tagPublicPoint) {
		return nil, newError(CodeKeyFormat, "malformed public point")
	}
	if !body.Empty() {
		return nil, newError(CodeKeyFormat, "unexpected trailing fields")
	}

	key, err := UnmarshalScalar(scalar)
	if err != nil {
		return nil, err
	}
	if !hasPublic {
		return key, nil
	}

	var point encoding_asn1.BitString
	if !publicPart.ReadASN1BitString(&point) || !publicPart.Empty() {
		return nil, newError(CodeKeyFormat, "public point must be a bit string")
	}
	public, err := secp256k1.ParsePubKey(point.Bytes)
	if err != nil {
		return nil, wrapError(CodeKeyFormat, "invalid public point", err)
	}
	if !public.IsEqual(key.public) {
		return nil, newError(CodeKeyFormat, "public point does not match private scalar")
	}
	key.SetCompressed(len(point.Bytes) == secp256k1.PubKeyBytesLenCompressed)
	return key, nil
}
