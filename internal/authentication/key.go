package authentication

import (
	"crypto/rand"
	"crypto/sha256"
	"io"
	"sync"
	"sync/atomic"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PrivateKey is a secp256k1 key used to identify and authenticate a client to the payment API.
type PrivateKey interface {
	// Sign returns a DER-encoded ECDSA signature over SHA256(message).
	Sign(message []byte) ([]byte, error)
	// Verify checks a DER-encoded signature produced by Sign.
	Verify(message, signature []byte) bool
	// PublicBytes returns the SEC1 encoding of the public key, compressed unless
	// SetCompressed(false) was called.
	PublicBytes() []byte
	// Identity returns the client identity (SIN) derived from the public key.
	Identity() string
	SetCompressed(compressed bool)
	Compressed() bool
}

// Context carries the dependencies of key generation. The zero value uses crypto/rand.
type Context struct {
	Rand io.Reader
}

// DefaultContext returns a Context backed by the operating system's CSPRNG.
func DefaultContext() Context {
	return Context{Rand: rand.Reader}
}

// Generate creates a new private key using c.Rand as the entropy source.
func (c Context) Generate() (*NativeKey, error) {
	rng := c.Rand
	if rng == nil {
		rng = rand.Reader
	}
	skey, err := secp256k1.GeneratePrivateKeyFromRand(rng)
	if err != nil {
		return nil, wrapError(CodeEntropy, "failed to generate private key", err)
	}
	return newNativeKey(skey), nil
}

// NewPrivateKey is shorthand for Context{Rand: rng}.Generate().
func NewPrivateKey(rng io.Reader) (*NativeKey, error) {
	return Context{Rand: rng}.Generate()
}

// NativeKey implements PrivateKey in memory.
//
// A NativeKey is safe for concurrent use. The public key is derived once from the private scalar
// and never changes independently of it.
type NativeKey struct {
	private      *secp256k1.PrivateKey
	public       *secp256k1.PublicKey
	uncompressed atomic.Bool

	identityOnce sync.Once
	identity     string
}

func newNativeKey(skey *secp256k1.PrivateKey) *NativeKey {
	return &NativeKey{
		private: skey,
		public:  skey.PubKey(),
	}
}

// UnmarshalScalar creates a key from a raw 32-byte big-endian private scalar.
func UnmarshalScalar(scalar []byte) (*NativeKey, error) {
	if len(scalar) != secp256k1.PrivKeyBytesLen {
		return nil, newError(CodeKeyFormat, "private scalar must be 32 bytes")
	}
	var buf [secp256k1.PrivKeyBytesLen]byte
	copy(buf[:], scalar)
	defer clear(buf[:])

	var d secp256k1.ModNScalar
	if overflow := d.SetBytes(&buf); overflow != 0 || d.IsZero() {
		return nil, newError(CodeKeyFormat, "private scalar out of range")
	}
	return newNativeKey(secp256k1.NewPrivateKey(&d)), nil
}

func (n *NativeKey) usable() bool {
	return n.private != nil && !n.private.Key.IsZero()
}

func (n *NativeKey) Sign(message []byte) ([]byte, error) {
	if !n.usable() {
		return nil, newError(CodeSignature, "private key has been erased")
	}
	digest := sha256.Sum256(message)
	return ecdsa.Sign(n.private, digest[:]).Serialize(), nil
}

func (n *NativeKey) Verify(message, signature []byte) bool {
	return verify(n.public, message, signature)
}

func (n *NativeKey) PublicBytes() []byte {
	if n.uncompressed.Load() {
		return n.public.SerializeUncompressed()
	}
	return n.public.SerializeCompressed()
}

func (n *NativeKey) SetCompressed(compressed bool) {
	n.uncompressed.Store(!compressed)
}

func (n *NativeKey) Compressed() bool {
	return !n.uncompressed.Load()
}

// Identity derives the SIN from the compressed public key. The result does not depend on the
// compression flag and is computed at most once per key.
func (n *NativeKey) Identity() string {
	n.identityOnce.Do(func() {
		n.identity = DeriveIdentity(n.public.SerializeCompressed())
	})
	return n.identity
}

// Zero erases the private scalar. Subsequent calls to Sign fail with ErrSignature.
func (n *NativeKey) Zero() {
	if n.private != nil {
		n.private.Zero()
	}
}

// VerifySignature checks a DER-encoded signature over SHA256(message) against an encoded public
// key (compressed or uncompressed).
func VerifySignature(publicBytes, message, signature []byte) bool {
	public, err := secp256k1.ParsePubKey(publicBytes)
	if err != nil {
		return false
	}
	return verify(public, message, signature)
}

func verify(public *secp256k1.PublicKey, message, signature []byte) bool {
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(message)
	return sig.Verify(digest[:], public)
}
