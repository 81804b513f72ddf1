package protocol

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/ledgerpay/payment-sdk/internal/authentication"
	"github.com/ledgerpay/payment-sdk/internal/log"
)

// Expose some interfaces from the otherwise internal package

// PrivateKey is a secp256k1 client identity key.
type PrivateKey authentication.PrivateKey

const pemBlockType = "EC PRIVATE KEY"

// GenerateKey creates a fresh private key from the operating system's CSPRNG.
func GenerateKey() (PrivateKey, error) {
	skey, err := authentication.NewPrivateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return skey, nil
}

// ParsePrivateKey decodes a private key produced by MarshalPrivateKey. Both the PEM form and the
// bare DER form are accepted.
func ParsePrivateKey(data []byte) (PrivateKey, error) {
	der := data
	if trimmed := bytes.TrimSpace(data); bytes.HasPrefix(trimmed, []byte("-----BEGIN")) {
		block, _ := pem.Decode(trimmed)
		if block == nil {
			return nil, fmt.Errorf("%w: expected PEM encoding", ErrKeyFormat)
		}
		if block.Type != pemBlockType {
			return nil, fmt.Errorf("%w: unexpected PEM block type %s", ErrKeyFormat, block.Type)
		}
		der = block.Bytes
	}
	skey, err := authentication.UnmarshalPrivateKey(der)
	if err != nil {
		// Avoid wrapping a nil *NativeKey in a non-nil PrivateKey.
		return nil, err
	}
	return skey, nil
}

// MarshalPrivateKey returns the PEM encoding of skey. Only keys created by this package (or
// loaded through it) are exportable.
func MarshalPrivateKey(skey PrivateKey) ([]byte, error) {
	nativeKey, ok := skey.(*authentication.NativeKey)
	if !ok {
		return nil, fmt.Errorf("key is not exportable")
	}
	der, err := nativeKey.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemBlockType, Bytes: der}), nil
}

// LoadPrivateKey loads a secp256k1 private key from a file.
func LoadPrivateKey(filename string) (PrivateKey, error) {
	return LoadKey(FileKeyStore(filename))
}

// SavePrivateKey writes skey to filename in PEM format with owner-only permissions.
func SavePrivateKey(skey PrivateKey, filename string) error {
	return SaveKey(skey, FileKeyStore(filename))
}

// LoadKey reads and parses the key held by store.
func LoadKey(store KeyStore) (PrivateKey, error) {
	data, err := store.ReadAll()
	if err != nil {
		return nil, err
	}
	return ParsePrivateKey(data)
}

// SaveKey writes skey to store, replacing any previous contents.
func SaveKey(skey PrivateKey, store KeyStore) error {
	encoded, err := MarshalPrivateKey(skey)
	if err != nil {
		return err
	}
	return store.WriteAll(encoded)
}

// GenerateOrLoadKey returns the key held by store, generating and persisting a new one if the
// store is empty. An existing but malformed key is reported as an error rather than replaced.
func GenerateOrLoadKey(store KeyStore) (PrivateKey, error) {
	exists, err := store.Exists()
	if err != nil {
		return nil, err
	}
	if exists {
		log.Debug("Loading private key from %s", store)
		return LoadKey(store)
	}
	log.Debug("No private key at %s; generating a new one", store)
	skey, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := SaveKey(skey, store); err != nil {
		return nil, err
	}
	return skey, nil
}

// PublicKeyHex returns the hex encoding used in the X-Identity request header.
func PublicKeyHex(skey PrivateKey) string {
	return hex.EncodeToString(skey.PublicBytes())
}

// IdentityFromPublicHex derives the client identity (SIN) from a hex-encoded public key, as
// received in a request header. Compressed and uncompressed encodings yield the same identity.
func IdentityFromPublicHex(h string) (string, error) {
	publicBytes, err := hex.DecodeString(h)
	if err != nil {
		return "", err
	}
	return authentication.IdentityFromPublicBytes(publicBytes)
}
