package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ledgerpay/payment-sdk/pkg/tokens"

	"github.com/99designs/keyring"
	"golang.org/x/term"
)

const (
	keyringServiceName  = "com.ledgerpay.sdk"
	keyringKeyService   = "identityKey"
	keyringTokenService = "accessTokens"
	keyringDirectory    = "~/.ledgerpay_keys"
)

type backendType struct {
	config *Config
}

func (b backendType) String() string {
	if b.config == nil || len(b.config.Backend.AllowedBackends) == 0 {
		return string(keyring.InvalidBackend)
	}
	return string(b.config.Backend.AllowedBackends[0])
}

func (b backendType) Set(v string) error {
	value := keyring.BackendType(v)
	if b.config == nil {
		return fmt.Errorf("invalid backendType")
	}
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == value {
			b.config.Backend.AllowedBackends = []keyring.BackendType{name}
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage")
}

func (c *Config) getPassword(prompt string) (string, error) {
	if c.password != nil && *c.password != "" {
		return *c.password, nil
	}

	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal output available for password prompt")
		} else {
			w = os.Stderr
		}
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	password := string(b)
	c.password = &password
	return password, nil
}

func (c *Config) openKeyring() (keyring.Keyring, error) {
	keyring.Debug = c.Debug
	return keyring.Open(c.Backend)
}

func (c *Config) fullKeyName() string {
	return keyringKeyService + "." + c.KeyringKeyName
}

func (c *Config) fullTokenName() string {
	return keyringTokenService + "." + c.KeyringTokenName
}

// keyringStore implements protocol.KeyStore using an entry in the system keyring.
type keyringStore struct {
	config *Config
	key    string
}

func (k *keyringStore) Exists() (bool, error) {
	kr, err := k.config.openKeyring()
	if err != nil {
		return false, err
	}
	if _, err := kr.Get(k.key); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (k *keyringStore) ReadAll() ([]byte, error) {
	kr, err := k.config.openKeyring()
	if err != nil {
		return nil, err
	}
	item, err := kr.Get(k.key)
	if err != nil {
		return nil, fmt.Errorf("could not load key: %w", err)
	}
	return item.Data, nil
}

func (k *keyringStore) WriteAll(data []byte) error {
	kr, err := k.config.openKeyring()
	if err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{Key: k.key, Data: data}); err != nil {
		return fmt.Errorf("failed to enroll key in keyring: %w", err)
	}
	return nil
}

func (k *keyringStore) Remove() error {
	kr, err := k.config.openKeyring()
	if err != nil {
		return err
	}
	return kr.Remove(k.key)
}

func (k *keyringStore) String() string {
	return "keyring:" + k.key
}

// LoadTokensFromKeyring loads access tokens from the system keyring. A missing entry yields an
// empty store.
func (c *Config) LoadTokensFromKeyring() (*tokens.Store, error) {
	kr, err := c.openKeyring()
	if err != nil {
		return nil, err
	}
	item, err := kr.Get(c.fullTokenName())
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return tokens.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not load tokens: %w", err)
	}
	return tokens.Import(bytes.NewReader(item.Data))
}

// SaveTokensToKeyring writes store to the system keyring.
//
// The name identifies the tokens for future use with LoadTokensFromKeyring and does not
// necessarily need to match the system username.
func (c *Config) SaveTokensToKeyring(store *tokens.Store) error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	var buffer bytes.Buffer
	if err := store.Export(&buffer); err != nil {
		return err
	}
	if err := kr.Set(keyring.Item{
		Key:  c.fullTokenName(),
		Data: buffer.Bytes(),
	}); err != nil {
		return fmt.Errorf("failed to enroll tokens in keyring: %w", err)
	}
	return nil
}
