/*
Package cli facilitates building command-line applications that talk to the payment API. It
defines a [Config] type that can be used to register common command-line flags (using the Golang
flag package), environment variable equivalents, and an optional YAML configuration file.

The package uses [keyring]'s platform-agnostic interface for storing sensitive values (private keys
and access tokens) in an OS-dependent credential store.

# Examples

	import flag

	config, err := NewConfig(FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for private keys, tokens, etc.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables
	config.ReadFromFile("")           // Fills in remaining fields from $LEDGERPAY_CONFIG_FILE, if set
	config.LoadCredentials()          // Prompt for Keyring password if needed

	c, err := config.Client()
	if err != nil {
		panic(err)
	}
	defer config.SaveTokens()

Alternatively, you can use a [Flag] mask to control what [Config] fields are populated. Note that
config.Flags must be set before calling [flag.Parse] or [Config.ReadFromEnvironment]:

	config, err = NewConfig(FlagPrivateKey) // Key management only; no environment or token options.
	config, err = NewConfig(FlagEnvironment | FlagTokens) // Unsigned requests with bearer tokens.

The last option will not attempt to load private keys when calling [Config.Client], and therefore
will not result in an error if a private key is defined in the environment but cannot be loaded.
*/
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/ledgerpay/payment-sdk/internal/log"
	"github.com/ledgerpay/payment-sdk/pkg/authorization"
	"github.com/ledgerpay/payment-sdk/pkg/client"
	"github.com/ledgerpay/payment-sdk/pkg/protocol"
	"github.com/ledgerpay/payment-sdk/pkg/tokens"

	"github.com/99designs/keyring"
)

// KnownFacades lists the facades accepted by [FacadeList].
var KnownFacades = []string{client.FacadeMerchant, client.FacadePayout, client.FacadePos}

// FacadeList is used to translate facades provided at the command line.
type FacadeList []string

// Set updates a FacadeList from a command-line argument.
func (f *FacadeList) Set(value string) error {
	canonicalName := strings.ToLower(value)
	for _, facade := range KnownFacades {
		if facade == canonicalName {
			*f = append(*f, facade)
			return nil
		}
	}
	return fmt.Errorf("unknown facade '%s'", value)
}

func (f *FacadeList) String() string {
	return strings.Join(*f, ",")
}

// Environment variable names used are used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvLedgerPayEnvironment  = "LEDGERPAY_ENV"
	EnvLedgerPayConfigFile   = "LEDGERPAY_CONFIG_FILE"
	EnvLedgerPayKeyName      = "LEDGERPAY_KEY_NAME"
	EnvLedgerPayKeyFile      = "LEDGERPAY_KEY_FILE"
	EnvLedgerPayTokenName    = "LEDGERPAY_TOKEN_NAME"
	EnvLedgerPayTokenFile    = "LEDGERPAY_TOKEN_FILE"
	EnvLedgerPayKeyringType  = "LEDGERPAY_KEYRING_TYPE"
	EnvLedgerPayKeyringPass  = "LEDGERPAY_KEYRING_PASSWORD"
	EnvLedgerPayKeyringPath  = "LEDGERPAY_KEYRING_PATH"
	EnvLedgerPayKeyringDebug = "LEDGERPAY_KEYRING_DEBUG"
)

const defaultEnvironment = string(client.Test)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagEnvironment Flag = 1 // Enable API environment option.
	FlagPrivateKey  Flag = 2 // Enable Private Key options. Required for signed requests and pairing.
	FlagTokens      Flag = 4 // Enable access token storage options.
	FlagAll         Flag = FlagEnvironment | FlagPrivateKey | FlagTokens
)

var (
	ErrNoKeySpecified   = errors.New("private key location not provided")
	ErrNoTokenSpecified = errors.New("access token location not provided")
	ErrKeyNotFound      = keyring.ErrKeyNotFound
)

// Config fields determine how a client authenticates to the payment API.
type Config struct {
	Flags            Flag   // Controls which set of environment variables/CLI flags to use.
	Environment      string // "test", "prod", or a custom host
	ConfigFilename   string // Optional YAML file; see [FileConfig]
	KeyringKeyName   string // Username for private key in system keyring
	KeyringTokenName string // Username for access tokens in system keyring
	TokenFilename    string
	KeyFilename      string
	Backend          keyring.Config
	BackendType      backendType
	Debug            bool // Enable keyring debug messages

	password     *string
	skey         protocol.PrivateKey
	tokens       *tokens.Store
	inlineTokens map[string]string
}

func NewConfig(flags Flag) (*Config, error) {
	c := Config{
		Flags: flags,
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword

	return &c, nil
}

func (c *Config) RegisterCommandLineFlags() {
	flag.StringVar(&c.ConfigFilename, "config", "", "YAML configuration `file`. Defaults to $LEDGERPAY_CONFIG_FILE.")
	if c.Flags.isSet(FlagEnvironment) {
		flag.StringVar(&c.Environment, "env", "", "API environment: test, prod, or a host name. Defaults to $LEDGERPAY_ENV, then test.")
	}
	if c.Flags.isSet(FlagPrivateKey) {
		flag.StringVar(&c.KeyringKeyName, "key-name", "", "System keyring `name` for private key. Defaults to $LEDGERPAY_KEY_NAME.")
		flag.StringVar(&c.KeyFilename, "key-file", "", "A `file` containing private key. Defaults to $LEDGERPAY_KEY_FILE.")
	}
	if c.Flags.isSet(FlagTokens) {
		flag.StringVar(&c.KeyringTokenName, "token-name", "", "System keyring `name` for access tokens. Defaults to $LEDGERPAY_TOKEN_NAME.")
		flag.StringVar(&c.TokenFilename, "token-file", "", "`File` containing access tokens. Defaults to $LEDGERPAY_TOKEN_FILE.")
	}
	if c.Flags.isSet(FlagTokens) || c.Flags.isSet(FlagPrivateKey) {
		var names []string
		for _, name := range keyring.AvailableBackends() {
			names = append(names, string(name))
		}
		sort.Strings(names)
		flag.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $LEDGERPAY_KEYRING_TYPE.")
		flag.StringVar(&c.Backend.FileDir, "keyring-file-dir", keyringDirectory, "keyring `directory` for file-backed keyring types")
		flag.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
	}
}

// LoadCredentials attempts to open a keyring, prompting for a password if not needed. Call this
// method before sending requests to prevent interactive prompts from counting against timeouts.
func (c *Config) LoadCredentials() error {
	if c.Flags.isSet(FlagTokens) {
		if _, err := c.Tokens(); err != nil {
			return err
		}
	}
	if c.Flags.isSet(FlagPrivateKey) {
		if _, err := c.PrivateKey(); err != nil && err != ErrNoKeySpecified {
			return err
		}
	}
	return nil
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters and avoid potentially misleading
// debug log messages.
func (c *Config) ReadFromEnvironment() {
	if c.ConfigFilename == "" {
		c.ConfigFilename = os.Getenv(EnvLedgerPayConfigFile)
		log.Debug("Set config file to '%s'", c.ConfigFilename)
	}
	if c.Flags.isSet(FlagEnvironment) {
		if c.Environment == "" {
			c.Environment = os.Getenv(EnvLedgerPayEnvironment)
			log.Debug("Set environment to '%s'", c.Environment)
		}
	}
	if c.Flags.isSet(FlagPrivateKey) {
		if c.KeyringKeyName == "" && c.KeyFilename == "" {
			c.KeyringKeyName = os.Getenv(EnvLedgerPayKeyName)
			log.Debug("Set key name to '%s'", c.KeyringKeyName)

			c.KeyFilename = os.Getenv(EnvLedgerPayKeyFile)
			log.Debug("Set key file to '%s'", c.KeyFilename)
		}
	}
	if c.Flags.isSet(FlagTokens) {
		if c.KeyringTokenName == "" && c.TokenFilename == "" {
			c.KeyringTokenName = os.Getenv(EnvLedgerPayTokenName)
			log.Debug("Set token name to '%s'", c.KeyringTokenName)

			c.TokenFilename = os.Getenv(EnvLedgerPayTokenFile)
			log.Debug("Set token file to '%s'", c.TokenFilename)
		}
	}
	if c.Flags.isSet(FlagTokens) || c.Flags.isSet(FlagPrivateKey) {
		if c.BackendType.String() == string(keyring.InvalidBackend) {
			if err := c.BackendType.Set(os.Getenv(EnvLedgerPayKeyringType)); err == nil {
				log.Debug("Set keyring type to '%s'", c.BackendType)
			}
		}
		if c.password == nil {
			password := os.Getenv(EnvLedgerPayKeyringPass)
			c.password = &password
			if len(password) > 0 {
				log.Debug("Set keyring File Password to %s", log.Masked(password))
			}
		}
		if c.Backend.FileDir == "" {
			c.Backend.FileDir = os.Getenv(EnvLedgerPayKeyringPath)
			log.Debug("Set keyring File Path to '%s'", c.Backend.FileDir)
		}
		if !c.Debug {
			_, c.Debug = os.LookupEnv(EnvLedgerPayKeyringDebug)
			log.Debug("Set keyring Debug Logging to '%v'", c.Debug)
		}
	}
}

// KeyStore returns the configured location of the private key. The keyring is preferred if both
// a keyring name and a file are configured.
func (c *Config) KeyStore() (protocol.KeyStore, error) {
	if !c.Flags.isSet(FlagPrivateKey) {
		log.Debug("Skipping private key loading because FlagPrivateKey is not set")
		return nil, ErrNoKeySpecified
	}
	if c.KeyringKeyName != "" {
		return &keyringStore{config: c, key: c.fullKeyName()}, nil
	}
	if c.KeyFilename != "" {
		return protocol.FileKeyStore(c.KeyFilename), nil
	}
	return nil, ErrNoKeySpecified
}

// PrivateKey loads a private key from the location specified in c. Like [Config.KeyStore] and
// [Config.SavePrivateKey], it prefers the keyring if both a keyring name and a file are
// configured.
//
// The private key is cached after it is first loaded, and subsequent calls will always return the
// same private key.
func (c *Config) PrivateKey() (protocol.PrivateKey, error) {
	if c.skey != nil {
		return c.skey, nil
	}
	store, err := c.KeyStore()
	if err != nil {
		return nil, err
	}
	log.Debug("Loading private key from %s", store)
	skey, err := protocol.LoadKey(store)
	if err != nil {
		return nil, err
	}
	c.skey = skey
	return skey, nil
}

// GenerateOrLoadKey returns the configured private key, creating and persisting one if none
// exists yet.
func (c *Config) GenerateOrLoadKey() (protocol.PrivateKey, error) {
	if c.skey != nil {
		return c.skey, nil
	}
	store, err := c.KeyStore()
	if err != nil {
		return nil, err
	}
	skey, err := protocol.GenerateOrLoadKey(store)
	if err != nil {
		return nil, err
	}
	c.skey = skey
	return skey, nil
}

// SavePrivateKey writes skey to the system keyring or file, depending on what options are
// configured. The method prefers the keyring if both options are available.
func (c *Config) SavePrivateKey(skey protocol.PrivateKey) error {
	store, err := c.KeyStore()
	if err != nil {
		return err
	}
	if err := protocol.SaveKey(skey, store); err != nil {
		return err
	}
	c.skey = skey
	return nil
}

// DeletePrivateKey removes the configured private key.
func (c *Config) DeletePrivateKey() error {
	store, err := c.KeyStore()
	if err != nil {
		return err
	}
	c.skey = nil
	return store.Remove()
}

// Tokens returns the access token store, loading it from the configured file or keyring entry on
// first use. Tokens listed in the configuration file are added to the store. A missing file or
// keyring entry yields an empty store.
func (c *Config) Tokens() (*tokens.Store, error) {
	if c.tokens != nil {
		return c.tokens, nil
	}
	var store *tokens.Store
	var err error
	switch {
	case c.Flags.isSet(FlagTokens) && c.TokenFilename != "":
		log.Debug("Loading access tokens from %s...", c.TokenFilename)
		store, err = tokens.ImportFromFile(c.TokenFilename)
		if errors.Is(err, fs.ErrNotExist) {
			store, err = tokens.New(), nil
		}
	case c.Flags.isSet(FlagTokens) && c.KeyringTokenName != "":
		store, err = c.LoadTokensFromKeyring()
	default:
		store = tokens.New()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load access tokens: %w", err)
	}
	if len(c.inlineTokens) > 0 {
		store.PutAll(c.inlineTokens)
	}
	c.tokens = store
	return store, nil
}

// SaveTokens writes the access token store back to where it was loaded from.
func (c *Config) SaveTokens() error {
	if c.tokens == nil {
		return nil
	}
	if c.TokenFilename != "" {
		return c.tokens.ExportToFile(c.TokenFilename)
	}
	if c.KeyringTokenName != "" {
		return c.SaveTokensToKeyring(c.tokens)
	}
	return ErrNoTokenSpecified
}

// Env returns the configured API environment, defaulting to the test environment.
func (c *Config) Env() (client.Environment, error) {
	name := c.Environment
	if name == "" {
		name = defaultEnvironment
	}
	return client.ParseEnvironment(name)
}

// Client returns an API client for the configured environment, key and tokens. The client has no
// key if none is configured.
func (c *Config) Client() (*client.Client, error) {
	env, err := c.Env()
	if err != nil {
		return nil, err
	}
	skey, err := c.PrivateKey()
	if err != nil && err != ErrNoKeySpecified {
		return nil, err
	}
	if skey == nil {
		log.Debug("No private key available")
	} else {
		log.Debug("Client identity: %s", skey.Identity())
	}
	store, err := c.Tokens()
	if err != nil {
		return nil, err
	}
	return client.New(env, nil, skey, store, "")
}

// Authorizer returns a pairing flow for the configured identity. Unlike [Config.Client], it
// requires a private key.
func (c *Config) Authorizer() (*authorization.Flow, *client.Client, error) {
	if _, err := c.PrivateKey(); err != nil {
		return nil, nil, err
	}
	cl, err := c.Client()
	if err != nil {
		return nil, nil, err
	}
	return authorization.New(cl, cl.Identity(), cl.Tokens()), cl, nil
}
