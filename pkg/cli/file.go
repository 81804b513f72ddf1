package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"gopkg.in/yaml.v3"

	"github.com/ledgerpay/payment-sdk/internal/log"
)

// FileConfig is the layout of the YAML configuration file:
//
//	environment: prod
//	logLevel: debug
//	key:
//	  file: ~/.ledgerpay/identity.pem
//	tokens:
//	  file: ~/.ledgerpay/tokens.json
//	  inline:
//	    pos: 4gxbRC2cWPV1bGyqnqFtXr
//	keyring:
//	  type: file
//	  dir: ~/.ledgerpay_keys
//
// Values given on the command line or in the environment take precedence.
type FileConfig struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"logLevel"`
	Key         struct {
		File string `yaml:"file"`
		Name string `yaml:"name"`
	} `yaml:"key"`
	Tokens struct {
		File   string            `yaml:"file"`
		Name   string            `yaml:"name"`
		Inline map[string]string `yaml:"inline"`
	} `yaml:"tokens"`
	Keyring struct {
		Type string `yaml:"type"`
		Dir  string `yaml:"dir"`
	} `yaml:"keyring"`
}

// ParseFileConfig decodes a YAML configuration. Unknown keys are rejected so that typos are not
// silently ignored.
func ParseFileConfig(data []byte) (*FileConfig, error) {
	var fc FileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &fc, nil
}

// ReadFromFile populates c using a YAML configuration file. Values that are already populated are
// not overwritten. If filename is empty, c.ConfigFilename is used; if that is empty too, this
// method does nothing.
func (c *Config) ReadFromFile(filename string) error {
	if filename == "" {
		filename = c.ConfigFilename
	}
	if filename == "" {
		return nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	fc, err := ParseFileConfig(data)
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	log.Debug("Loaded configuration from %s", filename)
	return c.apply(fc)
}

func (c *Config) apply(fc *FileConfig) error {
	if fc.LogLevel != "" {
		level, err := log.ParseLevel(fc.LogLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
	}
	if c.Flags.isSet(FlagEnvironment) && c.Environment == "" {
		c.Environment = fc.Environment
	}
	if c.Flags.isSet(FlagPrivateKey) && c.KeyFilename == "" && c.KeyringKeyName == "" {
		c.KeyFilename = fc.Key.File
		c.KeyringKeyName = fc.Key.Name
	}
	if c.Flags.isSet(FlagTokens) {
		if c.TokenFilename == "" && c.KeyringTokenName == "" {
			c.TokenFilename = fc.Tokens.File
			c.KeyringTokenName = fc.Tokens.Name
		}
		if len(fc.Tokens.Inline) > 0 {
			if c.inlineTokens == nil {
				c.inlineTokens = make(map[string]string)
			}
			for facade, token := range fc.Tokens.Inline {
				log.Debug("Using configured %s token %s", facade, log.Masked(token))
				c.inlineTokens[facade] = token
			}
		}
	}
	if c.Flags.isSet(FlagTokens) || c.Flags.isSet(FlagPrivateKey) {
		if c.BackendType.String() == string(keyring.InvalidBackend) {
			if err := c.BackendType.Set(fc.Keyring.Type); err != nil {
				return err
			}
		}
		if c.Backend.FileDir == "" {
			c.Backend.FileDir = fc.Keyring.Dir
		}
	}
	return nil
}
