package tokens

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/ledgerpay/payment-sdk/pkg/protocol"
)

// Store maps facade names to access tokens. It is safe for concurrent use.
type Store struct {
	lock   sync.RWMutex
	tokens map[string]string
}

type exportedStore struct {
	Tokens map[string]string `json:"tokens"`
}

// New returns an empty Store.
func New() *Store {
	return &Store{tokens: make(map[string]string)}
}

// Import a Store using data in r.
// The data should previously have been generated using [Store.Export].
func Import(r io.Reader) (*Store, error) {
	var exported exportedStore
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&exported); err != nil {
		return nil, err
	}
	store := New()
	for facade, token := range exported.Tokens {
		store.tokens[facade] = token
	}
	return store, nil
}

// ImportFromFile reads a Store from disk.
func ImportFromFile(filename string) (*Store, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Import(file)
}

// Export writes a serialized Store to w.
func (s *Store) Export(w io.Writer) error {
	return json.NewEncoder(w).Encode(exportedStore{Tokens: s.Snapshot()})
}

// ExportToFile writes a Store to disk. The file is readable only by its owner.
func (s *Store) ExportToFile(filename string) error {
	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err = s.Export(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Put records token for facade, replacing any previous token.
func (s *Store) Put(facade, token string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.tokens[facade] = token
}

// PutAll records every facade/token pair in tokens. Readers observe either none or all of the
// new entries.
func (s *Store) PutAll(tokens map[string]string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for facade, token := range tokens {
		s.tokens[facade] = token
	}
}

// Get returns the token for facade, or a *protocol.TokenNotFoundError if none has been stored.
func (s *Store) Get(facade string) (string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	token, ok := s.tokens[facade]
	if !ok {
		return "", &protocol.TokenNotFoundError{Facade: facade}
	}
	return token, nil
}

// Exists returns true if a token has been stored for facade.
func (s *Store) Exists(facade string) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	_, ok := s.tokens[facade]
	return ok
}

// Facades returns the sorted names of all facades with a stored token.
func (s *Store) Facades() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	facades := make([]string, 0, len(s.tokens))
	for facade := range s.tokens {
		facades = append(facades, facade)
	}
	sort.Strings(facades)
	return facades
}

// Snapshot returns a copy of the stored tokens.
func (s *Store) Snapshot() map[string]string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	tokens := make(map[string]string, len(s.tokens))
	for facade, token := range s.tokens {
		tokens[facade] = token
	}
	return tokens
}
