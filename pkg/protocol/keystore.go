package protocol

import (
	"errors"
	"io/fs"
	"os"
)

// KeyStore holds a single encoded private key.
type KeyStore interface {
	Exists() (bool, error)
	ReadAll() ([]byte, error)
	WriteAll(data []byte) error
	Remove() error
	String() string
}

// FileKeyStore stores a key in the named file.
type FileKeyStore string

func (f FileKeyStore) Exists() (bool, error) {
	_, err := os.Stat(string(f))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (f FileKeyStore) ReadAll() ([]byte, error) {
	return os.ReadFile(string(f))
}

// WriteAll replaces the contents of the file. The file is readable only by its owner.
func (f FileKeyStore) WriteAll(data []byte) error {
	file, err := os.OpenFile(string(f), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err = file.Write(data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (f FileKeyStore) Remove() error {
	return os.Remove(string(f))
}

func (f FileKeyStore) String() string {
	return "file:" + string(f)
}
