package protocol

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

const (
	testPublicHex = "03f028892bad7ed57d2fb57bf33081d5cfcf6f9ed3d3d7f159c2e2fff579dc341a"
	testSIN       = "TfEfCasGkSXHiLW3NfojcaDEsDjjUGFRuro"
)

func TestLoadPrivateKey(t *testing.T) {
	type testData struct {
		filename   string
		ok         bool
		compressed bool
	}

	tests := []testData{
		{"test/private.pem", true, true},
		{"test/private.der", true, true},
		{"test/private-nopub.pem", true, true},
		{"test/private-uncompressed.pem", true, false},
		{"test/wrong-version.pem", false, false},
		{"test/wrong-curve.pem", false, false},
		{"test/wrong-type.pem", false, false},
		{"test/bad-b64.pem", false, false},
		{"test/mismatched-public.pem", false, false},
	}
	for _, test := range tests {
		skey, err := LoadPrivateKey(test.filename)
		t.Logf("%s -> %s", test.filename, err)
		if errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Test file %s does not exist", test.filename)
			continue
		}
		if err == nil && !test.ok {
			t.Errorf("Expected %s to fail to load", test.filename)
		} else if err != nil && test.ok {
			t.Errorf("Expected %s to load, but got error %s", test.filename, err)
		} else if err != nil {
			if skey != nil {
				t.Errorf("Expected nil key alongside error for %s, got %#v", test.filename, skey)
			}
			if !errors.Is(err, ErrKeyFormat) {
				t.Errorf("Expected %s to fail with ErrKeyFormat, got %s", test.filename, err)
			}
			if KindOf(err) != KindKeyFormat {
				t.Errorf("Unexpected kind for %s: %s", test.filename, KindOf(err))
			}
		} else {
			if skey.Identity() != testSIN {
				t.Errorf("File %s did not contain the expected key: %s", test.filename, skey.Identity())
			}
			if skey.Compressed() != test.compressed {
				t.Errorf("File %s loaded with compressed=%v", test.filename, skey.Compressed())
			}
		}
	}
}

func TestSaveAndReloadPrivateKey(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "key.pem")
	skey, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if err := SavePrivateKey(skey, filename); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filename)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Key file has permissions %o", perm)
	}
	loaded, err := LoadPrivateKey(filename)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Identity() != skey.Identity() {
		t.Errorf("Identity changed after reload: %s != %s", loaded.Identity(), skey.Identity())
	}
	if !bytes.Equal(loaded.PublicBytes(), skey.PublicBytes()) {
		t.Error("Public key changed after reload")
	}
}

func TestMarshalMatchesFixture(t *testing.T) {
	skey, err := LoadPrivateKey("test/private-nopub.pem")
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := MarshalPrivateKey(skey)
	if err != nil {
		t.Fatal(err)
	}
	expected, err := os.ReadFile("test/private.pem")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(encoded, expected) {
		t.Errorf("Marshaled key does not match fixture:\n%s", encoded)
	}
}

func TestGenerateOrLoadKey(t *testing.T) {
	store := FileKeyStore(filepath.Join(t.TempDir(), "key.pem"))
	first, err := GenerateOrLoadKey(store)
	if err != nil {
		t.Fatal(err)
	}
	if exists, err := store.Exists(); err != nil || !exists {
		t.Fatalf("Key was not persisted: %v", err)
	}
	second, err := GenerateOrLoadKey(store)
	if err != nil {
		t.Fatal(err)
	}
	if first.Identity() != second.Identity() {
		t.Error("Second call generated a new key instead of loading")
	}
	if err := store.Remove(); err != nil {
		t.Fatal(err)
	}
	if exists, _ := store.Exists(); exists {
		t.Error("Key still exists after Remove")
	}
}

func TestParseFailureReturnsNilInterface(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("not a key"), {0x30, 0x03, 0x02, 0x01, 0x02}} {
		skey, err := ParsePrivateKey(data)
		if err == nil {
			t.Errorf("Expected %x to be rejected", data)
		}
		// A nil *NativeKey inside the interface would pass a nil check and panic on first use.
		if skey != nil {
			t.Errorf("ParsePrivateKey(%x) returned non-nil interface %#v", data, skey)
		}
	}
	store := FileKeyStore(filepath.Join(t.TempDir(), "key.pem"))
	if err := store.WriteAll([]byte("not a key")); err != nil {
		t.Fatal(err)
	}
	if skey, err := LoadKey(store); err == nil || skey != nil {
		t.Errorf("LoadKey on corrupt store = %#v, %v", skey, err)
	}
}

func TestGenerateOrLoadKeyRejectsCorruptKey(t *testing.T) {
	store := FileKeyStore(filepath.Join(t.TempDir(), "key.pem"))
	if err := store.WriteAll([]byte("not a key")); err != nil {
		t.Fatal(err)
	}
	if _, err := GenerateOrLoadKey(store); !errors.Is(err, ErrKeyFormat) {
		t.Errorf("Expected ErrKeyFormat but got %v", err)
	}
	data, err := store.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "not a key" {
		t.Error("Corrupt key was overwritten")
	}
}

func TestIdentityFromPublicHex(t *testing.T) {
	skey, err := LoadPrivateKey("test/private.pem")
	if err != nil {
		t.Fatal(err)
	}
	if h := PublicKeyHex(skey); h != testPublicHex {
		t.Errorf("PublicKeyHex = %s", h)
	}
	skey.SetCompressed(false)
	sin, err := IdentityFromPublicHex(PublicKeyHex(skey))
	if err != nil {
		t.Fatal(err)
	}
	if sin != testSIN {
		t.Errorf("Identity from uncompressed key = %s", sin)
	}
	if _, err := IdentityFromPublicHex("02abcd"); !errors.Is(err, ErrInvalidPublicKey) {
		t.Errorf("Expected ErrInvalidPublicKey but got %v", err)
	}
	if _, err := IdentityFromPublicHex("zz"); err == nil {
		t.Error("Expected error for invalid hex")
	}
}
