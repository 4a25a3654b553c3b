package wallet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

// testScryptN keeps scrypt cheap in tests.
const testScryptN = 1 << 4

func hexString(b []byte) string { return hex.EncodeToString(b) }

func TestKeyFromPassphrase(t *testing.T) {
	k1, err := KeyFromPassphrase("hunter2", testScryptN)
	if err != nil {
		t.Fatalf("KeyFromPassphrase() error: %v", err)
	}
	k2, _ := KeyFromPassphrase("hunter2", testScryptN)
	if !bytes.Equal(k1.Serialize(), k2.Serialize()) {
		t.Error("same passphrase should give the same key")
	}

	other, _ := KeyFromPassphrase("hunter3", testScryptN)
	if bytes.Equal(k1.Serialize(), other.Serialize()) {
		t.Error("different passphrases should give different keys")
	}
	cheaper, _ := KeyFromPassphrase("hunter2", testScryptN/2)
	if bytes.Equal(k1.Serialize(), cheaper.Serialize()) {
		t.Error("the scrypt cost is part of the derivation")
	}
}

func TestKeyFromPassphrase_IsSeedMaster(t *testing.T) {
	seed, err := PassphraseSeed("hunter2", testScryptN)
	if err != nil {
		t.Fatal(err)
	}
	if len(seed) != SeedSize {
		t.Fatalf("seed length = %d, want %d", len(seed), SeedSize)
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		t.Fatal(err)
	}
	key, _ := KeyFromPassphrase("hunter2", testScryptN)
	if !bytes.Equal(key.Serialize(), master.PrivateKeyBytes()) {
		t.Error("passphrase key should be the seed's master key")
	}
}

func TestKeyFromPassphrase_Errors(t *testing.T) {
	if _, err := KeyFromPassphrase("", testScryptN); !errors.Is(err, ErrEmptyPassphrase) {
		t.Errorf("empty: got %v, want ErrEmptyPassphrase", err)
	}
	if _, err := KeyFromPassphrase("pw", 3); err == nil {
		t.Error("N not a power of two should fail")
	}
}
