package wallet

import (
	"bytes"
	"errors"
	"testing"
)

// fastParams returns low-cost Argon2 params for fast tests.
func fastParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64, // 64 KiB
		Iterations:  1,
		Parallelism: 1,
	}
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	large := make([]byte, 10000)
	for i := range large {
		large[i] = byte(i % 256)
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"seed", bytes.Repeat([]byte{0xab}, SeedSize)},
		{"empty", []byte{}},
		{"large", large},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := Encrypt(tt.data, []byte("strong-password-123"), fastParams())
			if err != nil {
				t.Fatalf("Encrypt() error: %v", err)
			}
			decrypted, err := Decrypt(encrypted, []byte("strong-password-123"))
			if err != nil {
				t.Fatalf("Decrypt() error: %v", err)
			}
			if !bytes.Equal(decrypted, tt.data) {
				t.Error("roundtrip mismatch")
			}
		})
	}
}

func TestDecrypt_Failures(t *testing.T) {
	encrypted, err := Encrypt([]byte("secret data"), []byte("correct"), fastParams())
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	if _, err := Decrypt(encrypted, []byte("wrong")); !errors.Is(err, ErrDecrypt) {
		t.Errorf("wrong password: got %v, want ErrDecrypt", err)
	}

	corrupted := append([]byte(nil), encrypted...)
	corrupted[len(corrupted)-1] ^= 0xFF
	if _, err := Decrypt(corrupted, []byte("correct")); !errors.Is(err, ErrDecrypt) {
		t.Errorf("corrupted tag: got %v, want ErrDecrypt", err)
	}

	if _, err := Decrypt([]byte("too short"), []byte("correct")); err == nil {
		t.Error("truncated data should fail")
	}

	// A header asking for no iterations is rejected before key derivation.
	badHeader := append([]byte(nil), encrypted...)
	copy(badHeader[SaltSize+4:SaltSize+8], []byte{0, 0, 0, 0})
	if _, err := Decrypt(badHeader, []byte("correct")); !errors.Is(err, ErrBadParams) {
		t.Errorf("zero iterations: got %v, want ErrBadParams", err)
	}
}

func TestEncrypt_BadParams(t *testing.T) {
	tests := []EncryptionParams{
		{Memory: 64, Iterations: 0, Parallelism: 1},
		{Memory: 64, Iterations: 1, Parallelism: 0},
		{Memory: 4, Iterations: 1, Parallelism: 1},
		{Memory: maxMemory + 1, Iterations: 1, Parallelism: 1},
	}
	for _, p := range tests {
		if _, err := Encrypt([]byte("x"), []byte("pass"), p); !errors.Is(err, ErrBadParams) {
			t.Errorf("Encrypt(%+v) = %v, want ErrBadParams", p, err)
		}
	}
}

func TestEncrypt_DifferentEachTime(t *testing.T) {
	enc1, err := Encrypt([]byte("same data"), []byte("same pass"), fastParams())
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	enc2, err := Encrypt([]byte("same data"), []byte("same pass"), fastParams())
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if bytes.Equal(enc1, enc2) {
		t.Error("salt and nonce should be random")
	}
}

func TestEncrypt_OutputFormat(t *testing.T) {
	plaintext := []byte("test")
	params := fastParams()

	encrypted, err := Encrypt(plaintext, []byte("pass"), params)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	// header(41) + nonce(24) + plaintext + tag(16)
	if want := headerSize + 24 + len(plaintext) + 16; len(encrypted) != want {
		t.Errorf("encrypted length = %d, want %d", len(encrypted), want)
	}
	if encrypted[SaltSize+8] != params.Parallelism {
		t.Error("parallelism not recorded in header")
	}
}
