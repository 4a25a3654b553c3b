package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/scrypt"
)

// Passphrase key derivation parameters. The master key of the seed is the
// signing key, so the same passphrase always yields the same key.
const (
	DefaultScryptN = 1 << 20
	scryptR        = 8
	scryptP        = 1
)

// ErrEmptyPassphrase is returned by KeyFromPassphrase for an empty passphrase.
var ErrEmptyPassphrase = errors.New("empty passphrase")

// PassphraseSeed stretches a passphrase into a 64-byte seed with
// scrypt(pass, salt = hash256(pass), N = n, r = 8, p = 1). n is the scrypt
// cost, a power of two; 0 means DefaultScryptN.
func PassphraseSeed(pass string, n int) ([]byte, error) {
	if pass == "" {
		return nil, ErrEmptyPassphrase
	}
	if n == 0 {
		n = DefaultScryptN
	}
	p := []byte(pass)
	seed, err := scrypt.Key(p, chainhash.DoubleHashB(p), n, scryptR, scryptP, SeedSize)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	return seed, nil
}

// KeyFromPassphrase returns the BIP-32 master private key of the
// passphrase seed.
func KeyFromPassphrase(pass string, n int) (*btcec.PrivateKey, error) {
	seed, err := PassphraseSeed(pass, n)
	if err != nil {
		return nil, err
	}
	return Derivation{Master: true}.Key(seed)
}
