package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/Klingon-tech/bitname/pkg/script"
)

// Public key human-readable parts.
const (
	HRPMainnet = "pk"
	HRPTestnet = "tp"
)

// pubKeyVersion is the version quintet prepended to the encoded key.
const pubKeyVersion = 0

var (
	// ErrUnknownHRP is returned when decoding a key with a foreign prefix.
	ErrUnknownHRP = errors.New("unknown public key prefix")
	// ErrBadPubKey is returned for a payload that is not a compressed key.
	ErrBadPubKey = errors.New("invalid encoded public key")
)

// EncodePubKey encodes a compressed public key as bech32 under hrp.
func EncodePubKey(pub []byte, hrp string) (string, error) {
	if hrp != HRPMainnet && hrp != HRPTestnet {
		return "", fmt.Errorf("%w: %q", ErrUnknownHRP, hrp)
	}
	if !script.ValidatePubKey(pub) {
		return "", ErrBadPubKey
	}
	conv, err := bech32.ConvertBits(pub, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert bits: %w", err)
	}
	return bech32.Encode(hrp, append([]byte{pubKeyVersion}, conv...))
}

// DecodePubKey decodes a bech32 public key and returns it with its hrp.
func DecodePubKey(s string) ([]byte, string, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return nil, "", fmt.Errorf("decode bech32: %w", err)
	}
	if hrp != HRPMainnet && hrp != HRPTestnet {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownHRP, hrp)
	}
	if len(data) < 1 || data[0] != pubKeyVersion {
		return nil, "", fmt.Errorf("%w: bad version", ErrBadPubKey)
	}
	pub, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadPubKey, err)
	}
	if !script.ValidatePubKey(pub) {
		return nil, "", ErrBadPubKey
	}
	return pub, hrp, nil
}
