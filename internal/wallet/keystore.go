package wallet

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip32"

	"github.com/Klingon-tech/bitname/internal/log"
)

// KeyFileExt is the extension of key files in a keystore directory.
const KeyFileExt = ".key"

var (
	// ErrKeyExists is returned when creating a key file over an existing one.
	ErrKeyExists = errors.New("key file already exists")
	// ErrKeyNotFound is returned for a missing key file.
	ErrKeyNotFound = errors.New("key file not found")
	// ErrKeyMismatch is returned when a decrypted seed does not produce the
	// public key recorded in the file.
	ErrKeyMismatch = errors.New("key file public key mismatch")
)

// Derivation says how the signing key is rebuilt from a stored seed.
type Derivation struct {
	// Master uses the seed's master key directly (passphrase keys).
	Master   bool   `json:"master,omitempty"`
	CoinType uint32 `json:"coin_type,omitempty"`
	Account  uint32 `json:"account,omitempty"`
	Index    uint32 `json:"index,omitempty"`
}

// DefaultDerivation is m/44'/coin'/0'/0/0 for the network.
func DefaultDerivation(params *chaincfg.Params) Derivation {
	return Derivation{CoinType: CoinType(params)}
}

// Key derives the signing key of seed.
func (d Derivation) Key(seed []byte) (*btcec.PrivateKey, error) {
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	if d.Master {
		return master.PrivateKey()
	}
	k, err := master.DerivePath(PurposeBIP44, d.CoinType, bip32.FirstHardenedChild+d.Account, ChangeExternal, d.Index)
	if err != nil {
		return nil, err
	}
	return k.PrivateKey()
}

// keyFile is the on-disk JSON format of an encrypted key.
type keyFile struct {
	Version       int        `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	Network       string     `json:"network"`
	PubKey        string     `json:"pubkey"` // hex, compressed
	Derivation    Derivation `json:"derivation"`
	EncryptedSeed []byte     `json:"encrypted_seed"`
}

// KeyInfo is the public part of a key file, readable without a password.
type KeyInfo struct {
	Network    string
	PubKey     []byte
	CreatedAt  time.Time
	Derivation Derivation
}

// SaveKeyFile encrypts seed under password and writes it to path with the
// derived public key. An existing file is never overwritten.
func SaveKeyFile(path string, seed, password []byte, network string, d Derivation, params EncryptionParams) (*KeyInfo, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyExists, path)
	}
	priv, err := d.Key(seed)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return nil, fmt.Errorf("encrypt seed: %w", err)
	}

	kf := keyFile{
		Version:       1,
		CreatedAt:     time.Now().UTC(),
		Network:       network,
		PubKey:        hex.EncodeToString(priv.PubKey().SerializeCompressed()),
		Derivation:    d,
		EncryptedSeed: encrypted,
	}
	if err := writeKeyFile(path, &kf); err != nil {
		return nil, err
	}
	log.Wallet.Info().Str("path", path).Str("network", network).Msg("key file written")
	return kf.info()
}

// LoadKeyFile decrypts a key file and returns its signing key.
func LoadKeyFile(path string, password []byte) (*btcec.PrivateKey, *KeyInfo, error) {
	kf, err := readKeyFile(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := kf.info()
	if err != nil {
		return nil, nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt %s: %w", path, err)
	}
	defer clear(seed)

	priv, err := kf.Derivation.Key(seed)
	if err != nil {
		return nil, nil, fmt.Errorf("derive key: %w", err)
	}
	if !bytes.Equal(priv.PubKey().SerializeCompressed(), info.PubKey) {
		return nil, nil, ErrKeyMismatch
	}
	return priv, info, nil
}

// ReadKeyInfo returns the public part of a key file.
func ReadKeyInfo(path string) (*KeyInfo, error) {
	kf, err := readKeyFile(path)
	if err != nil {
		return nil, err
	}
	return kf.info()
}

func (kf *keyFile) info() (*KeyInfo, error) {
	pub, err := hex.DecodeString(kf.PubKey)
	if err != nil {
		return nil, fmt.Errorf("parse pubkey: %w", err)
	}
	return &KeyInfo{
		Network:    kf.Network,
		PubKey:     pub,
		CreatedAt:  kf.CreatedAt,
		Derivation: kf.Derivation,
	}, nil
}

// Keystore is a directory of key files.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

// Path returns the file path of a key by name.
func (ks *Keystore) Path(name string) string {
	return filepath.Join(ks.path, name+KeyFileExt)
}

// Create writes a new key file.
func (ks *Keystore) Create(name string, seed, password []byte, network string, d Derivation, params EncryptionParams) (*KeyInfo, error) {
	return SaveKeyFile(ks.Path(name), seed, password, network, d, params)
}

// Load decrypts a key by name.
func (ks *Keystore) Load(name string, password []byte) (*btcec.PrivateKey, *KeyInfo, error) {
	return LoadKeyFile(ks.Path(name), password)
}

// Info returns the public part of a key by name.
func (ks *Keystore) Info(name string) (*KeyInfo, error) {
	return ReadKeyInfo(ks.Path(name))
}

// List returns the names of all key files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == KeyFileExt {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a key file.
func (ks *Keystore) Delete(name string) error {
	path := ks.Path(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}
	return os.Remove(path)
}

func writeKeyFile(path string, kf *keyFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrKeyExists, path)
		}
		return fmt.Errorf("write key file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	return f.Close()
}

func readKeyFile(path string) (*keyFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	if kf.Version != 1 {
		return nil, fmt.Errorf("unsupported key file version: %d", kf.Version)
	}
	return &kf, nil
}

// ReadWIFFile reads a private key stored as WIF text.
func ReadWIFFile(path string) (*btcec.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wif: %w", err)
	}
	wif, err := btcutil.DecodeWIF(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode wif: %w", err)
	}
	return wif.PrivKey, nil
}

// EncodeWIF returns the compressed WIF encoding of priv for a network.
func EncodeWIF(priv *btcec.PrivateKey, params *chaincfg.Params) (string, error) {
	wif, err := btcutil.NewWIF(priv, params, true)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}
