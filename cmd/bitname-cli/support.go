package main

import (
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/Klingon-tech/bitname/config"
	"github.com/Klingon-tech/bitname/internal/electrum"
	"github.com/Klingon-tech/bitname/internal/registrar"
	"github.com/Klingon-tech/bitname/internal/store"
	"github.com/Klingon-tech/bitname/internal/wallet"
	"github.com/Klingon-tech/bitname/pkg/script"
)

type metadata struct {
	cfg    *config.Config
	flags  *config.Flags
	params *chaincfg.Params
	key    string
	store  *store.Store
	w      io.Writer
	e      io.Writer
}

func meta(c *cli.Context) *metadata {
	return c.App.Metadata["config"].(*metadata)
}

// registrar opens the local store and connects the registrar to the
// configured Electrum servers.
func (m *metadata) registrar() (*registrar.Registrar, error) {
	if m.store == nil {
		dir := m.cfg.DBDir()
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		st, err := store.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		m.store = st
	}

	opts := []electrum.Option{
		electrum.WithTimeout(m.cfg.Electrum.Timeout),
		electrum.WithTxCache(m.store),
	}
	if m.cfg.Electrum.TLS {
		opts = append(opts, electrum.WithTLS(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	client := electrum.New(m.cfg.Electrum.Servers, opts...)
	reg, err := registrar.New(client, m.store, m.cfg.Network, m.cfg.Fees)
	if err != nil {
		return nil, err
	}
	reg.SetRegistry(m.cfg.Registry)
	return reg, nil
}

func (m *metadata) close() error {
	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	return err
}

func (m *metadata) keystore() (*wallet.Keystore, error) {
	return wallet.NewKeystore(m.cfg.KeysDir())
}

// hrp returns the public key prefix of the configured network.
func (m *metadata) hrp() string {
	return config.Networks[m.cfg.Network].HRP
}

// parsePubKey accepts a bech32 public key of the configured network or a
// hex compressed key.
func (m *metadata) parsePubKey(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil {
		if !script.ValidatePubKey(b) {
			return nil, fmt.Errorf("invalid public key: %s", s)
		}
		return b, nil
	}
	pub, hrp, err := wallet.DecodePubKey(s)
	if err != nil {
		return nil, fmt.Errorf("public key %q: %w", s, err)
	}
	network, err := config.NetworkForHRP(hrp, m.cfg.Network)
	if err != nil {
		return nil, err
	}
	if network != m.cfg.Network {
		return nil, fmt.Errorf("public key %s is for %s, client is on %s", s, network, m.cfg.Network)
	}
	return pub, nil
}

// encodePubKey renders a public key for the configured network.
func (m *metadata) encodePubKey(pub []byte) string {
	s, err := wallet.EncodePubKey(pub, m.hrp())
	if err != nil {
		return hex.EncodeToString(pub)
	}
	return s
}

// signingKey resolves --key: a keystore name, an encrypted .key file or a
// WIF file. Without --key the key is derived from a passphrase.
func (m *metadata) signingKey() (*btcec.PrivateKey, error) {
	if m.key == "" {
		pass, err := readPassword("Passphrase: ")
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		return wallet.KeyFromPassphrase(string(pass), 0)
	}

	path := m.key
	if _, err := os.Stat(path); err != nil {
		ks, err := m.keystore()
		if err != nil {
			return nil, err
		}
		path = ks.Path(m.key)
	}
	if filepath.Ext(path) != wallet.KeyFileExt {
		return wallet.ReadWIFFile(path)
	}

	password, err := readPassword("Key password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	priv, info, err := wallet.LoadKeyFile(path, password)
	if err != nil {
		return nil, err
	}
	if info.Network != "" && info.Network != string(m.cfg.Network) {
		return nil, fmt.Errorf("key %s is for %s, client is on %s", m.key, info.Network, m.cfg.Network)
	}
	return priv, nil
}

func parseTxid(s string) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil || len(s) != 2*chainhash.HashSize {
		return chainhash.Hash{}, fmt.Errorf("invalid txid: %q", s)
	}
	return *h, nil
}

func parseHeight(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry height: %q", s)
	}
	return uint32(n), nil
}

// args checks the positional argument count of a command.
func args(c *cli.Context, min, max int) ([]string, error) {
	a := c.Args()
	if len(a) < min || len(a) > max {
		return nil, fmt.Errorf("usage: %s %s %s", c.App.Name, c.Command.Name, c.Command.ArgsUsage)
	}
	return a, nil
}

// printResult prints a built transaction: the txid, followed by the raw
// hex when it was not broadcast.
func printResult(w io.Writer, res *registrar.Result) {
	fmt.Fprintln(w, res.Txid)
	if !res.Pushed {
		fmt.Fprintln(w, res.Raw())
	}
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", b)
	return nil
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}
