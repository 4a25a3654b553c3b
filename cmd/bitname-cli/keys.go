package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli"

	"github.com/Klingon-tech/bitname/config"
	"github.com/Klingon-tech/bitname/internal/wallet"
	"github.com/Klingon-tech/bitname/pkg/script"
)

type keyEntry struct {
	Name       string             `json:"name,omitempty"`
	Network    string             `json:"network,omitempty"`
	PubKey     string             `json:"pubkey"`
	Address    string             `json:"address"`
	Derivation *wallet.Derivation `json:"derivation,omitempty"`
	CreatedAt  *time.Time         `json:"created_at,omitempty"`
}

func (m *metadata) keyEntry(name string, pub []byte) (keyEntry, error) {
	addr, err := script.P2PKHAddress(pub, m.params)
	if err != nil {
		return keyEntry{}, err
	}
	return keyEntry{
		Name:    name,
		PubKey:  m.encodePubKey(pub),
		Address: addr.EncodeAddress(),
	}, nil
}

// newPassword prompts twice for a key file password.
func newPassword() ([]byte, error) {
	pw, err := readPassword("New key password: ")
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, errors.New("empty password")
	}
	again, err := readPassword("Repeat password: ")
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(pw, again) {
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}

func runKeyGen(c *cli.Context) error {
	m := meta(c)
	if _, err := args(c, 0, 0); err != nil {
		return err
	}
	ks, err := m.keystore()
	if err != nil {
		return err
	}
	name := c.String("name")
	if _, err := os.Stat(ks.Path(name)); err == nil {
		return fmt.Errorf("%w: %s", wallet.ErrKeyExists, ks.Path(name))
	}

	var (
		seed []byte
		d    wallet.Derivation
	)
	if c.Bool("passphrase") {
		pass, err := readPassword("Passphrase: ")
		if err != nil {
			return fmt.Errorf("read passphrase: %w", err)
		}
		if seed, err = wallet.PassphraseSeed(string(pass), 0); err != nil {
			return err
		}
		d = wallet.Derivation{Master: true}
	} else {
		var mnemonic string
		if mnemonic, seed, err = wallet.GenerateKey(); err != nil {
			return err
		}
		d = wallet.DefaultDerivation(m.params)
		fmt.Fprintln(m.e, "Write down the recovery words below. They are shown once.")
		fmt.Fprintln(m.e)
		fmt.Fprintln(m.e, mnemonic)
		fmt.Fprintln(m.e)
	}
	defer clear(seed)

	password, err := newPassword()
	if err != nil {
		return err
	}
	if _, err := ks.Create(name, seed, password, string(m.cfg.Network), d, wallet.DefaultParams()); err != nil {
		return err
	}

	if wifFile := c.String("wif"); wifFile != "" {
		priv, err := d.Key(seed)
		if err != nil {
			return err
		}
		wif, err := wallet.EncodeWIF(priv, m.params)
		if err != nil {
			return err
		}
		if err := os.WriteFile(wifFile, []byte(wif+"\n"), 0600); err != nil {
			return fmt.Errorf("write wif: %w", err)
		}
	}

	e, err := m.keyFileEntry(name, ks.Path(name))
	if err != nil {
		return err
	}
	return printJSON(m.w, e)
}

func runKeyInfo(c *cli.Context) error {
	m := meta(c)
	a, err := args(c, 0, 1)
	if err != nil {
		return err
	}
	ks, err := m.keystore()
	if err != nil {
		return err
	}

	if len(a) == 0 {
		names, err := ks.List()
		if err != nil {
			return err
		}
		out := make([]keyEntry, 0, len(names))
		for _, name := range names {
			e, err := m.keyFileEntry(name, ks.Path(name))
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return printJSON(m.w, out)
	}

	name, path := a[0], a[0]
	if _, err := os.Stat(path); err != nil {
		path = ks.Path(name)
	} else {
		name = ""
	}
	if filepath.Ext(path) != wallet.KeyFileExt {
		priv, err := wallet.ReadWIFFile(path)
		if err != nil {
			return err
		}
		e, err := m.keyEntry("", priv.PubKey().SerializeCompressed())
		if err != nil {
			return err
		}
		return printJSON(m.w, e)
	}
	e, err := m.keyFileEntry(name, path)
	if err != nil {
		return err
	}
	return printJSON(m.w, e)
}

func (m *metadata) keyFileEntry(name, path string) (keyEntry, error) {
	info, err := wallet.ReadKeyInfo(path)
	if err != nil {
		return keyEntry{}, err
	}
	e, err := m.keyEntry(name, info.PubKey)
	if err != nil {
		return keyEntry{}, err
	}
	e.Network = info.Network
	e.Derivation = &info.Derivation
	e.CreatedAt = &info.CreatedAt
	return e, nil
}

func runInit(c *cli.Context) error {
	m := meta(c)
	path := m.flags.Config
	if path == "" {
		path = m.cfg.ConfigFile()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := config.WriteDefaultConfig(path, m.cfg.Network); err != nil {
		return err
	}
	fmt.Fprintln(m.w, path)
	return nil
}
