// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Network parameters: chain params, default Electrum servers and the
//     public key prefix, fixed per network
//   - Client settings: runtime configuration, read from bitname.conf and
//     overridden by command-line flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
)

// NetworkType identifies a Bitcoin network.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Regtest NetworkType = "regtest"
)

// =============================================================================
// Network parameters (fixed per network)
// =============================================================================

// Network holds the fixed parameters of a network.
type Network struct {
	Params *chaincfg.Params
	// HRP is the human-readable prefix of encoded public keys.
	HRP string
	// Servers are the default Electrum servers, tried in order.
	Servers []string
	// TLS reports whether the default servers speak TLS.
	TLS bool
}

// Networks maps every supported network to its parameters.
var Networks = map[NetworkType]Network{
	Mainnet: {
		Params: &chaincfg.MainNetParams,
		HRP:    "pk",
		Servers: []string{
			"electrum.blockstream.info:50002",
			"bitcoin.aranguren.org:50002",
		},
		TLS: true,
	},
	Testnet: {
		Params: &chaincfg.TestNet3Params,
		HRP:    "tp",
		Servers: []string{
			"electrum.blockstream.info:60002",
			"testnet.aranguren.org:51002",
		},
		TLS: true,
	},
	Regtest: {
		Params:  &chaincfg.RegressionNetParams,
		HRP:     "tp",
		Servers: []string{"127.0.0.1:50001"},
		TLS:     false,
	},
}

// Params returns the chain parameters of a network, or an error for an
// unknown one.
func (n NetworkType) Params() (*chaincfg.Params, error) {
	net, ok := Networks[n]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", n)
	}
	return net.Params, nil
}

// NetworkForHRP returns the network an encoded public key belongs to.
// Testnet and regtest share a prefix; fallback picks between them.
func NetworkForHRP(hrp string, fallback NetworkType) (NetworkType, error) {
	switch hrp {
	case Networks[Mainnet].HRP:
		return Mainnet, nil
	case Networks[Testnet].HRP:
		if fallback == Regtest {
			return Regtest, nil
		}
		return Testnet, nil
	default:
		return "", fmt.Errorf("unknown public key prefix %q", hrp)
	}
}

// =============================================================================
// Client Configuration (runtime settings)
// =============================================================================

// Config holds client runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Electrum servers
	Electrum ElectrumConfig

	// Protocol fees in satoshis
	Fees FeeConfig

	// Registry resolution
	Registry RegistryConfig

	// Logging
	Log LogConfig
}

// ElectrumConfig holds Electrum connection settings.
type ElectrumConfig struct {
	Servers []string      `conf:"electrum.servers"`
	Timeout time.Duration `conf:"electrum.timeout"`
	TLS     bool          `conf:"electrum.tls"`
}

// FeeConfig holds the amounts paid to and locked for the service.
type FeeConfig struct {
	CommitFee   int64 `conf:"fees.commit"`   // paid by the commit transaction
	RegisterFee int64 `conf:"fees.register"` // escrowed for the lock transaction's upfront fee
	EscrowFee   int64 `conf:"fees.escrow"`   // escrowed for the locked output
	UpfrontFee  int64 `conf:"fees.upfront"`  // paid by the lock transaction
	LockedFee   int64 `conf:"fees.locked"`   // locked until expiry or revocation
}

// RegistryConfig controls how a service's history is resolved.
type RegistryConfig struct {
	// RelativeExpiry reads revealed expiries as block counts from the
	// lock's mined height.
	RelativeExpiry bool `conf:"registry.relative_expiry"`
	// Workers bounds parallel transaction verification; 0 uses GOMAXPROCS.
	Workers int `conf:"registry.workers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// Params returns the chain parameters of the configured network.
func (c *Config) Params() (*chaincfg.Params, error) {
	return c.Network.Params()
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.bitname
//	macOS:   ~/Library/Application Support/Bitname
//	Windows: %APPDATA%\Bitname
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bitname"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Bitname")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Bitname")
		}
		return filepath.Join(home, "AppData", "Roaming", "Bitname")
	default:
		return filepath.Join(home, ".bitname")
	}
}

// NetworkDir returns the network-specific data directory.
func (c *Config) NetworkDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DBDir returns the transaction and registry cache directory.
func (c *Config) DBDir() string {
	return filepath.Join(c.NetworkDir(), "db")
}

// KeysDir returns the key file directory.
func (c *Config) KeysDir() string {
	return filepath.Join(c.NetworkDir(), "keys")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "bitname.conf")
}
