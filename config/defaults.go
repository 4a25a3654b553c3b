package config

import "time"

// Default protocol fees in satoshis. The commit escrow covers the lock
// transaction's upfront and locked outputs.
const (
	DefaultCommitFee   = 500000
	DefaultRegisterFee = 500000
	DefaultEscrowFee   = 1000000
	DefaultUpfrontFee  = DefaultRegisterFee
	DefaultLockedFee   = DefaultEscrowFee
)

// DefaultTimeout bounds a single Electrum server attempt.
const DefaultTimeout = 10 * time.Second

// DefaultMainnet returns the default client configuration for mainnet.
func DefaultMainnet() *Config {
	return defaultFor(Mainnet)
}

// DefaultTestnet returns the default client configuration for testnet.
func DefaultTestnet() *Config {
	return defaultFor(Testnet)
}

// DefaultRegtest returns the default client configuration for a local
// regtest node.
func DefaultRegtest() *Config {
	return defaultFor(Regtest)
}

// Default returns the default client configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Regtest:
		return DefaultRegtest()
	default:
		return DefaultMainnet()
	}
}

func defaultFor(network NetworkType) *Config {
	net := Networks[network]
	return &Config{
		Network: network,
		DataDir: DefaultDataDir(),
		Electrum: ElectrumConfig{
			Servers: append([]string(nil), net.Servers...),
			Timeout: DefaultTimeout,
			TLS:     net.TLS,
		},
		Fees: FeeConfig{
			CommitFee:   DefaultCommitFee,
			RegisterFee: DefaultRegisterFee,
			EscrowFee:   DefaultEscrowFee,
			UpfrontFee:  DefaultUpfrontFee,
			LockedFee:   DefaultLockedFee,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
