package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks runtime client config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, ok := Networks[cfg.Network]; !ok {
		return fmt.Errorf("network must be %q, %q or %q", Mainnet, Testnet, Regtest)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir is empty")
	}

	if len(cfg.Electrum.Servers) == 0 {
		return fmt.Errorf("electrum.servers is empty")
	}
	for i, s := range cfg.Electrum.Servers {
		if _, port, err := net.SplitHostPort(strings.TrimSpace(s)); err != nil || port == "" {
			return fmt.Errorf("electrum.servers[%d] must be host:port, got %q", i, s)
		}
	}
	if cfg.Electrum.Timeout <= 0 {
		return fmt.Errorf("electrum.timeout must be positive")
	}

	fees := []struct {
		key string
		v   int64
	}{
		{"fees.commit", cfg.Fees.CommitFee},
		{"fees.register", cfg.Fees.RegisterFee},
		{"fees.escrow", cfg.Fees.EscrowFee},
		{"fees.upfront", cfg.Fees.UpfrontFee},
		{"fees.locked", cfg.Fees.LockedFee},
	}
	for _, f := range fees {
		if f.v < 0 {
			return fmt.Errorf("%s must not be negative", f.key)
		}
	}
	if cfg.Fees.CommitFee == 0 {
		return fmt.Errorf("fees.commit must be positive")
	}
	if cfg.Fees.UpfrontFee+cfg.Fees.LockedFee > cfg.Fees.RegisterFee+cfg.Fees.EscrowFee {
		return fmt.Errorf("fees.upfront + fees.locked exceed the escrowed fees.register + fees.escrow")
	}

	if cfg.Registry.Workers < 0 {
		return fmt.Errorf("registry.workers must not be negative")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "", "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}
	return nil
}
