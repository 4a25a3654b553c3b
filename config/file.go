package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads client configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
// The network key is applied first: it selects the default servers that
// later electrum keys may override.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	if v, ok := values["network"]; ok {
		if err := setConfigValue(cfg, "network", v); err != nil {
			return fmt.Errorf("config key %q: %w", "network", err)
		}
	}
	for key, value := range values {
		if key == "network" {
			continue
		}
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a client config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		SetNetwork(cfg, NetworkType(strings.ToLower(value)))
	case "datadir":
		cfg.DataDir = value

	// Electrum
	case "electrum.servers", "server":
		cfg.Electrum.Servers = parseStringList(value)
	case "electrum.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Electrum.Timeout = d
	case "electrum.tls":
		cfg.Electrum.TLS = parseBool(value)

	// Fees
	case "fees.commit":
		return parseAmount(value, &cfg.Fees.CommitFee)
	case "fees.register":
		return parseAmount(value, &cfg.Fees.RegisterFee)
	case "fees.escrow":
		return parseAmount(value, &cfg.Fees.EscrowFee)
	case "fees.upfront":
		return parseAmount(value, &cfg.Fees.UpfrontFee)
	case "fees.locked":
		return parseAmount(value, &cfg.Fees.LockedFee)

	// Registry
	case "registry.relative_expiry":
		cfg.Registry.RelativeExpiry = parseBool(value)
	case "registry.workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Registry.Workers = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// SetNetwork switches cfg to network, replacing the Electrum servers when
// they are still the previous network's defaults.
func SetNetwork(cfg *Config, network NetworkType) {
	if prev, ok := Networks[cfg.Network]; ok && sameList(cfg.Electrum.Servers, prev.Servers) {
		if next, ok := Networks[network]; ok {
			cfg.Electrum.Servers = append([]string(nil), next.Servers...)
			cfg.Electrum.TLS = next.TLS
		}
	}
	cfg.Network = network
}

func sameList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseAmount parses a satoshi amount.
func parseAmount(s string, dst *int64) error {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default client configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	net := Networks[network]
	content := `# Bitname Client Configuration
#
# Protocol amounts below must match what the service expects.
# Script layouts and maturity delays are fixed by the protocol.

# Network: mainnet, testnet or regtest
network = ` + string(network) + `

# Data directory (default: ~/.bitname)
# datadir = ~/.bitname

# ============================================================================
# Electrum
# ============================================================================

# Servers, tried in order (comma-separated host:port)
electrum.servers = ` + strings.Join(net.Servers, ",") + `
electrum.tls = ` + strconv.FormatBool(net.TLS) + `
electrum.timeout = ` + DefaultTimeout.String() + `

# ============================================================================
# Fees (satoshis)
# ============================================================================

fees.commit = ` + strconv.Itoa(DefaultCommitFee) + `
fees.register = ` + strconv.Itoa(DefaultRegisterFee) + `
fees.escrow = ` + strconv.Itoa(DefaultEscrowFee) + `
fees.upfront = ` + strconv.Itoa(DefaultUpfrontFee) + `
fees.locked = ` + strconv.Itoa(DefaultLockedFee) + `

# ============================================================================
# Registry
# ============================================================================

# Read revealed expiries as block counts (histories from older clients)
registry.relative_expiry = false
# Parallel verification workers (0 = one per CPU)
registry.workers = 0

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
