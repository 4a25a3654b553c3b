package config

// Flags holds global command-line overrides. Zero values leave the
// configuration untouched.
type Flags struct {
	// Core
	Network string
	DataDir string
	Config  string

	// Electrum
	Servers string // comma-separated host:port list
	TLS     bool

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Explicitly-set bool flags (for true/false overrides).
	SetTLS     bool
	SetLogJSON bool
}

// Load builds the configuration for f: network defaults, then the config
// file, then the flags. The result is validated.
func Load(f *Flags) (*Config, error) {
	network := Mainnet
	if f.Network != "" {
		network = NetworkType(f.Network)
	}
	cfg := Default(network)
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	path := f.Config
	if path == "" {
		path = cfg.ConfigFile()
	}
	values, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyFileConfig(cfg, values); err != nil {
		return nil, err
	}

	ApplyFlags(cfg, f)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		SetNetwork(cfg, NetworkType(f.Network))
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Electrum
	if f.Servers != "" {
		cfg.Electrum.Servers = parseStringList(f.Servers)
	}
	if f.SetTLS {
		cfg.Electrum.TLS = f.TLS
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}
