package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"vaultchain/crypto"
)

type Config struct {
	DataDir               string      `toml:"DataDir" yaml:"data_dir"`
	RPCAddress            string      `toml:"RPCAddress" yaml:"rpc_address"`
	MetricsAddress        string      `toml:"MetricsAddress" yaml:"metrics_address"`
	Environment           string      `toml:"Environment" yaml:"environment"`
	Admin                 string      `toml:"Admin" yaml:"admin"`
	Treasury              string      `toml:"Treasury" yaml:"treasury"`
	BaseToken             string      `toml:"BaseToken" yaml:"base_token"`
	FeeSplit              FeeSplit    `toml:"FeeSplit" yaml:"fee_split"`
	DefaultFees           DefaultFees `toml:"DefaultFees" yaml:"default_fees"`
	StakingZapLockSeconds uint64      `toml:"StakingZapLockSeconds" yaml:"staking_zap_lock_seconds"`
	FeeDistributionPaused bool        `toml:"FeeDistributionPaused" yaml:"fee_distribution_paused"`
	Pauses                Pauses      `toml:"Pauses" yaml:"pauses"`
	RateLimit             RateLimit   `toml:"RateLimit" yaml:"rate_limit"`
	Log                   Log         `toml:"Log" yaml:"log"`
	Telemetry             Telemetry   `toml:"Telemetry" yaml:"telemetry"`
	Archive               Archive     `toml:"Archive" yaml:"archive"`
	AdminAuth             AdminAuth   `toml:"AdminAuth" yaml:"admin_auth"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir:        "./vault-data",
		RPCAddress:     ":8080",
		MetricsAddress: ":9090",
		Environment:    "local",
		Admin:          crypto.NewAddress(crypto.VaultPrefix, addrBytes(crypto.ModuleAddress("admin"))).String(),
		Treasury:       crypto.NewAddress(crypto.VaultPrefix, addrBytes(crypto.ModuleAddress("treasury"))).String(),
		BaseToken:      "WETH",
		FeeSplit:       FeeSplit{StakingBps: 8000, TreasuryBps: 2000},
		DefaultFees: DefaultFees{
			Mint:         "0.1",
			RandomRedeem: "0.05",
			TargetRedeem: "0.1",
			RandomSwap:   "0.05",
			TargetSwap:   "0.1",
		},
		StakingZapLockSeconds: 600,
		RateLimit:             RateLimit{RequestsPerMinute: 600, Burst: 60},
		Log:                   Log{Level: "info"},
		Telemetry:             Telemetry{Endpoint: "localhost:4318"},
		Archive:               Archive{Driver: "sqlite", DSN: "./vault-events.db"},
		AdminAuth:             AdminAuth{Scope: "vault:admin"},
	}
}

func addrBytes(a [20]byte) []byte { return a[:] }

// Load loads the configuration from the given path. TOML and YAML files are
// both accepted, selected by extension. A missing file is created with the
// defaults in TOML.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
		}
	}

	cfg.BaseToken = strings.ToUpper(strings.TrimSpace(cfg.BaseToken))
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
