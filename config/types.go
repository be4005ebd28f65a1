package config

import (
	"strings"

	"vaultchain/native/fees"
)

// FeeSplit divides distributed fees between stakers and the treasury. TOML
// tables accept both StakingBps and staking_bps spellings.
type FeeSplit = fees.SplitPolicy

// DefaultFees is the factory fee schedule for new vaults, as decimal shares.
type DefaultFees struct {
	Mint         string `toml:"Mint" yaml:"mint"`
	RandomRedeem string `toml:"RandomRedeem" yaml:"random_redeem"`
	TargetRedeem string `toml:"TargetRedeem" yaml:"target_redeem"`
	RandomSwap   string `toml:"RandomSwap" yaml:"random_swap"`
	TargetSwap   string `toml:"TargetSwap" yaml:"target_swap"`
}

// RateLimit bounds RPC requests per client.
type RateLimit struct {
	RequestsPerMinute int `toml:"RequestsPerMinute" yaml:"requests_per_minute"`
	Burst             int `toml:"Burst" yaml:"burst"`
}

// Log controls the slog handler.
type Log struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
	Traces   bool   `toml:"Traces" yaml:"traces"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
}

// Archive configures the SQL event archive. An empty DSN disables it.
type Archive struct {
	Driver string `toml:"Driver" yaml:"driver"`
	DSN    string `toml:"DSN" yaml:"dsn"`
}

// Enabled reports whether an archive DSN is configured.
func (a Archive) Enabled() bool { return strings.TrimSpace(a.DSN) != "" }

// AdminAuth configures JWT bearer tokens for the operator routes. An empty
// Secret disables those routes.
type AdminAuth struct {
	Secret   string `toml:"Secret" yaml:"secret"`
	Issuer   string `toml:"Issuer" yaml:"issuer"`
	Audience string `toml:"Audience" yaml:"audience"`
	Scope    string `toml:"Scope" yaml:"scope"`
}

// Enabled reports whether an admin secret is configured.
func (a AdminAuth) Enabled() bool { return strings.TrimSpace(a.Secret) != "" }

// Pauses lists modules whose user-facing operations are halted.
type Pauses struct {
	Vault bool `toml:"Vault" yaml:"vault"`
}

// IsPaused reports whether the named module is paused.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case "vault":
		return p.Vault
	default:
		return false
	}
}
