package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// CollateralParams carries the per-collateral-type risk knobs.
type CollateralParams struct {
	LTVBps  uint64 `toml:"LTVBps"`
	Enabled bool   `toml:"Enabled"`
}

// Pauses holds the governance kill switches per module.
type Pauses struct {
	Vault       bool `toml:"Vault"`
	Liquidation bool `toml:"Liquidation"`
	Stability   bool `toml:"Stability"`
	Oracle      bool `toml:"Oracle"`
}

// IsPaused satisfies the pause view consumed by the native engines.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(module) {
	case "vault":
		return p.Vault
	case "liquidation":
		return p.Liquidation
	case "stability":
		return p.Stability
	case "oracle":
		return p.Oracle
	default:
		return false
	}
}

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`

	// Risk parameters.
	MCRBps                uint64 `toml:"MCRBps"`
	LiquidationPenaltyBps uint64 `toml:"LiquidationPenaltyBps"`

	// Auction parameters.
	CommitWindowSecs int64  `toml:"CommitWindowSecs"`
	RevealWindowSecs int64  `toml:"RevealWindowSecs"`
	MinCommitBondWei string `toml:"MinCommitBondWei"`
	MinLotWei        string `toml:"MinLotWei"`
	MaxBatchSize     int    `toml:"MaxBatchSize"`

	// Module accounts.
	TreasuryAddress         string `toml:"TreasuryAddress"`
	LiquidationModuleAddr   string `toml:"LiquidationModuleAddress"`
	StabilityPoolModuleAddr string `toml:"StabilityPoolModuleAddress"`

	// Oracle guard rails.
	OracleMaxAgeSecs      int64  `toml:"OracleMaxAgeSecs"`
	OracleMaxDeviationBps uint64 `toml:"OracleMaxDeviationBps"`

	Collateral map[string]CollateralParams `toml:"collateral"`
	Pauses     Pauses                      `toml:"pauses"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./stablenet-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.Collateral == nil {
		c.Collateral = map[string]CollateralParams{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:         ":8080",
		DataDir:               "./stablenet-data",
		Environment:           "local",
		MCRBps:                12_000,
		LiquidationPenaltyBps: 1_000,
		CommitWindowSecs:      600,
		RevealWindowSecs:      600,
		MinCommitBondWei:      "100000000000000000",
		MinLotWei:             "10000000000000000",
		MaxBatchSize:          32,
		OracleMaxAgeSecs:      300,
		OracleMaxDeviationBps: 2_000,
		Collateral: map[string]CollateralParams{
			"ETH": {LTVBps: 5_000, Enabled: true},
		},
	}
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

// MinCommitBond parses the configured minimum bond into a big integer.
func (c *Config) MinCommitBond() (*big.Int, error) {
	return parseUintAmount("MinCommitBondWei", c.MinCommitBondWei)
}

// MinLot parses the configured minimum lot into a big integer.
func (c *Config) MinLot() (*big.Int, error) {
	return parseUintAmount("MinLotWei", c.MinLotWei)
}

func parseUintAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid %s %q", field, raw)
	}
	return value, nil
}
