package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stablenet.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, ":8080", cfg.ListenAddress)
	require.Equal(t, uint64(12_000), cfg.MCRBps)
	require.Contains(t, cfg.Collateral, "ETH")

	bond, err := cfg.MinCommitBond()
	require.NoError(t, err)
	require.Zero(t, bond.Cmp(mustBig(t, "100000000000000000")))

	// Reloading the generated file round-trips cleanly.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.MCRBps, reloaded.MCRBps)
	require.Equal(t, cfg.Collateral["ETH"], reloaded.Collateral["ETH"])
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stablenet.toml")
	body := `
ListenAddress = ":9090"
DataDir = "/var/lib/stablenet"
Environment = "staging"
MCRBps = 13000
LiquidationPenaltyBps = 500
CommitWindowSecs = 300
RevealWindowSecs = 120
MinCommitBondWei = "250000000000000000"
MinLotWei = "1000000000000000"
MaxBatchSize = 16
TreasuryAddress = "stn1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqhqwy5w"
OracleMaxAgeSecs = 60
OracleMaxDeviationBps = 1500

[collateral.ETH]
LTVBps = 6000
Enabled = true

[collateral.WBTC]
LTVBps = 4500
Enabled = false

[pauses]
Liquidation = true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddress)
	require.Equal(t, uint64(13_000), cfg.MCRBps)
	require.Equal(t, int64(300), cfg.CommitWindowSecs)
	require.Equal(t, 16, cfg.MaxBatchSize)
	require.Equal(t, uint64(4_500), cfg.Collateral["WBTC"].LTVBps)
	require.False(t, cfg.Collateral["WBTC"].Enabled)

	lot, err := cfg.MinLot()
	require.NoError(t, err)
	require.Zero(t, lot.Cmp(mustBig(t, "1000000000000000")))

	require.True(t, cfg.Pauses.IsPaused("liquidation"))
	require.False(t, cfg.Pauses.IsPaused("vault"))
	require.False(t, cfg.Pauses.IsPaused("unknown"))
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			MCRBps:                12_000,
			LiquidationPenaltyBps: 1_000,
			CommitWindowSecs:      600,
			RevealWindowSecs:      600,
			MaxBatchSize:          32,
			OracleMaxAgeSecs:      300,
			Collateral:            map[string]CollateralParams{"ETH": {LTVBps: 5_000, Enabled: true}},
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mcr at par", func(c *Config) { c.MCRBps = 10_000 }},
		{"penalty at max", func(c *Config) { c.LiquidationPenaltyBps = 10_000 }},
		{"zero commit window", func(c *Config) { c.CommitWindowSecs = 0 }},
		{"zero reveal window", func(c *Config) { c.RevealWindowSecs = 0 }},
		{"zero batch size", func(c *Config) { c.MaxBatchSize = 0 }},
		{"zero oracle age", func(c *Config) { c.OracleMaxAgeSecs = 0 }},
		{"bad bond", func(c *Config) { c.MinCommitBondWei = "not-a-number" }},
		{"negative lot", func(c *Config) { c.MinLotWei = "-5" }},
		{"ltv out of range", func(c *Config) { c.Collateral["ETH"] = CollateralParams{LTVBps: 10_000, Enabled: true} }},
		{"ltv incompatible with mcr", func(c *Config) {
			c.MCRBps = 15_000
			c.Collateral["ETH"] = CollateralParams{LTVBps: 9_000, Enabled: true}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, base().Validate())
}

func mustBig(t *testing.T, raw string) *big.Int {
	t.Helper()
	value, ok := new(big.Int).SetString(raw, 10)
	require.True(t, ok)
	return value
}
