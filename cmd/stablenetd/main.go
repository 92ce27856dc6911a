package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stablenet/config"
	"stablenet/crypto"
	"stablenet/native/collateral"
	"stablenet/native/liquidation"
	"stablenet/native/oracle"
	"stablenet/native/stability"
	"stablenet/native/vault"
	"stablenet/observability"
	"stablenet/observability/logging"
	"stablenet/rpc"
	"stablenet/state"
	"stablenet/storage"
)

const (
	liquidationModuleAddrDefault = "module/liquidation"
	stabilityModuleAddrDefault   = "module/stability"
	treasuryAddrDefault          = "module/treasury"
)

func main() {
	configFile := flag.String("config", "./stablenet.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("STABLENET_ENV"))
	logger := logging.Setup("stablenetd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	store := state.NewStore(db)

	feed := oracle.NewFeed(time.Duration(cfg.OracleMaxAgeSecs)*time.Second, cfg.OracleMaxDeviationBps)
	if cfg.Pauses.Oracle {
		feed.Pause()
	}

	liqModuleAddr, err := moduleAddress(cfg.LiquidationModuleAddr, liquidationModuleAddrDefault)
	if err != nil {
		logger.Error("invalid liquidation module address", slog.Any("error", err))
		os.Exit(1)
	}
	poolModuleAddr, err := moduleAddress(cfg.StabilityPoolModuleAddr, stabilityModuleAddrDefault)
	if err != nil {
		logger.Error("invalid stability module address", slog.Any("error", err))
		os.Exit(1)
	}
	treasuryAddr, err := moduleAddress(cfg.TreasuryAddress, treasuryAddrDefault)
	if err != nil {
		logger.Error("invalid treasury address", slog.Any("error", err))
		os.Exit(1)
	}

	minBond, err := cfg.MinCommitBond()
	if err != nil {
		logger.Error("invalid minimum bond", slog.Any("error", err))
		os.Exit(1)
	}
	minLot, err := cfg.MinLot()
	if err != nil {
		logger.Error("invalid minimum lot", slog.Any("error", err))
		os.Exit(1)
	}

	liqEngine := liquidation.NewEngine(liqModuleAddr, treasuryAddr, liquidation.Params{
		CommitWindowSecs: cfg.CommitWindowSecs,
		RevealWindowSecs: cfg.RevealWindowSecs,
		MinCommitBond:    minBond,
		MinLot:           minLot,
		MaxBatchSize:     cfg.MaxBatchSize,
	})
	liqEngine.SetState(store)
	liqEngine.SetPauses(cfg.Pauses)
	liqEngine.SetMetrics(observability.Liquidation())

	pool := stability.NewPool(poolModuleAddr)
	pool.SetState(store)
	pool.SetPauses(cfg.Pauses)
	liqEngine.SetStabilityPool(pool)

	vaultEngine := vault.NewEngine(cfg.MCRBps, cfg.LiquidationPenaltyBps)
	vaultEngine.SetState(store)
	vaultEngine.SetOracle(feed)
	vaultEngine.SetLedger(state.NewLedger(store))
	vaultEngine.SetQueue(liqEngine)
	vaultEngine.SetPauses(cfg.Pauses)
	vaultEngine.SetMetrics(observability.Vault())
	liqEngine.SetVaultBackend(vaultEngine)

	for symbol, params := range cfg.Collateral {
		adapter := collateral.NewAdapter(symbol)
		vaultEngine.RegisterAdapter(symbol, adapter)
		liqEngine.RegisterAdapter(strings.ToUpper(strings.TrimSpace(symbol)), adapter)
		if err := vaultEngine.SetCollateralConfig(symbol, vault.CollateralConfig{
			LTVBps:  params.LTVBps,
			Enabled: params.Enabled,
		}); err != nil {
			logger.Error("failed to configure collateral", slog.String("symbol", symbol), slog.Any("error", err))
			os.Exit(1)
		}
	}

	server := rpc.NewServer(vaultEngine, liqEngine, pool, feed, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", server.Router())

	logger.Info("stablenetd listening",
		slog.String("address", cfg.ListenAddress),
		slog.String("dataDir", cfg.DataDir),
		slog.Int("collateralTypes", len(cfg.Collateral)))
	if err := http.ListenAndServe(cfg.ListenAddress, mux); err != nil {
		logger.Error("http server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// moduleAddress resolves a configured bech32 address, deriving a deterministic
// module account from the seed label when the config leaves it empty.
func moduleAddress(configured, seed string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(configured)
	if trimmed != "" {
		addr, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			return crypto.Address{}, fmt.Errorf("decode %q: %w", trimmed, err)
		}
		return addr, nil
	}
	return crypto.ModuleAddress(seed), nil
}
