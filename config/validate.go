package config

import "fmt"

// Validate rejects configurations that would wedge the protocol at runtime.
func (c *Config) Validate() error {
	if c.MCRBps <= 10_000 {
		return fmt.Errorf("config: MCRBps must exceed 10000, got %d", c.MCRBps)
	}
	if c.LiquidationPenaltyBps >= 10_000 {
		return fmt.Errorf("config: LiquidationPenaltyBps must stay below 10000, got %d", c.LiquidationPenaltyBps)
	}
	if c.CommitWindowSecs <= 0 {
		return fmt.Errorf("config: CommitWindowSecs must be positive, got %d", c.CommitWindowSecs)
	}
	if c.RevealWindowSecs <= 0 {
		return fmt.Errorf("config: RevealWindowSecs must be positive, got %d", c.RevealWindowSecs)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("config: MaxBatchSize must be positive, got %d", c.MaxBatchSize)
	}
	if c.OracleMaxAgeSecs <= 0 {
		return fmt.Errorf("config: OracleMaxAgeSecs must be positive, got %d", c.OracleMaxAgeSecs)
	}
	if _, err := c.MinCommitBond(); err != nil {
		return err
	}
	if _, err := c.MinLot(); err != nil {
		return err
	}
	for symbol, params := range c.Collateral {
		if params.LTVBps == 0 || params.LTVBps >= 10_000 {
			return fmt.Errorf("config: collateral %s LTVBps must be in (0, 10000), got %d", symbol, params.LTVBps)
		}
		// A vault borrowed to the LTV bound must still sit above the MCR,
		// otherwise fresh positions are liquidatable the moment they open.
		if params.LTVBps*c.MCRBps > 10_000*10_000 {
			return fmt.Errorf("config: collateral %s LTVBps %d incompatible with MCRBps %d", symbol, params.LTVBps, c.MCRBps)
		}
	}
	return nil
}
